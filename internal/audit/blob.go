package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/JaimeStill/geofeed/pkg/storage"
)

const ndjson = "application/x-ndjson"

type blobSink struct {
	store  storage.System
	prefix string
}

// NewBlobSink creates a Sink that archives events as JSON lines in one append
// blob per UTC day under prefix.
func NewBlobSink(store storage.System, prefix string) Sink {
	return &blobSink{store: store, prefix: prefix}
}

func (s *blobSink) Record(ctx context.Context, e Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	line = append(line, '\n')

	return s.store.Append(ctx, ArchiveKey(s.prefix, e.At), line, ndjson)
}

// ArchiveKey returns the blob key holding events that occurred on at's UTC day.
func ArchiveKey(prefix string, at time.Time) string {
	return path.Join(prefix, at.UTC().Format("2006/01/02")+".jsonl")
}
