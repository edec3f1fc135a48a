package audit

import (
	"context"
	"log/slog"
)

type logSink struct {
	logger *slog.Logger
}

// NewLogSink creates a Sink that writes events to the structured logger.
// Alert events are logged at error level.
func NewLogSink(logger *slog.Logger) Sink {
	return &logSink{logger: logger.With("system", "audit")}
}

func (s *logSink) Record(ctx context.Context, e Event) error {
	level := slog.LevelInfo
	if e.Alert {
		level = slog.LevelError
	}

	s.logger.LogAttrs(ctx, level, "audit event",
		slog.String("kind", string(e.Kind)),
		slog.String("feature_id", e.FeatureID),
		slog.String("from", e.From),
		slog.String("to", e.To),
		slog.Int("attempt", e.Attempt),
		slog.String("detail", e.Detail),
		slog.Bool("alert", e.Alert),
		slog.Time("at", e.At),
	)
	return nil
}
