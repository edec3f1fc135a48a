package queue

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JaimeStill/geofeed/pkg/pagination"
	"github.com/JaimeStill/geofeed/pkg/query"
)

type memory struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	sequence   int64
	now        func() time.Time
	pagination pagination.Config
}

// NewMemory creates a Store held in process memory. It has the same state
// semantics as the PostgreSQL store but loses its contents when the process exits.
func NewMemory() Store {
	return &memory{
		entries:    make(map[string]*Entry),
		now:        time.Now,
		pagination: pagination.Config{DefaultPageSize: 20, MaxPageSize: 100},
	}
}

func (m *memory) Enqueue(_ context.Context, cmd EnqueueCommand) (*Entry, error) {
	if err := validateEnqueue(cmd); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[cmd.FeatureID]; ok {
		e.Payload = bytes.Clone(cmd.Payload)
		return clone(e), nil
	}

	m.sequence++
	e := &Entry{
		FeatureID:     cmd.FeatureID,
		Sequence:      m.sequence,
		Payload:       bytes.Clone(cmd.Payload),
		Status:        StatusPending,
		RetryCount:    cmd.Attempts,
		NextAttemptAt: cmd.NextAttemptAt,
		EnqueuedAt:    cmd.At,
		UpdatedAt:     cmd.At,
	}
	if cmd.LastError != "" {
		e.LastError = &cmd.LastError
	}
	m.entries[cmd.FeatureID] = e
	return clone(e), nil
}

func (m *memory) Claim(_ context.Context, now time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		return []Entry{}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	due := make([]*Entry, 0)
	for _, e := range m.entries {
		if e.Status == StatusPending && !e.NextAttemptAt.After(now) {
			due = append(due, e)
		}
	}
	slices.SortFunc(due, func(a, b *Entry) int { return compareAge(*a, *b) })

	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]Entry, len(due))
	for i, e := range due {
		e.Status = StatusSyncing
		e.UpdatedAt = now
		claimed[i] = *clone(e)
	}
	return claimed, nil
}

func (m *memory) MarkSynced(_ context.Context, id string, at time.Time) (*Entry, error) {
	return m.transition(id, StatusSyncing, StatusSynced, func(e *Entry) {
		e.RetryCount++
		e.SyncedAt = &at
		e.UpdatedAt = at
	})
}

func (m *memory) MarkRetry(_ context.Context, id string, attempts int, next time.Time, detail string) (*Entry, error) {
	return m.transition(id, StatusSyncing, StatusPending, func(e *Entry) {
		e.RetryCount = attempts
		e.NextAttemptAt = next
		e.LastError = &detail
		e.UpdatedAt = m.now()
	})
}

func (m *memory) MarkFailed(_ context.Context, id string, attempts int, detail string, at time.Time) (*Entry, error) {
	return m.transition(id, StatusSyncing, StatusFailedPermanent, func(e *Entry) {
		e.RetryCount = attempts
		e.LastError = &detail
		e.UpdatedAt = at
	})
}

func (m *memory) Release(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, id := range ids {
		if e, ok := m.entries[id]; ok && e.Status == StatusSyncing {
			e.Status = StatusPending
			e.UpdatedAt = m.now()
			n++
		}
	}
	return n, nil
}

func (m *memory) Recover(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, e := range m.entries {
		if e.Status == StatusSyncing {
			e.Status = StatusPending
			e.UpdatedAt = m.now()
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *memory) Requeue(_ context.Context, id string, at time.Time) (*Entry, error) {
	return m.transition(id, StatusFailedPermanent, StatusPending, func(e *Entry) {
		e.RetryCount = 0
		e.NextAttemptAt = at
		e.UpdatedAt = at
	})
}

func (m *memory) Find(_ context.Context, id string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e), nil
}

func (m *memory) List(
	_ context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Entry], error) {
	page.Normalize(m.pagination)

	m.mu.Lock()
	matched := make([]Entry, 0)
	for _, e := range m.entries {
		if filters.match(e) && matchSearch(e, page.Search) {
			matched = append(matched, *clone(e))
		}
	}
	m.mu.Unlock()

	sort := sortable(page.Sort)
	if len(sort) == 0 {
		sort = []query.SortField{defaultSort}
	}
	slices.SortFunc(matched, func(a, b Entry) int {
		for _, f := range sort {
			c := compareField(a, b, f.Field)
			if f.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Sequence, b.Sequence)
	})

	total := len(matched)
	start := min(page.Offset(), total)
	end := min(start+page.PageSize, total)

	result := pagination.NewPageResult(matched[start:end], total, page.Page, page.PageSize)
	return &result, nil
}

func (m *memory) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats Stats
	for _, e := range m.entries {
		stats.add(e.Status, 1)
		if e.Status != StatusPending {
			continue
		}
		if stats.OldestPending == nil || e.EnqueuedAt.Before(*stats.OldestPending) {
			oldest := e.EnqueuedAt
			stats.OldestPending = &oldest
		}
	}
	return stats, nil
}

func (m *memory) transition(id string, from, to Status, apply func(*Entry)) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.Status != from {
		return nil, fmt.Errorf("%w: %s is %s, cannot move to %s", ErrInvalidTransition, id, e.Status, to)
	}

	e.Status = to
	apply(e)
	return clone(e), nil
}

func (f Filters) match(e *Entry) bool {
	if f.Status != nil && string(e.Status) != *f.Status {
		return false
	}
	if f.FeatureID != nil && !containsFold(e.FeatureID, *f.FeatureID) {
		return false
	}
	if f.LastError != nil && (e.LastError == nil || !containsFold(*e.LastError, *f.LastError)) {
		return false
	}
	if f.MinRetries != nil && e.RetryCount < *f.MinRetries {
		return false
	}
	if f.EnqueuedBefore != nil && !e.EnqueuedAt.Before(*f.EnqueuedBefore) {
		return false
	}
	return true
}

func matchSearch(e *Entry, search *string) bool {
	if search == nil || *search == "" {
		return true
	}
	if containsFold(e.FeatureID, *search) {
		return true
	}
	return e.LastError != nil && containsFold(*e.LastError, *search)
}

func compareField(a, b Entry, field string) int {
	switch field {
	case "FeatureID":
		return strings.Compare(a.FeatureID, b.FeatureID)
	case "Sequence":
		return cmp.Compare(a.Sequence, b.Sequence)
	case "Status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "RetryCount":
		return cmp.Compare(a.RetryCount, b.RetryCount)
	case "NextAttemptAt":
		return a.NextAttemptAt.Compare(b.NextAttemptAt)
	case "EnqueuedAt":
		return a.EnqueuedAt.Compare(b.EnqueuedAt)
	case "UpdatedAt":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	}
	return 0
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func clone(e *Entry) *Entry {
	c := *e
	c.Payload = bytes.Clone(e.Payload)
	if e.SyncedAt != nil {
		t := *e.SyncedAt
		c.SyncedAt = &t
	}
	if e.LastError != nil {
		s := *e.LastError
		c.LastError = &s
	}
	return &c
}
