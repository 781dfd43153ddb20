package storage

import (
	"context"
	"sort"
	"sync"

	"argus/core"
)

// MemorySink is an in-memory sink for tests and single-shot CLI runs where
// persistence is not wanted.
type MemorySink struct {
	mu     sync.RWMutex
	alerts map[string]*core.EnrichedAlert
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{alerts: make(map[string]*core.EnrichedAlert)}
}

// Store inserts one enrichment record.
func (s *MemorySink) Store(_ context.Context, alert *core.EnrichedAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[alert.ID]; exists {
		return ErrDuplicateAlert
	}
	s.alerts[alert.ID] = alert
	return nil
}

// GetByID fetches a single enrichment record.
func (s *MemorySink) GetByID(_ context.Context, id string) (*core.EnrichedAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return alert, nil
}

// Recent returns the newest enrichment records, newest first.
func (s *MemorySink) Recent(_ context.Context, limit int) ([]*core.EnrichedAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts := make([]*core.EnrichedAlert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		alerts = append(alerts, alert)
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].EnrichedAt.After(alerts[j].EnrichedAt)
	})
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

// Len returns the number of stored records.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}
