package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryDispatchLog implements collection.DispatchLogStore using an
// in-memory slice. Suitable for single-instance deployments without Redis
// and for testing; the log does not survive a restart.
type InMemoryDispatchLog struct {
	mu        sync.RWMutex
	stamps    []time.Time
	retention time.Duration
}

// NewInMemoryDispatchLog creates a new in-memory dispatch log
func NewInMemoryDispatchLog() *InMemoryDispatchLog {
	return &InMemoryDispatchLog{
		retention: 5 * time.Minute,
	}
}

// Append records a dispatch timestamp and prunes stamps past retention
func (s *InMemoryDispatchLog) Append(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stamps = append(s.stamps, t)
	cutoff := t.Add(-s.retention)
	keep := s.stamps[:0]
	for _, st := range s.stamps {
		if !st.Before(cutoff) {
			keep = append(keep, st)
		}
	}
	s.stamps = keep
	return nil
}

// Since returns the timestamps at or after cutoff, oldest first
func (s *InMemoryDispatchLog) Since(ctx context.Context, cutoff time.Time) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []time.Time
	for _, st := range s.stamps {
		if !st.Before(cutoff) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}
