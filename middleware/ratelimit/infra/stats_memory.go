package infra

import (
	"context"
	"errors"
	"maps"
	"sync"

	"ocr-gateway/middleware/ratelimit/domain"
)

// Counters conta decisões de admissão.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c Counters) with(allowed bool) Counters {
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
	return c
}

// MemoryStatsStore conta decisões no processo. Nada expira; byKey só cresce
// com WithTrackKeys(true).
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byKey   map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]Counters),
		byKey:   make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total = s.total.with(ev.Allowed)
	if ev.Route != "" {
		s.byRoute[ev.Route] = s.byRoute[ev.Route].with(ev.Allowed)
	}
	if s.trackKeys && ev.Key != "" {
		s.byKey[string(ev.Key)] = s.byKey[string(ev.Key)].with(ev.Allowed)
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byKey)
}

// MultiStats entrega o evento a todos os stores, mesmo quando um falha.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, st := range m {
		if st != nil {
			errs = append(errs, st.Record(ctx, ev))
		}
	}
	return errors.Join(errs...)
}
