package readings

import (
	"context"
	"slices"
	"sync"

	"github.com/icodeforyou/priceplan-go/types"
)

var (
	_ types.ReadingStore  = (*MemStore)(nil)
	_ types.StatsProvider = (*MemStore)(nil)
)

type meterReadings struct {
	mu       sync.RWMutex
	readings []types.Reading
}

// MemStore keeps readings in memory. Appends to different meters never
// contend; appends to the same meter are serialized by the meter's own lock.
type MemStore struct {
	mu     sync.RWMutex
	meters map[types.MeterID]*meterReadings
}

func NewMemStore() *MemStore {
	return &MemStore{meters: make(map[types.MeterID]*meterReadings)}
}

func (s *MemStore) entry(meter types.MeterID, create bool) *meterReadings {
	s.mu.RLock()
	m, ok := s.meters[meter]
	s.mu.RUnlock()
	if ok || !create {
		return m
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok = s.meters[meter]; !ok {
		m = &meterReadings{}
		s.meters[meter] = m
	}
	return m
}

func (s *MemStore) Append(_ context.Context, meter types.MeterID, readings []types.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	m := s.entry(meter, true)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Readers hold on to the old slice, so never write into shared backing storage.
	next := make([]types.Reading, 0, len(m.readings)+len(readings))
	next = append(next, m.readings...)
	next = append(next, readings...)
	m.readings = next
	return nil
}

func (s *MemStore) Get(_ context.Context, meter types.MeterID) ([]types.Reading, error) {
	m := s.entry(meter, false)
	if m == nil {
		return []types.Reading{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.readings), nil
}

func (s *MemStore) Stats(_ context.Context) (types.StoreStats, error) {
	s.mu.RLock()
	entries := make([]*meterReadings, 0, len(s.meters))
	for _, m := range s.meters {
		entries = append(entries, m)
	}
	s.mu.RUnlock()

	stats := types.StoreStats{Meters: len(entries)}
	for _, m := range entries {
		m.mu.RLock()
		stats.Readings += len(m.readings)
		m.mu.RUnlock()
	}
	return stats, nil
}
