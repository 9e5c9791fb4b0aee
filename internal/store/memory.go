package store

import (
	"context"
	"sort"
	"sync"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// Memory keeps snapshots in process memory
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	data    map[string][]byte
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]Record),
		data:    make(map[string][]byte),
	}
}

func (s *Memory) Save(_ context.Context, m *threatmodel.ThreatModel) error {
	data, err := encode(m)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[m.ID] = recordOf(m)
	s.data[m.ID] = data
	return nil
}

func (s *Memory) Get(_ context.Context, id string) (*threatmodel.ThreatModel, error) {
	s.mu.RLock()
	data, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(id, data)
}

func (s *Memory) List(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return ErrNotFound
	}
	delete(s.data, id)
	delete(s.records, id)
	return nil
}

func (s *Memory) Close() error { return nil }
