package storage

import (
	"context"
	"errors"
	"sync"

	"evann/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	memories    map[string]model.Memory
	history     map[string][]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.memories = make(map[string]model.Memory)
	s.history = make(map[string][]float64)
	return nil
}

func (s *MemoryStore) SaveMemory(_ context.Context, location string, memory model.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	stored := memory.Clone()
	if stored.SchemaVersion == 0 && stored.CodecVersion == 0 {
		stored.VersionedRecord = currentVersion()
	}
	s.memories[location] = stored
	return nil
}

func (s *MemoryStore) GetMemory(_ context.Context, location string) (model.Memory, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	memory, ok := s.memories[location]
	if !ok {
		return model.Memory{}, false, nil
	}
	return memory.Clone(), true, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}
