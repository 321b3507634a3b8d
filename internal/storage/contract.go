package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"evann/internal/model"
)

var (
	ErrMemoryMissing    = errors.New("memory missing")
	ErrMemoryInitialize = errors.New("memory initialize error")
	ErrMemoryGenerate   = errors.New("memory generate error")
)

// LoadMemory fetches the memory at location and checks it against topology.
func LoadMemory(ctx context.Context, store Store, location string, topology model.Topology) (model.Memory, error) {
	if store == nil {
		return model.Memory{}, fmt.Errorf("store is required")
	}
	memory, ok, err := store.GetMemory(ctx, location)
	if err != nil {
		if errors.Is(err, ErrMemoryInitialize) {
			return model.Memory{}, fmt.Errorf("load %s: %w", location, err)
		}
		return model.Memory{}, fmt.Errorf("load %s: %w: %w", location, ErrMemoryInitialize, err)
	}
	if !ok {
		return model.Memory{}, fmt.Errorf("%w: %s", ErrMemoryMissing, location)
	}
	if !memory.Topology.Equal(topology) {
		return model.Memory{}, fmt.Errorf("%w: %s stores topology %q, want %q", ErrMemoryInitialize, location, memory.Topology.String(), topology.String())
	}
	if err := memory.CheckTopology(topology); err != nil {
		return model.Memory{}, fmt.Errorf("%w: %s: %v", ErrMemoryInitialize, location, err)
	}
	return memory, nil
}

// LoadChromosome returns the weights stored at location, flattened.
func LoadChromosome(ctx context.Context, store Store, location string, topology model.Topology) (model.Chromosome, error) {
	memory, err := LoadMemory(ctx, store, location, topology)
	if err != nil {
		return nil, err
	}
	return memory.Chromosome(), nil
}

// SaveChromosome overwrites location with a memory built from chromosome.
func SaveChromosome(ctx context.Context, store Store, chromosome model.Chromosome, topology model.Topology, location string) error {
	if store == nil {
		return fmt.Errorf("store is required")
	}
	memory, err := model.MemoryFromChromosome(topology, chromosome)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMemoryInitialize, err)
	}
	return store.SaveMemory(ctx, location, memory)
}

// GenerateMemory draws every weight uniformly from [-0.5, 0.5) and writes the
// default bias pair on every neuron.
func GenerateMemory(rng *rand.Rand, topology model.Topology) (model.Memory, error) {
	if rng == nil {
		return model.Memory{}, fmt.Errorf("%w: random source is required", ErrMemoryGenerate)
	}
	if err := topology.Validate(); err != nil {
		return model.Memory{}, fmt.Errorf("%w: %w", ErrMemoryGenerate, err)
	}
	chromosome := make(model.Chromosome, topology.ChromosomeLength())
	for i := range chromosome {
		chromosome[i] = rng.Float64() - 0.5
	}
	memory, err := model.MemoryFromChromosome(topology, chromosome)
	if err != nil {
		return model.Memory{}, fmt.Errorf("%w: %w", ErrMemoryGenerate, err)
	}
	memory.VersionedRecord = currentVersion()
	return memory, nil
}
