package storage

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"evann/internal/model"
)

func newInitializedMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return store
}

func TestLoadChromosomeMissing(t *testing.T) {
	store := newInitializedMemoryStore(t)
	_, err := LoadChromosome(context.Background(), store, "absent", model.Topology{InputLength: 2, Layers: []int{1}})
	if !errors.Is(err, ErrMemoryMissing) {
		t.Fatalf("expected ErrMemoryMissing, got: %v", err)
	}
}

func TestSaveThenLoadChromosome(t *testing.T) {
	ctx := context.Background()
	store := newInitializedMemoryStore(t)
	topology := model.Topology{InputLength: 2, Layers: []int{2, 1}}
	chromosome := model.Chromosome{1, 2, 3, 4, 5, 6}

	if err := SaveChromosome(ctx, store, chromosome, topology, "xor.txt"); err != nil {
		t.Fatalf("save chromosome: %v", err)
	}
	loaded, err := LoadChromosome(ctx, store, "xor.txt", topology)
	if err != nil {
		t.Fatalf("load chromosome: %v", err)
	}
	if len(loaded) != len(chromosome) {
		t.Fatalf("unexpected length: %d", len(loaded))
	}
	for i := range chromosome {
		if loaded[i] != chromosome[i] {
			t.Fatalf("gene %d mismatch: got=%f want=%f", i, loaded[i], chromosome[i])
		}
	}

	if err := SaveChromosome(ctx, store, model.Chromosome{6, 5, 4, 3, 2, 1}, topology, "xor.txt"); err != nil {
		t.Fatalf("overwrite chromosome: %v", err)
	}
	loaded, err = LoadChromosome(ctx, store, "xor.txt", topology)
	if err != nil {
		t.Fatalf("load overwritten chromosome: %v", err)
	}
	if loaded[0] != 6 {
		t.Fatalf("expected overwrite, got %v", loaded)
	}
}

func TestLoadChromosomeTopologyMismatch(t *testing.T) {
	ctx := context.Background()
	store := newInitializedMemoryStore(t)
	if err := SaveChromosome(ctx, store, model.Chromosome{1, 2, 3, 4, 5, 6}, model.Topology{InputLength: 2, Layers: []int{2, 1}}, "net"); err != nil {
		t.Fatalf("save chromosome: %v", err)
	}
	_, err := LoadChromosome(ctx, store, "net", model.Topology{InputLength: 3, Layers: []int{2, 1}})
	if !errors.Is(err, ErrMemoryInitialize) {
		t.Fatalf("expected ErrMemoryInitialize, got: %v", err)
	}
}

func TestLoadMemoryRejectsCorruptLayers(t *testing.T) {
	ctx := context.Background()
	store := newInitializedMemoryStore(t)
	topology := model.Topology{InputLength: 1, Layers: []int{1}}
	memory, err := model.MemoryFromChromosome(topology, model.Chromosome{1})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	memory.Layers[0][0].Weights = []float64{1, 2}
	if err := store.SaveMemory(ctx, "corrupt", memory); err != nil {
		t.Fatalf("save memory: %v", err)
	}
	if _, err := LoadMemory(ctx, store, "corrupt", topology); !errors.Is(err, ErrMemoryInitialize) {
		t.Fatalf("expected ErrMemoryInitialize, got: %v", err)
	}
}

func TestSaveChromosomeLengthMismatch(t *testing.T) {
	store := newInitializedMemoryStore(t)
	err := SaveChromosome(context.Background(), store, model.Chromosome{1}, model.Topology{InputLength: 2, Layers: []int{1}}, "net")
	if !errors.Is(err, ErrMemoryInitialize) {
		t.Fatalf("expected ErrMemoryInitialize, got: %v", err)
	}
}

func TestGenerateMemory(t *testing.T) {
	topology := model.Topology{InputLength: 4, Layers: []int{3, 2}}
	memory, err := GenerateMemory(rand.New(rand.NewSource(5)), topology)
	if err != nil {
		t.Fatalf("generate memory: %v", err)
	}
	if err := memory.CheckTopology(topology); err != nil {
		t.Fatalf("generated memory shape: %v", err)
	}
	for _, gene := range memory.Chromosome() {
		if gene < -0.5 || gene >= 0.5 {
			t.Fatalf("gene out of range: %f", gene)
		}
	}
	for _, neurons := range memory.Layers {
		for _, neuron := range neurons {
			if neuron.BiasValue != model.DefaultBiasValue || neuron.BiasWeight != model.DefaultBiasWeight {
				t.Fatalf("unexpected bias pair: %+v", neuron)
			}
		}
	}

	if _, err := GenerateMemory(rand.New(rand.NewSource(5)), model.Topology{InputLength: 0, Layers: []int{1}}); !errors.Is(err, ErrMemoryGenerate) {
		t.Fatalf("expected ErrMemoryGenerate, got: %v", err)
	}
}
