package evo

import (
	"context"
	"errors"
	"testing"

	"gonum.org/v1/gonum/stat"

	"evann/internal/dataset"
	"evann/internal/model"
	"evann/internal/nn"
	"evann/internal/storage"
)

var xorTopology = model.Topology{InputLength: 2, Layers: []int{2, 1}}

func constantTargetDataset() dataset.Dataset {
	return dataset.Dataset{
		Inputs:  [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}},
		Outputs: [][]float64{{0.2}, {0.2}, {0.2}, {0.2}},
	}
}

func newSeededStore(t *testing.T, location string, chromosome model.Chromosome) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	if err := storage.SaveChromosome(context.Background(), store, chromosome, xorTopology, location); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func TestTrainXORSizedEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t, "xor.txt", model.Chromosome{0.4, -0.3, 0.2, 0.1, -0.4, 0.3})

	result, err := Train(ctx, store, "xor.txt", Config{
		Topology:       xorTopology,
		Dataset:        constantTargetDataset(),
		PopulationSize: 10,
		Generations:    50,
		Workers:        4,
		Seed:           42,
		RunID:          "run-xor",

		SelectionChance: DefaultSelectionChance,
		MutationChance:  DefaultMutationChance,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	if len(result.BestByGeneration) != 50 || len(result.MeanByGeneration) != 50 {
		t.Fatalf("unexpected trace lengths: best=%d mean=%d", len(result.BestByGeneration), len(result.MeanByGeneration))
	}
	if len(result.Cataclysms) != 0 {
		t.Fatalf("no cataclysm expected before the window fills: %v", result.Cataclysms)
	}
	for i := 1; i < len(result.BestByGeneration); i++ {
		if result.BestByGeneration[i] > result.BestByGeneration[i-1] {
			t.Fatalf("best fitness regressed at generation %d: %f > %f", i, result.BestByGeneration[i], result.BestByGeneration[i-1])
		}
	}
	// The mean covers offspring before truncation, so single generations can
	// move up when a mutation lands badly. Over a window it must not.
	early := stat.Mean(result.MeanByGeneration[:10], nil)
	late := stat.Mean(result.MeanByGeneration[40:], nil)
	if late > early {
		t.Fatalf("mean fitness regressed: first 10 generations %f, last 10 %f", early, late)
	}
	if result.MeanByGeneration[49] < result.BestByGeneration[49] {
		t.Fatalf("mean %f below best %f", result.MeanByGeneration[49], result.BestByGeneration[49])
	}
	if result.BestFitness != result.BestByGeneration[49] {
		t.Fatalf("best fitness mismatch: %f vs %f", result.BestFitness, result.BestByGeneration[49])
	}
	if len(result.FinalPopulation) != 10 {
		t.Fatalf("unexpected final population size: %d", len(result.FinalPopulation))
	}

	saved, err := storage.LoadChromosome(ctx, store, "xor.txt", xorTopology)
	if err != nil {
		t.Fatalf("load saved chromosome: %v", err)
	}
	if len(saved) != 6 {
		t.Fatalf("unexpected saved chromosome length: %d", len(saved))
	}
	for i := range saved {
		if saved[i] != result.Best[i] {
			t.Fatalf("saved chromosome differs from best at gene %d", i)
		}
	}

	history, ok, err := store.GetFitnessHistory(ctx, "run-xor")
	if err != nil || !ok {
		t.Fatalf("get fitness history: ok=%t err=%v", ok, err)
	}
	if len(history) != 50 {
		t.Fatalf("unexpected history length: %d", len(history))
	}
}

func TestTrainMissingMemory(t *testing.T) {
	store := storage.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	_, err := Train(context.Background(), store, "absent", Config{
		Topology:    xorTopology,
		Dataset:     constantTargetDataset(),
		Generations: 1,
	})
	if !errors.Is(err, storage.ErrMemoryMissing) {
		t.Fatalf("expected ErrMemoryMissing, got: %v", err)
	}
}

func TestTrainerRunDeterministicForSeed(t *testing.T) {
	base := model.Chromosome{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	run := func(workers int) RunResult {
		trainer, err := NewTrainer(Config{
			Topology:    xorTopology,
			Dataset:     constantTargetDataset(),
			Generations: 15,
			Workers:     workers,
			Seed:        99,

			SelectionChance: DefaultSelectionChance,
			MutationChance:  DefaultMutationChance,
		})
		if err != nil {
			t.Fatalf("new trainer: %v", err)
		}
		result, err := trainer.Run(context.Background(), base)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return result
	}
	a := run(1)
	b := run(6)
	for i := range a.MeanByGeneration {
		if a.MeanByGeneration[i] != b.MeanByGeneration[i] {
			t.Fatalf("generation %d mean differs: %f vs %f", i, a.MeanByGeneration[i], b.MeanByGeneration[i])
		}
	}
	for i := range a.Best {
		if a.Best[i] != b.Best[i] {
			t.Fatalf("best gene %d differs", i)
		}
	}
}

func TestTrainerCataclysmClearsWindow(t *testing.T) {
	trainer, err := NewTrainer(Config{
		Topology:             xorTopology,
		Dataset:              constantTargetDataset(),
		Generations:          10,
		StagnationWindow:     3,
		OverwhelmingMajority: 0.01,
		Seed:                 5,
		SelectionChance:      DefaultSelectionChance,
		MutationChance:       DefaultMutationChance,
	})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	result, err := trainer.Run(context.Background(), make(model.Chromosome, 6))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []int{2, 5, 8}
	if len(result.Cataclysms) != len(want) {
		t.Fatalf("unexpected cataclysms: %v", result.Cataclysms)
	}
	for i := range want {
		if result.Cataclysms[i] != want[i] {
			t.Fatalf("unexpected cataclysms: %v", result.Cataclysms)
		}
		if !result.Generations[want[i]].Cataclysm {
			t.Fatalf("generation %d not flagged", want[i])
		}
	}
	if len(result.FinalPopulation) != 10 {
		t.Fatalf("cataclysm changed population size: %d", len(result.FinalPopulation))
	}
}

func TestTrainerShapeMismatchModes(t *testing.T) {
	mixed := dataset.Dataset{
		Inputs:  [][]float64{{0, 1}, {1, 1, 1}},
		Outputs: [][]float64{{0.2}, {0.2}},
	}

	t.Run("lenient", func(t *testing.T) {
		trainer, err := NewTrainer(Config{Topology: xorTopology, Dataset: mixed, Generations: 2, Seed: 1})
		if err != nil {
			t.Fatalf("new trainer: %v", err)
		}
		if _, err := trainer.Run(context.Background(), make(model.Chromosome, 6)); err != nil {
			t.Fatalf("lenient run should skip bad rows: %v", err)
		}
	})
	t.Run("strict", func(t *testing.T) {
		trainer, err := NewTrainer(Config{Topology: xorTopology, Dataset: mixed, Generations: 2, Seed: 1, Strict: true})
		if err != nil {
			t.Fatalf("new trainer: %v", err)
		}
		_, err = trainer.Run(context.Background(), make(model.Chromosome, 6))
		if !errors.Is(err, ErrTraining) || !errors.Is(err, nn.ErrShapeMismatch) {
			t.Fatalf("expected ErrTraining wrapping ErrShapeMismatch, got: %v", err)
		}
	})
	t.Run("no-scorable-rows", func(t *testing.T) {
		bad := dataset.Dataset{Inputs: [][]float64{{1}}, Outputs: [][]float64{{1}}}
		trainer, err := NewTrainer(Config{Topology: xorTopology, Dataset: bad, Generations: 1, Seed: 1})
		if err != nil {
			t.Fatalf("new trainer: %v", err)
		}
		if _, err := trainer.Run(context.Background(), make(model.Chromosome, 6)); !errors.Is(err, ErrTraining) {
			t.Fatalf("expected ErrTraining when every slot fails, got: %v", err)
		}
	})
}

func TestTrainerRunCancelled(t *testing.T) {
	trainer, err := NewTrainer(Config{Topology: xorTopology, Dataset: constantTargetDataset(), Generations: 5})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := trainer.Run(ctx, make(model.Chromosome, 6)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
}

func TestNewTrainerValidation(t *testing.T) {
	ds := constantTargetDataset()
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "population-one", cfg: Config{Topology: xorTopology, Dataset: ds, Generations: 1, PopulationSize: 1}},
		{name: "no-generations", cfg: Config{Topology: xorTopology, Dataset: ds}},
		{name: "bad-topology", cfg: Config{Topology: model.Topology{InputLength: 2}, Dataset: ds, Generations: 1}},
		{name: "empty-dataset", cfg: Config{Topology: xorTopology, Generations: 1}},
		{name: "bad-chance", cfg: Config{Topology: xorTopology, Dataset: ds, Generations: 1, SelectionChance: 1.5}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewTrainer(tc.cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	trainer, err := NewTrainer(Config{Topology: xorTopology, Dataset: ds, Generations: 1, PopulationSize: 3})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	cfg := trainer.Config()
	if cfg.RandomSeedCount != 3 || cfg.SelectionChance != 0 || cfg.MutationChance != 0 || cfg.StagnationWindow != DefaultStagnationWindow || cfg.Workers <= 0 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestNewTrainerChanceDefaults(t *testing.T) {
	ds := constantTargetDataset()
	tests := []struct {
		name                                  string
		selection, gene, mutation             float64
		wantSelection, wantGene, wantMutation float64
	}{
		{name: "zero-disables", wantSelection: 0, wantGene: 0, wantMutation: 0},
		{name: "negative-defaults", selection: -1, gene: -1, mutation: -1, wantSelection: DefaultSelectionChance, wantGene: DefaultGeneSelectionChance, wantMutation: DefaultMutationChance},
		{name: "explicit", selection: 0.3, gene: 0.7, mutation: 1, wantSelection: 0.3, wantGene: 0.7, wantMutation: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			trainer, err := NewTrainer(Config{
				Topology:            xorTopology,
				Dataset:             ds,
				Generations:         1,
				SelectionChance:     tc.selection,
				GeneSelectionChance: tc.gene,
				MutationChance:      tc.mutation,
			})
			if err != nil {
				t.Fatalf("new trainer: %v", err)
			}
			cfg := trainer.Config()
			if cfg.SelectionChance != tc.wantSelection || cfg.GeneSelectionChance != tc.wantGene || cfg.MutationChance != tc.wantMutation {
				t.Fatalf("unexpected chances: selection=%f gene=%f mutation=%f", cfg.SelectionChance, cfg.GeneSelectionChance, cfg.MutationChance)
			}
		})
	}
}

func TestTrainerWithoutBreedingKeepsPopulation(t *testing.T) {
	base := model.Chromosome{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	trainer, err := NewTrainer(Config{
		Topology:        xorTopology,
		Dataset:         constantTargetDataset(),
		PopulationSize:  6,
		Generations:     4,
		RandomSeedCount: 1,
		Seed:            3,
	})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	result, err := trainer.Run(context.Background(), base)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i := 1; i < len(result.BestByGeneration); i++ {
		if result.BestByGeneration[i] != result.BestByGeneration[0] {
			t.Fatalf("generation %d changed best fitness without crossover or mutation: %f vs %f", i, result.BestByGeneration[i], result.BestByGeneration[0])
		}
	}
}
