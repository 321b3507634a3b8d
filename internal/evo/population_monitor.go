package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/stat"

	"evann/internal/dataset"
	"evann/internal/fitness"
	"evann/internal/logging"
	"evann/internal/model"
	"evann/internal/nn"
)

var ErrTraining = errors.New("training failed")

const (
	DefaultPopulationSize       = 10
	DefaultRandomSeedCount      = 4
	DefaultSelectionChance      = 0.64
	DefaultGeneSelectionChance  = 0.5
	DefaultMutationChance       = 0.01
	DefaultStagnationWindow     = 100
	DefaultRoundDigits          = 6
	DefaultOverwhelmingMajority = 0.7
	DefaultRemovingPercent      = 0.6
)

type Config struct {
	Topology        model.Topology
	Dataset         dataset.Dataset
	Activation      nn.Activation
	PopulationSize  int
	Generations     int
	RandomSeedCount int
	// The three chances are honoured as given, zero included. A negative
	// chance takes its Default* value.
	SelectionChance      float64
	GeneSelectionChance  float64
	MutationChance       float64
	Perturb              PerturbFunc
	StagnationWindow     int
	RoundDigits          int
	OverwhelmingMajority float64
	RemovingPercent      float64
	Workers              int
	// Strict aborts the generation on the first evaluation error instead of
	// dropping the failed chromosome.
	Strict bool
	Seed   int64
	Rand   *rand.Rand
	Logger *slog.Logger
	RunID  string
}

// GenerationStats is reported once per generation.
type GenerationStats struct {
	Generation  int     `json:"generation"`
	MeanFitness float64 `json:"mean_fitness"`
	BestFitness float64 `json:"best_fitness"`
	Evaluated   int     `json:"evaluated"`
	Failed      int     `json:"failed"`
	Cataclysm   bool    `json:"cataclysm,omitempty"`
}

type RunResult struct {
	RunID            string
	MeanByGeneration []float64
	BestByGeneration []float64
	Generations      []GenerationStats
	Cataclysms       []int
	Evaluations      int
	Best             model.Chromosome
	BestFitness      float64
	FinalPopulation  []model.Chromosome
}

type Trainer struct {
	cfg    Config
	rng    *rand.Rand
	logger *slog.Logger
}

func NewTrainer(cfg Config) (*Trainer, error) {
	if err := cfg.Topology.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Dataset.Validate(); err != nil {
		return nil, err
	}
	if cfg.PopulationSize == 0 {
		cfg.PopulationSize = DefaultPopulationSize
	}
	if cfg.PopulationSize < 2 {
		return nil, fmt.Errorf("population size must be >= 2, got %d", cfg.PopulationSize)
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if cfg.RandomSeedCount < 0 {
		return nil, fmt.Errorf("random seed count must be >= 0")
	}
	if cfg.RandomSeedCount == 0 {
		cfg.RandomSeedCount = DefaultRandomSeedCount
	}
	if cfg.RandomSeedCount > cfg.PopulationSize {
		cfg.RandomSeedCount = cfg.PopulationSize
	}
	if cfg.SelectionChance < 0 {
		cfg.SelectionChance = DefaultSelectionChance
	}
	if cfg.GeneSelectionChance < 0 {
		cfg.GeneSelectionChance = DefaultGeneSelectionChance
	}
	if cfg.MutationChance < 0 {
		cfg.MutationChance = DefaultMutationChance
	}
	probabilities := []struct {
		name  string
		value float64
	}{
		{"selection chance", cfg.SelectionChance},
		{"gene selection chance", cfg.GeneSelectionChance},
		{"mutation chance", cfg.MutationChance},
	}
	for _, p := range probabilities {
		if p.value < 0 || p.value > 1 {
			return nil, fmt.Errorf("%s must be in [0, 1], got %f", p.name, p.value)
		}
	}
	if cfg.Perturb == nil {
		cfg.Perturb = DefaultPerturb
	}
	if cfg.StagnationWindow <= 0 {
		cfg.StagnationWindow = DefaultStagnationWindow
	}
	if cfg.RoundDigits <= 0 {
		cfg.RoundDigits = DefaultRoundDigits
	}
	if cfg.OverwhelmingMajority <= 0 {
		cfg.OverwhelmingMajority = DefaultOverwhelmingMajority
	}
	if cfg.RemovingPercent <= 0 {
		cfg.RemovingPercent = DefaultRemovingPercent
	}
	if cfg.OverwhelmingMajority > 1 || cfg.RemovingPercent > 1 {
		return nil, fmt.Errorf("overwhelming majority and removing percent must be <= 1")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	logger := logging.OrDiscard(cfg.Logger)
	if cfg.RunID != "" {
		logger = logger.With("run_id", cfg.RunID)
	}

	return &Trainer{cfg: cfg, rng: rng, logger: logger}, nil
}

func (t *Trainer) Config() Config {
	return t.cfg
}

// Run seeds the population from base and evolves it for the configured
// number of generations.
func (t *Trainer) Run(ctx context.Context, base model.Chromosome) (RunResult, error) {
	population, err := SeedPopulation(ctx, t.rng, base, t.cfg.PopulationSize, t.cfg.RandomSeedCount, t.cfg.Topology, t.cfg.Workers)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{
		RunID:            t.cfg.RunID,
		MeanByGeneration: make([]float64, 0, t.cfg.Generations),
		BestByGeneration: make([]float64, 0, t.cfg.Generations),
		Generations:      make([]GenerationStats, 0, t.cfg.Generations),
	}
	window := NewStagnationWindow(t.cfg.StagnationWindow)

	for gen := 0; gen < t.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		candidates := Select(t.rng, population, t.cfg.SelectionChance, t.cfg.GeneSelectionChance)
		candidates = Mutate(t.rng, candidates, t.cfg.MutationChance, t.cfg.Perturb)

		records, failed, err := t.evaluatePopulation(ctx, candidates)
		if err != nil {
			return RunResult{}, err
		}
		result.Evaluations += len(candidates)

		values := make([]float64, len(records))
		for i, record := range records {
			values[i] = record.Value
		}

		var ranked []model.FitnessRecord
		population, ranked, err = Truncate(candidates, records, t.cfg.PopulationSize)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d: %w", gen, err)
		}
		result.Best = population[0].Clone()
		result.BestFitness = ranked[0].Value

		mean := stat.Mean(values, nil)
		window.Push(mean)
		stats := GenerationStats{
			Generation:  gen,
			MeanFitness: mean,
			BestFitness: ranked[0].Value,
			Evaluated:   len(records),
			Failed:      failed,
		}
		t.logger.Debug("generation complete", "generation", gen, "mean_fitness", mean, "best_fitness", ranked[0].Value, "evaluated", len(records), "failed", failed)

		if window.Full() && Degenerated(window.Values(), t.cfg.RoundDigits, t.cfg.OverwhelmingMajority) {
			removed, err := Cataclysm(ctx, t.rng, population, t.cfg.RemovingPercent, t.cfg.Topology, t.cfg.Workers)
			if err != nil {
				return RunResult{}, err
			}
			window.Clear()
			stats.Cataclysm = true
			result.Cataclysms = append(result.Cataclysms, gen)
			t.logger.Info("population degenerated, cataclysm applied", "generation", gen, "removed", removed)
		}

		result.MeanByGeneration = append(result.MeanByGeneration, mean)
		result.BestByGeneration = append(result.BestByGeneration, ranked[0].Value)
		result.Generations = append(result.Generations, stats)
	}

	result.FinalPopulation = population
	return result, nil
}

// evaluatePopulation scores every chromosome on a bounded worker pool. Each
// worker writes only its own slot. In lenient mode failed slots are dropped
// from the returned records; in strict mode the first failure by index is
// returned.
func (t *Trainer) evaluatePopulation(ctx context.Context, population []model.Chromosome) ([]model.FitnessRecord, int, error) {
	type slot struct {
		value float64
		err   error
	}

	slots := make([]slot, len(population))
	jobs := make(chan int)

	workerCount := t.cfg.Workers
	if workerCount > len(population) {
		workerCount = len(population)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					slots[idx].err = err
					continue
				}
				slots[idx].value, slots[idx].err = t.evaluateChromosome(ctx, population[idx])
			}
		}()
	}

	for i := range population {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	records := make([]model.FitnessRecord, 0, len(population))
	failed := 0
	for i, s := range slots {
		if s.err != nil {
			if t.cfg.Strict {
				return nil, 0, fmt.Errorf("%w: chromosome %d: %w", ErrTraining, i, s.err)
			}
			failed++
			t.logger.Warn("chromosome evaluation failed", "index", i, "error", s.err)
			continue
		}
		records = append(records, model.FitnessRecord{Index: i, Value: s.value})
	}
	return records, failed, nil
}

func (t *Trainer) evaluateChromosome(ctx context.Context, chromosome model.Chromosome) (float64, error) {
	net, err := nn.NewNetworkWithActivation(chromosome, t.cfg.Topology, t.cfg.Activation)
	if err != nil {
		return 0, err
	}
	res, err := fitness.Score(ctx, net, t.cfg.Dataset, fitness.Options{Strict: t.cfg.Strict, Logger: t.logger})
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}
