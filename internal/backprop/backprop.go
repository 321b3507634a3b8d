// Package backprop trains a persisted network sample by sample with gradient
// updates, checkpointing its memory back to the store.
package backprop

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"evann/internal/dataset"
	"evann/internal/logging"
	"evann/internal/model"
	"evann/internal/nn"
	"evann/internal/storage"
)

const (
	DefaultLearningRate    = 0.1
	DefaultCheckpointEvery = 100
	DefaultTolerance       = 0.5
)

type Config struct {
	Iterations      int
	LearningRate    float64
	CheckpointEvery int
	Strict          bool
	Tolerance       float64
	Activation      nn.Activation
	Logger          *slog.Logger
}

type Result struct {
	Iterations int
	// ErrorTrace holds the mean per-row squared error of every iteration.
	ErrorTrace []float64
	Statistic  Statistic
	Skipped    int
}

// Statistic counts dataset rows the network reproduces within tolerance.
type Statistic struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

func (s Statistic) Total() int {
	return s.Passed + s.Failed
}

// Percent is the share of passed rows in [0, 100].
func (s Statistic) Percent() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.Passed) * 100 / float64(s.Total())
}

func (c *Config) applyDefaults() error {
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be > 0")
	}
	if c.LearningRate == 0 {
		c.LearningRate = DefaultLearningRate
	}
	if c.LearningRate < 0 {
		return fmt.Errorf("learning rate must be > 0")
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = DefaultCheckpointEvery
	}
	if c.Tolerance <= 0 {
		c.Tolerance = DefaultTolerance
	}
	c.Logger = logging.OrDiscard(c.Logger)
	return nil
}

// Train loads the memory at location, runs cfg.Iterations passes over the
// dataset and saves the memory every CheckpointEvery iterations and at the
// end.
func Train(ctx context.Context, store storage.Store, location string, topology model.Topology, ds dataset.Dataset, cfg Config) (Result, error) {
	if err := cfg.applyDefaults(); err != nil {
		return Result{}, err
	}
	if err := ds.Validate(); err != nil {
		return Result{}, err
	}
	memory, err := storage.LoadMemory(ctx, store, location, topology)
	if err != nil {
		return Result{}, err
	}
	perceptron, err := nn.NewPerceptron(memory, cfg.Activation)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", storage.ErrMemoryInitialize, err)
	}
	if !cfg.Strict {
		cfg.Logger.Warn("lenient training mode: rows whose length differs from the network are skipped")
	}

	result := Result{ErrorTrace: make([]float64, 0, cfg.Iterations)}
	for iteration := 1; iteration <= cfg.Iterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		meanError, skipped, err := trainIteration(perceptron, ds, cfg)
		if err != nil {
			return Result{}, fmt.Errorf("iteration %d: %w", iteration, err)
		}
		result.ErrorTrace = append(result.ErrorTrace, meanError)
		result.Skipped += skipped
		result.Iterations = iteration

		if iteration%cfg.CheckpointEvery == 0 && iteration != cfg.Iterations {
			if err := save(ctx, store, location, perceptron, memory.NetworkID); err != nil {
				return Result{}, err
			}
			cfg.Logger.Info("checkpoint saved", "iteration", iteration, "mean_error", meanError)
		}
	}
	if err := save(ctx, store, location, perceptron, memory.NetworkID); err != nil {
		return Result{}, err
	}

	result.Statistic = Measure(perceptron, ds, cfg.Tolerance)
	cfg.Logger.Info("backprop training complete",
		"location", location,
		"iterations", result.Iterations,
		"passed", result.Statistic.Passed,
		"failed", result.Statistic.Failed,
	)
	return result, nil
}

func trainIteration(p *nn.Perceptron, ds dataset.Dataset, cfg Config) (float64, int, error) {
	var (
		total   float64
		trained int
		skipped int
	)
	for i, input := range ds.Inputs {
		target := ds.Outputs[i]
		if err := p.TrainSample(input, target, cfg.LearningRate); err != nil {
			if cfg.Strict {
				return 0, 0, fmt.Errorf("row %d: %w", i, err)
			}
			skipped++
			cfg.Logger.Warn("skipping dataset row", "row", i, "error", err)
			continue
		}
		out, err := p.Handle(input)
		if err != nil {
			return 0, 0, err
		}
		total += squaredError(out, target)
		trained++
	}
	if trained == 0 {
		return 0, skipped, fmt.Errorf("no dataset row matches the network shape")
	}
	return total / float64(trained), skipped, nil
}

func save(ctx context.Context, store storage.Store, location string, p *nn.Perceptron, networkID string) error {
	memory := p.Memory()
	memory.NetworkID = networkID
	if err := store.SaveMemory(ctx, location, memory); err != nil {
		return fmt.Errorf("save memory %s: %w", location, err)
	}
	return nil
}

// Handler is satisfied by *nn.Perceptron.
type Handler interface {
	Handle(input []float64) ([]float64, error)
}

// Measure reports how many rows h reproduces with every output within
// tolerance of its target. Rows that cannot be handled count as failed.
func Measure(h Handler, ds dataset.Dataset, tolerance float64) Statistic {
	var stat Statistic
	for i, input := range ds.Inputs {
		out, err := h.Handle(input)
		if err != nil || len(out) != len(ds.Outputs[i]) {
			stat.Failed++
			continue
		}
		passed := true
		for k, value := range out {
			if math.Abs(value-ds.Outputs[i][k]) > tolerance {
				passed = false
				break
			}
		}
		if passed {
			stat.Passed++
		} else {
			stat.Failed++
		}
	}
	return stat
}

func squaredError(out, target []float64) float64 {
	var sum float64
	for i := range out {
		diff := out[i] - target[i]
		sum += diff * diff
	}
	return sum
}
