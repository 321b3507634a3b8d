package evo

import (
	"context"
	"fmt"

	"evann/internal/storage"
)

// Train loads the chromosome persisted at location, evolves it and writes the
// best chromosome of the final generation back to location. When cfg.RunID is
// set the per-generation mean fitness trace is stored under it.
func Train(ctx context.Context, store storage.Store, location string, cfg Config) (RunResult, error) {
	trainer, err := NewTrainer(cfg)
	if err != nil {
		return RunResult{}, err
	}
	cfg = trainer.Config()

	base, err := storage.LoadChromosome(ctx, store, location, cfg.Topology)
	if err != nil {
		return RunResult{}, err
	}

	result, err := trainer.Run(ctx, base)
	if err != nil {
		return RunResult{}, err
	}

	if err := storage.SaveChromosome(ctx, store, result.Best, cfg.Topology, location); err != nil {
		return RunResult{}, fmt.Errorf("save best chromosome: %w", err)
	}
	if cfg.RunID != "" {
		if err := store.SaveFitnessHistory(ctx, cfg.RunID, result.MeanByGeneration); err != nil {
			return RunResult{}, fmt.Errorf("save fitness history: %w", err)
		}
	}
	trainer.logger.Info("genetic training complete",
		"location", location,
		"generations", len(result.MeanByGeneration),
		"best_fitness", result.BestFitness,
		"cataclysms", len(result.Cataclysms),
	)
	return result, nil
}
