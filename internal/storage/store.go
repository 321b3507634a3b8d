package storage

import (
	"context"

	"evann/internal/model"
)

// Store persists network memories by location and fitness traces by run id.
type Store interface {
	Init(ctx context.Context) error
	SaveMemory(ctx context.Context, location string, memory model.Memory) error
	GetMemory(ctx context.Context, location string) (model.Memory, bool, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
}
