// Package fitness scores a network against a labeled dataset. Lower scores
// are better.
package fitness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"evann/internal/dataset"
	"evann/internal/logging"
	"evann/internal/nn"
)

var ErrNoScoredRows = errors.New("no dataset row could be scored")

// Evaluator is satisfied by *nn.Network.
type Evaluator interface {
	Evaluate(input []float64) ([]float64, error)
	InputLength() int
	OutputLength() int
}

type Options struct {
	// Strict fails on the first row whose shape does not fit the network.
	Strict bool
	Logger *slog.Logger
}

type Result struct {
	Value   float64
	Rows    int
	Skipped int
}

// Score returns the mean, over scored rows, of the per-row sum of squared
// output differences.
func Score(ctx context.Context, net Evaluator, ds dataset.Dataset, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if net == nil {
		return Result{}, errors.New("evaluator is required")
	}
	if len(ds.Inputs) != len(ds.Outputs) {
		return Result{}, fmt.Errorf("dataset row count mismatch: inputs=%d outputs=%d", len(ds.Inputs), len(ds.Outputs))
	}
	logger := logging.OrDiscard(opts.Logger)

	var (
		result Result
		total  float64
	)
	for i, input := range ds.Inputs {
		expected := ds.Outputs[i]
		if len(input) != net.InputLength() || len(expected) != net.OutputLength() {
			err := fmt.Errorf("%w: row %d input=%d/%d expected=%d/%d",
				nn.ErrShapeMismatch, i, len(input), net.InputLength(), len(expected), net.OutputLength())
			if opts.Strict {
				return Result{}, err
			}
			logger.Warn("skipping dataset row", "row", i, "error", err)
			result.Skipped++
			continue
		}
		out, err := net.Evaluate(input)
		if err != nil {
			if opts.Strict {
				return Result{}, fmt.Errorf("row %d: %w", i, err)
			}
			logger.Warn("skipping dataset row", "row", i, "error", err)
			result.Skipped++
			continue
		}
		var rowError float64
		for k, value := range out {
			diff := value - expected[k]
			rowError += diff * diff
		}
		total += rowError
		result.Rows++
	}
	if result.Rows == 0 {
		return result, fmt.Errorf("%w: skipped=%d", ErrNoScoredRows, result.Skipped)
	}
	result.Value = total / float64(result.Rows)
	return result, nil
}
