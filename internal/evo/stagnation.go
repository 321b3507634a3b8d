package evo

import (
	"context"
	"math"
	"math/rand"

	"evann/internal/model"
)

// StagnationWindow keeps the trailing generation means, oldest first.
type StagnationWindow struct {
	capacity int
	values   []float64
}

func NewStagnationWindow(capacity int) *StagnationWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &StagnationWindow{capacity: capacity, values: make([]float64, 0, capacity)}
}

func (w *StagnationWindow) Push(value float64) {
	if len(w.values) == w.capacity {
		copy(w.values, w.values[1:])
		w.values = w.values[:len(w.values)-1]
	}
	w.values = append(w.values, value)
}

func (w *StagnationWindow) Full() bool {
	return len(w.values) == w.capacity
}

func (w *StagnationWindow) Len() int {
	return len(w.values)
}

func (w *StagnationWindow) Values() []float64 {
	return append([]float64(nil), w.values...)
}

func (w *StagnationWindow) Clear() {
	w.values = w.values[:0]
}

// Degenerated reports whether a single value, rounded half-to-even to digits
// decimal places, holds strictly more than majority of the window.
func Degenerated(values []float64, digits int, majority float64) bool {
	if len(values) == 0 {
		return false
	}
	scale := math.Pow(10, float64(digits))
	counts := make(map[float64]int, len(values))
	threshold := float64(len(values)) * majority
	for _, value := range values {
		key := math.RoundToEven(value*scale) / scale
		counts[key]++
		if float64(counts[key]) > threshold {
			return true
		}
	}
	return false
}

// Cataclysm shuffles the population and overwrites its first
// int(len*removingPercent) slots with fresh random chromosomes. The
// population keeps its length and is modified in place.
func Cataclysm(ctx context.Context, rng *rand.Rand, population []model.Chromosome, removingPercent float64, topology model.Topology, workers int) (int, error) {
	removed := int(float64(len(population)) * removingPercent)
	if removed > len(population) {
		removed = len(population)
	}
	if removed <= 0 {
		return 0, nil
	}
	rng.Shuffle(len(population), func(i, j int) {
		population[i], population[j] = population[j], population[i]
	})
	fresh, err := RandomChromosomes(ctx, rng, topology, removed, workers)
	if err != nil {
		return 0, err
	}
	copy(population, fresh)
	return removed, nil
}
