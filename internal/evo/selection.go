package evo

import (
	"fmt"
	"math/rand"
	"sort"

	"evann/internal/model"
)

// Select returns a copy of the population extended with one crossover child
// per member that wins the selection draw. Each member is paired with a
// uniformly chosen partner other than itself.
func Select(rng *rand.Rand, population []model.Chromosome, selectionChance, geneChance float64) []model.Chromosome {
	next := cloneGeneration(population, len(population)*2)
	if len(population) < 2 {
		return next
	}
	for i := range population {
		partner := rng.Intn(len(population) - 1)
		if partner >= i {
			partner++
		}
		if rng.Float64() < selectionChance {
			next = append(next, Crossover(rng, population[i], population[partner], geneChance))
		}
	}
	return next
}

// Crossover builds a child gene by gene, taking from a when the draw is at or
// below geneChance and from b otherwise.
func Crossover(rng *rand.Rand, a, b model.Chromosome, geneChance float64) model.Chromosome {
	child := make(model.Chromosome, len(a))
	for i := range a {
		if rng.Float64() <= geneChance || i >= len(b) {
			child[i] = a[i]
		} else {
			child[i] = b[i]
		}
	}
	return child
}

// Truncate keeps the size best chromosomes, lowest fitness first. Records of
// failed evaluations must not be passed in.
func Truncate(population []model.Chromosome, records []model.FitnessRecord, size int) ([]model.Chromosome, []model.FitnessRecord, error) {
	if len(records) < size {
		return nil, nil, fmt.Errorf("%w: %d scored chromosomes, need %d", ErrTraining, len(records), size)
	}
	ranked := make([]model.FitnessRecord, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Value < ranked[j].Value
	})
	ranked = ranked[:size]

	survivors := make([]model.Chromosome, size)
	for i, record := range ranked {
		if record.Index < 0 || record.Index >= len(population) {
			return nil, nil, fmt.Errorf("%w: fitness record index %d out of range", ErrTraining, record.Index)
		}
		survivors[i] = population[record.Index]
	}
	return survivors, ranked, nil
}

func cloneGeneration(population []model.Chromosome, capacity int) []model.Chromosome {
	if capacity < len(population) {
		capacity = len(population)
	}
	out := make([]model.Chromosome, len(population), capacity)
	for i, chromosome := range population {
		out[i] = chromosome.Clone()
	}
	return out
}
