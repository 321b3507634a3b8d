package evo

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"evann/internal/model"
)

// PerturbFunc draws the offset added to every gene of a mutant.
type PerturbFunc func(rng *rand.Rand) float64

// DefaultPerturb draws an integer in [-100, 100) and scales it by 1/100.
func DefaultPerturb(rng *rand.Rand) float64 {
	return float64(rng.Intn(200)-100) / 100
}

// Mutate returns a copy of the population extended with a mutant of every
// member that wins the mutation draw. Originals are left untouched.
func Mutate(rng *rand.Rand, population []model.Chromosome, chance float64, perturb PerturbFunc) []model.Chromosome {
	if perturb == nil {
		perturb = DefaultPerturb
	}
	next := cloneGeneration(population, len(population)+len(population)/4+1)
	for _, chromosome := range population {
		if rng.Float64() < chance {
			next = append(next, MutateChromosome(rng, chromosome, perturb))
		}
	}
	return next
}

// MutateChromosome perturbs every gene with an independent draw.
func MutateChromosome(rng *rand.Rand, chromosome model.Chromosome, perturb PerturbFunc) model.Chromosome {
	if perturb == nil {
		perturb = DefaultPerturb
	}
	out := make(model.Chromosome, len(chromosome))
	for i, gene := range chromosome {
		out[i] = gene + perturb(rng)
	}
	return out
}

// RandomChromosome draws every gene uniformly from [-0.5, 0.5).
func RandomChromosome(rng *rand.Rand, topology model.Topology) model.Chromosome {
	out := make(model.Chromosome, topology.ChromosomeLength())
	for i := range out {
		out[i] = rng.Float64() - 0.5
	}
	return out
}

// RandomChromosomes generates count chromosomes on a bounded worker pool.
// Every slot gets its own seed drawn from rng up front, so the result does
// not depend on scheduling.
func RandomChromosomes(ctx context.Context, rng *rand.Rand, topology model.Topology, count, workers int) ([]model.Chromosome, error) {
	if count <= 0 {
		return nil, nil
	}
	if err := topology.Validate(); err != nil {
		return nil, err
	}
	seeds := make([]int64, count)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	if workers <= 0 {
		workers = 1
	}
	if workers > count {
		workers = count
	}

	out := make([]model.Chromosome, count)
	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				out[idx] = RandomChromosome(rand.New(rand.NewSource(seeds[idx])), topology)
			}
		}()
	}
	for i := 0; i < count; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SeedPopulation builds the first generation: size-randomCount clones of base
// followed by randomCount fresh chromosomes.
func SeedPopulation(ctx context.Context, rng *rand.Rand, base model.Chromosome, size, randomCount int, topology model.Topology, workers int) ([]model.Chromosome, error) {
	if size <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if want := topology.ChromosomeLength(); len(base) != want {
		return nil, fmt.Errorf("%w: base chromosome got=%d want=%d", model.ErrChromosomeLength, len(base), want)
	}
	if randomCount < 0 {
		randomCount = 0
	}
	if randomCount > size {
		randomCount = size
	}

	population := make([]model.Chromosome, 0, size)
	for i := 0; i < size-randomCount; i++ {
		population = append(population, base.Clone())
	}
	random, err := RandomChromosomes(ctx, rng, topology, randomCount, workers)
	if err != nil {
		return nil, err
	}
	return append(population, random...), nil
}
