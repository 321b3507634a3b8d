package evo

import (
	"errors"
	"math/rand"
	"testing"

	"evann/internal/model"
)

func TestCrossoverOfIdenticalParentsIsIdentical(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, length := range []int{1, 6, 33, 128} {
		parent := make(model.Chromosome, length)
		for i := range parent {
			parent[i] = float64(i)*0.37 - 3
		}
		child := Crossover(rng, parent, parent.Clone(), DefaultGeneSelectionChance)
		if len(child) != length {
			t.Fatalf("unexpected child length: got=%d want=%d", len(child), length)
		}
		for i := range child {
			if child[i] != parent[i] {
				t.Fatalf("gene %d differs: got=%f want=%f", i, child[i], parent[i])
			}
		}
	}
}

func TestCrossoverTakesGenesFromEitherParent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := make(model.Chromosome, 200)
	b := make(model.Chromosome, 200)
	for i := range b {
		b[i] = 1
	}
	child := Crossover(rng, a, b, 0.5)
	fromA, fromB := 0, 0
	for _, gene := range child {
		switch gene {
		case 0:
			fromA++
		case 1:
			fromB++
		default:
			t.Fatalf("gene not taken from a parent: %f", gene)
		}
	}
	if fromA == 0 || fromB == 0 {
		t.Fatalf("expected genes from both parents, a=%d b=%d", fromA, fromB)
	}
	if a[0] != 0 || b[0] != 1 {
		t.Fatal("parents must not be modified")
	}

	always := Crossover(rng, a, b, 1)
	for _, gene := range always {
		if gene != 0 {
			t.Fatal("gene chance 1 must take every gene from the first parent")
		}
	}
}

func TestSelectKeepsOriginalsAndAppendsChildren(t *testing.T) {
	population := []model.Chromosome{{0, 0}, {1, 1}, {2, 2}, {3, 3}}
	tests := []struct {
		name    string
		chance  float64
		wantLen int
	}{
		{name: "never", chance: 0, wantLen: 4},
		{name: "always", chance: 1, wantLen: 8},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next := Select(rand.New(rand.NewSource(3)), population, tc.chance, 0.5)
			if len(next) != tc.wantLen {
				t.Fatalf("unexpected size: got=%d want=%d", len(next), tc.wantLen)
			}
			for i := range population {
				if next[i][0] != population[i][0] {
					t.Fatalf("original %d not kept in place", i)
				}
			}
			next[0][0] = 99
			if population[0][0] != 0 {
				t.Fatal("selection must copy the population")
			}
		})
	}
}

func TestSelectNeverPairsWithSelf(t *testing.T) {
	population := []model.Chromosome{{0}, {1}}
	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 50; round++ {
		next := Select(rng, population, 1, 0)
		// gene chance 0 takes every gene from the partner
		if next[2][0] != 1 || next[3][0] != 0 {
			t.Fatalf("child built from self: %v", next[2:])
		}
	}
}

func TestTruncateKeepsBestInOrder(t *testing.T) {
	population := []model.Chromosome{{0}, {1}, {2}, {3}, {4}, {5}}
	records := []model.FitnessRecord{
		{Index: 0, Value: 0.9},
		{Index: 1, Value: 0.1},
		{Index: 3, Value: 0.5},
		{Index: 4, Value: 0.1},
		{Index: 5, Value: 0.3},
	}
	survivors, ranked, err := Truncate(population, records, 3)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if len(survivors) != 3 || len(ranked) != 3 {
		t.Fatalf("unexpected sizes: survivors=%d ranked=%d", len(survivors), len(ranked))
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Value < ranked[i-1].Value {
			t.Fatalf("fitness not non-decreasing: %+v", ranked)
		}
	}
	if survivors[0][0] != 1 || survivors[1][0] != 4 || survivors[2][0] != 5 {
		t.Fatalf("unexpected survivors: %v", survivors)
	}
}

func TestTruncateTooFewRecords(t *testing.T) {
	population := []model.Chromosome{{0}, {1}}
	_, _, err := Truncate(population, []model.FitnessRecord{{Index: 0, Value: 1}}, 2)
	if !errors.Is(err, ErrTraining) {
		t.Fatalf("expected ErrTraining, got: %v", err)
	}
}
