package nn

import (
	"errors"
	"math"
	"testing"
)

func TestActivationApply(t *testing.T) {
	tests := []struct {
		name  string
		act   Activation
		x     float64
		want  float64
		delta float64
	}{
		{name: "sigmoid-zero", act: Sigmoid, x: 0, want: 0.5, delta: 1e-12},
		{name: "sigmoid-one", act: Sigmoid, x: 1, want: 1 / (1 + math.Exp(-1)), delta: 1e-12},
		{name: "tanh-zero", act: Tanh, x: 0, want: 0, delta: 1e-12},
		{name: "tanh-closed-form", act: Tanh, x: 0.7, want: (math.Exp(1.4) - 1) / (math.Exp(1.4) + 1), delta: 1e-12},
		{name: "softplus-zero", act: SoftPlus, x: 0, want: math.Log(2), delta: 1e-12},
		{name: "softplus-large", act: SoftPlus, x: 800, want: 800, delta: 1e-9},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.act.Apply(tc.x)
			if math.Abs(got-tc.want) > tc.delta {
				t.Fatalf("unexpected activation result: got=%f want=%f", got, tc.want)
			}
		})
	}
}

func TestSigmoidStaysInsideOpenInterval(t *testing.T) {
	for _, x := range []float64{-1e308, -1e6, -745, -40, -36, 0, 36, 40, 745, 1e6, 1e308} {
		got := Sigmoid.Apply(x)
		if got <= 0 || got >= 1 {
			t.Fatalf("sigmoid(%g)=%v escaped (0, 1)", x, got)
		}
	}
}

func TestParseActivation(t *testing.T) {
	for _, name := range ListActivations() {
		act, err := ParseActivation(name)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		if act.String() != name {
			t.Fatalf("round trip mismatch: got=%s want=%s", act.String(), name)
		}
	}
	if act, err := ParseActivation(""); err != nil || act != Sigmoid {
		t.Fatalf("expected empty name to default to sigmoid, got=%v err=%v", act, err)
	}
	if _, err := ParseActivation("relu"); !errors.Is(err, ErrActivationNotFound) {
		t.Fatalf("expected ErrActivationNotFound, got: %v", err)
	}
}

func TestSaturationWithSpread(t *testing.T) {
	tests := []struct {
		value, spread, want float64
	}{
		{-5, 2, -2},
		{5, 2, 2},
		{1.5, 2, 1.5},
		{3, -2, 2},
	}
	for _, tc := range tests {
		if got := SaturationWithSpread(tc.value, tc.spread); got != tc.want {
			t.Fatalf("SaturationWithSpread(%v, %v) = %v, want %v", tc.value, tc.spread, got, tc.want)
		}
	}
}
