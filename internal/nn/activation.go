package nn

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrActivationNotFound = errors.New("activation not found")

// sigmoidSpread keeps the logistic output strictly inside (0, 1) in float64.
const sigmoidSpread = 36.0

// Activation selects one of the fixed neuron transfer functions.
type Activation int

const (
	Sigmoid Activation = iota
	Tanh
	SoftPlus
)

func (a Activation) String() string {
	switch a {
	case Sigmoid:
		return "sigmoid"
	case Tanh:
		return "tanh"
	case SoftPlus:
		return "softplus"
	default:
		return fmt.Sprintf("activation(%d)", int(a))
	}
}

// Apply evaluates the transfer function. Unknown kinds fall back to sigmoid.
func (a Activation) Apply(x float64) float64 {
	switch a {
	case Tanh:
		return math.Tanh(x)
	case SoftPlus:
		if x > 30 {
			return x + math.Log1p(math.Exp(-x))
		}
		return math.Log1p(math.Exp(x))
	default:
		x = SaturationWithSpread(x, sigmoidSpread)
		return 1.0 / (1.0 + math.Exp(-x))
	}
}

func ParseActivation(name string) (Activation, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "", "sigmoid":
		return Sigmoid, nil
	case "tanh", "th":
		return Tanh, nil
	case "softplus":
		return SoftPlus, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrActivationNotFound, name)
	}
}

func ListActivations() []string {
	return []string{Sigmoid.String(), SoftPlus.String(), Tanh.String()}
}
