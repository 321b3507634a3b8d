package nn

import (
	"gonum.org/v1/gonum/floats"

	"evann/internal/model"
)

// Neuron owns a weight vector and a bias pair. Per-pass state (last output,
// error) lives in the owning Layer so neurons stay safe to share read-only.
type Neuron struct {
	weights    []float64
	biasValue  float64
	biasWeight float64
	activation Activation
}

// NewNeuron takes ownership of weights.
func NewNeuron(weights []float64, biasValue, biasWeight float64, activation Activation) *Neuron {
	return &Neuron{
		weights:    weights,
		biasValue:  biasValue,
		biasWeight: biasWeight,
		activation: activation,
	}
}

// Output computes the activated weighted sum. len(input) must equal the
// neuron's weight count.
func (n *Neuron) Output(input []float64) float64 {
	x := floats.Dot(n.weights, input) + n.biasValue*n.biasWeight
	return n.activation.Apply(x)
}

// OutputError is the logistic delta rule for an output-layer neuron.
func (n *Neuron) OutputError(lastOutput, target float64) float64 {
	return (target - lastOutput) * lastOutput * (1 - lastOutput)
}

// HiddenError backpropagates the following layer's errors through the
// weights that connect this neuron (at index) to it.
func (n *Neuron) HiddenError(lastOutput float64, index int, nextWeights [][]float64, nextErrors []float64) float64 {
	sum := 0.0
	for i := range nextWeights {
		sum += nextWeights[i][index] * nextErrors[i]
	}
	return lastOutput * (1 - lastOutput) * sum
}

func (n *Neuron) ApplyUpdate(learningRate, errValue float64, previousOutputs []float64) {
	step := learningRate * errValue
	for i := range n.weights {
		n.weights[i] += step * previousOutputs[i]
	}
	n.biasWeight += step
}

// Weights exposes the live weight slice; callers must not modify it.
func (n *Neuron) Weights() []float64 {
	return n.weights
}

func (n *Neuron) Activation() Activation {
	return n.activation
}

func (n *Neuron) Memory() model.NeuronMemory {
	return model.NeuronMemory{
		BiasValue:  n.biasValue,
		BiasWeight: n.biasWeight,
		Weights:    append([]float64(nil), n.weights...),
	}
}
