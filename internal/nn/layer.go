package nn

import "evann/internal/model"

// Layer is an ordered set of neurons plus the buffers of its most recent
// forward and backward pass.
type Layer struct {
	neurons []*Neuron
	outputs []float64
	errors  []float64
}

func NewLayer(neurons []*Neuron) *Layer {
	return &Layer{
		neurons: neurons,
		outputs: make([]float64, len(neurons)),
		errors:  make([]float64, len(neurons)),
	}
}

func newLayerFromMemory(memory []model.NeuronMemory, activation Activation) *Layer {
	neurons := make([]*Neuron, len(memory))
	for i, item := range memory {
		neurons[i] = NewNeuron(append([]float64(nil), item.Weights...), item.BiasValue, item.BiasWeight, activation)
	}
	return NewLayer(neurons)
}

func (l *Layer) Len() int {
	return len(l.neurons)
}

// Compute maps input through every neuron without touching layer buffers.
func (l *Layer) Compute(input []float64) []float64 {
	out := make([]float64, len(l.neurons))
	for i, neuron := range l.neurons {
		out[i] = neuron.Output(input)
	}
	return out
}

// Forward is Compute that also records the outputs for a following
// backward pass.
func (l *Layer) Forward(input []float64) []float64 {
	out := l.Compute(input)
	copy(l.outputs, out)
	return out
}

func (l *Layer) PropagateOutputError(targets []float64) {
	for i, neuron := range l.neurons {
		l.errors[i] = neuron.OutputError(l.outputs[i], targets[i])
	}
}

func (l *Layer) PropagateHiddenError(nextWeights [][]float64, nextErrors []float64) {
	for i, neuron := range l.neurons {
		l.errors[i] = neuron.HiddenError(l.outputs[i], i, nextWeights, nextErrors)
	}
}

func (l *Layer) ApplyWeightUpdates(learningRate float64, previousOutputs []float64) {
	for i, neuron := range l.neurons {
		neuron.ApplyUpdate(learningRate, l.errors[i], previousOutputs)
	}
}

// Weights returns the live per-neuron weight rows.
func (l *Layer) Weights() [][]float64 {
	out := make([][]float64, len(l.neurons))
	for i, neuron := range l.neurons {
		out[i] = neuron.Weights()
	}
	return out
}

func (l *Layer) Errors() []float64 {
	return append([]float64(nil), l.errors...)
}

func (l *Layer) LastOutputs() []float64 {
	return append([]float64(nil), l.outputs...)
}

// MatchesTopology reports whether the layer has the neuron count and fan-in
// the topology prescribes for position layerIndex.
func (l *Layer) MatchesTopology(topology model.Topology, layerIndex int) bool {
	if layerIndex < 0 || layerIndex >= len(topology.Layers) {
		return false
	}
	if len(l.neurons) != topology.Layers[layerIndex] {
		return false
	}
	fanIn := topology.FanIn(layerIndex)
	for _, neuron := range l.neurons {
		if len(neuron.weights) != fanIn {
			return false
		}
	}
	return true
}

func (l *Layer) memory() []model.NeuronMemory {
	out := make([]model.NeuronMemory, len(l.neurons))
	for i, neuron := range l.neurons {
		out[i] = neuron.Memory()
	}
	return out
}
