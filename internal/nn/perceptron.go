package nn

import (
	"fmt"

	"evann/internal/model"
)

// Perceptron is the trainable counterpart of Network: it is built from a
// full memory (biases included) and adjusts its weights per sample.
type Perceptron struct {
	topology model.Topology
	layers   []*Layer
}

func NewPerceptron(memory model.Memory, activation Activation) (*Perceptron, error) {
	topology := memory.Topology
	if err := topology.Validate(); err != nil {
		return nil, err
	}
	if len(memory.Layers) != len(topology.Layers) {
		return nil, fmt.Errorf("%w: layer count got=%d want=%d", ErrTopologyMismatch, len(memory.Layers), len(topology.Layers))
	}

	layers := make([]*Layer, len(memory.Layers))
	for i, neurons := range memory.Layers {
		layer := newLayerFromMemory(neurons, activation)
		if !layer.MatchesTopology(topology, i) {
			return nil, fmt.Errorf("%w: layer %d", ErrTopologyMismatch, i)
		}
		layers[i] = layer
	}

	return &Perceptron{
		topology: model.Topology{InputLength: topology.InputLength, Layers: append([]int(nil), topology.Layers...)},
		layers:   layers,
	}, nil
}

func (p *Perceptron) Topology() model.Topology {
	return p.topology
}

// Handle runs a forward pass and records per-layer outputs.
func (p *Perceptron) Handle(input []float64) ([]float64, error) {
	if len(input) != p.topology.InputLength {
		return nil, fmt.Errorf("%w: input length got=%d want=%d", ErrShapeMismatch, len(input), p.topology.InputLength)
	}
	out := input
	for _, layer := range p.layers {
		out = layer.Forward(out)
	}
	return out, nil
}

// TrainSample performs one forward pass, computes every layer's error from
// the back using pre-update weights, then updates weights front to back.
func (p *Perceptron) TrainSample(input, target []float64, learningRate float64) error {
	if len(target) != p.topology.OutputLength() {
		return fmt.Errorf("%w: target length got=%d want=%d", ErrShapeMismatch, len(target), p.topology.OutputLength())
	}
	if _, err := p.Handle(input); err != nil {
		return err
	}

	last := len(p.layers) - 1
	p.layers[last].PropagateOutputError(target)
	for i := last - 1; i >= 0; i-- {
		next := p.layers[i+1]
		p.layers[i].PropagateHiddenError(next.Weights(), next.errors)
	}

	previous := input
	for _, layer := range p.layers {
		layer.ApplyWeightUpdates(learningRate, previous)
		previous = layer.outputs
	}
	return nil
}

func (p *Perceptron) Memory() model.Memory {
	memory := model.Memory{
		Topology: model.Topology{InputLength: p.topology.InputLength, Layers: append([]int(nil), p.topology.Layers...)},
		Layers:   make([][]model.NeuronMemory, len(p.layers)),
	}
	for i, layer := range p.layers {
		memory.Layers[i] = layer.memory()
	}
	return memory
}
