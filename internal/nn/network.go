package nn

import (
	"errors"
	"fmt"

	"evann/internal/model"
)

var (
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrTopologyMismatch = errors.New("topology mismatch")
	ErrChromosomeLength = model.ErrChromosomeLength
)

// Network is a forward-only network rebuilt from a chromosome. It holds no
// per-pass state and is safe for concurrent Evaluate calls.
type Network struct {
	topology model.Topology
	layers   []*Layer
}

func NewNetwork(chromosome model.Chromosome, topology model.Topology) (*Network, error) {
	return NewNetworkWithActivation(chromosome, topology, Sigmoid)
}

func NewNetworkWithActivation(chromosome model.Chromosome, topology model.Topology, activation Activation) (*Network, error) {
	if err := topology.Validate(); err != nil {
		return nil, err
	}
	if want := topology.ChromosomeLength(); len(chromosome) != want {
		return nil, fmt.Errorf("%w: got=%d want=%d", ErrChromosomeLength, len(chromosome), want)
	}

	weights := chromosome.Clone()
	layers := make([]*Layer, len(topology.Layers))
	for i, span := range layerSpans(topology) {
		fanIn := topology.FanIn(i)
		neurons := make([]*Neuron, topology.Layers[i])
		for k := range neurons {
			start := span.start + k*fanIn
			neurons[k] = NewNeuron(weights[start:start+fanIn:start+fanIn], model.DefaultBiasValue, model.DefaultBiasWeight, activation)
		}
		layers[i] = NewLayer(neurons)
	}

	return &Network{
		topology: model.Topology{InputLength: topology.InputLength, Layers: append([]int(nil), topology.Layers...)},
		layers:   layers,
	}, nil
}

func (n *Network) Evaluate(input []float64) ([]float64, error) {
	if len(input) != n.topology.InputLength {
		return nil, fmt.Errorf("%w: input length got=%d want=%d", ErrShapeMismatch, len(input), n.topology.InputLength)
	}
	out := input
	for _, layer := range n.layers {
		out = layer.Compute(out)
	}
	return out, nil
}

func (n *Network) InputLength() int {
	return n.topology.InputLength
}

func (n *Network) OutputLength() int {
	return n.topology.OutputLength()
}

func (n *Network) Topology() model.Topology {
	return n.topology
}

type weightSpan struct {
	start int
	count int
}

// layerSpans returns each layer's offset range inside a flat chromosome.
func layerSpans(topology model.Topology) []weightSpan {
	spans := make([]weightSpan, len(topology.Layers))
	offset := 0
	for i, width := range topology.Layers {
		count := width * topology.FanIn(i)
		spans[i] = weightSpan{start: offset, count: count}
		offset += count
	}
	return spans
}
