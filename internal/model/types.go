package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Bias defaults written by the memory generator for every neuron.
const (
	DefaultBiasValue  = 0.5
	DefaultBiasWeight = -1.0
)

var (
	ErrInvalidTopology  = errors.New("invalid topology")
	ErrChromosomeLength = errors.New("chromosome length mismatch")
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Topology is the shape of a feedforward network: the input vector length
// followed by the width of every layer, output layer last.
type Topology struct {
	InputLength int   `json:"input_length" ini:"input_length"`
	Layers      []int `json:"layers" ini:"layers" delim:" "`
}

func (t Topology) Validate() error {
	if t.InputLength <= 0 {
		return fmt.Errorf("%w: input length must be > 0, got %d", ErrInvalidTopology, t.InputLength)
	}
	if len(t.Layers) == 0 {
		return fmt.Errorf("%w: at least one layer is required", ErrInvalidTopology)
	}
	for i, width := range t.Layers {
		if width <= 0 {
			return fmt.Errorf("%w: layer %d width must be > 0, got %d", ErrInvalidTopology, i, width)
		}
	}
	return nil
}

// FanIn returns the number of weights each neuron of layer i owns.
func (t Topology) FanIn(layer int) int {
	if layer == 0 {
		return t.InputLength
	}
	return t.Layers[layer-1]
}

func (t Topology) OutputLength() int {
	if len(t.Layers) == 0 {
		return 0
	}
	return t.Layers[len(t.Layers)-1]
}

func (t Topology) ChromosomeLength() int {
	total := 0
	for i, width := range t.Layers {
		total += width * t.FanIn(i)
	}
	return total
}

func (t Topology) NeuronCount() int {
	total := 0
	for _, width := range t.Layers {
		total += width
	}
	return total
}

func (t Topology) Equal(other Topology) bool {
	if t.InputLength != other.InputLength || len(t.Layers) != len(other.Layers) {
		return false
	}
	for i := range t.Layers {
		if t.Layers[i] != other.Layers[i] {
			return false
		}
	}
	return true
}

// String renders the memory file header: input length then layer widths.
func (t Topology) String() string {
	parts := make([]string, 0, len(t.Layers)+1)
	parts = append(parts, strconv.Itoa(t.InputLength))
	for _, width := range t.Layers {
		parts = append(parts, strconv.Itoa(width))
	}
	return strings.Join(parts, " ")
}

// Chromosome is every neuron weight of a network flattened layer-major,
// then neuron-major.
type Chromosome []float64

func (c Chromosome) Clone() Chromosome {
	return append(Chromosome(nil), c...)
}

// FitnessRecord pairs a population index with its fitness. Lower is better.
type FitnessRecord struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

type NeuronMemory struct {
	BiasValue  float64   `json:"bias_value"`
	BiasWeight float64   `json:"bias_weight"`
	Weights    []float64 `json:"weights"`
}

// Memory is a complete persisted network: topology, biases and weights.
type Memory struct {
	VersionedRecord
	NetworkID string           `json:"network_id,omitempty"`
	Topology  Topology         `json:"topology"`
	Layers    [][]NeuronMemory `json:"layers"`
}

// MemoryFromChromosome expands a chromosome into a memory carrying the
// default bias pair on every neuron.
func MemoryFromChromosome(topology Topology, chromosome Chromosome) (Memory, error) {
	if err := topology.Validate(); err != nil {
		return Memory{}, err
	}
	if want := topology.ChromosomeLength(); len(chromosome) != want {
		return Memory{}, fmt.Errorf("%w: got=%d want=%d", ErrChromosomeLength, len(chromosome), want)
	}

	memory := Memory{
		Topology: Topology{InputLength: topology.InputLength, Layers: append([]int(nil), topology.Layers...)},
		Layers:   make([][]NeuronMemory, len(topology.Layers)),
	}
	offset := 0
	for i, width := range topology.Layers {
		fanIn := topology.FanIn(i)
		neurons := make([]NeuronMemory, width)
		for k := range neurons {
			neurons[k] = NeuronMemory{
				BiasValue:  DefaultBiasValue,
				BiasWeight: DefaultBiasWeight,
				Weights:    append([]float64(nil), chromosome[offset:offset+fanIn]...),
			}
			offset += fanIn
		}
		memory.Layers[i] = neurons
	}
	return memory, nil
}

// CheckTopology reports the first structural difference between the memory
// and the requested topology.
func (m Memory) CheckTopology(topology Topology) error {
	if len(m.Layers) != len(topology.Layers) {
		return fmt.Errorf("layer count: got=%d want=%d", len(m.Layers), len(topology.Layers))
	}
	for i, neurons := range m.Layers {
		if len(neurons) != topology.Layers[i] {
			return fmt.Errorf("layer %d neuron count: got=%d want=%d", i, len(neurons), topology.Layers[i])
		}
		fanIn := topology.FanIn(i)
		for k, neuron := range neurons {
			if len(neuron.Weights) != fanIn {
				return fmt.Errorf("layer %d neuron %d weight count: got=%d want=%d", i, k, len(neuron.Weights), fanIn)
			}
		}
	}
	return nil
}

func (m Memory) Chromosome() Chromosome {
	out := make(Chromosome, 0, m.Topology.ChromosomeLength())
	for _, neurons := range m.Layers {
		for _, neuron := range neurons {
			out = append(out, neuron.Weights...)
		}
	}
	return out
}

func (m Memory) Clone() Memory {
	out := m
	out.Topology.Layers = append([]int(nil), m.Topology.Layers...)
	out.Layers = make([][]NeuronMemory, len(m.Layers))
	for i, neurons := range m.Layers {
		copied := make([]NeuronMemory, len(neurons))
		for k, neuron := range neurons {
			copied[k] = neuron
			copied[k].Weights = append([]float64(nil), neuron.Weights...)
		}
		out.Layers[i] = copied
	}
	return out
}
