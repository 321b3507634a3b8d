package nn

import (
	"errors"
	"math"
	"testing"

	"evann/internal/model"
)

func TestNeuronErrorsAndUpdate(t *testing.T) {
	neuron := NewNeuron([]float64{0.5, -0.5}, 1, 0.25, Sigmoid)

	if got := neuron.OutputError(0.8, 1); math.Abs(got-0.2*0.8*0.2) > 1e-12 {
		t.Fatalf("unexpected output error: %f", got)
	}

	nextWeights := [][]float64{{0.1, 0.4}, {0.3, -0.2}}
	nextErrors := []float64{0.5, 2}
	got := neuron.HiddenError(0.6, 1, nextWeights, nextErrors)
	want := 0.6 * 0.4 * (0.4*0.5 + -0.2*2)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("unexpected hidden error: got=%f want=%f", got, want)
	}

	neuron.ApplyUpdate(0.5, 0.2, []float64{1, 2})
	weights := neuron.Weights()
	if math.Abs(weights[0]-0.6) > 1e-12 || math.Abs(weights[1]+0.3) > 1e-12 {
		t.Fatalf("unexpected weights after update: %+v", weights)
	}
	if memory := neuron.Memory(); math.Abs(memory.BiasWeight-0.35) > 1e-12 || memory.BiasValue != 1 {
		t.Fatalf("unexpected bias after update: %+v", memory)
	}
}

func TestLayerMatchesTopology(t *testing.T) {
	topology := model.Topology{InputLength: 3, Layers: []int{2, 1}}
	first := NewLayer([]*Neuron{
		NewNeuron(make([]float64, 3), 0.5, -1, Sigmoid),
		NewNeuron(make([]float64, 3), 0.5, -1, Sigmoid),
	})
	if !first.MatchesTopology(topology, 0) {
		t.Fatal("expected first layer to match")
	}
	if first.MatchesTopology(topology, 1) {
		t.Fatal("expected first layer not to match output position")
	}

	wrongFanIn := NewLayer([]*Neuron{NewNeuron(make([]float64, 3), 0.5, -1, Sigmoid)})
	if wrongFanIn.MatchesTopology(topology, 1) {
		t.Fatal("expected fan-in mismatch")
	}
	if first.MatchesTopology(topology, 5) {
		t.Fatal("expected out-of-range layer index to fail")
	}
}

func TestLayerForwardRecordsOutputs(t *testing.T) {
	layer := NewLayer([]*Neuron{
		NewNeuron([]float64{1}, 0, 0, Sigmoid),
		NewNeuron([]float64{-1}, 0, 0, Sigmoid),
	})
	out := layer.Forward([]float64{2})
	last := layer.LastOutputs()
	for i := range out {
		if out[i] != last[i] {
			t.Fatalf("forward output not recorded at %d", i)
		}
	}
	out[0] = 42
	if layer.LastOutputs()[0] == 42 {
		t.Fatal("forward result must not alias layer buffers")
	}

	layer.PropagateOutputError([]float64{1, 0})
	errs := layer.Errors()
	if errs[0] <= 0 || errs[1] >= 0 {
		t.Fatalf("unexpected error signs: %+v", errs)
	}
}

func TestNewPerceptronRejectsMismatchedMemory(t *testing.T) {
	memory, err := model.MemoryFromChromosome(model.Topology{InputLength: 2, Layers: []int{2, 1}}, make(model.Chromosome, 6))
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	memory.Layers[1][0].Weights = []float64{1}
	if _, err := NewPerceptron(memory, Sigmoid); !errors.Is(err, ErrTopologyMismatch) {
		t.Fatalf("expected ErrTopologyMismatch, got: %v", err)
	}
}

func TestPerceptronTrainSampleReducesError(t *testing.T) {
	topology := model.Topology{InputLength: 2, Layers: []int{2, 1}}
	memory, err := model.MemoryFromChromosome(topology, model.Chromosome{0.1, -0.2, 0.3, 0.05, -0.1, 0.2})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	p, err := NewPerceptron(memory, Sigmoid)
	if err != nil {
		t.Fatalf("new perceptron: %v", err)
	}

	input := []float64{1, 0}
	target := []float64{0.9}
	before, err := p.Handle(input)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	for i := 0; i < 200; i++ {
		if err := p.TrainSample(input, target, 0.5); err != nil {
			t.Fatalf("train sample: %v", err)
		}
	}
	after, err := p.Handle(input)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if math.Abs(after[0]-target[0]) >= math.Abs(before[0]-target[0]) {
		t.Fatalf("expected training to reduce error: before=%f after=%f", before[0], after[0])
	}

	snapshot := p.Memory()
	if err := snapshot.CheckTopology(topology); err != nil {
		t.Fatalf("snapshot topology: %v", err)
	}
	if snapshot.Layers[1][0].BiasWeight == model.DefaultBiasWeight {
		t.Fatal("expected bias weight to move during training")
	}
}

func TestPerceptronTrainSampleShapeMismatch(t *testing.T) {
	memory, err := model.MemoryFromChromosome(model.Topology{InputLength: 2, Layers: []int{1}}, make(model.Chromosome, 2))
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	p, err := NewPerceptron(memory, Sigmoid)
	if err != nil {
		t.Fatalf("new perceptron: %v", err)
	}
	if err := p.TrainSample([]float64{1}, []float64{1}, 0.1); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected input ErrShapeMismatch, got: %v", err)
	}
	if err := p.TrainSample([]float64{1, 1}, []float64{1, 0}, 0.1); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected target ErrShapeMismatch, got: %v", err)
	}
}
