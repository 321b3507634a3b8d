package storage

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"evann/internal/model"
)

// Decimal separators accepted by the memory text format.
const (
	DecimalComma = ','
	DecimalPoint = '.'
)

// EncodeMemoryText renders a memory in the line-oriented memory file format:
// a header with the input length and layer widths, then one line per neuron
// as "layer_<i> neuron_<k> <biasValue> <biasWeight> <w0> ... <wN>".
func EncodeMemoryText(memory model.Memory, decimal byte) ([]byte, error) {
	if decimal != DecimalComma && decimal != DecimalPoint {
		return nil, errors.Errorf("unsupported decimal separator %q", decimal)
	}
	if err := memory.Topology.Validate(); err != nil {
		return nil, errors.Wrap(err, "encode memory")
	}
	if err := memory.CheckTopology(memory.Topology); err != nil {
		return nil, errors.Wrap(err, "encode memory")
	}

	var buf bytes.Buffer
	buf.WriteString(memory.Topology.String())
	buf.WriteByte('\n')
	for i, neurons := range memory.Layers {
		for k, neuron := range neurons {
			fmt.Fprintf(&buf, "layer_%d neuron_%d %s %s", i, k,
				formatDecimal(neuron.BiasValue, decimal), formatDecimal(neuron.BiasWeight, decimal))
			for _, weight := range neuron.Weights {
				buf.WriteByte(' ')
				buf.WriteString(formatDecimal(weight, decimal))
			}
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

// DecodeMemoryText parses the memory file format. Either decimal separator
// is accepted. Structural problems wrap ErrMemoryInitialize.
func DecodeMemoryText(data []byte) (model.Memory, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var (
		memory    model.Memory
		haveHead  bool
		lineNo    int
		layer     int
		neuronIdx int
	)
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if !haveHead {
			topology, err := parseHeader(fields)
			if err != nil {
				return model.Memory{}, errors.Wrapf(err, "line %d", lineNo)
			}
			memory.Topology = topology
			memory.Layers = make([][]model.NeuronMemory, len(topology.Layers))
			haveHead = true
			continue
		}

		if layer >= len(memory.Topology.Layers) {
			return model.Memory{}, errors.Wrapf(ErrMemoryInitialize, "line %d: more neurons than the header declares", lineNo)
		}
		neuron, err := parseNeuronLine(fields, layer, neuronIdx, memory.Topology.FanIn(layer))
		if err != nil {
			return model.Memory{}, errors.Wrapf(err, "line %d", lineNo)
		}
		memory.Layers[layer] = append(memory.Layers[layer], neuron)
		neuronIdx++
		if neuronIdx == memory.Topology.Layers[layer] {
			layer++
			neuronIdx = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return model.Memory{}, errors.Wrap(err, "read memory")
	}
	if !haveHead {
		return model.Memory{}, errors.Wrap(ErrMemoryInitialize, "memory file is empty")
	}
	if layer != len(memory.Topology.Layers) {
		return model.Memory{}, errors.Wrapf(ErrMemoryInitialize, "memory file ends inside layer %d", layer)
	}
	memory.VersionedRecord = currentVersion()
	return memory, nil
}

func parseHeader(fields []string) (model.Topology, error) {
	values := make([]int, len(fields))
	for i, field := range fields {
		value, err := strconv.Atoi(field)
		if err != nil {
			return model.Topology{}, errors.Wrapf(ErrMemoryInitialize, "header field %d: %v", i+1, err)
		}
		values[i] = value
	}
	topology := model.Topology{InputLength: values[0], Layers: values[1:]}
	if err := topology.Validate(); err != nil {
		return model.Topology{}, errors.Wrapf(ErrMemoryInitialize, "header: %v", err)
	}
	return topology, nil
}

func parseNeuronLine(fields []string, layer, neuron, fanIn int) (model.NeuronMemory, error) {
	if want := 4 + fanIn; len(fields) != want {
		return model.NeuronMemory{}, errors.Wrapf(ErrMemoryInitialize, "layer %d neuron %d: got %d fields, want %d", layer, neuron, len(fields), want)
	}
	if fields[0] != "layer_"+strconv.Itoa(layer) || fields[1] != "neuron_"+strconv.Itoa(neuron) {
		return model.NeuronMemory{}, errors.Wrapf(ErrMemoryInitialize, "got %s %s, want layer_%d neuron_%d", fields[0], fields[1], layer, neuron)
	}
	values := make([]float64, len(fields)-2)
	for i, field := range fields[2:] {
		value, err := parseDecimal(field)
		if err != nil {
			return model.NeuronMemory{}, errors.Wrapf(ErrMemoryInitialize, "value %q: %v", field, err)
		}
		values[i] = value
	}
	return model.NeuronMemory{BiasValue: values[0], BiasWeight: values[1], Weights: values[2:]}, nil
}

func formatDecimal(value float64, decimal byte) string {
	text := strings.ToUpper(strconv.FormatFloat(value, 'g', -1, 64))
	if decimal == DecimalComma {
		text = strings.Replace(text, ".", ",", 1)
	}
	return text
}

func parseDecimal(field string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(field, ",", ".", 1), 64)
}
