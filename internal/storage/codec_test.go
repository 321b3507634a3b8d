package storage

import (
	"errors"
	"testing"

	"evann/internal/model"
)

func TestDecodeMemoryVersionMismatch(t *testing.T) {
	memory, err := model.MemoryFromChromosome(model.Topology{InputLength: 1, Layers: []int{1}}, model.Chromosome{1})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	memory.VersionedRecord = model.VersionedRecord{SchemaVersion: CurrentSchemaVersion + 1, CodecVersion: CurrentCodecVersion}
	data, err := EncodeMemory(memory)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeMemory(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got: %v", err)
	}
}

func TestEncodeMemoryStampsCurrentVersion(t *testing.T) {
	memory, err := model.MemoryFromChromosome(model.Topology{InputLength: 2, Layers: []int{1}}, model.Chromosome{0.5, -0.5})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	data, err := EncodeMemory(memory)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeMemory(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Topology.Equal(memory.Topology) || decoded.Chromosome()[1] != -0.5 {
		t.Fatalf("unexpected decoded memory: %+v", decoded)
	}
}
