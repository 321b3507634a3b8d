package storage

import (
	"encoding/json"
	"errors"

	"evann/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeMemory(m model.Memory) ([]byte, error) {
	if m.SchemaVersion == 0 && m.CodecVersion == 0 {
		m.VersionedRecord = currentVersion()
	}
	return json.Marshal(m)
}

func DecodeMemory(data []byte) (model.Memory, error) {
	var memory model.Memory
	if err := json.Unmarshal(data, &memory); err != nil {
		return model.Memory{}, err
	}
	if err := checkVersion(memory.VersionedRecord); err != nil {
		return model.Memory{}, err
	}
	return memory, nil
}

func EncodeFitnessHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeFitnessHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func currentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
