package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"evann/internal/model"
)

const historyDirName = ".history"

// FileStore keeps one memory text file per location inside a directory.
// Fitness histories are JSON files under a hidden subdirectory.
type FileStore struct {
	dir     string
	decimal byte

	mu sync.RWMutex
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, decimal: DecimalComma}
}

// WithDecimal selects the decimal separator written to memory files.
func (s *FileStore) WithDecimal(decimal byte) *FileStore {
	s.decimal = decimal
	return s
}

func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Init(_ context.Context) error {
	if s.dir == "" {
		return fmt.Errorf("file store directory is required")
	}
	return os.MkdirAll(filepath.Join(s.dir, historyDirName), 0o755)
}

func (s *FileStore) SaveMemory(_ context.Context, location string, memory model.Memory) error {
	path, err := s.memoryPath(location)
	if err != nil {
		return err
	}
	data, err := EncodeMemoryText(memory, s.decimal)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func (s *FileStore) GetMemory(_ context.Context, location string) (model.Memory, bool, error) {
	path, err := s.memoryPath(location)
	if err != nil {
		return model.Memory{}, false, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return model.Memory{}, false, nil
		}
		return model.Memory{}, false, err
	}
	memory, err := DecodeMemoryText(data)
	if err != nil {
		return model.Memory{}, false, fmt.Errorf("decode memory %s: %w", location, err)
	}
	return memory, true, nil
}

func (s *FileStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	path, err := s.historyPath(runID)
	if err != nil {
		return err
	}
	data, err := EncodeFitnessHistory(history)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func (s *FileStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	path, err := s.historyPath(runID)
	if err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	history, err := DecodeFitnessHistory(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode fitness history %s: %w", runID, err)
	}
	return history, true, nil
}

func (s *FileStore) memoryPath(location string) (string, error) {
	if location == "" || !filepath.IsLocal(location) {
		return "", fmt.Errorf("invalid memory location %q", location)
	}
	return filepath.Join(s.dir, location), nil
}

func (s *FileStore) historyPath(runID string) (string, error) {
	if runID == "" || !filepath.IsLocal(runID) || filepath.Base(runID) != runID {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(s.dir, historyDirName, runID+".json"), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
