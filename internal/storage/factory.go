package storage

import "fmt"

// DefaultStoreKind is the backend used when none is configured.
func DefaultStoreKind() string {
	return "file"
}

// NewStore builds a backend. path is the memory directory for "file" and the
// database file for "sqlite"; the in-memory backend ignores it.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "file":
		return NewFileStore(path), nil
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
