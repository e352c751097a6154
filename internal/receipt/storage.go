package receipt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinparda/actual/internal/fault"
)

// Storage defines the interface for raw file persistence. Callers address
// files by the exact name returned from Save; there is no listing or
// pattern-based lookup.
type Storage interface {
	// Save writes a file and returns the name it is stored under.
	Save(filename string, data []byte) (string, error)

	// Get retrieves a file by its exact stored name.
	Get(filename string) ([]byte, error)

	// Delete removes a file by its exact stored name.
	Delete(filename string) error
}

// LocalStorage implements Storage on the local filesystem.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage rooted at basePath.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// resolve maps a stored name to an absolute path. Names containing path
// separators are rejected so an identifier can never escape the base
// directory or alias another entry.
func (l *LocalStorage) resolve(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) {
		return "", fault.Errorf(fault.KindValidation, "invalid stored filename %q", filename)
	}
	return filepath.Join(l.basePath, filename), nil
}

// Save writes a file to local storage. A failed write removes whatever made
// it to disk so a rejected upload never leaves a partial file behind.
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path, err := l.resolve(filename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filename, nil
}

// Get retrieves a file from local storage.
func (l *LocalStorage) Get(filename string) ([]byte, error) {
	path, err := l.resolve(filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.Wrap(fault.KindNotFound, fmt.Sprintf("file %s not found", filename), err)
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage.
func (l *LocalStorage) Delete(filename string) error {
	path, err := l.resolve(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fault.Wrap(fault.KindNotFound, fmt.Sprintf("file %s not found", filename), err)
		}
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
