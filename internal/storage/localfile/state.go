package localfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// StateFile is a JSON document standing in for the application's local
// stores. It aggregates to the parsed document and hydrates by replacing the
// file atomically.
type StateFile struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewStateFile returns the state document at path.
func NewStateFile(fs afero.Fs, path string) *StateFile {
	return &StateFile{fs: fs, path: path}
}

// Path returns the document path.
func (s *StateFile) Path() string { return s.path }

// GetAllStoreStates reads the document. A missing file aggregates to an
// empty object. Numbers come back as json.Number so large integers are
// written back unchanged.
func (s *StateFile) GetAllStoreStates() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var state any
	if err := dec.Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("failed to parse state file: trailing data")
	}
	return state, nil
}

// HydrateAll replaces the document with state.
func (s *StateFile) HydrateAll(state any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	if err := writeAtomic(s.fs, s.path, buf, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
