// Package localfile keeps the small plaintext files a meshsync install owns:
// the paired workspace id and the application state document.
package localfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// WorkspaceFileName is the fixed name of the workspace id file.
const WorkspaceFileName = "workspace_id"

// WorkspaceFile persists the id of the workspace this device is paired with.
type WorkspaceFile struct {
	fs   afero.Fs
	path string
}

// NewWorkspaceFile returns the workspace id file under dir.
func NewWorkspaceFile(fs afero.Fs, dir string) *WorkspaceFile {
	return &WorkspaceFile{fs: fs, path: filepath.Join(dir, WorkspaceFileName)}
}

// Path returns the file path.
func (f *WorkspaceFile) Path() string { return f.path }

// Read returns the stored id. A missing or blank file means "not paired":
// ok is false and err is nil.
func (f *WorkspaceFile) Read() (id string, ok bool, err error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read workspace file: %w", err)
	}
	id = strings.TrimSpace(string(data))
	return id, id != "", nil
}

// Write stores id, creating the directory if needed.
func (f *WorkspaceFile) Write(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("workspace id is empty")
	}
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := writeAtomic(f.fs, f.path, []byte(id+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write workspace file: %w", err)
	}
	return nil
}

// Clear removes the file. Clearing a missing file is not an error.
func (f *WorkspaceFile) Clear() error {
	if err := f.fs.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove workspace file: %w", err)
	}
	return nil
}

// writeAtomic writes to a sibling temp file and renames it into place.
func writeAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, perm); err != nil {
		return err
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return nil
}
