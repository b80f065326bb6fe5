package state

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

// FileStore keeps the checkpoint in a JSON file. Writes go to a temporary
// file in the same directory which is synced and renamed over the target,
// so a crash leaves either the old or the new checkpoint.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store at path, creating parent directories
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "state file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create state directory").
			WithDetail("path", path)
	}
	return &FileStore{path: path}, nil
}

// Read loads the checkpoint. A missing file is an empty document.
func (f *FileStore) Read(context.Context) (*Document, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to read state file").
			WithDetail("path", f.path)
	}
	return Decode(data)
}

// Write replaces the checkpoint file atomically
func (f *FileStore) Write(_ context.Context, doc *Document) error {
	err := f.write(doc)
	recordWrite("file", err)
	return err
}

func (f *FileStore) write(doc *Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to create temp state file").
			WithDetail("path", f.path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrorTypeState, "failed to write state").WithDetail("path", f.path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrorTypeState, "failed to sync state").WithDetail("path", f.path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to close state").WithDetail("path", f.path)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to replace state file").WithDetail("path", f.path)
	}

	// Persist the rename itself. Not every platform can sync a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

// Path returns the checkpoint file path
func (f *FileStore) Path() string {
	return f.path
}

// Close is a no-op
func (f *FileStore) Close() error {
	return nil
}
