package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystem keeps blobs as files in one directory.
type FileSystem struct {
	root string
}

// NewFileSystem creates root if needed.
func NewFileSystem(root string) (*FileSystem, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FileSystem{root: root}, nil
}

func (s *FileSystem) Store(_ context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	ref := newReference(contentType)
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("store blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.root, ref)); err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	return ref, nil
}

func (s *FileSystem) Get(_ context.Context, ref string) ([]byte, string, error) {
	if !validReference(ref) {
		return nil, "", ErrInvalidReference
	}
	data, err := os.ReadFile(filepath.Join(s.root, ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("read blob: %w", err)
	}
	return data, contentTypeOf(ref), nil
}

func (s *FileSystem) Delete(_ context.Context, ref string) error {
	if !validReference(ref) {
		return ErrInvalidReference
	}
	err := os.Remove(filepath.Join(s.root, ref))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// DeleteAll removes every blob and recreates the empty root.
func (s *FileSystem) DeleteAll(_ context.Context) error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("delete blobs: %w", err)
	}
	return os.MkdirAll(s.root, 0o755)
}
