package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Store is the one file holding a venue's last canonical form.
type Store struct {
	Fs   afero.Fs
	Path string
}

// NewStore returns a Store on the OS filesystem.
func NewStore(path string) *Store {
	return &Store{Fs: afero.NewOsFs(), Path: path}
}

func (s *Store) fs() afero.Fs {
	if s.Fs == nil {
		return afero.NewOsFs()
	}
	return s.Fs
}

// Read returns the stored form, or "" if nothing has been stored yet.
func (s *Store) Read() (string, error) {
	data, err := afero.ReadFile(s.fs(), s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading snapshot %s: %w", s.Path, err)
	}
	return string(data), nil
}

// Write replaces the stored form. The new content is written to a temporary file next to
// Path and renamed over it, so a crash never leaves a half-written snapshot.
func (s *Store) Write(content string) error {
	fs := s.fs()
	dir := filepath.Dir(s.Path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("writing snapshot %s: %w", s.Path, err)
	}
	name := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		fs.Remove(name)
		return fmt.Errorf("writing snapshot %s: %w", s.Path, err)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(name)
		return fmt.Errorf("writing snapshot %s: %w", s.Path, err)
	}
	if err := fs.Rename(name, s.Path); err != nil {
		fs.Remove(name)
		return fmt.Errorf("writing snapshot %s: %w", s.Path, err)
	}
	return nil
}

// Clear removes the stored form so the next run reports everything as new.
func (s *Store) Clear() error {
	err := s.fs().Remove(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
