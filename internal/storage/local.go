package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// LocalStore keeps objects as files in one directory served under publicPath.
type LocalStore struct {
	fs         afero.Fs
	dir        string
	publicPath string
	now        func() time.Time
}

// NewLocalStore creates dir on fs if needed.
func NewLocalStore(fs afero.Fs, dir, publicPath string) (*LocalStore, error) {
	if dir == "" {
		dir = "uploads"
	}
	if publicPath == "" {
		publicPath = "/uploads"
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{fs: fs, dir: dir, publicPath: "/" + strings.Trim(publicPath, "/"), now: time.Now}, nil
}

// Dir returns the directory holding stored files.
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) (Object, error) {
	if err := validateKey(key); err != nil {
		return Object{}, err
	}
	if err := afero.WriteFile(s.fs, filepath.Join(s.dir, key), data, 0o644); err != nil {
		return Object{}, fmt.Errorf("write %s: %w", key, err)
	}
	return Object{Key: key, URL: path.Join(s.publicPath, key)}, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.fs.Remove(filepath.Join(s.dir, key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrObjectNotFound
		}
		return err
	}
	return nil
}

// SignedURL returns the public path; local files are served without signatures.
func (s *LocalStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if _, err := s.fs.Stat(filepath.Join(s.dir, key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrObjectNotFound
		}
		return "", err
	}
	return path.Join(s.publicPath, key), nil
}

func (s *LocalStore) Cleanup(_ context.Context, olderThan time.Duration) (int, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !entry.ModTime().Before(cutoff) {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
