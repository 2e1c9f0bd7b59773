// Package storage holds the local-disk FileStore used in development and
// single-node deployments.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore writes uploads under a directory and serves them from a
// base URL path.
type LocalStore struct {
	Dir     string
	BaseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &LocalStore{Dir: dir, BaseURL: baseURL}, nil
}

// Save streams the file to disk under the upload id to avoid name
// collisions; the original name survives in the upload record.
func (s *LocalStore) Save(ctx context.Context, id, fileName string, r io.Reader) (string, error) {
	name := id + filepath.Ext(fileName)
	path := filepath.Join(s.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", err
	}
	return s.BaseURL + "/" + name, nil
}
