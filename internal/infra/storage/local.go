// Package storage keeps job artifacts on the local filesystem under a
// job-scoped path, so concurrent jobs can never collide on file names.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"async-import-export/internal/domain"
)

// ArtifactStore owns the lifecycle of job artifacts: an import's input file
// and an export's output file. Artifacts are written once and never mutated.
type ArtifactStore interface {
	// Save writes data under <kind>/<jobID>/<filename> and returns the
	// artifact path, relative to the store root.
	Save(kind, jobID, filename string, data []byte) (string, error)
	Load(path string) ([]byte, error)
	Open(path string) (io.ReadCloser, error)
	// Remove deletes one artifact, e.g. the partial file of a cancelled export.
	Remove(path string) error
}

var _ ArtifactStore = (*LocalStore)(nil)

// LocalStore implements ArtifactStore on a local directory.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: storage root is required", domain.ErrInvalidArgument)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Save(kind, jobID, filename string, data []byte) (string, error) {
	if kind == "" || jobID == "" || filename == "" {
		return "", fmt.Errorf("%w: kind, jobID and filename are required", domain.ErrInvalidArgument)
	}
	rel := filepath.Join(kind, jobID, filepath.Base(filename))
	full := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return rel, nil
}

func (s *LocalStore) Load(path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNoArtifact
		}
		return nil, err
	}
	return b, nil
}

func (s *LocalStore) Open(path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNoArtifact
		}
		return nil, err
	}
	return f, nil
}

func (s *LocalStore) Remove(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// resolve joins a stored relative path with the root, rejecting escapes.
func (s *LocalStore) resolve(path string) (string, error) {
	if path == "" {
		return "", domain.ErrNoArtifact
	}
	clean := filepath.Clean(path)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: artifact path %q escapes storage root", domain.ErrInvalidArgument, path)
	}
	return filepath.Join(s.root, clean), nil
}
