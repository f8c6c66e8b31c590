// Package local writes crawl artifacts to the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when an artifact name escapes the base directory.
var ErrPathTraversal = errors.New("path traversal detected")

// Config captures the parameters for the local artifact store.
type Config struct {
	// BaseDir is the root directory artifacts are written under.
	BaseDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

// ArtifactStore writes rendered graphs and other run outputs to disk.
type ArtifactStore struct {
	baseDir string
}

// New creates the store, creating BaseDir when missing and verifying that it
// is writable.
func New(cfg Config) (*ArtifactStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, errors.New("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory %q is not a directory", cfg.BaseDir)
	}

	probe, err := os.CreateTemp(cfg.BaseDir, ".ripples-probe-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}

	abs, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	return &ArtifactStore{baseDir: abs}, nil
}

// BaseDir reports the directory artifacts are written under.
func (s *ArtifactStore) BaseDir() string {
	return s.baseDir
}

// Write streams data into name below the base directory and returns a
// file:// URI. The content lands in a temp file first and is renamed into
// place, so readers never observe a partial artifact.
func (s *ArtifactStore) Write(ctx context.Context, name string, data io.Reader) (string, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close artifact: %w", err)
	}
	// #nosec G302 -- artifacts are meant to be readable by other tools.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("failed to chmod artifact: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return "file://" + fullPath, nil
}

func (s *ArtifactStore) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("artifact name is required")
	}
	fullPath := filepath.Join(s.baseDir, name)
	rel, err := filepath.Rel(s.baseDir, fullPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, name)
	}
	return fullPath, nil
}
