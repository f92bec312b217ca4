package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/rfq-workflow/internal/application/port"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

// LocalFileStorage implements port.FileStorage on the local filesystem.
// Exported quotations live under baseDir keyed by their relative path.
type LocalFileStorage struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalFileStorage creates a new LocalFileStorage
func NewLocalFileStorage(baseDir string, logger *zap.Logger) *LocalFileStorage {
	return &LocalFileStorage{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Save writes content to the relative path. The file is written to a
// temporary name first so readers never see a partial document.
func (s *LocalFileStorage) Save(ctx context.Context, path string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logger.Error("Failed to create parent directories",
			zap.String("path", dir),
			zap.Error(err))
		return fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		s.logger.Error("Failed to move file into place",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("File saved",
		zap.String("path", fullPath),
		zap.Int("size", len(content)))
	return nil
}

// Read returns the content at the relative path. A missing file yields
// ErrNotFound.
func (s *LocalFileStorage) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: file %s", domainwf.ErrNotFound, path)
	}
	if err != nil {
		s.logger.Error("Failed to read file",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// Exists reports whether a regular file exists at the relative path
func (s *LocalFileStorage) Exists(ctx context.Context, path string) bool {
	fullPath, err := s.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && info.Mode().IsRegular()
}

// Delete removes the file at the relative path. Deleting a missing file
// succeeds.
func (s *LocalFileStorage) Delete(ctx context.Context, path string) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("Failed to delete file",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GetFullPath converts a relative path to full path
func (s *LocalFileStorage) GetFullPath(relativePath string) string {
	return filepath.Join(s.baseDir, relativePath)
}

// resolve joins the relative path to baseDir and rejects anything that
// lands outside it
func (s *LocalFileStorage) resolve(relativePath string) (string, error) {
	if relativePath == "" || filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("%w: invalid storage path %q", domainwf.ErrValidation, relativePath)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	absPath, err := filepath.Abs(s.GetFullPath(relativePath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes base directory: %s", domainwf.ErrValidation, relativePath)
	}
	return absPath, nil
}

// Verify interface compliance
var _ port.FileStorage = (*LocalFileStorage)(nil)
