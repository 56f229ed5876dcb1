package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruteri/device-onboarding-backend/interfaces"
)

// FileRecordSource reads production records from the local file system.
// A record location maps to baseDir/container/key.
type FileRecordSource struct {
	baseDir string
	log     *slog.Logger
}

// NewFileRecordSource creates a file record source rooted at baseDir,
// creating the directory if it doesn't exist.
func NewFileRecordSource(baseDir string, log *slog.Logger) (*FileRecordSource, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	return &FileRecordSource{
		baseDir: abs,
		log:     log,
	}, nil
}

// Fetch reads the record file.
// Returns ErrRecordNotFound if the file doesn't exist.
func (b *FileRecordSource) Fetch(ctx context.Context, loc interfaces.RecordLocation) ([]byte, error) {
	filePath, err := b.getFilePath(loc)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrRecordNotFound, loc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched record from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Delete removes the record file. Deleting a missing file succeeds.
func (b *FileRecordSource) Delete(ctx context.Context, loc interfaces.RecordLocation) error {
	filePath, err := b.getFilePath(loc)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	b.log.Debug("Deleted record file", slog.String("path", filePath))
	return nil
}

// Name returns a unique identifier for this record source.
func (b *FileRecordSource) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// getFilePath maps a location below the base directory, rejecting
// locations that would escape it.
func (b *FileRecordSource) getFilePath(loc interfaces.RecordLocation) (string, error) {
	if err := loc.Validate(); err != nil {
		return "", err
	}

	filePath := filepath.Join(b.baseDir, loc.Container, filepath.FromSlash(loc.Key))
	rel, err := filepath.Rel(b.baseDir, filePath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes the record directory", interfaces.ErrInvalidLocation, loc)
	}
	return filePath, nil
}
