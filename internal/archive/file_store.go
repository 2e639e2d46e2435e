package archive

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// fileStore implements Store on the local file system.
type fileStore struct {
	root   string
	logger zerolog.Logger
}

// NewFileStore creates a Store writing gzipped files below root.
func NewFileStore(root string, logger zerolog.Logger) Store {
	return &fileStore{
		root:   root,
		logger: logger.With().Str("component", "archive-file-store").Logger(),
	}
}

func (s *fileStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid archive key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes body gzipped to root/key, creating directories as needed.
func (s *fileStore) Put(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.Error().Err(err).Str("file", path).Msg("failed to create archive directory")
		return fmt.Errorf("failed to create archive directory for %s: %w", path, err)
	}

	file, err := os.Create(path)
	if err != nil {
		s.logger.Error().Err(err).Str("file", path).Msg("failed to create archive file")
		return fmt.Errorf("failed to create archive file %s: %w", path, err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	if _, err := gzipWriter.Write(body); err != nil {
		return fmt.Errorf("failed to write archive file %s: %w", path, err)
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush archive file %s: %w", path, err)
	}

	return file.Sync()
}

// Get reads root/key and returns its decompressed content.
func (s *fileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive file %s: %w", path, err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		s.logger.Error().Err(err).Str("file", path).Msg("failed to create gzip reader")
		return nil, fmt.Errorf("failed to create gzip reader for %s: %w", path, err)
	}
	defer gzipReader.Close()

	return io.ReadAll(gzipReader)
}
