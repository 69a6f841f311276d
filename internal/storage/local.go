package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage stores files on the local filesystem. A positive maxSize
// rejects larger files.
type LocalStorage struct {
	basePath string
	maxSize  int64
}

func NewLocalStorage(basePath string, maxSize int64) *LocalStorage {
	return &LocalStorage{basePath: basePath, maxSize: maxSize}
}

func (s *LocalStorage) Save(_ context.Context, group, spoolID, filename string, reader io.Reader) (string, error) {
	dir := filepath.Join(s.basePath, group, spoolID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	storagePath := filepath.Join(dir, filepath.Base(filename))
	f, err := os.Create(storagePath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	src := reader
	if s.maxSize > 0 {
		src = io.LimitReader(reader, s.maxSize+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		s.cleanup(storagePath)
		return "", fmt.Errorf("write file: %w", err)
	}
	if s.maxSize > 0 && n > s.maxSize {
		s.cleanup(storagePath)
		return "", ErrTooLarge
	}
	return storagePath, nil
}

func (s *LocalStorage) Open(_ context.Context, storagePath string) (io.ReadCloser, error) {
	f, err := os.Open(storagePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *LocalStorage) Delete(_ context.Context, storagePath string) error {
	if err := os.Remove(storagePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	// spool dir is removed once empty
	_ = os.Remove(filepath.Dir(storagePath))
	return nil
}

func (s *LocalStorage) cleanup(path string) {
	_ = os.Remove(path)
	_ = os.Remove(filepath.Dir(path))
}
