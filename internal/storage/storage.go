// Package storage spools uploaded files on local disk before they are
// forwarded to the backend.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrTooLarge = errors.New("file exceeds size limit")
	ErrNotImage = errors.New("file is not an image")
)

// FileStorage abstracts file persistence.
type FileStorage interface {
	// Save persists content under a unique spool id and returns its path.
	Save(ctx context.Context, group, spoolID, filename string, reader io.Reader) (storagePath string, err error)
	Open(ctx context.Context, storagePath string) (io.ReadCloser, error)
	Delete(ctx context.Context, storagePath string) error
}
