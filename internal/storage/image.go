package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Uploader sends an order's design image to the backend.
type Uploader interface {
	UploadOrderImage(ctx context.Context, orderID, filename string, r io.Reader) error
}

// ImageForwarder spools an uploaded image, checks that it is an image,
// forwards it to the backend and removes the spooled copy.
type ImageForwarder struct {
	storage  FileStorage
	uploader Uploader
}

func NewImageForwarder(storage FileStorage, uploader Uploader) *ImageForwarder {
	return &ImageForwarder{storage: storage, uploader: uploader}
}

// UploadOrderImage satisfies the same contract as the backend client, so a
// forwarder can stand in for it.
func (f *ImageForwarder) UploadOrderImage(ctx context.Context, orderID, filename string, r io.Reader) error {
	path, err := f.storage.Save(ctx, "client_orders", uuid.NewString(), filename, r)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.storage.Delete(ctx, path); err != nil {
			slog.WarnContext(ctx, "Failed to remove spooled image", "path", path, "err", err)
		}
	}()

	if err := f.checkImage(ctx, path); err != nil {
		return err
	}

	file, err := f.storage.Open(ctx, path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := f.uploader.UploadOrderImage(ctx, orderID, filename, file); err != nil {
		return fmt.Errorf("upload image for order %s: %w", orderID, err)
	}
	return nil
}

func (f *ImageForwarder) checkImage(ctx context.Context, path string) error {
	file, err := f.storage.Open(ctx, path)
	if err != nil {
		return err
	}
	defer file.Close()

	mt, err := mimetype.DetectReader(file)
	if err != nil {
		return fmt.Errorf("read spooled image: %w", err)
	}
	if !strings.HasPrefix(mt.String(), "image/") {
		return ErrNotImage
	}
	return nil
}
