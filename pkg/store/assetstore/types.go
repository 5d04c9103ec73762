// Package assetstore implements some named asset stores.
// Assets are opaque byte payloads, addressed by a caller-chosen key.
// Content types and similar metadata are tracked by the caller, not the store.
package assetstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// AssetStore describes the interface of an asset store.
//
// Upload with overwrite=false reserves the key before copying any bytes,
// concurrent uploads to the same key have exactly one winner,
// all others fail with ErrAlreadyExists.
// Download fails with ErrNotFound for absent keys, and copies the requested range
// into w. Delete is idempotent and never fails for absent keys, the empty key included.
// PublicURL returns false if the store can't hand out a URL for the key.
type AssetStore interface {
	Upload(ctx context.Context, key string, r io.Reader, overwrite bool) error
	Download(ctx context.Context, key string, w io.Writer, br BytesRange) error
	Copy(ctx context.Context, sourceKey, targetKey string) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) (string, bool)
	io.Closer
}

var (
	ErrNotFound      = errors.New("asset not found")
	ErrAlreadyExists = errors.New("asset already exists")
	ErrInvalidKey    = errors.New("invalid asset key")
	ErrInvalidRange  = errors.New("invalid bytes range")
)

func notFound(key string) error {
	return fmt.Errorf("%w: %v", ErrNotFound, key)
}

func alreadyExists(key string) error {
	return fmt.Errorf("%w: %v", ErrAlreadyExists, key)
}

// checkKey validates the preconditions shared by all operations.
func checkKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}

func checkUpload(key string, r io.Reader) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if r == nil {
		return errors.New("reader is required")
	}
	return nil
}

func checkDownload(key string, w io.Writer) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if w == nil {
		return errors.New("writer is required")
	}
	return nil
}
