// Package imagestore keeps the original images of owners.
package imagestore

import (
	"context"
	"io"

	"github.com/flokli/assetcache/pkg/store/assetstore"
)

// ImageStore stores the original images of owners in an asset store.
// Originals are keyed by util.OriginalKey, so the bytes behind a key never change.
type ImageStore struct {
	assets assetstore.AssetStore
}

func New(assets assetstore.AssetStore) *ImageStore {
	return &ImageStore{assets: assets}
}

// Upload stores an original image under key.
// Uploading the same key twice stores the same bytes twice, so it just overwrites.
func (is *ImageStore) Upload(ctx context.Context, key string, r io.Reader) error {
	return is.assets.Upload(ctx, key, r, true)
}

// Download writes the original image stored under key into w.
// It returns an error wrapping assetstore.ErrNotFound if there's none.
func (is *ImageStore) Download(ctx context.Context, key string, w io.Writer) error {
	return is.assets.Download(ctx, key, w, assetstore.BytesRange{})
}

func (is *ImageStore) Delete(ctx context.Context, key string) error {
	return is.assets.Delete(ctx, key)
}
