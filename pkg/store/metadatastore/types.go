// Package metadatastore keeps track of the images uploaded per owner,
// their file names, mime types and etags.
package metadatastore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/numtide/go-nix/nixbase32"
)

type MetadataStore interface {
	// GetImageInfo returns an error wrapping os.ErrNotExist if there's no image for the owner.
	GetImageInfo(ctx context.Context, ownerID string) (*ImageInfo, error)
	// PutImageInfo inserts or replaces the image info of an owner.
	PutImageInfo(ctx context.Context, imageInfo *ImageInfo) error
	// DeleteImageInfo removes the image info of an owner. Missing entries are ignored.
	DeleteImageInfo(ctx context.Context, ownerID string) error
	DropAll(ctx context.Context) error
	io.Closer
}

type ImageInfo struct {
	OwnerID  string
	FileName string
	MimeType string

	// Etag is the nixbase32-encoded sha256 digest of the image.
	Etag string
	Size int64
}

// Check provides some sanity checking on values in the ImageInfo struct.
func (ii *ImageInfo) Check() error {
	if len(ii.OwnerID) == 0 {
		return fmt.Errorf("invalid owner id: %v", ii.OwnerID)
	}

	if !strings.HasPrefix(ii.MimeType, "image/") {
		return fmt.Errorf("invalid mime type: %v", ii.MimeType)
	}

	digest, err := nixbase32.DecodeString(ii.Etag)
	if err != nil {
		return fmt.Errorf("unable to decode etag %v: %w", ii.Etag, err)
	}
	if len(digest) != 32 { // 32 bytes = 256bits
		return fmt.Errorf("invalid etag length: %v, must be 32", len(digest))
	}

	if ii.Size < 0 {
		return fmt.Errorf("invalid size: %v", ii.Size)
	}

	return nil
}
