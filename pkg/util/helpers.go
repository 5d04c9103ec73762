package util

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/numtide/go-nix/nixbase32"
)

const (
	// ResizedSuffix is appended to the keys of resized owner images.
	ResizedSuffix = "Resized"
)

// DerivedKey builds the key of an artifact derived from a versioned source.
// A new source version yields a new key, old artifacts are simply orphaned.
func DerivedKey(ownerID, version, suffix string) string {
	return strings.Join([]string{ownerID, version, suffix}, "_")
}

// ResizedKey returns the key of the resized image of an owner, in its etag version.
func ResizedKey(ownerID, etag string) string {
	return DerivedKey(ownerID, etag, ResizedSuffix)
}

// OriginalKey returns the key of the original image of an owner, in its etag version.
// Etags never contain underscores, so distinct owners can't share a key.
func OriginalKey(ownerID, etag string) string {
	return ownerID + "_" + etag
}

// KeyDigest returns a fixed length, underscore free digest of an arbitrary key.
func KeyDigest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return nixbase32.EncodeToString(sum[:])
}

// ThumbnailKey returns the key of a thumbnail of sourceKey, rendered with opts.
// The source key is digested, as it may contain the separator itself.
// opts must render without underscores.
func ThumbnailKey(sourceKey, version string, opts fmt.Stringer) string {
	return DerivedKey(KeyDigest(sourceKey), version, opts.String())
}

// EncodeEtag renders a content digest as an etag.
func EncodeEtag(sum []byte) string {
	return nixbase32.EncodeToString(sum)
}

// ContextReader returns a reader that fails with the context error once ctx is done.
// It's used to make long byte copies cancellable.
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &contextReader{ctx: ctx, r: r}
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
