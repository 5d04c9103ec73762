package util_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"testing"

	"github.com/flokli/assetcache/pkg/util"
	"github.com/numtide/go-nix/nixbase32"
	"github.com/stretchr/testify/assert"
)

type stringer string

func (s stringer) String() string { return string(s) }

func TestKeyHelpers(t *testing.T) {
	t.Run("ResizedKey", func(t *testing.T) {
		assert.Equal(t, "app1_abc_Resized", util.ResizedKey("app1", "abc"))
	})

	t.Run("DerivedKey is deterministic", func(t *testing.T) {
		assert.Equal(t, util.DerivedKey("a", "v1", "50x50-crop"), util.DerivedKey("a", "v1", "50x50-crop"))
		assert.NotEqual(t, util.DerivedKey("a", "v1", "50x50-crop"), util.DerivedKey("a", "v2", "50x50-crop"))
	})

	t.Run("OriginalKey", func(t *testing.T) {
		assert.Equal(t, "app1_abc", util.OriginalKey("app1", "abc"))
	})

	t.Run("KeyDigest", func(t *testing.T) {
		sum := sha256.Sum256([]byte("logo"))
		assert.Equal(t, nixbase32.EncodeToString(sum[:]), util.KeyDigest("logo"))
		assert.NotContains(t, util.KeyDigest("a_b"), "_")
	})

	t.Run("ThumbnailKey", func(t *testing.T) {
		opts := stringer("50x50-crop")
		assert.Equal(t, util.KeyDigest("logo")+"_v1_50x50-crop", util.ThumbnailKey("logo", "v1", opts))

		// the separator inside source keys or versions can't make keys collide
		assert.NotEqual(t, util.ThumbnailKey("a_b", "c", opts), util.ThumbnailKey("a", "b_c", opts))
		assert.NotEqual(t, util.ThumbnailKey("a", "b", opts), util.ThumbnailKey("a_b", "", opts))
	})

	t.Run("EncodeEtag", func(t *testing.T) {
		sum := sha256.Sum256([]byte("hello"))
		etag := util.EncodeEtag(sum[:])
		assert.Len(t, etag, 52)

		decoded, err := nixbase32.DecodeString(etag)
		assert.NoError(t, err)
		assert.Equal(t, sum[:], decoded)
	})
}

func TestContextReader(t *testing.T) {
	t.Run("reads through", func(t *testing.T) {
		b, err := io.ReadAll(util.ContextReader(context.Background(), bytes.NewReader([]byte("0123456789"))))
		assert.NoError(t, err)
		assert.Equal(t, []byte("0123456789"), b)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := io.ReadAll(util.ContextReader(ctx, bytes.NewReader([]byte("0123456789"))))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
