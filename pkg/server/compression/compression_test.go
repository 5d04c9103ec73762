package compression

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundtrip(t *testing.T) {
	contents := bytes.Repeat([]byte("thumbnail"), 100)

	for _, encoding := range OutputEncodings {
		t.Run(encoding, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewCompressor(&buf, encoding)
			if !assert.NoError(t, err) {
				return
			}
			_, err = w.Write(contents)
			assert.NoError(t, err)
			assert.NoError(t, w.Close())

			r, err := NewDecompressorByContentEncoding(&buf, encoding)
			if !assert.NoError(t, err) {
				return
			}
			defer r.Close()
			b, err := io.ReadAll(r)
			if assert.NoError(t, err) {
				assert.Equal(t, contents, b)
			}
		})
	}

	t.Run("identity", func(t *testing.T) {
		r, err := NewDecompressorByContentEncoding(bytes.NewReader(contents), "")
		if assert.NoError(t, err) {
			b, err := io.ReadAll(r)
			assert.NoError(t, err)
			assert.Equal(t, contents, b)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewDecompressorByContentEncoding(bytes.NewReader(contents), "compress")
		assert.Error(t, err)
		_, err = NewCompressor(&bytes.Buffer{}, "xz")
		assert.Error(t, err)
	})
}

func TestNegotiate(t *testing.T) {
	for _, tc := range []struct {
		acceptEncoding string
		expected       string
	}{
		{"", ""},
		{"gzip", "gzip"},
		{"gzip, br", "br"},
		{"gzip, deflate, br, zstd", "zstd"},
		{"zstd;q=0, gzip", "gzip"},
		{"*", "zstd"},
		{"*, zstd;q=0", "br"},
		{"identity", ""},
	} {
		assert.Equal(t, tc.expected, Negotiate(tc.acceptEncoding), tc.acceptEncoding)
	}
}
