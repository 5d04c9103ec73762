package compression

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/datadog/zstd"
	"github.com/pierrec/lz4"
	"github.com/ulikunitz/xz"
)

// ContentEncodingToType maps from HTTP Content-Encoding tokens to the compression type.
var ContentEncodingToType = map[string]string{
	"":         "none",
	"identity": "none",
	"br":       "br",
	"bzip2":    "bzip2",
	"gzip":     "gzip",
	"x-gzip":   "gzip",
	"lz4":      "lz4",
	"xz":       "xz",
	"zstd":     "zstd",
}

// NewDecompressor decompresses contents from an io.Reader
// The compression type needs to be specified upfront.
// It's the callers responsibility to close the reader when done.
func NewDecompressor(r io.Reader, compressionType string) (io.ReadCloser, error) {
	switch compressionType {
	case "none":
		return io.NopCloser(r), nil
	case "br":
		return io.NopCloser(brotli.NewReader(r)), nil
	case "bzip2":
		return io.NopCloser(bzip2.NewReader(r)), nil
	case "gzip":
		gzipReader, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}

		return gzipReader, nil
	case "lz4":
		return io.NopCloser(lz4.NewReader(r)), nil
	case "xz":
		xzReader, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}

		return io.NopCloser(xzReader), nil
	case "zstd":
		return zstd.NewReader(r), nil
	}

	return nil, fmt.Errorf("unsupported compression type: %v", compressionType)
}

// NewDecompressorByContentEncoding decompresses a request body sent with the
// given Content-Encoding header.
func NewDecompressorByContentEncoding(r io.Reader, contentEncoding string) (io.ReadCloser, error) {
	contentEncoding = strings.ToLower(strings.TrimSpace(contentEncoding))
	if compressionType, ok := ContentEncodingToType[contentEncoding]; ok {
		return NewDecompressor(r, compressionType)
	}

	return nil, fmt.Errorf("unknown content encoding: %v", contentEncoding)
}
