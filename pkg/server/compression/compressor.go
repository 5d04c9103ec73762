package compression

import (
	"compress/gzip"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/datadog/zstd"
)

// OutputEncodings are the encodings NewCompressor supports, in order of preference.
var OutputEncodings = []string{"zstd", "br", "gzip"}

// NewCompressor returns an io.WriteCloser that compresses its input.
// The compression type needs to be specified upfront.
// Only cheap compression is supported, as this is done on the fly for each response.
// It's the callers responsibility to close the writer when done.
func NewCompressor(w io.Writer, compressionType string) (io.WriteCloser, error) {
	switch compressionType {
	case "br":
		b := brotli.NewWriterLevel(w, brotli.BestSpeed)

		return b, nil
	case "gzip":
		return gzip.NewWriterLevel(w, gzip.BestSpeed)
	case "zstd":
		z := zstd.NewWriterLevel(w, zstd.BestSpeed)

		return z, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %v", compressionType)
}

// Negotiate picks an output encoding from an Accept-Encoding header.
// It returns an empty string if none of OutputEncodings is acceptable.
func Negotiate(acceptEncoding string) string {
	accepted := make(map[string]bool)
	for _, part := range strings.Split(acceptEncoding, ",") {
		fields := strings.Split(part, ";")
		encoding := strings.ToLower(strings.TrimSpace(fields[0]))
		if encoding == "" {
			continue
		}
		ok := true
		for _, param := range fields[1:] {
			param = strings.TrimSpace(param)
			if strings.HasPrefix(param, "q=") {
				q, err := strconv.ParseFloat(strings.TrimPrefix(param, "q="), 64)
				ok = err == nil && q > 0
			}
		}
		accepted[encoding] = ok
	}

	for _, encoding := range OutputEncodings {
		if ok, found := accepted[encoding]; found {
			if ok {
				return encoding
			}
			continue
		}
		if accepted["*"] {
			return encoding
		}
	}
	return ""
}
