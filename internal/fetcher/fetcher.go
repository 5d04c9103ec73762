// Package fetcher provides read-only source stores, serving the payloads
// thumbnails are generated from.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/flokli/assetcache/pkg/store/assetstore"
	"github.com/flokli/assetcache/pkg/util"
)

// Fetcher represents a read-only source store.
// Download returns an error wrapping assetstore.ErrNotFound for missing keys.
type Fetcher interface {
	Download(ctx context.Context, key string, w io.Writer) error
	URL() string
}

// NewFetcher parses the url and returns the proper fetcher for it.
func NewFetcher(ctx context.Context, fetcherURL string) (Fetcher, error) {
	u, err := url.Parse(fetcherURL)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "http", "https":
		return NewHTTPFetcher(u, nil), nil
	case "gs":
		return NewGCSFetcher(ctx, u)
	case "s3":
		return NewS3Fetcher(u)
	case "file":
		return NewFileFetcher(u), nil
	default:
		return nil, fmt.Errorf("scheme %s is not supported", u.Scheme)
	}
}

func notFound(key string) error {
	return fmt.Errorf("%w: %v", assetstore.ErrNotFound, key)
}

// copyBody copies and closes body.
func copyBody(ctx context.Context, w io.Writer, body io.ReadCloser) error {
	defer body.Close()
	_, err := io.Copy(w, util.ContextReader(ctx, body))
	return err
}
