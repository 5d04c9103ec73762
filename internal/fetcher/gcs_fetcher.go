package fetcher

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"

	"cloud.google.com/go/storage"
)

var _ Fetcher = &GCSFetcher{}

// GCSFetcher fetches objects from a Google Cloud Storage bucket.
type GCSFetcher struct {
	url    *url.URL
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSFetcher parses a gs://bucket/prefix URL.
// Credentials are picked up from the environment.
func NewGCSFetcher(ctx context.Context, u *url.URL) (*GCSFetcher, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	return &GCSFetcher{
		url:    u,
		bucket: client.Bucket(u.Host),
		prefix: u.Path,
	}, nil
}

// getObject composes the path with the prefix to return an ObjectHandle.
func (c *GCSFetcher) getObject(p string) *storage.ObjectHandle {
	objectPath := path.Join(c.prefix, p)
	if objectPath[0] == '/' {
		objectPath = objectPath[1:]
	}
	return c.bucket.Object(objectPath)
}

func (c *GCSFetcher) Download(ctx context.Context, key string, w io.Writer) error {
	r, err := c.getObject(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return notFound(key)
		}
		return err
	}
	return copyBody(ctx, w, r)
}

// URL returns the fetcher URI
func (c *GCSFetcher) URL() string {
	return c.url.String()
}
