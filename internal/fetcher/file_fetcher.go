package fetcher

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var _ Fetcher = FileFetcher{}

type FileFetcher struct {
	path string
}

func NewFileFetcher(u *url.URL) FileFetcher {
	return FileFetcher{u.Path}
}

func (c FileFetcher) checkPath(p string) error {
	if p == "" || strings.HasPrefix(filepath.Clean(p), ".") {
		return errors.New("relative paths are not allowed")
	}
	return nil
}

func (c FileFetcher) Download(ctx context.Context, key string, w io.Writer) error {
	if err := c.checkPath(key); err != nil {
		return err
	}
	f, err := os.Open(path.Join(c.path, key))
	if err != nil {
		if os.IsNotExist(err) {
			return notFound(key)
		}
		return err
	}
	return copyBody(ctx, w, f)
}

func (c FileFetcher) URL() string {
	return "file://" + c.path
}
