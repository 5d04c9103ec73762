package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
)

var _ Fetcher = HTTPFetcher{}

// HTTPFetcher fetches keys below a base URL.
type HTTPFetcher struct {
	url    *url.URL // assumes the URI doesn't end with '/'
	client *http.Client
}

// NewHTTPFetcher returns a fetcher for u. A nil client uses http.DefaultClient.
func NewHTTPFetcher(u *url.URL, client *http.Client) HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return HTTPFetcher{url: u, client: client}
}

// getURL composes the path with the prefix to return an URL.
func (c HTTPFetcher) getURL(p string) string {
	x := *c.url
	x.Path = path.Join(c.url.Path, p)
	x.RawPath = ""
	return x.String()
}

func (c HTTPFetcher) Download(ctx context.Context, key string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.getURL(key), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return copyBody(ctx, w, resp.Body)
	case http.StatusNotFound, http.StatusGone:
		resp.Body.Close()
		return notFound(key)
	default:
		resp.Body.Close()
		return fmt.Errorf("unexpected file status '%s'", resp.Status)
	}
}

// URL returns the fetcher URI
func (c HTTPFetcher) URL() string {
	return c.url.String()
}
