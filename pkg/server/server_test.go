package server_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flokli/assetcache/pkg/artifactcache"
	"github.com/flokli/assetcache/pkg/images"
	"github.com/flokli/assetcache/pkg/server"
	"github.com/flokli/assetcache/pkg/server/compression"
	"github.com/flokli/assetcache/pkg/store/assetstore"
	"github.com/flokli/assetcache/pkg/store/imagestore"
	"github.com/flokli/assetcache/pkg/store/metadatastore"
	"github.com/flokli/assetcache/pkg/thumbnail"
	"github.com/flokli/assetcache/test"
	"github.com/stretchr/testify/assert"
)

// sourceAdapter serves thumbnail sources from an asset store.
type sourceAdapter struct {
	store assetstore.AssetStore
}

func (s sourceAdapter) Download(ctx context.Context, key string, w io.Writer) error {
	return s.store.Download(ctx, key, w, assetstore.BytesRange{})
}

func do(t *testing.T, s *server.Server, method, target string, body io.Reader, header http.Header) *http.Response {
	rr := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	s.Handler.ServeHTTP(rr, req)
	return rr.Result()
}

func readBody(t *testing.T, resp *http.Response) []byte {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// TestHandler tests the handler.
func TestHandler(t *testing.T) {
	assetStore := assetstore.NewMemoryStore()
	defer assetStore.Close()

	derivedStore := assetstore.NewMemoryStore()
	defer derivedStore.Close()

	metadataStore := metadatastore.NewMemoryStore()
	defer metadataStore.Close()

	cache := artifactcache.New(derivedStore, artifactcache.WithTempDir(t.TempDir()))
	imageService := images.NewService(imagestore.New(assetstore.NewMemoryStore()), metadataStore, cache)

	s := server.NewServer()
	s.MountAssetStore(assetStore)
	s.MountImageService(imageService)
	s.MountThumbnails(cache, sourceAdapter{assetStore}, thumbnail.NewImagingGenerator(), thumbnail.DefaultOptions())

	tdA := test.MustGet("a")

	t.Run("GET /", func(t *testing.T) {
		resp := do(t, s, "GET", "/", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []byte("assetcache"), readBody(t, resp))
	})

	t.Run("Asset tests", func(t *testing.T) {
		t.Run("GET non-existent asset", func(t *testing.T) {
			resp := do(t, s, "GET", "/assets/a", nil, nil)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})

		t.Run("PUT asset", func(t *testing.T) {
			resp := do(t, s, "PUT", "/assets/a", bytes.NewReader([]byte("0123456789")), nil)
			assert.Equal(t, http.StatusCreated, resp.StatusCode)
		})

		t.Run("PUT asset again", func(t *testing.T) {
			resp := do(t, s, "PUT", "/assets/a", bytes.NewReader([]byte("other")), nil)
			assert.Equal(t, http.StatusConflict, resp.StatusCode)
		})

		t.Run("GET asset", func(t *testing.T) {
			resp := do(t, s, "GET", "/assets/a", nil, nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, []byte("0123456789"), readBody(t, resp))
		})

		t.Run("GET asset range", func(t *testing.T) {
			resp := do(t, s, "GET", "/assets/a?offset=3&length=4", nil, nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, []byte("3456"), readBody(t, resp))

			resp = do(t, s, "GET", "/assets/a?offset=-3", nil, nil)
			assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
		})

		t.Run("GET compressed asset", func(t *testing.T) {
			resp := do(t, s, "GET", "/assets/a", nil, http.Header{"Accept-Encoding": {"gzip"}})
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

			gr, err := gzip.NewReader(bytes.NewReader(readBody(t, resp)))
			if assert.NoError(t, err) {
				b, err := io.ReadAll(gr)
				assert.NoError(t, err)
				assert.Equal(t, []byte("0123456789"), b)
			}
		})

		t.Run("PUT compressed asset with overwrite", func(t *testing.T) {
			var buf bytes.Buffer
			cw, err := compression.NewCompressor(&buf, "zstd")
			if err != nil {
				t.Fatal(err)
			}
			cw.Write([]byte("replaced"))
			cw.Close()

			resp := do(t, s, "PUT", "/assets/a?overwrite=true", &buf, http.Header{"Content-Encoding": {"zstd"}})
			assert.Equal(t, http.StatusCreated, resp.StatusCode)

			resp = do(t, s, "GET", "/assets/a", nil, nil)
			assert.Equal(t, []byte("replaced"), readBody(t, resp))
		})

		t.Run("PUT with unknown encoding", func(t *testing.T) {
			resp := do(t, s, "PUT", "/assets/x", bytes.NewReader([]byte("x")), http.Header{"Content-Encoding": {"compress"}})
			assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
		})

		t.Run("POST copy", func(t *testing.T) {
			resp := do(t, s, "POST", "/assets/a/copy?to=b", nil, nil)
			assert.Equal(t, http.StatusCreated, resp.StatusCode)

			resp = do(t, s, "GET", "/assets/b", nil, nil)
			assert.Equal(t, []byte("replaced"), readBody(t, resp))

			resp = do(t, s, "POST", "/assets/a/copy?to=b", nil, nil)
			assert.Equal(t, http.StatusConflict, resp.StatusCode)

			resp = do(t, s, "POST", "/assets/missing/copy?to=c", nil, nil)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)

			resp = do(t, s, "POST", "/assets/a/copy", nil, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})

		t.Run("GET url", func(t *testing.T) {
			resp := do(t, s, "GET", "/assets/a/url", nil, nil)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})

		t.Run("DELETE asset", func(t *testing.T) {
			resp := do(t, s, "DELETE", "/assets/b", nil, nil)
			assert.Equal(t, http.StatusNoContent, resp.StatusCode)

			resp = do(t, s, "GET", "/assets/b", nil, nil)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)

			resp = do(t, s, "DELETE", "/assets/b", nil, nil)
			assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		})
	})

	t.Run("Owner image tests", func(t *testing.T) {
		t.Run("GET non-existent image", func(t *testing.T) {
			resp := do(t, s, "GET", "/owners/app1/image", nil, nil)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})

		t.Run("PUT non-image", func(t *testing.T) {
			resp := do(t, s, "PUT", "/owners/app1/image", bytes.NewReader([]byte("hi")), http.Header{"Content-Type": {"text/plain"}})
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})

		var etag string
		t.Run("PUT image", func(t *testing.T) {
			resp := do(t, s, "PUT", "/owners/app1/image?filename=logo.png", bytes.NewReader(tdA.Contents), http.Header{"Content-Type": {tdA.MimeType}})
			assert.Equal(t, http.StatusCreated, resp.StatusCode)
			etag = resp.Header.Get("ETag")
			assert.NotEmpty(t, etag)
		})

		t.Run("GET resized image", func(t *testing.T) {
			resp := do(t, s, "GET", "/owners/app1/image", nil, nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
			assert.Equal(t, etag, resp.Header.Get("ETag"))

			cfg, _, err := image.DecodeConfig(bytes.NewReader(readBody(t, resp)))
			if assert.NoError(t, err) {
				assert.Equal(t, 50, cfg.Width)
				assert.Equal(t, 50, cfg.Height)
			}
		})

		t.Run("DELETE image", func(t *testing.T) {
			resp := do(t, s, "DELETE", "/owners/app1/image", nil, nil)
			assert.Equal(t, http.StatusNoContent, resp.StatusCode)

			resp = do(t, s, "GET", "/owners/app1/image", nil, nil)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})
	})

	t.Run("Thumbnail tests", func(t *testing.T) {
		do(t, s, "PUT", "/assets/logo", bytes.NewReader(tdA.Contents), nil)

		t.Run("GET thumbnail", func(t *testing.T) {
			resp := do(t, s, "GET", "/thumbnails/logo?v=1&width=40&height=20&mode=stretch", nil, nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

			cfg, _, err := image.DecodeConfig(bytes.NewReader(readBody(t, resp)))
			if assert.NoError(t, err) {
				assert.Equal(t, 40, cfg.Width)
				assert.Equal(t, 20, cfg.Height)
			}
		})

		t.Run("GET thumbnail of missing source", func(t *testing.T) {
			resp := do(t, s, "GET", "/thumbnails/missing", nil, nil)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})

		t.Run("GET thumbnail with invalid options", func(t *testing.T) {
			resp := do(t, s, "GET", "/thumbnails/logo?width=0", nil, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			resp = do(t, s, "GET", "/thumbnails/logo?mode=squash", nil, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})

		t.Run("GET thumbnail of a non-image", func(t *testing.T) {
			resp := do(t, s, "GET", "/thumbnails/a", nil, nil)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		})
	})
}
