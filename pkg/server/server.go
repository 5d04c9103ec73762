package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/flokli/assetcache/pkg/artifactcache"
	"github.com/flokli/assetcache/pkg/images"
	"github.com/flokli/assetcache/pkg/server/compression"
	"github.com/flokli/assetcache/pkg/store/assetstore"
	"github.com/flokli/assetcache/pkg/thumbnail"
	"github.com/flokli/assetcache/pkg/util"
	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

type Server struct {
	Handler *chi.Mux

	assetStore assetstore.AssetStore

	imageService *images.Service

	thumbnailCache       *artifactcache.Cache
	thumbnailSource      artifactcache.SourceStore
	thumbnailGenerator   artifactcache.Generator
	thumbnailDefaultOpts thumbnail.ResizeOptions
}

func NewServer() *Server {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("assetcache"))
	})

	return &Server{Handler: r}
}

// statusFor maps errors to http status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, assetstore.ErrNotFound),
		errors.Is(err, artifactcache.ErrSourceNotFound),
		errors.Is(err, images.ErrNoImage):
		return http.StatusNotFound
	case errors.Is(err, assetstore.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, assetstore.ErrInvalidRange):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, assetstore.ErrInvalidKey),
		errors.Is(err, thumbnail.ErrInvalidOptions),
		errors.Is(err, images.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, artifactcache.ErrGenerationFailed):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// responseWriter defers sending headers until the first byte of the body.
// Errors happening before that can still be reported with a proper status.
// If encoding is set, the body is compressed with it.
type responseWriter struct {
	w           http.ResponseWriter
	contentType string
	encoding    string

	compressor io.WriteCloser
	started    bool
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	if !rw.started {
		rw.started = true
		contentType := rw.contentType
		if contentType == "" {
			contentType = http.DetectContentType(p)
		}
		rw.w.Header().Set("Content-Type", contentType)

		if rw.encoding != "" {
			rw.w.Header().Set("Content-Encoding", rw.encoding)
			compressor, err := compression.NewCompressor(rw.w, rw.encoding)
			if err != nil {
				return 0, err
			}
			rw.compressor = compressor
		}
	}
	if rw.compressor != nil {
		return rw.compressor.Write(p)
	}
	return rw.w.Write(p)
}

// Close flushes the compressor.
func (rw *responseWriter) Close() error {
	if rw.compressor != nil {
		return rw.compressor.Close()
	}
	return nil
}

// fail reports err, unless parts of the body were already sent.
func (rw *responseWriter) fail(prefix string, err error) {
	if rw.started {
		log.WithError(err).Errorf("%v: failed after sending the response", prefix)
		return
	}
	httpError(rw.w, prefix, err)
}

func httpError(w http.ResponseWriter, prefix string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error(prefix)
	}
	http.Error(w, fmt.Sprintf("%v: %v", prefix, err), status)
}

// MountAssetStore exposes the raw assets below /assets.
func (s *Server) MountAssetStore(assetStore assetstore.AssetStore) {
	s.assetStore = assetStore
	s.Handler.Get("/assets/{key}", s.handleGetAsset)
	s.Handler.Put("/assets/{key}", s.handlePutAsset)
	s.Handler.Delete("/assets/{key}", s.handleDeleteAsset)
	s.Handler.Post("/assets/{key}/copy", s.handleCopyAsset)
	s.Handler.Get("/assets/{key}/url", s.handleAssetURL)
}

// parseRange reads the offset and length query parameters.
func parseRange(r *http.Request) (assetstore.BytesRange, error) {
	q := r.URL.Query()
	offsetStr, lengthStr := q.Get("offset"), q.Get("length")

	var offset, length int64
	var err error
	if offsetStr != "" {
		offset, err = strconv.ParseInt(offsetStr, 10, 64)
		if err != nil {
			return assetstore.BytesRange{}, fmt.Errorf("%w: offset: %v", assetstore.ErrInvalidRange, err)
		}
	}
	if lengthStr != "" {
		length, err = strconv.ParseInt(lengthStr, 10, 64)
		if err != nil {
			return assetstore.BytesRange{}, fmt.Errorf("%w: length: %v", assetstore.ErrInvalidRange, err)
		}
	}

	switch {
	case offsetStr != "" && lengthStr != "":
		return assetstore.NewBytesRange(offset, length), nil
	case offsetStr != "":
		return assetstore.BytesFrom(offset), nil
	case lengthStr != "":
		return assetstore.LastBytes(length), nil
	}
	return assetstore.BytesRange{}, nil
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	br, err := parseRange(r)
	if err != nil {
		httpError(w, "handle-get-asset", err)
		return
	}

	rw := &responseWriter{w: w, encoding: compression.Negotiate(r.Header.Get("Accept-Encoding"))}
	err = s.assetStore.Download(r.Context(), chi.URLParam(r, "key"), rw, br)
	if err != nil {
		rw.fail("handle-get-asset", err)
		return
	}
	if err := rw.Close(); err != nil {
		log.WithError(err).Error("handle-get-asset: unable to flush response")
	}
}

func (s *Server) handlePutAsset(w http.ResponseWriter, r *http.Request) {
	overwrite := r.URL.Query().Get("overwrite") == "true"

	// The body might be compressed, wrap it via the generic decompressor
	body, err := compression.NewDecompressorByContentEncoding(r.Body, r.Header.Get("Content-Encoding"))
	if err != nil {
		http.Error(w, fmt.Sprintf("handle-put-asset: %v", err), http.StatusUnsupportedMediaType)
		return
	}
	defer body.Close()

	err = s.assetStore.Upload(r.Context(), chi.URLParam(r, "key"), body, overwrite)
	if err != nil {
		httpError(w, "handle-put-asset", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	err := s.assetStore.Delete(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		httpError(w, "handle-delete-asset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCopyAsset(w http.ResponseWriter, r *http.Request) {
	err := s.assetStore.Copy(r.Context(), chi.URLParam(r, "key"), r.URL.Query().Get("to"))
	if err != nil {
		httpError(w, "handle-copy-asset", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleAssetURL(w http.ResponseWriter, r *http.Request) {
	u, ok := s.assetStore.PublicURL(chi.URLParam(r, "key"))
	if !ok {
		http.Error(w, "handle-asset-url: no public url", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(u))
}

// MountImageService exposes owner images below /owners.
func (s *Server) MountImageService(imageService *images.Service) {
	s.imageService = imageService
	s.Handler.Get("/owners/{owner}/image", s.handleGetImage)
	s.Handler.Put("/owners/{owner}/image", s.handlePutImage)
	s.Handler.Delete("/owners/{owner}/image", s.handleDeleteImage)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner")
	imageInfo, err := s.imageService.GetImageInfo(r.Context(), ownerID)
	if err != nil {
		httpError(w, "handle-get-image", err)
		return
	}

	w.Header().Set("ETag", strconv.Quote(imageInfo.Etag))
	rw := &responseWriter{w: w, contentType: imageInfo.MimeType}
	_, err = s.imageService.GetResized(r.Context(), ownerID, rw)
	if err != nil {
		rw.fail("handle-get-image", err)
		return
	}
}

func (s *Server) handlePutImage(w http.ResponseWriter, r *http.Request) {
	imageInfo, err := s.imageService.SetImage(
		r.Context(),
		chi.URLParam(r, "owner"),
		r.URL.Query().Get("filename"),
		r.Header.Get("Content-Type"),
		r.Body,
	)
	if err != nil {
		httpError(w, "handle-put-image", err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(imageInfo.Etag))
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	err := s.imageService.RemoveImage(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		httpError(w, "handle-delete-image", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MountThumbnails serves thumbnails of any key in source below /thumbnails.
func (s *Server) MountThumbnails(
	cache *artifactcache.Cache,
	source artifactcache.SourceStore,
	gen artifactcache.Generator,
	defaultOpts thumbnail.ResizeOptions,
) {
	s.thumbnailCache = cache
	s.thumbnailSource = source
	s.thumbnailGenerator = gen
	s.thumbnailDefaultOpts = defaultOpts
	s.Handler.Get("/thumbnails/{key}", s.handleThumbnail)
}

// parseResizeOptions reads the width, height and mode query parameters.
// Missing values are taken from defaults.
func parseResizeOptions(r *http.Request, defaults thumbnail.ResizeOptions) (thumbnail.ResizeOptions, error) {
	q := r.URL.Query()
	opts := defaults

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"width", &opts.Width},
		{"height", &opts.Height},
	} {
		if v := q.Get(p.name); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				return opts, fmt.Errorf("%w: %v: %v", thumbnail.ErrInvalidOptions, p.name, err)
			}
			*p.dst = i
		}
	}
	if v := q.Get("mode"); v != "" {
		mode, err := thumbnail.ParseMode(v)
		if err != nil {
			return opts, err
		}
		opts.Mode = mode
	}

	return opts, opts.Validate()
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	opts, err := parseResizeOptions(r, s.thumbnailDefaultOpts)
	if err != nil {
		httpError(w, "handle-thumbnail", err)
		return
	}

	sourceKey := chi.URLParam(r, "key")
	derivedKey := util.ThumbnailKey(sourceKey, r.URL.Query().Get("v"), opts)

	rw := &responseWriter{w: w}
	err = s.thumbnailCache.GetOrCreate(r.Context(), derivedKey, sourceKey, s.thumbnailSource, s.thumbnailGenerator, opts, rw)
	if err != nil {
		rw.fail("handle-thumbnail", err)
		return
	}
}
