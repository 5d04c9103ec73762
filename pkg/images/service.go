// Package images manages the image of owners, like apps,
// and serves resized versions of it through the artifact cache.
package images

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/flokli/assetcache/pkg/artifactcache"
	"github.com/flokli/assetcache/pkg/store/imagestore"
	"github.com/flokli/assetcache/pkg/store/metadatastore"
	"github.com/flokli/assetcache/pkg/thumbnail"
	"github.com/flokli/assetcache/pkg/util"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNoImage is returned if the owner has no image.
	ErrNoImage = errors.New("no image")
	// ErrInvalidImage is returned for uploads that aren't images.
	ErrInvalidImage = errors.New("invalid image")
)

type Service struct {
	images    *imagestore.ImageStore
	metadata  metadatastore.MetadataStore
	cache     *artifactcache.Cache
	generator artifactcache.Generator
	opts      thumbnail.ResizeOptions
	tempDir   string
	logger    log.FieldLogger
}

type Option func(*Service)

// WithResizeOptions sets the size of resized images. It defaults to thumbnail.DefaultOptions().
func WithResizeOptions(opts thumbnail.ResizeOptions) Option {
	return func(s *Service) {
		s.opts = opts
	}
}

func WithGenerator(gen artifactcache.Generator) Option {
	return func(s *Service) {
		s.generator = gen
	}
}

// WithTempDir sets the directory uploads are buffered in. It defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(s *Service) {
		s.tempDir = dir
	}
}

func WithLogger(logger log.FieldLogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(
	images *imagestore.ImageStore,
	metadata metadatastore.MetadataStore,
	cache *artifactcache.Cache,
	opts ...Option,
) *Service {
	s := &Service{
		images:    images,
		metadata:  metadata,
		cache:     cache,
		generator: thumbnail.NewImagingGenerator(),
		opts:      thumbnail.DefaultOptions(),
		logger:    log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetImage stores r as the image of the owner, replacing the previous one.
// The etag is the nixbase32 encoded sha256 of the contents.
// Originals are stored under util.OriginalKey, and the metadata switches to the
// new etag only after the new original is in place. The previous original is
// removed afterwards, resized versions of it are orphaned.
func (s *Service) SetImage(ctx context.Context, ownerID, fileName, mimeType string, r io.Reader) (*metadatastore.ImageInfo, error) {
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: unsupported mime type %v", ErrInvalidImage, mimeType)
	}

	// buffer the upload, the key depends on the digest of the contents
	tmpFile, err := os.CreateTemp(s.tempDir, "image-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmpFile, h), util.ContextReader(ctx, r))
	if err != nil {
		return nil, err
	}
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	imageInfo := &metadatastore.ImageInfo{
		OwnerID:  ownerID,
		FileName: fileName,
		MimeType: mimeType,
		Etag:     util.EncodeEtag(h.Sum(nil)),
		Size:     n,
	}
	key := util.OriginalKey(ownerID, imageInfo.Etag)
	if err := s.images.Upload(ctx, key, tmpFile); err != nil {
		return nil, err
	}

	previous, err := s.metadata.GetImageInfo(ctx, ownerID)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	logger := s.logger.WithFields(log.Fields{
		"ownerID": ownerID,
		"etag":    imageInfo.Etag,
	})

	if err := s.metadata.PutImageInfo(ctx, imageInfo); err != nil {
		if previous == nil || previous.Etag != imageInfo.Etag {
			if err := s.images.Delete(ctx, key); err != nil {
				logger.WithError(err).Warn("unable to remove unreferenced image")
			}
		}
		return nil, err
	}

	if previous != nil && previous.Etag != imageInfo.Etag {
		if err := s.images.Delete(ctx, util.OriginalKey(ownerID, previous.Etag)); err != nil {
			logger.WithError(err).WithField("previousEtag", previous.Etag).Warn("unable to remove previous image")
		}
	}

	logger.WithField("size", imageInfo.Size).Info("stored image")
	return imageInfo, nil
}

// GetImageInfo returns the info of the image of an owner, or ErrNoImage.
func (s *Service) GetImageInfo(ctx context.Context, ownerID string) (*metadatastore.ImageInfo, error) {
	imageInfo, err := s.metadata.GetImageInfo(ctx, ownerID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrNoImage, ownerID)
		}
		return nil, err
	}
	return imageInfo, nil
}

// GetResized writes the resized image of the owner into w.
// It returns the info of the image it was derived from.
func (s *Service) GetResized(ctx context.Context, ownerID string, w io.Writer) (*metadatastore.ImageInfo, error) {
	imageInfo, err := s.GetImageInfo(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	key := util.ResizedKey(ownerID, imageInfo.Etag)
	sourceKey := util.OriginalKey(ownerID, imageInfo.Etag)
	err = s.cache.GetOrCreate(ctx, key, sourceKey, s.images, s.generator, s.opts, w)
	if err != nil {
		return nil, err
	}
	return imageInfo, nil
}

// RemoveImage removes the image of the owner.
// Resized versions are left behind.
func (s *Service) RemoveImage(ctx context.Context, ownerID string) error {
	imageInfo, err := s.GetImageInfo(ctx, ownerID)
	if err != nil {
		return err
	}
	if err := s.metadata.DeleteImageInfo(ctx, ownerID); err != nil {
		return err
	}
	return s.images.Delete(ctx, util.OriginalKey(ownerID, imageInfo.Etag))
}
