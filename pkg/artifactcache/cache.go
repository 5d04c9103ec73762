// Package artifactcache serves derived artifacts, like thumbnails, from an
// asset store, and regenerates them from their source on a miss.
//
// There's no per-key generation lock. Two concurrent misses for the same derived
// key both generate, the first upload wins, and the loser's AlreadyExists is
// ignored. Generators need to be deterministic for the same source and options.
package artifactcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/flokli/assetcache/pkg/store/assetstore"
	"github.com/flokli/assetcache/pkg/thumbnail"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrSourceNotFound is returned if the derived artifact isn't cached,
	// and can't be regenerated as its source is missing.
	ErrSourceNotFound = errors.New("source not found")
	// ErrGenerationFailed wraps errors returned by the generator.
	ErrGenerationFailed = errors.New("generation failed")
)

// SourceStore provides the source payloads derived artifacts are generated from.
// Download must return an error wrapping assetstore.ErrNotFound for missing keys.
type SourceStore interface {
	Download(ctx context.Context, key string, w io.Writer) error
}

// Generator transforms a source payload into the derived artifact.
type Generator interface {
	Transform(ctx context.Context, src io.Reader, dst io.Writer, opts thumbnail.ResizeOptions) error
}

// Stats are counters of a Cache.
type Stats struct {
	Hits        int64
	Misses      int64
	Generations int64
	LostRaces   int64
}

type Cache struct {
	store  assetstore.AssetStore
	tmpDir string
	logger log.FieldLogger

	hits        atomic.Int64
	misses      atomic.Int64
	generations atomic.Int64
	lostRaces   atomic.Int64
}

type Option func(*Cache)

// WithTempDir sets the directory temporary buffers are created in.
// It defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(c *Cache) {
		c.tmpDir = dir
	}
}

func WithLogger(logger log.FieldLogger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New returns a cache storing derived artifacts in store.
func New(store assetstore.AssetStore, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		logger: log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Generations: c.generations.Load(),
		LostRaces:   c.lostRaces.Load(),
	}
}

// tempFile creates a tempfile, only accessible by the current user.
// The returned func closes and removes it.
func (c *Cache) tempFile(pattern string) (*os.File, func(), error) {
	f, err := os.CreateTemp(c.tmpDir, pattern)
	if err != nil {
		return nil, nil, err
	}
	return f, func() {
		f.Close()
		os.Remove(f.Name())
	}, nil
}

// GetOrCreate writes the artifact stored at derivedKey into w.
// If it's missing, the source at sourceKey is fetched from source, transformed by gen,
// and the result stored at derivedKey, before it's written into w.
func (c *Cache) GetOrCreate(
	ctx context.Context,
	derivedKey, sourceKey string,
	source SourceStore,
	gen Generator,
	opts thumbnail.ResizeOptions,
	w io.Writer,
) error {
	logger := c.logger.WithFields(log.Fields{
		"derivedKey": derivedKey,
		"sourceKey":  sourceKey,
	})

	// fast path
	err := c.store.Download(ctx, derivedKey, w, assetstore.BytesRange{})
	if err == nil {
		c.hits.Add(1)
		return nil
	}
	if !errors.Is(err, assetstore.ErrNotFound) {
		return err
	}
	c.misses.Add(1)
	logger.Debug("cache miss")

	srcFile, cleanupSrc, err := c.tempFile("source-*")
	if err != nil {
		return err
	}
	defer cleanupSrc()

	start := time.Now()
	err = source.Download(ctx, sourceKey, srcFile)
	if err != nil {
		if errors.Is(err, assetstore.ErrNotFound) {
			return fmt.Errorf("%w: %v: %v", ErrSourceNotFound, sourceKey, err)
		}
		return err
	}
	if _, err := srcFile.Seek(0, io.SeekStart); err != nil {
		return err
	}
	logger.WithField("duration", time.Since(start)).Debug("fetched source")

	resultFile, cleanupResult, err := c.tempFile("result-*")
	if err != nil {
		return err
	}
	defer cleanupResult()

	start = time.Now()
	c.generations.Add(1)
	err = gen.Transform(ctx, srcFile, resultFile, opts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.WithError(err).Warn("generation failed")
		return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if _, err := resultFile.Seek(0, io.SeekStart); err != nil {
		return err
	}
	logger.WithField("duration", time.Since(start)).Debug("generated")

	err = c.store.Upload(ctx, derivedKey, resultFile, false)
	if err != nil {
		if !errors.Is(err, assetstore.ErrAlreadyExists) {
			return err
		}
		// someone else was faster, their result is equivalent
		c.lostRaces.Add(1)
		logger.Debug("lost the race to upload")
	}

	if _, err := resultFile.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err = io.Copy(w, resultFile)
	return err
}
