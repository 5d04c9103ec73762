package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path"
	"time"

	"github.com/alecthomas/kong"
	"github.com/flokli/assetcache/internal/fetcher"
	"github.com/flokli/assetcache/pkg/artifactcache"
	"github.com/flokli/assetcache/pkg/config"
	"github.com/flokli/assetcache/pkg/images"
	"github.com/flokli/assetcache/pkg/server"
	"github.com/flokli/assetcache/pkg/store/assetstore"
	"github.com/flokli/assetcache/pkg/store/imagestore"
	"github.com/flokli/assetcache/pkg/store/metadatastore"
	"github.com/flokli/assetcache/pkg/thumbnail"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

var CLI struct {
	Serve struct {
		Config     string `name:"config" short:"c" help:"Path to a TOML config file." type:"path"`
		CachePath  string `name:"cache-path" help:"Path to use for a local cache, containing castr, caibx, assets and imageinfo files." type:"path"`
		ListenAddr string `name:"listen-addr" help:"The address this service listens on." type:"string"`
		Store      string `name:"store" help:"Asset store to use (memory, file, casync, s3, redis)." type:"string"`
		SourceURL  string `name:"source-url" help:"Remote store thumbnails are generated from (file://, http(s)://, s3://, gs://)." type:"string"`
		LogLevel   string `name:"log-level" help:"Log level." type:"string"`
	} `cmd serve:"Serve assets, owner images and thumbnails."`
}

// loadConfig reads the config file and applies the flags set on the command line.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(CLI.Serve.Config)
	if err != nil {
		return cfg, err
	}
	for _, o := range []struct {
		flag string
		dst  *string
	}{
		{CLI.Serve.CachePath, &cfg.CachePath},
		{CLI.Serve.ListenAddr, &cfg.ListenAddr},
		{CLI.Serve.Store, &cfg.Store},
		{CLI.Serve.SourceURL, &cfg.SourceURL},
		{CLI.Serve.LogLevel, &cfg.LogLevel},
	} {
		if o.flag != "" {
			*o.dst = o.flag
		}
	}
	return cfg, cfg.Validate()
}

func newAssetStore(ctx context.Context, cfg config.Config, name string) (assetstore.AssetStore, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return assetstore.NewMemoryStore(), nil
	case config.StoreFile:
		return assetstore.NewFileStore(path.Join(cfg.CachePath, name))
	case config.StoreCasync:
		tmpDir := cfg.TempDir
		if tmpDir == "" {
			tmpDir = path.Join(cfg.CachePath, "tmp")
		}
		// chunks are shared, indexes are kept per store
		return assetstore.NewCasyncStore(
			path.Join(cfg.CachePath, "castr"),
			path.Join(cfg.CachePath, "caibx", name),
			tmpDir,
		)
	case config.StoreS3:
		u := cfg.S3
		u.Prefix = path.Join(u.Prefix, name)
		return assetstore.NewS3StoreFromURL(u.URL(), cfg.S3.PublicBaseURL)
	case config.StoreRedis:
		return assetstore.NewRedisStoreFromURL(ctx, cfg.Redis.URL(), cfg.Redis.Prefix+name+":")
	}
	return nil, fmt.Errorf("unknown store: %v", cfg.Store)
}

func newMetadataStore(ctx context.Context, cfg config.Config) (metadatastore.MetadataStore, error) {
	switch cfg.Metadata.Type {
	case config.MetadataMemory:
		return metadatastore.NewMemoryStore(), nil
	case config.MetadataFile:
		return metadatastore.NewFileStore(path.Join(cfg.CachePath, "imageinfo"))
	case config.MetadataDatabase:
		dsn := cfg.Metadata.DSN
		if dsn == "" {
			dsn = metadatastore.DefaultDSN
		}
		return metadatastore.NewDatabaseStore(ctx, dsn)
	}
	return nil, fmt.Errorf("unknown metadata type: %v", cfg.Metadata.Type)
}

// assetSource serves thumbnail sources from the asset store.
type assetSource struct {
	store assetstore.AssetStore
}

func (s assetSource) Download(ctx context.Context, key string, w io.Writer) error {
	return s.store.Download(ctx, key, w, assetstore.BytesRange{})
}

func newThumbnailSource(ctx context.Context, cfg config.Config, assets assetstore.AssetStore) (artifactcache.SourceStore, error) {
	if cfg.SourceURL == "" {
		return assetSource{assets}, nil
	}
	return fetcher.NewFetcher(ctx, cfg.SourceURL)
}

func serve(cfg config.Config) error {
	ctx := context.Background()

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	assetStore, err := newAssetStore(ctx, cfg, "assets")
	if err != nil {
		return fmt.Errorf("unable to initialize asset store: %w", err)
	}
	imageAssets, err := newAssetStore(ctx, cfg, "images")
	if err != nil {
		return fmt.Errorf("unable to initialize image store: %w", err)
	}
	derivedStore, err := newAssetStore(ctx, cfg, "derived")
	if err != nil {
		return fmt.Errorf("unable to initialize derived store: %w", err)
	}
	metadataStore, err := newMetadataStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("unable to initialize metadata store: %w", err)
	}
	source, err := newThumbnailSource(ctx, cfg, assetStore)
	if err != nil {
		return fmt.Errorf("unable to initialize thumbnail source: %w", err)
	}

	closeAll := func() {
		for _, c := range []io.Closer{assetStore, imageAssets, derivedStore, metadataStore} {
			if err := c.Close(); err != nil {
				log.WithError(err).Warn("unable to close store")
			}
		}
	}
	defer closeAll()

	logger := log.StandardLogger()
	cache := artifactcache.New(derivedStore,
		artifactcache.WithTempDir(cfg.TempDir),
		artifactcache.WithLogger(logger.WithField("component", "artifactcache")),
	)
	generator := thumbnail.NewImagingGenerator()

	imageService := images.NewService(imagestore.New(imageAssets), metadataStore, cache,
		images.WithResizeOptions(cfg.Thumbnail),
		images.WithGenerator(generator),
		images.WithTempDir(cfg.TempDir),
		images.WithLogger(logger.WithField("component", "images")),
	)

	s := server.NewServer()
	s.MountAssetStore(assetStore)
	s.MountImageService(imageService)
	s.MountThumbnails(cache, source, generator, cfg.Thumbnail)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		for range c {
			log.Info("Received Signal, shutting down…")
			closeAll()
			os.Exit(1)
		}
	}()

	log.Printf("Starting Server at %v", cfg.ListenAddr)
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      middleware.RequestID(middleware.Logger(middleware.Recoverer(s.Handler))),
		ReadTimeout:  50 * time.Second,
		WriteTimeout: 100 * time.Second,
		IdleTimeout:  150 * time.Second,
	}
	return srv.ListenAndServe()
}

func main() {
	ctx := kong.Parse(&CLI)
	switch ctx.Command() {
	case "serve":
		cfg, err := loadConfig()
		if err != nil {
			log.Fatal(err)
		}
		log.Fatal(serve(cfg))
	default:
		panic(ctx.Command())
	}
}
