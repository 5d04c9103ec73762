// Package config holds the runtime configuration of assetcache.
// Values are taken from Default(), overridden by an optional TOML file,
// which is in turn overridden by command line flags.
package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/flokli/assetcache/pkg/thumbnail"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultListenAddr = "[::]:9000"
	DefaultCachePath  = "/var/cache/assetcache"
	DefaultLogLevel   = "info"

	StoreMemory = "memory"
	StoreFile   = "file"
	StoreCasync = "casync"
	StoreS3     = "s3"
	StoreRedis  = "redis"

	MetadataMemory   = "memory"
	MetadataFile     = "file"
	MetadataDatabase = "database"
)

// MetadataConfig selects where image metadata is kept.
type MetadataConfig struct {
	Type string `toml:"type"`
	// DSN of the sqlite database, used by the database type.
	DSN string `toml:"dsn"`
}

// S3Config configures the s3 asset store.
type S3Config struct {
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`
	// Scheme is http or https, used when talking to Endpoint.
	Scheme        string `toml:"scheme"`
	Profile       string `toml:"profile"`
	PublicBaseURL string `toml:"public_base_url"`
}

// URL renders the config as a s3:// URL.
func (c S3Config) URL() *url.URL {
	q := url.Values{}
	for k, v := range map[string]string{
		"region":   c.Region,
		"endpoint": c.Endpoint,
		"scheme":   c.Scheme,
		"profile":  c.Profile,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	return &url.URL{
		Scheme:   "s3",
		Host:     c.Bucket,
		Path:     "/" + c.Prefix,
		RawQuery: q.Encode(),
	}
}

// RedisConfig configures the redis asset store.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// URL renders the config as a redis:// URL.
func (c RedisConfig) URL() string {
	u := url.URL{
		Scheme: "redis",
		Host:   c.Addr,
		Path:   fmt.Sprintf("/%d", c.DB),
	}
	if c.Password != "" {
		u.User = url.UserPassword("", c.Password)
	}
	return u.String()
}

type Config struct {
	ListenAddr string `toml:"listen_addr"`
	CachePath  string `toml:"cache_path"`
	// TempDir holds temporary buffers. Empty means os.TempDir().
	TempDir  string `toml:"temp_dir"`
	LogLevel string `toml:"log_level"`

	// Store selects the asset store.
	Store string `toml:"store"`
	// SourceURL points to a remote source store thumbnails are generated from.
	// If empty, the asset store is used.
	SourceURL string `toml:"source_url"`

	Metadata  MetadataConfig          `toml:"metadata"`
	S3        S3Config                `toml:"s3"`
	Redis     RedisConfig             `toml:"redis"`
	Thumbnail thumbnail.ResizeOptions `toml:"thumbnail"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		ListenAddr: DefaultListenAddr,
		CachePath:  DefaultCachePath,
		LogLevel:   DefaultLogLevel,
		Store:      StoreCasync,
		Metadata: MetadataConfig{
			Type: MetadataFile,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "assetcache:",
		},
		Thumbnail: thumbnail.DefaultOptions(),
	}
}

// Load returns the default configuration, overridden by the TOML file at path.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return cfg, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}

	switch c.Store {
	case StoreMemory, StoreFile, StoreCasync, StoreRedis:
	case StoreS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required for store %v", c.Store)
		}
	default:
		return fmt.Errorf("unknown store: %v", c.Store)
	}
	if (c.Store == StoreFile || c.Store == StoreCasync) && c.CachePath == "" {
		return fmt.Errorf("cache_path is required for store %v", c.Store)
	}
	if c.Store == StoreRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for store %v", c.Store)
	}

	switch c.Metadata.Type {
	case MetadataMemory, MetadataDatabase:
	case MetadataFile:
		if c.CachePath == "" {
			return fmt.Errorf("cache_path is required for metadata type %v", c.Metadata.Type)
		}
	default:
		return fmt.Errorf("unknown metadata type: %v", c.Metadata.Type)
	}

	if c.SourceURL != "" {
		if _, err := url.Parse(c.SourceURL); err != nil {
			return fmt.Errorf("invalid source_url: %w", err)
		}
	}

	if err := c.Thumbnail.Validate(); err != nil {
		return fmt.Errorf("invalid thumbnail options: %w", err)
	}
	return nil
}
