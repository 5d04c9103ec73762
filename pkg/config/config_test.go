package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flokli/assetcache/pkg/thumbnail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	p := filepath.Join(t.TempDir(), "assetcache.toml")
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o600))
	return p
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		p := writeConfig(t, `
listen_addr = "127.0.0.1:8080"
store = "s3"
log_level = "debug"

[metadata]
type = "database"
dsn = "file:/tmp/meta.db"

[s3]
bucket = "thumbs"
region = "eu-west-1"
public_base_url = "https://cdn.example.com"

[thumbnail]
width = 64
height = 32
mode = "pad"
`)
		cfg, err := Load(p)
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
		assert.Equal(t, DefaultCachePath, cfg.CachePath, "unset values keep their default")
		assert.Equal(t, StoreS3, cfg.Store)
		assert.Equal(t, MetadataConfig{Type: MetadataDatabase, DSN: "file:/tmp/meta.db"}, cfg.Metadata)
		assert.Equal(t, thumbnail.ResizeOptions{Width: 64, Height: 32, Mode: thumbnail.Pad}, cfg.Thumbnail)
		assert.NoError(t, cfg.Validate())

		u := cfg.S3.URL()
		assert.Equal(t, "s3", u.Scheme)
		assert.Equal(t, "thumbs", u.Host)
		assert.Equal(t, "eu-west-1", u.Query().Get("region"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("broken file", func(t *testing.T) {
		_, err := Load(writeConfig(t, "store = "))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown store", func(c *Config) { c.Store = "tape" }},
		{"s3 without bucket", func(c *Config) { c.Store = StoreS3 }},
		{"unknown metadata", func(c *Config) { c.Metadata.Type = "ldap" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad thumbnail", func(c *Config) { c.Thumbnail.Width = 0 }},
		{"no cache path", func(c *Config) { c.CachePath = "" }},
		{"no listen addr", func(c *Config) { c.ListenAddr = "" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRedisURL(t *testing.T) {
	assert.Equal(t, "redis://localhost:6379/0", RedisConfig{Addr: "localhost:6379"}.URL())
	assert.Equal(t, "redis://:secret@redis:6379/2", RedisConfig{Addr: "redis:6379", Password: "secret", DB: 2}.URL())
}
