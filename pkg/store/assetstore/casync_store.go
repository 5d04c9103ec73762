package assetstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/flokli/assetcache/pkg/util"
	"github.com/folbricht/desync"
	"github.com/numtide/go-nix/nixbase32"
)

var _ AssetStore = &CasyncStore{}

// CasyncStore chunks assets into a desync chunk store.
// Each asset is described by an index, named after the hash of its key.
// Chunks are deduplicated across assets, deleting an asset only removes its index.
type CasyncStore struct {
	localStore      desync.WriteStore
	localIndexStore desync.IndexWriteStore
	indexDirectory  string
	tmpDirectory    string
	concurrency     int

	chunkSizeAvgDefault uint64
	chunkSizeMinDefault uint64
	chunkSizeMaxDefault uint64

	reservations *reservations
	exclusion
}

func NewCasyncStore(localStoreDir, localIndexStoreDir, tmpDir string) (*CasyncStore, error) {
	err := os.MkdirAll(localStoreDir, os.ModePerm)
	if err != nil {
		return nil, err
	}

	localStore, err := desync.NewLocalStore(localStoreDir, desync.StoreOptions{})
	if err != nil {
		return nil, err
	}

	err = os.MkdirAll(localIndexStoreDir, os.ModePerm)
	if err != nil {
		return nil, err
	}

	localIndexStore, err := desync.NewLocalIndexStore(localIndexStoreDir)
	if err != nil {
		return nil, err
	}

	err = os.MkdirAll(tmpDir, 0o700)
	if err != nil {
		return nil, err
	}

	return &CasyncStore{
		localStore:      localStore,
		localIndexStore: localIndexStore,
		indexDirectory:  localIndexStoreDir,
		tmpDirectory:    tmpDir,
		concurrency:     1,

		// values stolen from chunker_test.go
		chunkSizeAvgDefault: 64 * 1024,
		chunkSizeMinDefault: 64 * 1024 / 4,
		chunkSizeMaxDefault: 64 * 1024 * 4,

		reservations: newReservations(),
		exclusion:    newExclusion(),
	}, nil
}

func (c *CasyncStore) Close() error {
	err := c.localStore.Close()
	if err != nil {
		return err
	}
	return c.localIndexStore.Close()
}

// indexName returns the name of the index describing the asset.
func indexName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return nixbase32.EncodeToString(sum[:]) + ".caibx"
}

func (c *CasyncStore) indexPath(key string) string {
	return filepath.Join(c.indexDirectory, indexName(key))
}

func (c *CasyncStore) exists(key string) (bool, error) {
	_, err := os.Stat(c.indexPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (c *CasyncStore) Upload(ctx context.Context, key string, r io.Reader, overwrite bool) error {
	if err := checkUpload(key, r); err != nil {
		return err
	}

	if !overwrite {
		if !c.reservations.tryReserve(key) {
			return alreadyExists(key)
		}
		defer c.reservations.release(key)

		exists, err := c.exists(key)
		if err != nil {
			return err
		}
		if exists {
			return alreadyExists(key)
		}
	}

	unlock, err := c.lockWrite(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	w, err := NewCasyncStoreWriter(
		ctx,
		c.localStore,
		c.localIndexStore,
		c.indexDirectory,
		c.tmpDirectory,
		c.concurrency,
		c.chunkSizeMinDefault,
		c.chunkSizeAvgDefault,
		c.chunkSizeMaxDefault,
	)
	if err != nil {
		return err
	}
	defer w.Discard()

	if _, err := io.Copy(w, util.ContextReader(ctx, r)); err != nil {
		return err
	}

	tmpIndexName, err := w.Commit()
	if err != nil {
		return err
	}
	tmpIndexPath := filepath.Join(c.indexDirectory, tmpIndexName)
	defer os.Remove(tmpIndexPath)

	// the index only becomes visible under its final name once it's complete
	if overwrite {
		return os.Rename(tmpIndexPath, c.indexPath(key))
	}
	err = os.Link(tmpIndexPath, c.indexPath(key))
	if errors.Is(err, os.ErrExist) {
		return alreadyExists(key)
	}
	return err
}

// open looks up the index of the asset, and prepares a reader for it.
func (c *CasyncStore) open(ctx context.Context, key string) (*casyncStoreReader, error) {
	exists, err := c.exists(key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFound(key)
	}

	caidx, err := c.localIndexStore.GetIndex(indexName(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(key)
		}
		return nil, err
	}

	return NewCasyncStoreReader(ctx, caidx, c.localStore, c.tmpDirectory, c.concurrency)
}

func (c *CasyncStore) Download(ctx context.Context, key string, w io.Writer, br BytesRange) error {
	if err := checkDownload(key, w); err != nil {
		return err
	}

	csr, err := c.open(ctx, key)
	if err != nil {
		return err
	}
	defer csr.Close()

	unlock, err := c.lockRead(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := csr.Assemble(); err != nil {
		return err
	}
	return copyRange(ctx, w, csr, csr.Size(), br)
}

func (c *CasyncStore) Copy(ctx context.Context, sourceKey, targetKey string) error {
	if err := checkKey(sourceKey); err != nil {
		return err
	}
	if err := checkKey(targetKey); err != nil {
		return err
	}

	csr, err := c.open(ctx, sourceKey)
	if err != nil {
		return err
	}
	defer csr.Close()

	unlock, err := c.lockRead(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := csr.Assemble(); err != nil {
		return err
	}
	return c.Upload(ctx, targetKey, csr, false)
}

// Delete removes the index of the asset. Missing indexes are ignored.
func (c *CasyncStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		// nothing can be stored under the empty key
		return nil
	}
	if err := os.Remove(c.indexPath(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (c *CasyncStore) PublicURL(key string) (string, bool) {
	return "", false
}
