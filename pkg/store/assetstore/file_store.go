package assetstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/flokli/assetcache/pkg/util"
)

// FileStore implements AssetStore
var _ AssetStore = &FileStore{}

// FileStore stores assets as files in a local directory.
// Files are named after the sha256 of their key, as keys are opaque and might
// contain characters not allowed in file names.
// An asset only shows up under its name once it has been fully written.
type FileStore struct {
	assetsDirectory string
	tmpDirectory    string

	reservations *reservations
	exclusion
}

func NewFileStore(directory string) (*FileStore, error) {
	assetsDirectory := filepath.Join(directory, "assets")
	err := os.MkdirAll(assetsDirectory, os.ModePerm)
	if err != nil {
		return nil, err
	}
	tmpDirectory := filepath.Join(directory, "tmp")
	err = os.MkdirAll(tmpDirectory, 0o700)
	if err != nil {
		return nil, err
	}
	return &FileStore{
		assetsDirectory: assetsDirectory,
		tmpDirectory:    tmpDirectory,
		reservations:    newReservations(),
		exclusion:       newExclusion(),
	}, nil
}

func (fs *FileStore) Close() error {
	return nil
}

// assetPath constructs the path of the file holding the asset.
func (fs *FileStore) assetPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	encoded := hex.EncodeToString(sum[:])
	return filepath.Join(fs.assetsDirectory, encoded[:2], encoded)
}

// writeTemp copies r into a new tempfile, inside the write region.
// The caller is responsible for removing the returned file.
func (fs *FileStore) writeTemp(ctx context.Context, r io.Reader) (string, error) {
	unlock, err := fs.lockWrite(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	// os.CreateTemp creates the file with mode 0600
	tmpFile, err := os.CreateTemp(fs.tmpDirectory, "upload-*")
	if err != nil {
		return "", err
	}

	_, err = io.Copy(tmpFile, util.ContextReader(ctx, r))
	if err == nil {
		err = tmpFile.Sync()
	}
	if closeErr := tmpFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpFile.Name())
		return "", err
	}
	return tmpFile.Name(), nil
}

func (fs *FileStore) Upload(ctx context.Context, key string, r io.Reader, overwrite bool) error {
	if err := checkUpload(key, r); err != nil {
		return err
	}

	p := fs.assetPath(key)

	if !overwrite {
		if !fs.reservations.tryReserve(key) {
			return alreadyExists(key)
		}
		defer fs.reservations.release(key)

		if _, err := os.Stat(p); err == nil {
			return alreadyExists(key)
		} else if !os.IsNotExist(err) {
			return err
		}
	}

	tmpPath, err := fs.writeTemp(ctx, r)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	err = os.MkdirAll(filepath.Dir(p), os.ModePerm)
	if err != nil {
		return err
	}

	if overwrite {
		// rename replaces the old file atomically, open readers keep the old inode
		return os.Rename(tmpPath, p)
	}

	// link fails if another process created the file in the meantime
	err = os.Link(tmpPath, p)
	if errors.Is(err, os.ErrExist) {
		return alreadyExists(key)
	}
	return err
}

// open opens the asset file, and returns its size.
func (fs *FileStore) open(key string) (*os.File, int64, error) {
	f, err := os.Open(fs.assetPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, notFound(key)
		}
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

func (fs *FileStore) Download(ctx context.Context, key string, w io.Writer, br BytesRange) error {
	if err := checkDownload(key, w); err != nil {
		return err
	}

	f, size, err := fs.open(key)
	if err != nil {
		return err
	}
	defer f.Close()

	unlock, err := fs.lockRead(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return copyRange(ctx, w, f, size, br)
}

func (fs *FileStore) Copy(ctx context.Context, sourceKey, targetKey string) error {
	if err := checkKey(sourceKey); err != nil {
		return err
	}
	if err := checkKey(targetKey); err != nil {
		return err
	}

	f, _, err := fs.open(sourceKey)
	if err != nil {
		return err
	}
	defer f.Close()

	unlock, err := fs.lockRead(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return fs.Upload(ctx, targetKey, f, false)
}

// Delete removes the asset file. Missing files are ignored.
func (fs *FileStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		// nothing can be stored under the empty key
		return nil
	}
	if err := os.Remove(fs.assetPath(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (fs *FileStore) PublicURL(key string) (string, bool) {
	return "", false
}
