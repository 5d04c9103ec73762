package metadatastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path"
)

// FileStore implements MetadataStore
var _ MetadataStore = &FileStore{}

// FileStore stores each ImageInfo as a json file.
type FileStore struct {
	imageInfoDirectory string
}

func NewFileStore(baseDirectory string) (*FileStore, error) {
	imageInfoDirectory := path.Join(baseDirectory, "imageinfo")
	err := os.MkdirAll(imageInfoDirectory, os.ModePerm)
	if err != nil {
		return nil, err
	}
	return &FileStore{
		imageInfoDirectory: imageInfoDirectory,
	}, nil
}

// imageInfoPath returns the path of the json file for an owner.
// Owner ids are hashed, they might contain characters not allowed in file names.
func (fs *FileStore) imageInfoPath(ownerID string) string {
	sum := sha256.Sum256([]byte(ownerID))
	encodedHash := hex.EncodeToString(sum[:])
	return path.Join(fs.imageInfoDirectory, encodedHash[:4], encodedHash+".json")
}

func (fs *FileStore) GetImageInfo(ctx context.Context, ownerID string) (*ImageInfo, error) {
	b, err := os.ReadFile(fs.imageInfoPath(ownerID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no image for %v: %w", ownerID, os.ErrNotExist)
		}
		return nil, err
	}
	var imageInfo ImageInfo
	err = json.Unmarshal(b, &imageInfo)
	if err != nil {
		return nil, err
	}
	return &imageInfo, nil
}

func (fs *FileStore) PutImageInfo(ctx context.Context, imageInfo *ImageInfo) error {
	err := imageInfo.Check()
	if err != nil {
		return err
	}

	p := fs.imageInfoPath(imageInfo.OwnerID)
	dir := path.Dir(p)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		err := os.MkdirAll(dir, os.ModePerm)
		if err != nil {
			return err
		}
	}

	// create a tempfile (in the same directory), write to it, then move it to where we want it to be
	// this is to ensure an atomic write/replacement.
	tmpFile, err := os.CreateTemp(dir, "imageinfo")
	if err != nil {
		return err
	}

	defer os.Remove(tmpFile.Name())

	b, err := json.Marshal(imageInfo)
	if err != nil {
		tmpFile.Close()
		return err
	}
	_, err = tmpFile.Write(b)
	if err != nil {
		tmpFile.Close()
		return err
	}

	err = tmpFile.Sync()
	if err != nil {
		tmpFile.Close()
		return err
	}
	err = tmpFile.Close()
	if err != nil {
		return err
	}

	return os.Rename(tmpFile.Name(), p)
}

func (fs *FileStore) DeleteImageInfo(ctx context.Context, ownerID string) error {
	err := os.Remove(fs.imageInfoPath(ownerID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) DropAll(ctx context.Context) error {
	err := os.RemoveAll(fs.imageInfoDirectory)
	if err != nil {
		return err
	}
	return os.MkdirAll(fs.imageInfoDirectory, os.ModePerm)
}
