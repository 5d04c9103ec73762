package metadatastore

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// MemoryStore implements MetadataStore
var _ MetadataStore = &MemoryStore{}

type MemoryStore struct {
	imageInfo   map[string]ImageInfo
	muImageInfo sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		imageInfo: make(map[string]ImageInfo),
	}
}

func (ms *MemoryStore) Close() error {
	return nil
}

func (ms *MemoryStore) GetImageInfo(ctx context.Context, ownerID string) (*ImageInfo, error) {
	ms.muImageInfo.Lock()
	v, ok := ms.imageInfo[ownerID]
	ms.muImageInfo.Unlock()
	if ok {
		return &v, nil
	}
	return nil, fmt.Errorf("no image for %v: %w", ownerID, os.ErrNotExist)
}

func (ms *MemoryStore) PutImageInfo(ctx context.Context, imageInfo *ImageInfo) error {
	err := imageInfo.Check()
	if err != nil {
		return err
	}

	ms.muImageInfo.Lock()
	ms.imageInfo[imageInfo.OwnerID] = *imageInfo
	ms.muImageInfo.Unlock()
	return nil
}

func (ms *MemoryStore) DeleteImageInfo(ctx context.Context, ownerID string) error {
	ms.muImageInfo.Lock()
	delete(ms.imageInfo, ownerID)
	ms.muImageInfo.Unlock()
	return nil
}

func (ms *MemoryStore) DropAll(ctx context.Context) error {
	ms.muImageInfo.Lock()
	for k := range ms.imageInfo {
		delete(ms.imageInfo, k)
	}
	ms.muImageInfo.Unlock()
	return nil
}
