package assetstore

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/flokli/assetcache/pkg/util"
)

// MemoryStore implements AssetStore
var _ AssetStore = &MemoryStore{}

// MemoryStore keeps all assets in process memory.
// Payloads are immutable once committed, an overwrite swaps in a new slice,
// so a download in progress keeps reading the value it started with.
type MemoryStore struct {
	assets   map[string]*memoryAsset
	muAssets sync.Mutex

	exclusion
}

// memoryAsset is an entry in the key map.
// Entries created by a non-overwrite upload stay pending until their copy completed.
// Pending entries are invisible to readers.
type memoryAsset struct {
	contents []byte
	pending  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:    make(map[string]*memoryAsset),
		exclusion: newExclusion(),
	}
}

func (m *MemoryStore) Close() error {
	return nil
}

// lookup returns the committed contents for key.
func (m *MemoryStore) lookup(key string) ([]byte, bool) {
	m.muAssets.Lock()
	defer m.muAssets.Unlock()
	v, ok := m.assets[key]
	if !ok || v.pending {
		return nil, false
	}
	return v.contents, true
}

// reserve inserts a pending entry, if there's no entry for key yet.
func (m *MemoryStore) reserve(key string) (*memoryAsset, bool) {
	m.muAssets.Lock()
	defer m.muAssets.Unlock()
	if _, ok := m.assets[key]; ok {
		return nil, false
	}
	v := &memoryAsset{pending: true}
	m.assets[key] = v
	return v, true
}

// unreserve drops a pending entry, unless it was replaced in the meantime.
func (m *MemoryStore) unreserve(key string, v *memoryAsset) {
	m.muAssets.Lock()
	defer m.muAssets.Unlock()
	if m.assets[key] == v {
		delete(m.assets, key)
	}
}

// copyIn reads r into a fresh buffer, inside the write region.
func (m *MemoryStore) copyIn(ctx context.Context, r io.Reader) ([]byte, error) {
	unlock, err := m.lockWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, util.ContextReader(ctx, r)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *MemoryStore) Upload(ctx context.Context, key string, r io.Reader, overwrite bool) error {
	if err := checkUpload(key, r); err != nil {
		return err
	}

	if overwrite {
		contents, err := m.copyIn(ctx, r)
		if err != nil {
			return err
		}
		m.muAssets.Lock()
		m.assets[key] = &memoryAsset{contents: contents}
		m.muAssets.Unlock()
		return nil
	}

	// the reservation, not the copy, decides who wins
	v, ok := m.reserve(key)
	if !ok {
		return alreadyExists(key)
	}

	contents, err := m.copyIn(ctx, r)
	if err != nil {
		m.unreserve(key, v)
		return err
	}

	m.muAssets.Lock()
	v.contents = contents
	v.pending = false
	m.muAssets.Unlock()
	return nil
}

func (m *MemoryStore) Download(ctx context.Context, key string, w io.Writer, br BytesRange) error {
	if err := checkDownload(key, w); err != nil {
		return err
	}

	contents, ok := m.lookup(key)
	if !ok {
		return notFound(key)
	}

	unlock, err := m.lockRead(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return copyRange(ctx, w, bytes.NewReader(contents), int64(len(contents)), br)
}

func (m *MemoryStore) Copy(ctx context.Context, sourceKey, targetKey string) error {
	if err := checkKey(sourceKey); err != nil {
		return err
	}
	if err := checkKey(targetKey); err != nil {
		return err
	}

	contents, ok := m.lookup(sourceKey)
	if !ok {
		return notFound(sourceKey)
	}

	unlock, err := m.lockRead(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return m.Upload(ctx, targetKey, bytes.NewReader(contents), false)
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		// nothing can be stored under the empty key
		return nil
	}
	m.muAssets.Lock()
	delete(m.assets, key)
	m.muAssets.Unlock()
	return nil
}

func (m *MemoryStore) PublicURL(key string) (string, bool) {
	return "", false
}
