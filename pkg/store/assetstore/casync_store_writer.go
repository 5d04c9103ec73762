package assetstore

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/folbricht/desync"
)

// casyncStoreWriter provides a io.Writer interface.
// The whole content of the asset is written to it.
// Internally, it'll write it to a temporary file.
// On Commit, its contents will be chunked, the chunks added to the chunk store,
// and the index added to the index store under a temporary name.
type casyncStoreWriter struct {
	ctx context.Context

	desyncStore      desync.WriteStore
	desyncIndexStore desync.IndexWriteStore
	indexDirectory   string

	concurrency         int
	chunkSizeMinDefault uint64
	chunkSizeAvgDefault uint64
	chunkSizeMaxDefault uint64

	f *os.File
}

// NewCasyncStoreWriter returns a properly initialized casyncStoreWriter
func NewCasyncStoreWriter(
	ctx context.Context,
	desyncStore desync.WriteStore,
	desyncIndexStore desync.IndexWriteStore,
	indexDirectory string,
	tmpDir string,
	concurrency int,
	chunkSizeMinDefault uint64,
	chunkSizeAvgDefault uint64,
	chunkSizeMaxDefault uint64,
) (*casyncStoreWriter, error) {
	tmpFile, err := os.CreateTemp(tmpDir, "upload-*")
	if err != nil {
		return nil, err
	}
	// Cleanup is handled in Discard()

	return &casyncStoreWriter{
		ctx: ctx,

		desyncStore:      desyncStore,
		desyncIndexStore: desyncIndexStore,
		indexDirectory:   indexDirectory,

		concurrency:         concurrency,
		chunkSizeMinDefault: chunkSizeMinDefault,
		chunkSizeAvgDefault: chunkSizeAvgDefault,
		chunkSizeMaxDefault: chunkSizeMaxDefault,

		f: tmpFile,
	}, nil
}

func (csw *casyncStoreWriter) Write(p []byte) (int, error) {
	return csw.f.Write(p)
}

// Commit chunks the written contents, and stores the index.
// It returns the name of the index inside the index store.
// The caller is responsible for moving it into place.
func (csw *casyncStoreWriter) Commit() (string, error) {
	// flush the tempfile and seek to the start
	err := csw.f.Sync()
	if err != nil {
		return "", err
	}
	_, err = csw.f.Seek(0, io.SeekStart)
	if err != nil {
		return "", err
	}

	// Run the chunker on the tempfile
	chunker, err := desync.NewChunker(
		csw.f,
		csw.chunkSizeMinDefault,
		csw.chunkSizeAvgDefault,
		csw.chunkSizeMaxDefault,
	)
	if err != nil {
		return "", err
	}

	// upload all chunks into the store
	caidx, err := desync.ChunkStream(csw.ctx,
		chunker,
		csw.desyncStore,
		csw.concurrency,
	)
	if err != nil {
		return "", err
	}

	// reserve a unique name next to the final index
	tmpIndex, err := os.CreateTemp(csw.indexDirectory, ".pending-*.caibx")
	if err != nil {
		return "", err
	}
	tmpIndexName := filepath.Base(tmpIndex.Name())
	if err := tmpIndex.Close(); err != nil {
		os.Remove(tmpIndex.Name())
		return "", err
	}

	err = csw.desyncIndexStore.StoreIndex(tmpIndexName, caidx)
	if err != nil {
		os.Remove(tmpIndex.Name())
		return "", err
	}
	return tmpIndexName, nil
}

// Discard closes and removes the tempfile.
func (csw *casyncStoreWriter) Discard() error {
	defer os.Remove(csw.f.Name())
	return csw.f.Close()
}
