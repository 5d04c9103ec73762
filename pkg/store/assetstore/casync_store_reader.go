package assetstore

import (
	"context"
	"io"
	"os"

	"github.com/folbricht/desync"
)

// casyncStoreReader provides a io.ReadSeekCloser over an assembled asset.
// Assemble creates a tempfile and assembles the contents into it,
// reads and seeks go to that file afterwards.
type casyncStoreReader struct {
	ctx         context.Context
	caidx       desync.Index
	desyncStore desync.Store
	concurrency int

	f             *os.File
	fileAssembled bool // whether AssembleFile was already run
}

// NewCasyncStoreReader returns a properly initialized casyncStoreReader.
func NewCasyncStoreReader(
	ctx context.Context,
	caidx desync.Index,
	desyncStore desync.Store,
	tmpDir string,
	concurrency int,
) (*casyncStoreReader, error) {
	tmpFile, err := os.CreateTemp(tmpDir, "assemble-*")
	if err != nil {
		return nil, err
	}
	// Cleanup is handled in Close()

	return &casyncStoreReader{
		ctx:         ctx,
		caidx:       caidx,
		desyncStore: desyncStore,
		concurrency: concurrency,
		f:           tmpFile,
	}, nil
}

// Assemble runs AssembleFile into the tempfile, once.
func (csr *casyncStoreReader) Assemble() error {
	if csr.fileAssembled {
		return nil
	}
	_, err := desync.AssembleFile(csr.ctx, csr.f.Name(), csr.caidx, csr.desyncStore, []desync.Seed{}, csr.concurrency, nil)
	if err != nil {
		return err
	}

	// flush and seek to the beginning
	err = csr.f.Sync()
	if err != nil {
		return err
	}
	_, err = csr.f.Seek(0, io.SeekStart)
	if err != nil {
		return err
	}
	csr.fileAssembled = true
	return nil
}

// Size returns the length of the asset, as recorded in its index.
func (csr *casyncStoreReader) Size() int64 {
	return csr.caidx.Length()
}

func (csr *casyncStoreReader) Read(p []byte) (int, error) {
	if err := csr.Assemble(); err != nil {
		return 0, err
	}
	return csr.f.Read(p)
}

func (csr *casyncStoreReader) Seek(offset int64, whence int) (int64, error) {
	if err := csr.Assemble(); err != nil {
		return 0, err
	}
	return csr.f.Seek(offset, whence)
}

func (csr *casyncStoreReader) Close() error {
	defer os.Remove(csr.f.Name())
	return csr.f.Close()
}
