package assetstore

import (
	"context"
	"io"

	"github.com/flokli/assetcache/pkg/util"
)

// copyRange copies the selected range of a payload with the given size into w.
// rs is expected to be positioned at the start of the payload.
func copyRange(ctx context.Context, w io.Writer, rs io.ReadSeeker, size int64, br BytesRange) error {
	offset, n, err := br.Resolve(size)
	if err != nil {
		return err
	}

	if offset > 0 {
		if _, err := rs.Seek(offset, io.SeekStart); err != nil {
			return err
		}
	}

	_, err = io.CopyN(w, util.ContextReader(ctx, rs), n)
	if err == io.EOF {
		// the payload got shorter than announced
		return io.ErrUnexpectedEOF
	}
	return err
}
