package assetstore

import "fmt"

// BytesRange selects a part of an asset.
// The zero value selects the whole payload.
type BytesRange struct {
	start     int64
	length    int64
	hasStart  bool
	hasLength bool
}

// NewBytesRange selects [start, start+length).
func NewBytesRange(start, length int64) BytesRange {
	return BytesRange{start: start, length: length, hasStart: true, hasLength: true}
}

// BytesFrom selects everything from start to the end.
func BytesFrom(start int64) BytesRange {
	return BytesRange{start: start, hasStart: true}
}

// LastBytes selects the last n bytes.
func LastBytes(n int64) BytesRange {
	return BytesRange{length: n, hasLength: true}
}

// IsFull returns true if the range selects the whole payload.
func (br BytesRange) IsFull() bool {
	return !br.hasStart && !br.hasLength
}

func (br BytesRange) validate() error {
	if (br.hasStart && br.start < 0) || (br.hasLength && br.length < 0) {
		return fmt.Errorf("%w: %v", ErrInvalidRange, br)
	}
	return nil
}

// Resolve maps the range onto a payload of the given size.
// It returns the offset to start reading from, and the number of bytes to read.
// Ranges reaching past the end are clamped.
func (br BytesRange) Resolve(size int64) (offset int64, n int64, err error) {
	if err := br.validate(); err != nil {
		return 0, 0, err
	}

	switch {
	case br.hasStart && br.hasLength:
		offset, n = br.start, br.length
	case br.hasStart:
		offset, n = br.start, size-br.start
	case br.hasLength:
		offset, n = size-br.length, br.length
	default:
		return 0, size, nil
	}

	if offset < 0 {
		n += offset
		offset = 0
	}
	if offset > size {
		offset = size
	}
	if offset+n > size {
		n = size - offset
	}
	if n < 0 {
		n = 0
	}
	return offset, n, nil
}

// HTTPHeader renders the range as the value of an HTTP Range header.
// It returns an empty string for the full range.
func (br BytesRange) HTTPHeader() string {
	switch {
	case br.hasStart && br.hasLength:
		if br.length == 0 {
			// there's no way to express an empty range, callers skip the request
			return ""
		}
		return fmt.Sprintf("bytes=%d-%d", br.start, br.start+br.length-1)
	case br.hasStart:
		return fmt.Sprintf("bytes=%d-", br.start)
	case br.hasLength:
		return fmt.Sprintf("bytes=-%d", br.length)
	}
	return ""
}

func (br BytesRange) String() string {
	switch {
	case br.hasStart && br.hasLength:
		return fmt.Sprintf("[%d, %d)", br.start, br.start+br.length)
	case br.hasStart:
		return fmt.Sprintf("[%d, end)", br.start)
	case br.hasLength:
		return fmt.Sprintf("last %d", br.length)
	}
	return "full"
}
