// Package thumbnail generates resized versions of images.
package thumbnail

import (
	"errors"
	"fmt"
	"strings"
)

// ResizeMode decides how an image is fit into the requested box.
type ResizeMode string

const (
	// Crop fills the box and cuts off what's left over, centered.
	Crop ResizeMode = "crop"
	// Pad fits the image into the box, and pads the remaining area transparently.
	Pad ResizeMode = "pad"
	// Max fits the image into the box, the result might be smaller than the box.
	Max ResizeMode = "max"
	// Stretch resizes to exactly the box, ignoring the aspect ratio.
	Stretch ResizeMode = "stretch"
)

// MaxDimension is the largest width or height accepted.
const MaxDimension = 4096

var ErrInvalidOptions = errors.New("invalid resize options")

// ResizeOptions describes the requested thumbnail.
type ResizeOptions struct {
	Width  int        `toml:"width"`
	Height int        `toml:"height"`
	Mode   ResizeMode `toml:"mode"`
}

// DefaultOptions returns the options used for owner images, a 50x50 crop.
func DefaultOptions() ResizeOptions {
	return ResizeOptions{Width: 50, Height: 50, Mode: Crop}
}

// ParseMode parses a mode name, case-insensitive.
// The empty string maps to Crop.
func ParseMode(s string) (ResizeMode, error) {
	if s == "" {
		return Crop, nil
	}
	m := ResizeMode(strings.ToLower(s))
	switch m {
	case Crop, Pad, Max, Stretch:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown mode %v", ErrInvalidOptions, s)
}

// Validate checks the options are usable.
func (o ResizeOptions) Validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("%w: size must be positive, got %dx%d", ErrInvalidOptions, o.Width, o.Height)
	}
	if o.Width > MaxDimension || o.Height > MaxDimension {
		return fmt.Errorf("%w: size must be at most %d, got %dx%d", ErrInvalidOptions, MaxDimension, o.Width, o.Height)
	}
	if _, err := ParseMode(string(o.Mode)); err != nil {
		return err
	}
	return nil
}

// String renders the options as used in derived keys, like 50x50-crop.
func (o ResizeOptions) String() string {
	mode := o.Mode
	if mode == "" {
		mode = Crop
	}
	return fmt.Sprintf("%dx%d-%s", o.Width, o.Height, mode)
}
