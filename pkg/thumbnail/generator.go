package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
)

// GeneratorFunc adapts a function to a generator with a Transform method.
type GeneratorFunc func(ctx context.Context, src io.Reader, dst io.Writer, opts ResizeOptions) error

func (f GeneratorFunc) Transform(ctx context.Context, src io.Reader, dst io.Writer, opts ResizeOptions) error {
	return f(ctx, src, dst, opts)
}

// ImagingGenerator resizes images with github.com/disintegration/imaging.
// The result is encoded in the format of the source.
type ImagingGenerator struct {
	// JPEGQuality is used when encoding jpeg thumbnails. Zero means the library default.
	JPEGQuality int
}

func NewImagingGenerator() *ImagingGenerator {
	return &ImagingGenerator{}
}

func (g *ImagingGenerator) Transform(ctx context.Context, src io.Reader, dst io.Writer, opts ResizeOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	b, err := io.ReadAll(src)
	if err != nil {
		return err
	}

	// image.DecodeConfig tells us the format, without decoding everything
	_, formatName, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("unable to detect image format: %w", err)
	}
	format, err := imaging.FormatFromExtension(formatName)
	if err != nil {
		return err
	}

	img, err := imaging.Decode(bytes.NewReader(b), imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("unable to decode image: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	thumb := resize(img, opts)

	if err := ctx.Err(); err != nil {
		return err
	}

	var encodeOpts []imaging.EncodeOption
	if g.JPEGQuality > 0 {
		encodeOpts = append(encodeOpts, imaging.JPEGQuality(g.JPEGQuality))
	}
	return imaging.Encode(dst, thumb, format, encodeOpts...)
}

func resize(img image.Image, opts ResizeOptions) image.Image {
	switch opts.Mode {
	case Pad:
		fitted := imaging.Fit(img, opts.Width, opts.Height, imaging.Lanczos)
		canvas := imaging.New(opts.Width, opts.Height, color.NRGBA{})
		return imaging.PasteCenter(canvas, fitted)
	case Max:
		return imaging.Fit(img, opts.Width, opts.Height, imaging.Lanczos)
	case Stretch:
		return imaging.Resize(img, opts.Width, opts.Height, imaging.Lanczos)
	default:
		return imaging.Fill(img, opts.Width, opts.Height, imaging.Center, imaging.Lanczos)
	}
}
