package decoder

import (
	"context"
	"image"
	"image/png"
	"io"

	"github.com/Skryldev/camera-pipeline/core"
)

// PNG decodes PNG images using the standard library.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanDecode(format core.Format) bool {
	return format == core.FormatPNG
}

func (p *PNG) DecodeBounds(ctx context.Context, r io.Reader) (core.Dimensions, error) {
	return decodeBounds(ctx, "png.bounds", r, png.DecodeConfig)
}

func (p *PNG) Decode(ctx context.Context, r io.Reader, sample core.SampleSize) (image.Image, error) {
	return decode(ctx, "png.decode", r, sample, png.Decode)
}
