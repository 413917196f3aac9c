// Package decoder provides format-specific image decoders.
package decoder

import (
	"context"
	"image"
	"image/jpeg"
	"io"

	"github.com/Skryldev/camera-pipeline/core"
)

// JPEG decodes JPEG images using the standard library.
type JPEG struct{}

// NewJPEG returns an initialised JPEG decoder.
func NewJPEG() *JPEG { return &JPEG{} }

func (j *JPEG) CanDecode(format core.Format) bool {
	return format == core.FormatJPEG || format == core.FormatUnknown
}

func (j *JPEG) DecodeBounds(ctx context.Context, r io.Reader) (core.Dimensions, error) {
	return decodeBounds(ctx, "jpeg.bounds", r, jpeg.DecodeConfig)
}

func (j *JPEG) Decode(ctx context.Context, r io.Reader, sample core.SampleSize) (image.Image, error) {
	return decode(ctx, "jpeg.decode", r, sample, jpeg.Decode)
}
