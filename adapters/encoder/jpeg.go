// Package encoder provides format-specific image encoders and the Base64
// text codec.
package encoder

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"

	"github.com/Skryldev/camera-pipeline/core"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
)

// JPEG encodes images to JPEG format at the requested quality.  Qualities
// below 1 encode as 1.
type JPEG struct{}

func NewJPEG() *JPEG { return &JPEG{} }

func (j *JPEG) CanEncode(format core.Format) bool {
	return format == core.FormatJPEG
}

func (j *JPEG) Encode(ctx context.Context, img image.Image, spec core.EncodingSpec) ([]byte, error) {
	if err := checkInput(ctx, "jpeg.encode", img); err != nil {
		return nil, err
	}
	if spec.Quality < 0 || spec.Quality > 100 {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "jpeg.encode", spec.Validate())
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: spec.Quality}); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryUnwritable, "jpeg.encode", err)
	}
	return buf.Bytes(), nil
}

func checkInput(ctx context.Context, op string, img image.Image) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryPipeline, op, err)
	}
	if core.BoundsOf(img).Empty() {
		return apperrors.New(apperrors.CategoryPrecondition, op, apperrors.ErrEmptyInput)
	}
	return nil
}
