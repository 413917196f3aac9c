package encoder

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"github.com/Skryldev/camera-pipeline/core"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
)

// PNG encodes images to PNG format.  Quality is ignored.
type PNG struct {
	enc png.Encoder
}

func NewPNG() *PNG {
	return &PNG{enc: png.Encoder{CompressionLevel: png.DefaultCompression}}
}

func (p *PNG) CanEncode(format core.Format) bool { return format == core.FormatPNG }

func (p *PNG) Encode(ctx context.Context, img image.Image, _ core.EncodingSpec) ([]byte, error) {
	if err := checkInput(ctx, "png.encode", img); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := p.enc.Encode(&buf, img); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryUnwritable, "png.encode", err)
	}
	return buf.Bytes(), nil
}
