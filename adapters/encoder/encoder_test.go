package encoder_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/camera-pipeline/adapters/encoder"
	"github.com/Skryldev/camera-pipeline/core"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	return img
}

func TestJPEG_EncodeKeepsDimensions(t *testing.T) {
	enc := encoder.NewJPEG()
	out, err := enc.Encode(context.Background(), solid(1200, 800), core.JPEG(80))
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.Width)
	assert.Equal(t, 800, cfg.Height)
}

func TestJPEG_QualityAffectsSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x ^ y), G: uint8(x * y), B: uint8(x + y), A: 255})
		}
	}
	enc := encoder.NewJPEG()
	low, err := enc.Encode(context.Background(), img, core.JPEG(10))
	require.NoError(t, err)
	high, err := enc.Encode(context.Background(), img, core.JPEG(100))
	require.NoError(t, err)
	assert.Less(t, len(low), len(high))

}

func TestJPEG_QualityZeroIsLowest(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x + y), A: 255})
		}
	}
	enc := encoder.NewJPEG()
	q0, err := enc.Encode(context.Background(), img, core.JPEG(0))
	require.NoError(t, err)
	q1, err := enc.Encode(context.Background(), img, core.JPEG(1))
	require.NoError(t, err)
	q85, err := enc.Encode(context.Background(), img, core.JPEG(85))
	require.NoError(t, err)

	assert.Equal(t, q1, q0, "quality 0 encodes like quality 1")
	assert.Less(t, len(q0), len(q85))
}

func TestJPEG_Preconditions(t *testing.T) {
	enc := encoder.NewJPEG()
	_, err := enc.Encode(context.Background(), nil, core.JPEG(80))
	assert.ErrorIs(t, err, apperrors.ErrPreconditionViolation)

	_, err = enc.Encode(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 5)), core.JPEG(80))
	assert.ErrorIs(t, err, apperrors.ErrPreconditionViolation)

	_, err = enc.Encode(context.Background(), solid(2, 2), core.JPEG(120))
	assert.ErrorIs(t, err, apperrors.ErrPreconditionViolation)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = enc.Encode(ctx, solid(2, 2), core.JPEG(80))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPNG_IsLossless(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 5, 4))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 13)
	}
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 255
	}
	out, err := encoder.NewPNG().Encode(context.Background(), src, core.EncodingSpec{Format: core.FormatPNG, Quality: 5})
	require.NoError(t, err)

	back, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	for y := 0; y < 4; y++ {
		for x := 0; x < 5; x++ {
			assert.Equal(t, src.NRGBAAt(x, y), color.NRGBAModel.Convert(back.At(x, y)))
		}
	}
}

func TestCanEncode(t *testing.T) {
	assert.True(t, encoder.NewJPEG().CanEncode(core.FormatJPEG))
	assert.False(t, encoder.NewJPEG().CanEncode(core.FormatPNG))
	assert.True(t, encoder.NewPNG().CanEncode(core.FormatPNG))
}

func TestBase64_RoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		{0},
		[]byte("f"),
		[]byte("fo"),
		[]byte("foo"),
		bytes.Repeat([]byte{0xFF, 0x00, 0x7F}, 1000),
	}
	for _, in := range inputs {
		text := encoder.EncodeBase64(in)
		assert.NotContains(t, text, "\n")
		out, err := encoder.DecodeBase64(text)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
	assert.Equal(t, "Zm9vYg==", encoder.EncodeBase64([]byte("foob")))
	assert.Equal(t, "", encoder.EncodeBase64(nil))
}

func TestBase64_Malformed(t *testing.T) {
	for _, text := range []string{"%%%", "Zm9vYg=", "Zm9vYg"} {
		_, err := encoder.DecodeBase64(text)
		assert.ErrorIs(t, err, apperrors.ErrInvalidEncoding, text)
	}
}
