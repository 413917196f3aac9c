package decoder_test

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

	"github.com/Skryldev/camera-pipeline/adapters/decoder"
	"github.com/Skryldev/camera-pipeline/core"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
)

func newJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func newPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestJPEG_DecodeBounds(t *testing.T) {
	d, err := decoder.NewJPEG().DecodeBounds(context.Background(), bytes.NewReader(newJPEG(t, 120, 80)))
	require.NoError(t, err)
	assert.Equal(t, core.Dimensions{Width: 120, Height: 80}, d)
}

func TestJPEG_DecodeWithSample(t *testing.T) {
	raw := newJPEG(t, 120, 81)
	dec := decoder.NewJPEG()

	full, err := dec.Decode(context.Background(), bytes.NewReader(raw), 1)
	require.NoError(t, err)
	assert.Equal(t, core.Dimensions{Width: 120, Height: 81}, core.BoundsOf(full))

	quarter, err := dec.Decode(context.Background(), bytes.NewReader(raw), 4)
	require.NoError(t, err)
	assert.Equal(t, core.Dimensions{Width: 30, Height: 21}, core.BoundsOf(quarter))
}

func TestPNG_DecodeBoundsAndPixels(t *testing.T) {
	raw := newPNG(t, 64, 32)
	dec := decoder.NewPNG()

	d, err := dec.DecodeBounds(context.Background(), bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, core.Dimensions{Width: 64, Height: 32}, d)

	img, err := dec.Decode(context.Background(), bytes.NewReader(raw), 2)
	require.NoError(t, err)
	assert.Equal(t, core.Dimensions{Width: 32, Height: 16}, core.BoundsOf(img))
}

func TestDecode_Garbage(t *testing.T) {
	garbage := []byte("definitely not an image")

	_, err := decoder.NewJPEG().DecodeBounds(context.Background(), bytes.NewReader(garbage))
	assert.ErrorIs(t, err, apperrors.ErrUnreadableImage)

	_, err = decoder.NewPNG().Decode(context.Background(), bytes.NewReader(garbage), 1)
	assert.ErrorIs(t, err, apperrors.ErrUnreadableImage)

	_, err = decoder.NewPNG().DecodeBounds(context.Background(), bytes.NewReader(nil))
	assert.ErrorIs(t, err, apperrors.ErrUnreadableImage)
}

func TestDecode_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := decoder.NewJPEG().Decode(ctx, bytes.NewReader(newJPEG(t, 8, 8)), 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrUnreadableImage)
}

func TestCanDecode(t *testing.T) {
	assert.True(t, decoder.NewJPEG().CanDecode(core.FormatJPEG))
	assert.True(t, decoder.NewJPEG().CanDecode(core.FormatUnknown))
	assert.False(t, decoder.NewJPEG().CanDecode(core.FormatPNG))
	assert.True(t, decoder.NewPNG().CanDecode(core.FormatPNG))
}
