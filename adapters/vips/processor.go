// Package vips provides a libvips-backed Decoder and Encoder.  JPEG sources
// are shrunk on load, so subsampled decodes never allocate the full bitmap.
package vips

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"
	"github.com/nfnt/resize"

	"github.com/Skryldev/camera-pipeline/core"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
	"github.com/Skryldev/camera-pipeline/utils"
)

// maxShrinkOnLoad is the largest factor libjpeg can apply while decoding.
const maxShrinkOnLoad = 8

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	MaxCacheSize int
	MaxWorkers   int
	ChunkSize    int
	ReportLeaks  bool
}

// Backend is a unified libvips-powered Decoder and Encoder.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatUnknown:
		return true
	}
	return false
}

func (b *Backend) drain(ctx context.Context, op string, r io.Reader) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, op, err)
	}
	buf, err := utils.DrainReader(ctx, r, b.cfg.ChunkSize)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperrors.Wrap(apperrors.CategoryPipeline, op, ctxErr)
		}
		return nil, apperrors.New(apperrors.CategoryUnreadable, op, err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)
	if len(raw) == 0 {
		return nil, apperrors.New(apperrors.CategoryUnreadable, op, apperrors.ErrEmptyInput)
	}
	return raw, nil
}

func (b *Backend) DecodeBounds(ctx context.Context, r io.Reader) (core.Dimensions, error) {
	raw, err := b.drain(ctx, "vips.bounds", r)
	if err != nil {
		return core.Dimensions{}, err
	}
	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return core.Dimensions{}, apperrors.New(apperrors.CategoryUnreadable, "vips.bounds", err)
	}
	defer ref.Close()
	d := core.Dimensions{Width: ref.Width(), Height: ref.Height()}
	if d.Empty() {
		return core.Dimensions{}, apperrors.New(apperrors.CategoryUnreadable, "vips.bounds",
			fmt.Errorf("%w: header reports %s", apperrors.ErrUnreadableImage, d))
	}
	return d, nil
}

func (b *Backend) Decode(ctx context.Context, r io.Reader, sample core.SampleSize) (image.Image, error) {
	raw, err := b.drain(ctx, "vips.decode", r)
	if err != nil {
		return nil, err
	}

	params := govips.NewImportParams()
	params.AutoRotate.Set(false)
	if utils.DetectFormat(raw) == string(core.FormatJPEG) && sample.Int() > 1 {
		params.JpegShrinkFactor.Set(min(sample.Int(), maxShrinkOnLoad))
	}
	ref, err := govips.LoadImageFromBuffer(raw, params)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryUnreadable, "vips.decode", err)
	}
	defer ref.Close()

	img, err := toImage(ref)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryUnreadable, "vips.decode", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "vips.decode", err)
	}

	// Shrink-on-load covers at most 8x and only JPEG; finish the rest here.
	full, err := b.fullBounds(raw)
	if err != nil {
		return nil, err
	}
	want := sample.Apply(full)
	if core.BoundsOf(img) != want {
		img = resize.Resize(uint(want.Width), uint(want.Height), img, resize.NearestNeighbor)
	}
	return img, nil
}

func (b *Backend) fullBounds(raw []byte) (core.Dimensions, error) {
	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return core.Dimensions{}, apperrors.New(apperrors.CategoryUnreadable, "vips.decode", err)
	}
	defer ref.Close()
	return core.Dimensions{Width: ref.Width(), Height: ref.Height()}, nil
}

// toImage exports ref losslessly and decodes it into Go pixels.
func toImage(ref *govips.ImageRef) (image.Image, error) {
	ep := govips.NewPngExportParams()
	ep.Compression = 0
	ep.StripMetadata = true
	buf, _, err := ref.ExportPng(ep)
	if err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(buf))
}

// fromImage loads Go pixels into libvips through an uncompressed PNG.
func fromImage(img image.Image) (*govips.ImageRef, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return govips.NewImageFromBuffer(buf.Bytes())
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanEncode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG:
		return true
	}
	return false
}

func (b *Backend) Encode(ctx context.Context, img image.Image, spec core.EncodingSpec) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "vips.encode", err)
	}
	if core.BoundsOf(img).Empty() {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "vips.encode", apperrors.ErrEmptyInput)
	}
	if spec.Quality < 0 || spec.Quality > 100 {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "vips.encode", spec.Validate())
	}

	ref, err := fromImage(img)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryUnwritable, "vips.encode", err)
	}
	defer ref.Close()

	switch spec.Format {
	case core.FormatJPEG:
		ep := govips.NewJpegExportParams()
		ep.Quality = max(spec.Quality, 1)
		ep.StripMetadata = true
		buf, _, err := ref.ExportJpeg(ep)
		if err != nil {
			return nil, apperrors.New(apperrors.CategoryUnwritable, "vips.encode.jpeg", err)
		}
		return buf, nil

	case core.FormatPNG:
		ep := govips.NewPngExportParams()
		ep.StripMetadata = true
		buf, _, err := ref.ExportPng(ep)
		if err != nil {
			return nil, apperrors.New(apperrors.CategoryUnwritable, "vips.encode.png", err)
		}
		return buf, nil

	default:
		return nil, apperrors.New(apperrors.CategoryPrecondition, "vips.encode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, spec.Format))
	}
}

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend replaces the Go codecs with libvips for JPEG and PNG.
func RegisterVipsBackend(reg core.Registry, b *Backend) {
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG} {
		reg.RegisterDecoder(f, b)
		reg.RegisterEncoder(f, b)
	}
}

// compile-time interface checks
var _ core.Decoder = (*Backend)(nil)
var _ core.Encoder = (*Backend)(nil)
