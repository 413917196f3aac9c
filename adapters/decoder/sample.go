package decoder

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/nfnt/resize"

	"github.com/Skryldev/camera-pipeline/core"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
	"github.com/Skryldev/camera-pipeline/utils"
)

type configFunc func(io.Reader) (image.Config, error)
type decodeFunc func(io.Reader) (image.Image, error)

func decodeBounds(ctx context.Context, op string, r io.Reader, fn configFunc) (core.Dimensions, error) {
	if err := ctx.Err(); err != nil {
		return core.Dimensions{}, apperrors.Wrap(apperrors.CategoryPipeline, op, err)
	}
	cfg, err := fn(&utils.ContextReader{Ctx: ctx, R: r})
	if err != nil {
		return core.Dimensions{}, failure(ctx, op, err)
	}
	d := core.Dimensions{Width: cfg.Width, Height: cfg.Height}
	if d.Empty() {
		return core.Dimensions{}, apperrors.New(apperrors.CategoryUnreadable, op,
			fmt.Errorf("%w: header reports %s", apperrors.ErrUnreadableImage, d))
	}
	return d, nil
}

func decode(ctx context.Context, op string, r io.Reader, sample core.SampleSize, fn decodeFunc) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, op, err)
	}
	img, err := fn(&utils.ContextReader{Ctx: ctx, R: r})
	if err != nil {
		return nil, failure(ctx, op, err)
	}
	if core.BoundsOf(img).Empty() {
		return nil, apperrors.New(apperrors.CategoryUnreadable, op, apperrors.ErrUnreadableImage)
	}
	return subsample(img, sample), nil
}

// subsample reduces img to sample.Apply(bounds) with nearest-neighbour
// picking, the same pixels a decoder skipping rows and columns would keep.
func subsample(img image.Image, sample core.SampleSize) image.Image {
	if sample.Int() == 1 {
		return img
	}
	dst := sample.Apply(core.BoundsOf(img))
	return resize.Resize(uint(dst.Width), uint(dst.Height), img, resize.NearestNeighbor)
}

func failure(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperrors.Wrap(apperrors.CategoryPipeline, op, ctxErr)
	}
	return apperrors.New(apperrors.CategoryUnreadable, op, err)
}
