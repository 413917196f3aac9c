package geometry

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/camera-pipeline/core"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
	"github.com/Skryldev/camera-pipeline/orientation"
)

// Rect is a requested, unvalidated crop region in source pixel coordinates.
type Rect struct {
	Left, Top, Width, Height int
}

// CropRect is a crop region already clamped to a source of known size.
// The only way to obtain one is ClampCropRect.
type CropRect struct {
	left, top, width, height int
	srcW, srcH               int
}

func (r CropRect) Left() int   { return r.left }
func (r CropRect) Top() int    { return r.top }
func (r CropRect) Width() int  { return r.width }
func (r CropRect) Height() int { return r.height }

// Empty reports whether the clamped region has no pixels.
func (r CropRect) Empty() bool { return r.width <= 0 || r.height <= 0 }

// Rectangle returns the region as an image.Rectangle anchored at (0,0).
func (r CropRect) Rectangle() image.Rectangle {
	return image.Rect(r.left, r.top, r.left+r.width, r.top+r.height)
}

func (r CropRect) String() string {
	return fmt.Sprintf("{%d,%d %dx%d in %dx%d}", r.left, r.top, r.width, r.height, r.srcW, r.srcH)
}

// ClampCropRect pulls req inside a srcW x srcH image.  Negative offsets move
// to zero and the extent is cut at the far edges; a request that lies wholly
// outside the image yields an empty rect.
func ClampCropRect(req Rect, srcW, srcH int) CropRect {
	left := min(max(req.Left, 0), max(srcW, 0))
	top := min(max(req.Top, 0), max(srcH, 0))
	width := max(min(req.Width, srcW-left), 0)
	height := max(min(req.Height, srcH-top), 0)
	return CropRect{left: left, top: top, width: width, height: height, srcW: srcW, srcH: srcH}
}

// Crop cuts r out of img.  r must have been clamped against img's size.
func Crop(img image.Image, r CropRect) (image.Image, error) {
	if img == nil {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "crop", apperrors.ErrEmptyInput)
	}
	if r.Empty() {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "crop", fmt.Errorf("empty crop rect %s", r))
	}
	size := core.BoundsOf(img)
	if size.Width != r.srcW || size.Height != r.srcH {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "crop",
			fmt.Errorf("crop rect %s was clamped for a different image than %s", r, size))
	}
	return imaging.Crop(img, r.Rectangle().Add(img.Bounds().Min)), nil
}

// RotateLeft turns img 90 degrees counter-clockwise.
func RotateLeft(img image.Image) image.Image {
	return imaging.Rotate90(img)
}

// FlipHorizontal mirrors img left to right.
func FlipHorizontal(img image.Image) image.Image {
	return imaging.FlipH(img)
}

// Scale resamples img to exactly w x h with bilinear filtering.
func Scale(img image.Image, w, h int) (image.Image, error) {
	if img == nil {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "scale", apperrors.ErrEmptyInput)
	}
	if w <= 0 || h <= 0 {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "scale",
			fmt.Errorf("invalid target size %dx%d", w, h))
	}
	srcB := img.Bounds()
	if srcB.Dx() == w && srcB.Dy() == h {
		return img, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, srcB, xdraw.Src, nil)
	return dst, nil
}

// DownsizeIfNeeded scales img so its shorter side is at most limit.
func DownsizeIfNeeded(img image.Image, limit int) (image.Image, error) {
	size := core.BoundsOf(img)
	plan := PlanDownsize(size.Width, size.Height, limit)
	if plan == size {
		return img, nil
	}
	return Scale(img, plan.Width, plan.Height)
}

// ApplyOrientation rotates img clockwise by degrees, which must be one of
// 0, 90, 180 or 270.
func ApplyOrientation(img image.Image, degrees int) (image.Image, error) {
	if img == nil {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "orient", apperrors.ErrEmptyInput)
	}
	switch degrees {
	case 0:
		return img, nil
	case 90:
		return imaging.Rotate270(img), nil
	case 180:
		return imaging.Rotate180(img), nil
	case 270:
		return imaging.Rotate90(img), nil
	}
	return nil, apperrors.New(apperrors.CategoryPrecondition, "orient",
		fmt.Errorf("unsupported rotation %d", degrees))
}

// ApplyOrientationCode undoes any of the eight EXIF orientations, including
// the mirrored ones.
func ApplyOrientationCode(img image.Image, code orientation.Code) image.Image {
	switch code {
	case orientation.FlipHorizontal:
		return imaging.FlipH(img)
	case orientation.Rotate180:
		return imaging.Rotate180(img)
	case orientation.FlipVertical:
		return imaging.FlipV(img)
	case orientation.Transpose:
		return imaging.Transpose(img)
	case orientation.Rotate90:
		return imaging.Rotate270(img)
	case orientation.Transverse:
		return imaging.Transverse(img)
	case orientation.Rotate270:
		return imaging.Rotate90(img)
	}
	return img
}
