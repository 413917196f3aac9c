// Package geometry plans output sizes and applies pixel transforms.
package geometry

import (
	"math"

	"github.com/Skryldev/camera-pipeline/core"
)

// PlanAspectFit fits a requested box to the source aspect ratio.
//
// With no target the source size is returned.  With one axis the other is
// derived from the source ratio.  With both, the box shrinks along whichever
// axis the source does not fill.  Each result axis is at least 1.
func PlanAspectFit(srcW, srcH, targetW, targetH int) core.Dimensions {
	if targetW <= 0 && targetH <= 0 {
		return core.Dimensions{Width: srcW, Height: srcH}
	}
	w, h := targetW, targetH
	if srcW <= 0 || srcH <= 0 {
		return atLeastOne(w, h)
	}

	switch {
	case targetH <= 0:
		h = int(math.Round(float64(targetW) / float64(srcW) * float64(srcH)))
	case targetW <= 0:
		w = int(math.Round(float64(targetH) / float64(srcH) * float64(srcW)))
	default:
		newRatio := float64(targetW) / float64(targetH)
		origRatio := float64(srcW) / float64(srcH)
		if origRatio > newRatio {
			h = targetW * srcH / srcW
		} else if origRatio < newRatio {
			w = targetH * srcW / srcH
		}
	}
	return atLeastOne(w, h)
}

func atLeastOne(w, h int) core.Dimensions {
	return core.Dimensions{Width: max(w, 1), Height: max(h, 1)}
}

// PlanSampleSize returns the largest power of two that keeps both decoded axes
// at or above the target.  An axis with no target does not limit the result.
func PlanSampleSize(srcW, srcH, targetW, targetH int) core.SampleSize {
	if targetW <= 0 && targetH <= 0 {
		return 1
	}
	s := 1
	halfW, halfH := srcW/2, srcH/2
	for (targetH <= 0 || halfH/s >= targetH) && (targetW <= 0 || halfW/s >= targetW) {
		s *= 2
	}
	return core.SampleSize(s)
}

// PlanDecodeSampleRatio returns the integer reduction from the rotated source
// to dst along the axis that limits the fit.  It is at least 1.
func PlanDecodeSampleRatio(srcW, srcH, dstW, dstH int) int {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return 1
	}
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)
	var ratio int
	if srcAspect > dstAspect {
		ratio = srcW / dstW
	} else {
		ratio = srcH / dstH
	}
	return max(ratio, 1)
}

// PlanDownsize caps the shorter side at limit.  Sizes whose shorter side is
// already within limit are returned unchanged.
func PlanDownsize(w, h, limit int) core.Dimensions {
	if limit <= 0 || min(w, h) <= limit {
		return core.Dimensions{Width: w, Height: h}
	}
	if w > h {
		return atLeastOne(int(float64(limit)*float64(w)/float64(h)), limit)
	}
	return atLeastOne(limit, int(float64(limit)*float64(h)/float64(w)))
}

// RotatedBounds returns d as it appears after a clockwise rotation.
func RotatedBounds(d core.Dimensions, degrees int) core.Dimensions {
	if swapsAxes(degrees) {
		return d.Swap()
	}
	return d
}

func swapsAxes(degrees int) bool {
	d := normalizeDegrees(degrees)
	return d == 90 || d == 270
}

func normalizeDegrees(degrees int) int {
	d := degrees % 360
	if d < 0 {
		d += 360
	}
	return d
}
