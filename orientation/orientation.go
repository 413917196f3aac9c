// Package orientation maps EXIF orientation codes to clockwise rotations.
package orientation

import (
	"strconv"
	"strings"
)

// Code is an EXIF orientation tag value (0x0112).
type Code int

const (
	Undefined      Code = 0
	Normal         Code = 1
	FlipHorizontal Code = 2
	Rotate180      Code = 3
	FlipVertical   Code = 4
	Transpose      Code = 5
	Rotate90       Code = 6
	Transverse     Code = 7
	Rotate270      Code = 8
)

var names = map[Code]string{
	Undefined:      "UNDEFINED",
	Normal:         "NORMAL",
	FlipHorizontal: "FLIP_HORIZONTAL",
	Rotate180:      "ROTATE_180",
	FlipVertical:   "FLIP_VERTICAL",
	Transpose:      "TRANSPOSE",
	Rotate90:       "ROTATE_90",
	Transverse:     "TRANSVERSE",
	Rotate270:      "ROTATE_270",
}

// Degrees returns the clockwise rotation that makes an image stored with code
// c display upright.  Only the three pure rotations map to a non-zero value.
func Degrees(c Code) int {
	switch c {
	case Rotate90:
		return 90
	case Rotate180:
		return 180
	case Rotate270:
		return 270
	}
	return 0
}

// Degrees is the method form of Degrees.
func (c Code) Degrees() int { return Degrees(c) }

// ForDegrees is the inverse of Degrees.  Values outside {0,90,180,270} after
// normalisation into [0,360) map to Normal.
func ForDegrees(deg int) Code {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	switch deg {
	case 90:
		return Rotate90
	case 180:
		return Rotate180
	case 270:
		return Rotate270
	}
	return Normal
}

// Normalized is the code written back once the rotation is baked into pixels.
func Normalized() Code { return Normal }

// Valid reports whether c is one of the nine defined values.
func (c Code) Valid() bool { return c >= Undefined && c <= Rotate270 }

// SwapsAxes reports whether correcting c exchanges width and height.
func (c Code) SwapsAxes() bool {
	switch c {
	case Transpose, Rotate90, Transverse, Rotate270:
		return true
	}
	return false
}

// String renders the code the way EXIF attribute maps store it.
func (c Code) String() string { return strconv.Itoa(int(c)) }

// Name returns the symbolic name, e.g. "ROTATE_90".
func (c Code) Name() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "UNKNOWN(" + strconv.Itoa(int(c)) + ")"
}

// Parse reads the string attribute form.  Unparsable or out-of-range values
// yield Undefined.
func Parse(s string) Code {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return Undefined
	}
	c := Code(n)
	if !c.Valid() {
		return Undefined
	}
	return c
}
