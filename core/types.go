package core

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/Skryldev/camera-pipeline/orientation"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatUnknown Format = "unknown"
)

// Extension returns the file suffix used for temp and destination files.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	}
	return ""
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	}
	return "application/octet-stream"
}

// Dimensions is a width/height pair.  {0,0} means "unspecified".
type Dimensions struct {
	Width  int
	Height int
}

// IsZero reports whether neither axis is specified.
func (d Dimensions) IsZero() bool { return d.Width <= 0 && d.Height <= 0 }

// Empty reports whether at least one axis is missing.
func (d Dimensions) Empty() bool { return d.Width <= 0 || d.Height <= 0 }

// Swap exchanges width and height.
func (d Dimensions) Swap() Dimensions { return Dimensions{Width: d.Height, Height: d.Width} }

// Pixels returns width*height.
func (d Dimensions) Pixels() int64 { return int64(d.Width) * int64(d.Height) }

func (d Dimensions) String() string { return fmt.Sprintf("%dx%d", d.Width, d.Height) }

// BoundsOf returns the dimensions of img, or zero for nil.
func BoundsOf(img image.Image) Dimensions {
	if img == nil {
		return Dimensions{}
	}
	b := img.Bounds()
	return Dimensions{Width: b.Dx(), Height: b.Dy()}
}

// EncodingSpec selects the output codec.  Quality is ignored for PNG; for
// JPEG every value in [0,100] is encoded as given.  The zero EncodingSpec
// means unspecified and is resolved to JPEG at Config.DefaultQuality.
type EncodingSpec struct {
	Format  Format
	Quality int // 0-100
}

// IsZero reports whether no encoding was requested.
func (s EncodingSpec) IsZero() bool { return s == EncodingSpec{} }

// JPEG returns a lossy spec at quality q.
func JPEG(q int) EncodingSpec { return EncodingSpec{Format: FormatJPEG, Quality: q} }

// PNG returns a lossless spec.
func PNG() EncodingSpec { return EncodingSpec{Format: FormatPNG} }

// Validate checks the format and quality range.
func (s EncodingSpec) Validate() error {
	if s.Format != FormatJPEG && s.Format != FormatPNG {
		return fmt.Errorf("encoding format %q not supported", s.Format)
	}
	if s.Quality < 0 || s.Quality > 100 {
		return fmt.Errorf("encoding quality %d outside [0,100]", s.Quality)
	}
	return nil
}

// SampleSize is the decode-time downsample factor.  A value of n means each
// decoded pixel covers an n×n block of the source.
type SampleSize int

// SampleSizeFromRatio rounds an integer ratio down to a power of two, the
// granularity decoders honour.  Ratios below 2 yield 1.
func SampleSizeFromRatio(ratio int) SampleSize {
	s := 1
	for s*2 <= ratio {
		s *= 2
	}
	return SampleSize(s)
}

// Int returns the factor with non-positive values treated as 1.
func (s SampleSize) Int() int {
	if s < 1 {
		return 1
	}
	return int(s)
}

// Apply returns the dimensions a decoder produces for d at this sample size.
func (s SampleSize) Apply(d Dimensions) Dimensions {
	n := s.Int()
	return Dimensions{Width: ceilDiv(d.Width, n), Height: ceilDiv(d.Height, n)}
}

func ceilDiv(v, n int) int {
	if v <= 0 {
		return 1
	}
	return (v + n - 1) / n
}

// Locator names a readable source or writable destination for a FileStore.
type Locator string

// ImageData is the per-invocation state threaded through pipeline steps.
type ImageData struct {
	Source  Locator
	Scratch Locator // temp copy of Source; removed on every exit
	Format  Format

	// Header-only bounds of the source.
	Bounds Dimensions

	Orientation orientation.Code
	Rotation    int // clockwise degrees that correct Orientation

	// Planned output before rotation and the decode factor that reaches it.
	Target Dimensions
	Sample SampleSize

	// Decoded pixels; nil until the decode step runs.
	Image image.Image

	// Encoded output.
	Data     []byte
	Encoding EncodingSpec

	Meta      map[string]string
	CreatedAt time.Time // source write time; zero when unknown
}

// Size returns the current pixel dimensions, falling back to the header bounds
// before decode.
func (d *ImageData) Size() Dimensions {
	if d.Image != nil {
		return BoundsOf(d.Image)
	}
	return d.Bounds
}

// Result is returned to the caller after an operation completes.
type Result struct {
	Data        []byte
	Base64      string
	Format      Format
	Dimensions  Dimensions
	Destination Locator
	Metadata    map[string]string
	CreatedAt   time.Time // set with metadata when the store reports it

	ProcessingTime time.Duration
	StepTimings    map[string]time.Duration
}

// Task is one invocation executed by the worker pool.
type Task func(ctx context.Context) (*Result, error)

// Job encapsulates a single unit of work for the worker pool.
type Job struct {
	ID   string
	Ctx  context.Context //nolint:containedctx // intentional for async jobs
	Task Task
	// Result channel; nil for fire-and-forget.  A finished job waits until
	// its result is received.  A job dropped by Stop is reported only when
	// the channel has room.
	ResultCh chan<- JobResult
}

// JobResult wraps the outcome of an async job.
type JobResult struct {
	JobID  string
	Result *Result
	Err    error
}

// Step is the fundamental pipeline building block.  Steps must not mutate
// their input; they return a modified copy.
type Step interface {
	Name() string
	Execute(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Hook is an optional observer invoked around pipeline steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, img *ImageData)
	AfterStep(ctx context.Context, stepName string, img *ImageData, d time.Duration, err error)
}
