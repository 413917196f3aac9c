package core

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/Skryldev/camera-pipeline/orientation"
)

// Decoder turns an encoded stream into pixels.
// Implementations live in adapters/decoder/ and adapters/vips/.
type Decoder interface {
	// DecodeBounds reads only the header.  Zero or missing bounds are an
	// unreadable-image error.
	DecodeBounds(ctx context.Context, r io.Reader) (Dimensions, error)
	// Decode returns pixels at sample.Apply(bounds).
	Decode(ctx context.Context, r io.Reader, sample SampleSize) (image.Image, error)
	// CanDecode reports whether this decoder handles the given format hint.
	CanDecode(format Format) bool
}

// Encoder serialises pixels in spec.Format.
// Implementations live in adapters/encoder/ and adapters/vips/.
type Encoder interface {
	Encode(ctx context.Context, img image.Image, spec EncodingSpec) ([]byte, error)
	CanEncode(format Format) bool
}

// FileStore resolves locators to byte streams.
// Implementations live in adapters/storage/.
type FileStore interface {
	// OpenRead fails with a not_found error when loc does not exist.
	OpenRead(ctx context.Context, loc Locator) (io.ReadCloser, error)
	// OpenWrite returns a writer whose content becomes visible at loc only
	// when Close succeeds.
	OpenWrite(ctx context.Context, loc Locator) (io.WriteCloser, error)
	// CreateTemp reserves a unique scratch locator ending in suffix.
	CreateTemp(ctx context.Context, suffix string) (Locator, error)
	// Delete removes loc.  A missing locator is not an error.
	Delete(ctx context.Context, loc Locator) error
}

// ModTimeReader is implemented by FileStores that can report when a stored
// object was last written.
type ModTimeReader interface {
	ModTime(ctx context.Context, loc Locator) (time.Time, error)
}

// ExifStore reads and writes EXIF attributes of a stored image.
// Implementations live in adapters/exif/.
type ExifStore interface {
	// ReadOrientation returns Undefined with a nil error when the tag is absent.
	ReadOrientation(ctx context.Context, loc Locator) (orientation.Code, error)
	WriteOrientation(ctx context.Context, loc Locator, code orientation.Code) error
	// ReadAttributes returns the preserved attribute set keyed by tag name.
	ReadAttributes(ctx context.Context, loc Locator) (map[string]string, error)
	// CopyExif transplants the EXIF block of src into the image at dst.  A
	// source without EXIF leaves dst untouched.
	CopyExif(ctx context.Context, src, dst Locator) error
}

// MetricsCollector receives performance observations from the pipeline.
type MetricsCollector interface {
	RecordProcessingTime(stepName string, d interface{ Seconds() float64 })
	RecordThroughput(bytes int64)
	RecordMemory(bytes int64)
	RecordError(stepName string, category string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}

// Registry maps Format values to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	EncoderFor(format Format) (Encoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegisterEncoder(format Format, e Encoder)
}
