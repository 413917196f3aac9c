// Package exif reads and patches EXIF metadata of stored JPEG images.
package exif

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	goexif "github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/Skryldev/camera-pipeline/core"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
	"github.com/Skryldev/camera-pipeline/orientation"
	"github.com/Skryldev/camera-pipeline/utils"
)

// PreservedTags is the attribute set carried from a source photo to its
// processed copy.
var PreservedTags = []goexif.FieldName{
	goexif.ApertureValue,
	goexif.DateTime,
	goexif.ExposureTime,
	goexif.Flash,
	goexif.FocalLength,
	goexif.GPSAltitude,
	goexif.GPSAltitudeRef,
	goexif.GPSDateStamp,
	goexif.GPSLatitude,
	goexif.GPSLatitudeRef,
	goexif.GPSLongitude,
	goexif.GPSLongitudeRef,
	goexif.GPSProcessingMethod,
	goexif.GPSTimeStamp,
	goexif.ISOSpeedRatings,
	goexif.Make,
	goexif.Model,
	goexif.Orientation,
	goexif.WhiteBalance,
}

// Store implements core.ExifStore on top of a FileStore.
type Store struct {
	files     core.FileStore
	chunkSize int
}

// NewStore returns a Store reading and writing through files.
func NewStore(files core.FileStore, chunkSize int) *Store {
	return &Store{files: files, chunkSize: chunkSize}
}

func (s *Store) load(ctx context.Context, op string, loc core.Locator) ([]byte, error) {
	r, err := s.files.OpenRead(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	buf, err := utils.DrainReader(ctx, r, s.chunkSize)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryUnreadable, op, err)
	}
	data := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)
	return data, nil
}

func (s *Store) save(ctx context.Context, op string, loc core.Locator, data []byte) error {
	w, err := s.files.OpenWrite(ctx, loc)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		if a, ok := w.(interface{ Abort() error }); ok {
			_ = a.Abort()
		} else {
			_ = w.Close()
		}
		return apperrors.Wrap(apperrors.CategoryUnwritable, op, err)
	}
	return apperrors.Wrap(apperrors.CategoryUnwritable, op, w.Close())
}

func decode(op string, data []byte) (*goexif.Exif, bool, error) {
	if _, ok := findExifSegment(data); !ok {
		return nil, false, nil
	}
	x, err := goexif.Decode(bytes.NewReader(data))
	if x == nil {
		if err == nil {
			err = errors.New("no exif data")
		}
		return nil, false, apperrors.New(apperrors.CategoryUnreadable, op, err)
	}
	return x, true, nil
}

func (s *Store) ReadOrientation(ctx context.Context, loc core.Locator) (orientation.Code, error) {
	data, err := s.load(ctx, "exif.orientation", loc)
	if err != nil {
		return orientation.Undefined, err
	}
	x, found, err := decode("exif.orientation", data)
	if err != nil || !found {
		return orientation.Undefined, err
	}
	tag, err := x.Get(goexif.Orientation)
	if err != nil {
		var missing goexif.TagNotPresentError
		if errors.As(err, &missing) {
			return orientation.Undefined, nil
		}
		return orientation.Undefined, apperrors.New(apperrors.CategoryUnreadable, "exif.orientation", err)
	}
	v, err := tag.Int(0)
	if err != nil {
		return orientation.Undefined, apperrors.New(apperrors.CategoryUnreadable, "exif.orientation", err)
	}
	code := orientation.Code(v)
	if !code.Valid() {
		return orientation.Undefined, nil
	}
	return code, nil
}

// WriteOrientation patches the orientation entry in place.  Writing Normal
// or Undefined to an image without the entry is a no-op; any other value
// needs an existing entry.
func (s *Store) WriteOrientation(ctx context.Context, loc core.Locator, code orientation.Code) error {
	if !code.Valid() {
		return apperrors.New(apperrors.CategoryPrecondition, "exif.write_orientation",
			fmt.Errorf("invalid orientation %d", code))
	}
	data, err := s.load(ctx, "exif.write_orientation", loc)
	if err != nil {
		return err
	}
	patched, err := setOrientation(data, code)
	if err != nil {
		return err
	}
	if patched == nil {
		return nil
	}
	return s.save(ctx, "exif.write_orientation", loc, patched)
}

// setOrientation returns a patched copy of data, or nil when nothing needs
// to change.
func setOrientation(data []byte, code orientation.Code) ([]byte, error) {
	var found, shortOK bool
	if seg, ok := findExifSegment(data); ok {
		var off int
		var order binary.ByteOrder
		off, order, found, shortOK = orientationEntry(data, seg)
		if found && shortOK {
			out := utils.CloneBytes(data)
			order.PutUint16(out[off:off+2], uint16(code))
			return out, nil
		}
	}
	switch {
	case found:
		return nil, apperrors.New(apperrors.CategoryPrecondition, "exif.write_orientation",
			errors.New("orientation entry is not a SHORT"))
	case code == orientation.Normal || code == orientation.Undefined:
		return nil, nil
	}
	return nil, apperrors.New(apperrors.CategoryPrecondition, "exif.write_orientation",
		errors.New("image has no orientation entry to patch"))
}

func (s *Store) ReadAttributes(ctx context.Context, loc core.Locator) (map[string]string, error) {
	data, err := s.load(ctx, "exif.attributes", loc)
	if err != nil {
		return nil, err
	}
	x, found, err := decode("exif.attributes", data)
	if err != nil || !found {
		return map[string]string{}, err
	}
	attrs := make(map[string]string, len(PreservedTags))
	for _, name := range PreservedTags {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		attrs[string(name)] = tagValue(tag)
	}
	return attrs, nil
}

func tagValue(tag *tiff.Tag) string {
	if tag.Format() == tiff.StringVal {
		if v, err := tag.StringVal(); err == nil {
			return v
		}
	}
	val := tag.String()
	// Remove surrounding quotes from string values
	if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
		val = val[1 : len(val)-1]
	}
	return val
}

func (s *Store) CopyExif(ctx context.Context, src, dst core.Locator) error {
	srcData, err := s.load(ctx, "exif.copy", src)
	if err != nil {
		return err
	}
	seg, ok := findExifSegment(srcData)
	if !ok {
		return nil
	}
	dstData, err := s.load(ctx, "exif.copy", dst)
	if err != nil {
		return err
	}
	if len(dstData) < 2 || dstData[0] != 0xFF || dstData[1] != markerSOI {
		return apperrors.New(apperrors.CategoryPrecondition, "exif.copy",
			fmt.Errorf("%w: destination is not a JPEG", apperrors.ErrUnsupportedFormat))
	}
	return s.save(ctx, "exif.copy", dst, spliceSegment(dstData, srcData[seg.start:seg.end]))
}

var _ core.ExifStore = (*Store)(nil)
