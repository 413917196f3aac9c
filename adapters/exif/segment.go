package exif

import (
	"bytes"
	"encoding/binary"
)

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerAPP1 = 0xE1

	tagOrientation = 0x0112
	typeShort      = 3
)

var exifHeader = []byte("Exif\x00\x00")

// segment locates the EXIF APP1 block of a JPEG.  start and end bound the
// whole segment including its marker; tiff is where the TIFF header begins.
type segment struct {
	start, end, tiff int
}

func findExifSegment(b []byte) (segment, bool) {
	if len(b) < 4 || b[0] != 0xFF || b[1] != markerSOI {
		return segment{}, false
	}
	i := 2
	for i+4 <= len(b) {
		if b[i] != 0xFF {
			return segment{}, false
		}
		marker := b[i+1]
		if marker == markerSOS || marker == markerEOI {
			break
		}
		segLen := int(binary.BigEndian.Uint16(b[i+2 : i+4]))
		if segLen < 2 || i+2+segLen > len(b) {
			break
		}
		payload := b[i+4 : i+2+segLen]
		if marker == markerAPP1 && bytes.HasPrefix(payload, exifHeader) {
			return segment{start: i, end: i + 2 + segLen, tiff: i + 4 + len(exifHeader)}, true
		}
		i += 2 + segLen
	}
	return segment{}, false
}

// orientationEntry returns the absolute offset of the orientation SHORT value
// and the byte order of the TIFF block.  ok is false when IFD0 carries no
// orientation entry; shortOK is false when the entry has a non-SHORT type.
func orientationEntry(b []byte, seg segment) (offset int, order binary.ByteOrder, ok, shortOK bool) {
	tiff := b[seg.tiff:seg.end]
	if len(tiff) < 8 {
		return 0, nil, false, false
	}
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, nil, false, false
	}
	if order.Uint16(tiff[2:4]) != 42 {
		return 0, nil, false, false
	}
	ifd0 := int(order.Uint32(tiff[4:8]))
	if ifd0 < 8 || ifd0+2 > len(tiff) {
		return 0, nil, false, false
	}
	count := int(order.Uint16(tiff[ifd0 : ifd0+2]))
	off := ifd0 + 2
	for n := 0; n < count && off+12 <= len(tiff); n++ {
		if order.Uint16(tiff[off:off+2]) == tagOrientation {
			if order.Uint16(tiff[off+2:off+4]) != typeShort {
				return 0, order, true, false
			}
			return seg.tiff + off + 8, order, true, true
		}
		off += 12
	}
	return 0, order, false, false
}

// spliceSegment returns dst with any EXIF block replaced by seg, which is
// placed directly after SOI.
func spliceSegment(dst, seg []byte) []byte {
	body := dst[2:]
	if old, ok := findExifSegment(dst); ok {
		body = append(append([]byte{}, dst[2:old.start]...), dst[old.end:]...)
	}
	out := make([]byte, 0, 2+len(seg)+len(body))
	out = append(out, 0xFF, markerSOI)
	out = append(out, seg...)
	return append(out, body...)
}
