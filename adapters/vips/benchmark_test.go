package vips_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/Skryldev/camera-pipeline/adapters/decoder"
	"github.com/Skryldev/camera-pipeline/adapters/encoder"
	"github.com/Skryldev/camera-pipeline/adapters/vips"
	"github.com/Skryldev/camera-pipeline/core"
)

func makeJPEG(b *testing.B, w, h int) []byte {
	b.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}); err != nil {
		b.Fatal(err)
	}
	return buf.Bytes()
}

func benchDecode(b *testing.B, d core.Decoder, raw []byte, sample core.SampleSize) {
	b.Helper()
	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := d.Decode(context.Background(), bytes.NewReader(raw), sample); err != nil {
			b.Fatal(err)
		}
	}
}

// ─── Decode ───────────────────────────────────────────────────────────────────

func BenchmarkDecode_Stdlib_4000x3000(b *testing.B) {
	benchDecode(b, decoder.NewJPEG(), makeJPEG(b, 4000, 3000), 1)
}

func BenchmarkDecode_Vips_4000x3000(b *testing.B) {
	backend := vips.NewBackend(vips.BackendConfig{})
	defer backend.Shutdown()
	benchDecode(b, backend, makeJPEG(b, 4000, 3000), 1)
}

// ─── Subsampled decode ────────────────────────────────────────────────────────

func BenchmarkDecodeSample4_Stdlib_4000x3000(b *testing.B) {
	benchDecode(b, decoder.NewJPEG(), makeJPEG(b, 4000, 3000), 4)
}

func BenchmarkDecodeSample4_Vips_4000x3000(b *testing.B) {
	backend := vips.NewBackend(vips.BackendConfig{})
	defer backend.Shutdown()
	benchDecode(b, backend, makeJPEG(b, 4000, 3000), 4)
}

// ─── Encode ───────────────────────────────────────────────────────────────────

func benchEncode(b *testing.B, e core.Encoder) {
	b.Helper()
	raw := makeJPEG(b, 1920, 1080)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Encode(context.Background(), img, core.JPEG(80)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncode_Stdlib_1920x1080(b *testing.B) {
	benchEncode(b, encoder.NewJPEG())
}

func BenchmarkEncode_Vips_1920x1080(b *testing.B) {
	backend := vips.NewBackend(vips.BackendConfig{})
	defer backend.Shutdown()
	benchEncode(b, backend)
}
