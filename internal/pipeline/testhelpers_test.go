package pipeline

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// gradientNRGBA builds a deterministic image with varying alpha.
func gradientNRGBA(w, h int, opaque bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := uint8(255)
			if !opaque {
				a = uint8(55 + (x*7+y*13)%200)
			}
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 255) / max(1, w-1)),
				G: uint8((y * 255) / max(1, h-1)),
				B: uint8((x*31 + y*17) % 256),
				A: a,
			})
		}
	}
	return img
}

func mustSource(t testing.TB, img image.Image) *SourceRaster {
	t.Helper()

	src, err := NewSourceRaster(img)
	if err != nil {
		t.Fatalf("new source raster: %v", err)
	}
	return src
}

func solidSource(t testing.TB, w, h int, c color.NRGBA) *SourceRaster {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return mustSource(t, img)
}

func pngConfig() Config {
	cfg := DefaultConfig()
	cfg.Format = FormatPNG
	return cfg
}

func encodePNGBytes(t testing.TB, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func decodeNRGBA(t testing.TB, data []byte) *image.NRGBA {
	t.Helper()

	src, err := DecodeSourceBytes(data)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return src.img
}

func pixelAt(img *image.NRGBA, x, y int) [4]uint8 {
	i := img.PixOffset(x, y)
	return [4]uint8{img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]}
}

// pngHeader returns a PNG signature and IHDR chunk declaring w x h with no
// image data, so only header reads can succeed on it.
func pngHeader(w, h uint32) []byte {
	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth; color type, compression, filter, interlace stay 0

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr[:]...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}
