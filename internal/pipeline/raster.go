package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SourceRaster is a decoded straight-alpha RGBA bitmap with its origin at
// (0,0). Nothing in this package writes to its pixels after construction.
type SourceRaster struct {
	img    *image.NRGBA
	format string
}

// NewSourceRaster copies img into a fresh NRGBA buffer.
func NewSourceRaster(img image.Image) (*SourceRaster, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidSource)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty bounds %v", ErrInvalidSource, b)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+4*b.Dx()], src.Pix[off:off+4*b.Dx()])
		}
	} else {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	}
	return &SourceRaster{img: dst}, nil
}

// DecodeSource decodes any registered format (JPEG, PNG, GIF, WebP, BMP,
// TIFF) into a SourceRaster, refusing sources above DefaultMaxSurfacePixels.
func DecodeSource(r io.Reader) (*SourceRaster, error) {
	return DecodeSourceLimit(r, DefaultMaxSurfacePixels)
}

func DecodeSourceBytes(data []byte) (*SourceRaster, error) {
	return DecodeSource(bytes.NewReader(data))
}

// DecodeSourceLimit reads the image header first and fails with
// ErrDrawingSurfaceUnavailable when the declared size exceeds maxPixels, so
// no pixel buffer is allocated for it. maxPixels <= 0 means the default cap.
func DecodeSourceLimit(r io.Reader, maxPixels int) (*SourceRaster, error) {
	var header bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &header))
	if err != nil {
		return nil, fmt.Errorf("%w: decode header: %v", ErrInvalidSource, err)
	}
	if err := checkSurface(cfg.Width, cfg.Height, maxPixels); err != nil {
		return nil, fmt.Errorf("source %w", err)
	}

	img, format, err := image.Decode(io.MultiReader(&header, r))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidSource, err)
	}
	src, err := NewSourceRaster(img)
	if err != nil {
		return nil, err
	}
	src.format = format
	return src, nil
}

func (s *SourceRaster) Width() int  { return s.img.Rect.Dx() }
func (s *SourceRaster) Height() int { return s.img.Rect.Dy() }

// Format is the name of the decoder that produced the raster, or "" when it
// was built from an in-memory image.
func (s *SourceRaster) Format() string { return s.format }

// Image exposes the pixels read-only. Callers must not modify the result.
func (s *SourceRaster) Image() image.Image { return s.img }

// Pix returns a copy of the interleaved RGBA bytes.
func (s *SourceRaster) Pix() []byte {
	return append([]byte(nil), s.img.Pix...)
}
