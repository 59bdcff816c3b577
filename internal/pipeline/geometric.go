package pipeline

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// DefaultMaxSurfacePixels bounds a single drawing surface (about 40 MP).
const DefaultMaxSurfacePixels = 40_000_000

// checkSurface reports whether the host can provide a w x h surface.
func checkSurface(w, h, maxPixels int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, w, h)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxSurfacePixels
	}
	if w > maxPixels/h {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDrawingSurfaceUnavailable, w, h, maxPixels)
	}
	return nil
}

// newSurface allocates a transparent w x h surface or reports that the host
// cannot provide one.
func newSurface(w, h, maxPixels int) (*image.NRGBA, error) {
	if err := checkSurface(w, h, maxPixels); err != nil {
		return nil, err
	}
	return image.NewNRGBA(image.Rect(0, 0, w, h)), nil
}

// geometricTransform draws the (optionally cropped) source onto a fresh
// surface of the configured size, with rotation and flips folded into the
// same matrix as the resize.
func geometricTransform(src *SourceRaster, cfg Config, maxPixels int) (*image.NRGBA, error) {
	sr, err := cfg.cropBounds(src.img.Rect)
	if err != nil {
		return nil, err
	}
	w, h, err := cfg.outputSize(sr.Dx(), sr.Dy())
	if err != nil {
		return nil, err
	}
	dst, err := newSurface(w, h, maxPixels)
	if err != nil {
		return nil, err
	}

	s2d := surfaceMatrix(sr, w, h, cfg.Rotation, cfg.FlipHorizontal, cfg.FlipVertical)
	if sr.Dx() == w && sr.Dy() == h {
		nearestTransform(dst, s2d, src.img, sr)
		return dst, nil
	}
	draw.BiLinear.Transform(dst, s2d, src.img, sr, draw.Src, nil)
	return dst, nil
}

// surfaceMatrix maps source coordinates to surface coordinates:
// center * rotate * flip * uncenter * scale-to-fill.
func surfaceMatrix(sr image.Rectangle, w, h, rotation int, flipH, flipV bool) f64.Aff3 {
	sx := float64(w) / float64(sr.Dx())
	sy := float64(h) / float64(sr.Dy())
	fill := f64.Aff3{
		sx, 0, -float64(sr.Min.X) * sx,
		0, sy, -float64(sr.Min.Y) * sy,
	}

	cos, sin := quarterTurn(rotation)
	fx, fy := 1.0, 1.0
	if flipH {
		fx = -1
	}
	if flipV {
		fy = -1
	}

	cx, cy := float64(w)/2, float64(h)/2
	m := f64.Aff3{1, 0, cx, 0, 1, cy}
	m = mulAff3(m, f64.Aff3{cos, -sin, 0, sin, cos, 0})
	m = mulAff3(m, f64.Aff3{fx, 0, 0, 0, fy, 0})
	m = mulAff3(m, f64.Aff3{1, 0, -cx, 0, 1, -cy})
	return mulAff3(m, fill)
}

// quarterTurn returns exact cos/sin for clockwise quarter turns so that
// composed matrices stay integral.
func quarterTurn(deg int) (float64, float64) {
	switch deg {
	case 90:
		return 0, 1
	case 180:
		return -1, 0
	case 270:
		return 0, -1
	case 0:
		return 1, 0
	default:
		rad := float64(deg) * math.Pi / 180
		return math.Cos(rad), math.Sin(rad)
	}
}

// mulAff3 returns m*n, i.e. n is applied first.
func mulAff3(m, n f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		m[0]*n[0] + m[1]*n[3], m[0]*n[1] + m[1]*n[4], m[0]*n[2] + m[1]*n[5] + m[2],
		m[3]*n[0] + m[4]*n[3], m[3]*n[1] + m[4]*n[4], m[3]*n[2] + m[4]*n[5] + m[5],
	}
}

func invertAff3(m f64.Aff3) f64.Aff3 {
	det := m[0]*m[4] - m[1]*m[3]
	return f64.Aff3{
		m[4] / det, -m[1] / det, (m[1]*m[5] - m[4]*m[2]) / det,
		-m[3] / det, m[0] / det, (m[3]*m[2] - m[0]*m[5]) / det,
	}
}

// nearestTransform samples src at the pixel centre each destination pixel
// maps back to. Pixels are copied byte for byte, so axis-aligned mappings
// without scaling reproduce the source exactly.
func nearestTransform(dst *image.NRGBA, s2d f64.Aff3, src *image.NRGBA, sr image.Rectangle) {
	d2s := invertAff3(s2d)
	b := dst.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		dy := float64(y) + 0.5
		row := dst.Pix[dst.PixOffset(b.Min.X, y):]
		for x := b.Min.X; x < b.Max.X; x++ {
			dx := float64(x) + 0.5
			sx := int(math.Floor(d2s[0]*dx + d2s[1]*dy + d2s[2]))
			sy := int(math.Floor(d2s[3]*dx + d2s[4]*dy + d2s[5]))
			if !(image.Point{X: sx, Y: sy}).In(sr) {
				continue
			}
			i := src.PixOffset(sx, sy)
			copy(row[4*(x-b.Min.X):4*(x-b.Min.X)+4], src.Pix[i:i+4])
		}
	}
}
