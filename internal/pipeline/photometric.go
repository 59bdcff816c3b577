package pipeline

import (
	"image"
	"math"
)

// Sepia coefficients, rows are R', G', B'.
var sepiaMatrix = [3][3]float64{
	{0.393, 0.769, 0.189},
	{0.349, 0.686, 0.168},
	{0.272, 0.534, 0.131},
}

// photometricFilters applies the per-pixel colour filters in place. Each
// filter reads the byte values stored by the previous one; alpha is never
// touched.
func photometricFilters(img *image.NRGBA, cfg Config) {
	if !cfg.Grayscale && !cfg.Sepia && cfg.Brightness == 100 && cfg.Contrast == 100 && cfg.Saturation == 100 {
		return
	}

	brightness := float64(cfg.Brightness) / 100
	contrast := float64(cfg.Contrast) / 100
	saturation := saturateMatrix(float64(cfg.Saturation) / 100)

	b := img.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y) : img.PixOffset(b.Min.X, y)+4*b.Dx()]
		for i := 0; i < len(row); i += 4 {
			r, g, bl := row[i], row[i+1], row[i+2]

			if cfg.Grayscale {
				avg := toByte((float64(r) + float64(g) + float64(bl)) / 3)
				r, g, bl = avg, avg, avg
			}
			if cfg.Sepia {
				r, g, bl = applyMatrix(&sepiaMatrix, r, g, bl)
			}
			if cfg.Brightness != 100 {
				r = toByte(float64(r) * brightness)
				g = toByte(float64(g) * brightness)
				bl = toByte(float64(bl) * brightness)
			}
			if cfg.Contrast != 100 {
				r = toByte((float64(r)-127.5)*contrast + 127.5)
				g = toByte((float64(g)-127.5)*contrast + 127.5)
				bl = toByte((float64(bl)-127.5)*contrast + 127.5)
			}
			if cfg.Saturation != 100 {
				r, g, bl = applyMatrix(&saturation, r, g, bl)
			}

			row[i], row[i+1], row[i+2] = r, g, bl
		}
	}
}

// saturateMatrix is the filter-effects saturate() matrix.
func saturateMatrix(s float64) [3][3]float64 {
	return [3][3]float64{
		{0.213 + 0.787*s, 0.715 - 0.715*s, 0.072 - 0.072*s},
		{0.213 - 0.213*s, 0.715 + 0.285*s, 0.072 - 0.072*s},
		{0.213 - 0.213*s, 0.715 - 0.715*s, 0.072 + 0.928*s},
	}
}

func applyMatrix(m *[3][3]float64, r, g, b uint8) (uint8, uint8, uint8) {
	fr, fg, fb := float64(r), float64(g), float64(b)
	return toByte(m[0][0]*fr + m[0][1]*fg + m[0][2]*fb),
		toByte(m[1][0]*fr + m[1][1]*fg + m[1][2]*fb),
		toByte(m[2][0]*fr + m[2][1]*fg + m[2][2]*fb)
}

// toByte stores v the way a clamped 8-bit canvas buffer does: round half to
// even, then clamp to [0, 255].
func toByte(v float64) uint8 {
	v = math.RoundToEven(v)
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
