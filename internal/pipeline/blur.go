package pipeline

import (
	"image"
	"math"
)

// gaussianKernel returns normalized weights for offsets -r..r where
// r = ceil(3*sigma).
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	weights := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		weights[i+radius] = w
		sum += w
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// gaussianBlur blurs img in place with sigma = radius pixels. The passes run
// on premultiplied values so transparent pixels do not bleed colour; edges
// are clamped.
func gaussianBlur(img *image.NRGBA, radius int) {
	if radius <= 0 {
		return
	}
	b := img.Rect
	w, h := b.Dx(), b.Dy()
	kernel := gaussianKernel(float64(radius))
	half := len(kernel) / 2

	buf := make([]float64, w*h*4)
	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			a := float64(row[4*x+3])
			o := (y*w + x) * 4
			buf[o] = float64(row[4*x]) * a / 255
			buf[o+1] = float64(row[4*x+1]) * a / 255
			buf[o+2] = float64(row[4*x+2]) * a / 255
			buf[o+3] = a
		}
	}

	tmp := make([]float64, len(buf))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [4]float64
			for k, wt := range kernel {
				sx := clamp(x+k-half, 0, w-1)
				o := (y*w + sx) * 4
				acc[0] += buf[o] * wt
				acc[1] += buf[o+1] * wt
				acc[2] += buf[o+2] * wt
				acc[3] += buf[o+3] * wt
			}
			copy(tmp[(y*w+x)*4:], acc[:])
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [4]float64
			for k, wt := range kernel {
				sy := clamp(y+k-half, 0, h-1)
				o := (sy*w + x) * 4
				acc[0] += tmp[o] * wt
				acc[1] += tmp[o+1] * wt
				acc[2] += tmp[o+2] * wt
				acc[3] += tmp[o+3] * wt
			}
			copy(buf[(y*w+x)*4:], acc[:])
		}
	}

	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			o := (y*w + x) * 4
			a := toByte(buf[o+3])
			row[4*x+3] = a
			if a == 0 {
				row[4*x], row[4*x+1], row[4*x+2] = 0, 0, 0
				continue
			}
			scale := 255 / buf[o+3]
			row[4*x] = toByte(buf[o] * scale)
			row[4*x+1] = toByte(buf[o+1] * scale)
			row[4*x+2] = toByte(buf[o+2] * scale)
		}
	}
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
