package pipeline

import (
	"image"
	"image/color"
	"testing"
)

func filterOne(cfg Config, c color.NRGBA) [4]uint8 {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, c)
	photometricFilters(img, cfg)
	return pixelAt(img, 0, 0)
}

func TestPhotometricFilters(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(*Config)
		in   color.NRGBA
		want [4]uint8
	}{
		{"neutral", func(c *Config) {}, color.NRGBA{10, 20, 30, 128}, [4]uint8{10, 20, 30, 128}},
		{"grayscale", func(c *Config) { c.Grayscale = true }, color.NRGBA{10, 20, 31, 200}, [4]uint8{20, 20, 20, 200}},
		{"sepia", func(c *Config) { c.Sepia = true }, color.NRGBA{10, 20, 30, 255}, [4]uint8{25, 22, 17, 255}},
		{"sepia caps at 255", func(c *Config) { c.Sepia = true }, color.NRGBA{250, 250, 250, 255}, [4]uint8{255, 255, 234, 255}},
		{"grayscale then sepia", func(c *Config) { c.Grayscale, c.Sepia = true, true }, color.NRGBA{10, 20, 30, 255}, [4]uint8{27, 24, 19, 255}},
		{"brightness up clamps", func(c *Config) { c.Brightness = 150 }, color.NRGBA{200, 100, 50, 90}, [4]uint8{255, 150, 75, 90}},
		{"brightness zero", func(c *Config) { c.Brightness = 0 }, color.NRGBA{200, 100, 50, 90}, [4]uint8{0, 0, 0, 90}},
		{"brightness max doubles", func(c *Config) { c.Brightness = 200 }, color.NRGBA{100, 127, 128, 255}, [4]uint8{200, 254, 255, 255}},
		{"contrast zero is mid gray", func(c *Config) { c.Contrast = 0 }, color.NRGBA{0, 90, 255, 255}, [4]uint8{128, 128, 128, 255}},
		{"saturation zero is luma", func(c *Config) { c.Saturation = 0 }, color.NRGBA{255, 0, 0, 255}, [4]uint8{54, 54, 54, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.cfg(&cfg)
			if got := filterOne(cfg, tt.in); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestToByteRoundsHalfToEven(t *testing.T) {
	tests := map[float64]uint8{
		-3:    0,
		0.5:   0,
		1.5:   2,
		2.5:   2,
		254.6: 255,
		300:   255,
	}
	for in, want := range tests {
		if got := toByte(in); got != want {
			t.Fatalf("toByte(%v): expected %d, got %d", in, want, got)
		}
	}
}

func TestGaussianBlur(t *testing.T) {
	t.Run("solid stays solid", func(t *testing.T) {
		src := solidSource(t, 12, 9, color.NRGBA{R: 40, G: 80, B: 160, A: 255})
		img := src.img
		gaussianBlur(img, 3)
		for i := 0; i < len(img.Pix); i += 4 {
			if img.Pix[i] != 40 || img.Pix[i+1] != 80 || img.Pix[i+2] != 160 || img.Pix[i+3] != 255 {
				t.Fatalf("pixel %d changed to %v", i/4, img.Pix[i:i+4])
			}
		}
	})

	t.Run("softens an edge", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 10, 1))
		for x := 0; x < 10; x++ {
			v := uint8(0)
			if x >= 5 {
				v = 255
			}
			img.SetNRGBA(x, 0, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
		gaussianBlur(img, 1)
		left, right := pixelAt(img, 4, 0), pixelAt(img, 5, 0)
		if left[0] == 0 || right[0] == 255 {
			t.Fatalf("expected edge pixels to mix, got %v and %v", left, right)
		}
		if left[0] >= right[0] {
			t.Fatalf("expected gradient to stay ordered, got %d >= %d", left[0], right[0])
		}
	})

	t.Run("zero radius is a no-op", func(t *testing.T) {
		img := gradientNRGBA(5, 5, false)
		before := append([]byte(nil), img.Pix...)
		gaussianBlur(img, 0)
		for i := range before {
			if before[i] != img.Pix[i] {
				t.Fatal("radius 0 changed pixels")
			}
		}
	})
}

func TestGaussianKernelIsNormalized(t *testing.T) {
	for _, sigma := range []float64{1, 2.5, 10} {
		k := gaussianKernel(sigma)
		var sum float64
		for _, w := range k {
			sum += w
		}
		if sum < 0.999999 || sum > 1.000001 {
			t.Fatalf("sigma=%v: weights sum to %v", sigma, sum)
		}
		if len(k)%2 != 1 {
			t.Fatalf("sigma=%v: kernel length %d is not odd", sigma, len(k))
		}
	}
}
