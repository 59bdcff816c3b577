package pipeline

import (
	"bytes"
	"errors"
	"image"
	"testing"
)

func TestDefaultEncodersRoundTrip(t *testing.T) {
	src := mustSource(t, gradientNRGBA(24, 16, true))
	r := NewRenderer()

	for _, format := range r.Encoders().Available() {
		t.Run(string(format), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Format = format
			out, err := r.Render(src, cfg, nil)
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if out.MIME != "image/"+string(format) {
				t.Fatalf("unexpected mime %s", out.MIME)
			}
			img, name, err := image.Decode(bytes.NewReader(out.Data))
			if err != nil {
				t.Fatalf("decode %s output: %v", format, err)
			}
			if name != string(format) {
				t.Fatalf("expected decoder %s, got %s", format, name)
			}
			if b := img.Bounds(); b.Dx() != 24 || b.Dy() != 16 {
				t.Fatalf("expected 24x16, got %v", b)
			}
		})
	}
}

func TestStdlibEncodersAlwaysPresent(t *testing.T) {
	enc := DefaultEncoders()
	for _, f := range []Format{FormatJPEG, FormatPNG, FormatGIF, FormatBMP, FormatTIFF} {
		if _, ok := enc[f]; !ok {
			t.Fatalf("expected %s encoder", f)
		}
	}
	if _, ok := enc[FormatWebP]; ok != (RuntimeName == "govips") {
		t.Fatalf("webp availability %v does not match runtime %s", ok, RuntimeName)
	}
}

func TestJPEGQualityAffectsSize(t *testing.T) {
	src := mustSource(t, gradientNRGBA(64, 64, true))
	cfg := DefaultConfig()
	cfg.Format = FormatJPEG

	cfg.Quality = 0.1
	low, err := Render(src, cfg, nil)
	if err != nil {
		t.Fatalf("render low: %v", err)
	}
	cfg.Quality = 1
	high, err := Render(src, cfg, nil)
	if err != nil {
		t.Fatalf("render high: %v", err)
	}
	if low.Size >= high.Size {
		t.Fatalf("expected quality 0.1 (%d bytes) to be smaller than 1.0 (%d bytes)", low.Size, high.Size)
	}
}

func TestOutOfRangeQualityUsesDefault(t *testing.T) {
	src := mustSource(t, gradientNRGBA(32, 32, true))
	cfg := DefaultConfig()

	cfg.Quality = DefaultQuality
	want, err := Render(src, cfg, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, q := range []float64{-1, 1.5} {
		cfg.Quality = q
		got, err := Render(src, cfg, nil)
		if err != nil {
			t.Fatalf("render q=%v: %v", q, err)
		}
		if !bytes.Equal(got.Data, want.Data) {
			t.Fatalf("quality %v should encode like %v", q, DefaultQuality)
		}
	}
}

func TestLosslessIgnoresQuality(t *testing.T) {
	src := mustSource(t, gradientNRGBA(16, 16, true))
	cfg := pngConfig()

	cfg.Quality = 0.1
	a, err := Render(src, cfg, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	cfg.Quality = 0.9
	b, err := Render(src, cfg, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.Equal(a.Data, b.Data) {
		t.Fatal("png output should not depend on quality")
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"jpg":        FormatJPEG,
		"JPEG":       FormatJPEG,
		"image/jpeg": FormatJPEG,
		".png":       FormatPNG,
		"image/webp": FormatWebP,
		"image/bmp":  FormatBMP,
		"gif":        FormatGIF,
		"tif":        FormatTIFF,
		"image/tiff": FormatTIFF,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseFormat(%q): expected %s, got %s", in, want, got)
		}
	}

	if _, err := ParseFormat("image/svg+xml"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestFormatMetadata(t *testing.T) {
	if FormatJPEG.Extension() != "jpg" || FormatTIFF.Extension() != "tiff" {
		t.Fatal("unexpected extensions")
	}
	if !FormatJPEG.Lossy() || !FormatWebP.Lossy() || FormatPNG.Lossy() {
		t.Fatal("unexpected lossy classification")
	}
	if lossyQuality(0) != 1 || lossyQuality(0.92) != 92 || lossyQuality(1) != 100 {
		t.Fatal("unexpected lossy quality mapping")
	}
}
