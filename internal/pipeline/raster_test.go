package pipeline

import (
	"bytes"
	"errors"
	"image"
	"testing"
)

func TestDecodeRejectsOversizedHeaderBeforeDecoding(t *testing.T) {
	data := pngHeader(100_000, 100_000)

	_, err := DecodeSourceBytes(data)
	if !errors.Is(err, ErrDrawingSurfaceUnavailable) {
		t.Fatalf("expected ErrDrawingSurfaceUnavailable from the header check, got %v", err)
	}
	if errors.Is(err, ErrInvalidSource) {
		t.Fatalf("pixel data was read before the size check: %v", err)
	}
}

func TestRendererDecodeUsesItsSurfaceLimit(t *testing.T) {
	data := encodePNGBytes(t, gradientNRGBA(20, 10, true))

	if _, err := NewRenderer(WithMaxPixels(199)).DecodeBytes(data); !errors.Is(err, ErrDrawingSurfaceUnavailable) {
		t.Fatalf("expected ErrDrawingSurfaceUnavailable under a 199 pixel cap, got %v", err)
	}

	src, err := NewRenderer(WithMaxPixels(200)).Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode at the cap: %v", err)
	}
	if src.Width() != 20 || src.Height() != 10 || src.Format() != "png" {
		t.Fatalf("unexpected source %dx%d format=%q", src.Width(), src.Height(), src.Format())
	}
}

func TestDecodeReplaysHeaderBytes(t *testing.T) {
	want := gradientNRGBA(9, 7, false)
	src, err := DecodeSource(bytes.NewReader(encodePNGBytes(t, want)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(src.img.Pix, want.Pix) {
		t.Fatal("decoded pixels differ from the encoded image")
	}
	if src.img.Rect != image.Rect(0, 0, 9, 7) {
		t.Fatalf("unexpected bounds %v", src.img.Rect)
	}
}

func TestProcessorDecodesUnderRendererLimit(t *testing.T) {
	p, err := NewLocalProcessor(t.TempDir(), NewRenderer(WithMaxPixels(10)))
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	if _, ok := p.decoder.(*Renderer); !ok {
		t.Fatalf("expected the renderer to decode sources, got %T", p.decoder)
	}
	if _, err := p.decoder.DecodeBytes(encodePNGBytes(t, gradientNRGBA(4, 4, true))); !errors.Is(err, ErrDrawingSurfaceUnavailable) {
		t.Fatalf("expected ErrDrawingSurfaceUnavailable, got %v", err)
	}
}
