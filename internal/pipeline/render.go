package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"time"
)

const (
	StageGeometric   = "geometric"
	StagePhotometric = "photometric"
	StageWatermark   = "watermark"
	StageEncode      = "encode"
)

// StageObserver receives the wall time of each stage of a successful or
// failed render.
type StageObserver interface {
	ObserveStage(stage string, d time.Duration)
}

// Rendered is the encoded output of one render.
type Rendered struct {
	Data   []byte
	MIME   string
	Size   int
	Format Format
	Width  int
	Height int
}

type Renderer struct {
	encoders  Encoders
	maxPixels int
	observer  StageObserver
}

type RendererOption func(*Renderer)

func WithEncoders(enc Encoders) RendererOption {
	return func(r *Renderer) { r.encoders = enc }
}

// WithMaxPixels caps the size of any single drawing surface.
func WithMaxPixels(n int) RendererOption {
	return func(r *Renderer) { r.maxPixels = n }
}

func WithStageObserver(o StageObserver) RendererOption {
	return func(r *Renderer) { r.observer = o }
}

func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{
		encoders:  DefaultEncoders(),
		maxPixels: DefaultMaxSurfacePixels,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) Encoders() Encoders {
	return r.encoders
}

// Decode decodes a source under this renderer's surface limit.
func (r *Renderer) Decode(rd io.Reader) (*SourceRaster, error) {
	return DecodeSourceLimit(rd, r.maxPixels)
}

func (r *Renderer) DecodeBytes(data []byte) (*SourceRaster, error) {
	return r.Decode(bytes.NewReader(data))
}

// Render runs crop, geometric, photometric, watermark (when wm is non-nil)
// and encode stages. It either returns a complete result or an error.
func (r *Renderer) Render(src *SourceRaster, cfg Config, wm *Watermark) (*Rendered, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if _, ok := r.encoders[cfg.Format]; !ok {
		return nil, fmt.Errorf("%w: no %s encoder in this build", ErrUnsupportedFormat, cfg.Format)
	}

	img, err := r.raster(src, cfg, wm)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	data, err := r.encoders.encode(img, cfg.Format, cfg.effectiveQuality())
	r.observe(StageEncode, started)
	if err != nil {
		return nil, fmt.Errorf("encode stage: %w", err)
	}

	return &Rendered{
		Data:   data,
		MIME:   cfg.Format.MIME(),
		Size:   len(data),
		Format: cfg.Format,
		Width:  img.Rect.Dx(),
		Height: img.Rect.Dy(),
	}, nil
}

// raster runs every stage except encoding on an already validated cfg.
func (r *Renderer) raster(src *SourceRaster, cfg Config, wm *Watermark) (*image.NRGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrInvalidSource)
	}

	started := time.Now()
	img, err := geometricTransform(src, cfg, r.maxPixels)
	r.observe(StageGeometric, started)
	if err != nil {
		return nil, fmt.Errorf("geometric stage: %w", err)
	}

	started = time.Now()
	photometricFilters(img, cfg)
	gaussianBlur(img, cfg.BlurRadius)
	r.observe(StagePhotometric, started)

	if wm != nil {
		started = time.Now()
		err := drawWatermark(img, *wm)
		r.observe(StageWatermark, started)
		if err != nil {
			return nil, fmt.Errorf("watermark stage: %w", err)
		}
	}
	return img, nil
}

func (r *Renderer) observe(stage string, started time.Time) {
	if r.observer != nil {
		r.observer.ObserveStage(stage, time.Since(started))
	}
}

var defaultRenderer = NewRenderer()

// Render uses a renderer with the default encoders and surface limit.
func Render(src *SourceRaster, cfg Config, wm *Watermark) (*Rendered, error) {
	return defaultRenderer.Render(src, cfg, wm)
}
