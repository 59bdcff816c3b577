package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dunamismax/pixeldesk/internal/domain"
)

// Transformer renders one pipeline step against an already decoded source.
type Transformer interface {
	Transform(ctx context.Context, src *SourceRaster, step domain.PipelineStep) (*Rendered, error)
}

func (r *Renderer) Transform(ctx context.Context, src *SourceRaster, step domain.PipelineStep) (*Rendered, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	cfg, wm, err := r.StepConfig(step.Settings, src.Format())
	if err != nil {
		return nil, err
	}
	return r.Render(src, cfg, wm)
}

// StepConfig converts wire settings into a Config. An empty format keeps the
// source's format when this build can encode it, and falls back to JPEG.
func (r *Renderer) StepConfig(s domain.RenderSettings, sourceFormat string) (Config, *Watermark, error) {
	cfg := DefaultConfig()

	if s.Width != nil {
		if *s.Width <= 0 {
			return Config{}, nil, fmt.Errorf("%w: width=%d", ErrInvalidDimensions, *s.Width)
		}
		cfg.Width = *s.Width
	}
	if s.Height != nil {
		if *s.Height <= 0 {
			return Config{}, nil, fmt.Errorf("%w: height=%d", ErrInvalidDimensions, *s.Height)
		}
		cfg.Height = *s.Height
	}
	cfg.KeepAspect = s.KeepAspect
	cfg.ScalePercent = s.ScalePercent
	if s.Crop != nil {
		cfg.Crop = &Rect{X: s.Crop.X, Y: s.Crop.Y, Width: s.Crop.Width, Height: s.Crop.Height}
	}

	cfg.Rotation = normalizeRotation(s.Rotation)
	cfg.FlipHorizontal = s.FlipHorizontal
	cfg.FlipVertical = s.FlipVertical

	cfg.Grayscale = s.Grayscale
	cfg.Sepia = s.Sepia
	if s.Brightness != nil {
		cfg.Brightness = *s.Brightness
	}
	if s.Contrast != nil {
		cfg.Contrast = *s.Contrast
	}
	if s.Saturation != nil {
		cfg.Saturation = *s.Saturation
	}
	cfg.BlurRadius = s.Blur
	if s.Quality != nil {
		cfg.Quality = *s.Quality
	}

	format, err := r.resolveFormat(s.Format, sourceFormat)
	if err != nil {
		return Config{}, nil, err
	}
	cfg.Format = format

	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}

	if s.Watermark == nil {
		return cfg, nil, nil
	}
	wm := DefaultWatermark()
	wm.Text = s.Watermark.Text
	if p := strings.ToLower(strings.TrimSpace(s.Watermark.Position)); p != "" {
		wm.Position = Position(p)
	}
	if s.Watermark.Opacity != nil {
		wm.Opacity = *s.Watermark.Opacity
	}
	if s.Watermark.FontSize != 0 {
		wm.FontSize = s.Watermark.FontSize
	}
	if err := wm.Validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, &wm, nil
}

func (r *Renderer) resolveFormat(requested, sourceFormat string) (Format, error) {
	if strings.TrimSpace(requested) != "" {
		return ParseFormat(requested)
	}
	if f, err := ParseFormat(sourceFormat); err == nil {
		if _, ok := r.encoders[f]; ok {
			return f, nil
		}
	}
	return FormatJPEG, nil
}

// normalizeRotation folds -90, 450 and friends onto 0..359.
func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}
