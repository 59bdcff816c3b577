package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrExplicitZeroSize = errors.New("width and height must be at least 1 when set")

// RenderSettings is the wire form of one render's configuration. Pointer
// fields distinguish "absent" (take the default) from an explicit value.
type RenderSettings struct {
	Width        *int  `json:"width,omitempty" yaml:"width,omitempty"`
	Height       *int  `json:"height,omitempty" yaml:"height,omitempty"`
	KeepAspect   bool  `json:"keep_aspect,omitempty" yaml:"keep_aspect,omitempty"`
	ScalePercent int   `json:"scale_percent,omitempty" yaml:"scale_percent,omitempty"`
	Crop         *Crop `json:"crop,omitempty" yaml:"crop,omitempty"`

	Rotation       int  `json:"rotation,omitempty" yaml:"rotation,omitempty"`
	FlipHorizontal bool `json:"flip_horizontal,omitempty" yaml:"flip_horizontal,omitempty"`
	FlipVertical   bool `json:"flip_vertical,omitempty" yaml:"flip_vertical,omitempty"`

	Grayscale  bool `json:"grayscale,omitempty" yaml:"grayscale,omitempty"`
	Sepia      bool `json:"sepia,omitempty" yaml:"sepia,omitempty"`
	Brightness *int `json:"brightness,omitempty" yaml:"brightness,omitempty"`
	Contrast   *int `json:"contrast,omitempty" yaml:"contrast,omitempty"`
	Saturation *int `json:"saturation,omitempty" yaml:"saturation,omitempty"`
	Blur       int  `json:"blur,omitempty" yaml:"blur,omitempty"`

	Format  string   `json:"format,omitempty" yaml:"format,omitempty"`
	Quality *float64 `json:"quality,omitempty" yaml:"quality,omitempty"`

	Watermark *Watermark `json:"watermark,omitempty" yaml:"watermark,omitempty"`
}

type Crop struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

type Watermark struct {
	Text     string   `json:"text" yaml:"text"`
	Position string   `json:"position,omitempty" yaml:"position,omitempty"`
	Opacity  *float64 `json:"opacity,omitempty" yaml:"opacity,omitempty"`
	FontSize int      `json:"font_size,omitempty" yaml:"font_size,omitempty"`
}

// Validate checks the shape of the settings. Range checks for the
// transform itself happen when the settings are converted for a render.
func (s RenderSettings) Validate() error {
	if s.Width != nil && *s.Width <= 0 {
		return fmt.Errorf("%w: width=%d", ErrExplicitZeroSize, *s.Width)
	}
	if s.Height != nil && *s.Height <= 0 {
		return fmt.Errorf("%w: height=%d", ErrExplicitZeroSize, *s.Height)
	}
	if s.Watermark != nil && strings.TrimSpace(s.Watermark.Text) == "" {
		return errors.New("watermark.text is required when watermark is set")
	}
	return nil
}

func Int(v int) *int { return &v }

func Float(v float64) *float64 { return &v }
