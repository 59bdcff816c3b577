package pipeline

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
)

var (
	ErrInvalidDimensions         = errors.New("invalid output dimensions")
	ErrUnsupportedFormat         = errors.New("unsupported output format")
	ErrDrawingSurfaceUnavailable = errors.New("drawing surface unavailable")
	ErrInvalidRotation           = errors.New("rotation must be one of 0, 90, 180, 270")
	ErrInvalidWatermark          = errors.New("invalid watermark settings")
	ErrInvalidSource             = errors.New("invalid source image")
	ErrInvalidFilter             = errors.New("filter value out of range")
)

// DefaultQuality is used when Quality is outside [0, 1].
const DefaultQuality = 0.92

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatBMP  Format = "bmp"
	FormatGIF  Format = "gif"
	FormatTIFF Format = "tiff"
)

// Formats lists every format the pipeline knows about, in display order.
var Formats = []Format{FormatJPEG, FormatPNG, FormatWebP, FormatBMP, FormatGIF, FormatTIFF}

// ParseFormat accepts a short name ("jpg", "png"), an extension (".tif") or
// a MIME type ("image/webp").
func ParseFormat(in string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(in))
	name = strings.TrimPrefix(name, "image/")
	name = strings.TrimPrefix(name, ".")
	switch name {
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	case "bmp", "x-ms-bmp":
		return FormatBMP, nil
	case "gif":
		return FormatGIF, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, in)
	}
}

func (f Format) MIME() string {
	return "image/" + string(f)
}

func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

func (f Format) Lossy() bool {
	return f == FormatJPEG || f == FormatWebP
}

type Position string

const (
	PositionTopLeft     Position = "top-left"
	PositionTopRight    Position = "top-right"
	PositionBottomLeft  Position = "bottom-left"
	PositionBottomRight Position = "bottom-right"
	PositionCenter      Position = "center"
)

// Rect selects a sub-rectangle of the source in source pixel coordinates.
type Rect struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Config is the full set of transform settings for one run. Zero Width and
// Height mean "use the source size"; the percent fields must be set
// explicitly, so build values from DefaultConfig.
type Config struct {
	Width        int
	Height       int
	KeepAspect   bool
	ScalePercent int
	Crop         *Rect

	Rotation       int
	FlipHorizontal bool
	FlipVertical   bool

	Grayscale  bool
	Sepia      bool
	Brightness int
	Contrast   int
	Saturation int
	BlurRadius int

	Format  Format
	Quality float64
}

type Watermark struct {
	Text     string
	Position Position
	Opacity  float64
	FontSize int
}

func DefaultConfig() Config {
	return Config{
		Brightness: 100,
		Contrast:   100,
		Saturation: 100,
		Format:     FormatJPEG,
		Quality:    0.9,
	}
}

func DefaultWatermark() Watermark {
	return Watermark{
		Text:     "Watermark",
		Position: PositionBottomRight,
		Opacity:  0.5,
		FontSize: 24,
	}
}

func (c Config) Validate() error {
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, c.Width, c.Height)
	}
	if c.ScalePercent < 0 {
		return fmt.Errorf("%w: scale %d%%", ErrInvalidDimensions, c.ScalePercent)
	}
	if c.Crop != nil && (c.Crop.Width <= 0 || c.Crop.Height <= 0) {
		return fmt.Errorf("%w: crop %dx%d", ErrInvalidDimensions, c.Crop.Width, c.Crop.Height)
	}
	switch c.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("%w: got %d", ErrInvalidRotation, c.Rotation)
	}
	if err := checkPercent("brightness", c.Brightness); err != nil {
		return err
	}
	if err := checkPercent("contrast", c.Contrast); err != nil {
		return err
	}
	if err := checkPercent("saturation", c.Saturation); err != nil {
		return err
	}
	if c.BlurRadius < 0 || c.BlurRadius > 10 {
		return fmt.Errorf("%w: blur radius must be within 0..10, got %d", ErrInvalidFilter, c.BlurRadius)
	}
	if _, err := ParseFormat(string(c.Format)); err != nil {
		return err
	}
	return nil
}

func checkPercent(name string, v int) error {
	if v < 0 || v > 200 {
		return fmt.Errorf("%w: %s must be within 0..200, got %d", ErrInvalidFilter, name, v)
	}
	return nil
}

func (w Watermark) Validate() error {
	switch w.Position {
	case PositionTopLeft, PositionTopRight, PositionBottomLeft, PositionBottomRight, PositionCenter:
	default:
		return fmt.Errorf("%w: position %q", ErrInvalidWatermark, w.Position)
	}
	if w.FontSize <= 0 {
		return fmt.Errorf("%w: font size %d", ErrInvalidWatermark, w.FontSize)
	}
	if w.Opacity < 0 || w.Opacity > 1 {
		return fmt.Errorf("%w: opacity %.2f", ErrInvalidWatermark, w.Opacity)
	}
	return nil
}

// effectiveQuality maps out-of-range values to DefaultQuality.
func (c Config) effectiveQuality() float64 {
	if math.IsNaN(c.Quality) || c.Quality < 0 || c.Quality > 1 {
		return DefaultQuality
	}
	return c.Quality
}

// cropBounds returns the region of src the geometric stage reads from.
func (c Config) cropBounds(src image.Rectangle) (image.Rectangle, error) {
	if c.Crop == nil {
		return src, nil
	}
	r := image.Rect(c.Crop.X, c.Crop.Y, c.Crop.X+c.Crop.Width, c.Crop.Y+c.Crop.Height).Intersect(src)
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: crop %+v outside source %v", ErrInvalidDimensions, *c.Crop, src)
	}
	return r, nil
}

// outputSize resolves the target surface size for a source region of
// srcW x srcH.
func (c Config) outputSize(srcW, srcH int) (int, int, error) {
	w, h := c.Width, c.Height
	switch {
	case w == 0 && h == 0 && c.ScalePercent > 0:
		w = scaleDim(srcW, float64(c.ScalePercent)/100)
		h = scaleDim(srcH, float64(c.ScalePercent)/100)
	case c.KeepAspect && w > 0 && h == 0:
		h = scaleDim(srcH, float64(w)/float64(srcW))
	case c.KeepAspect && h > 0 && w == 0:
		w = scaleDim(srcW, float64(h)/float64(srcH))
	}
	if w == 0 {
		w = srcW
	}
	if h == 0 {
		h = srcH
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, w, h)
	}
	return w, h, nil
}

func scaleDim(v int, factor float64) int {
	return max(1, int(math.Round(float64(v)*factor)))
}
