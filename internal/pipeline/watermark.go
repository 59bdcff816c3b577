package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const watermarkPadding = 20

var (
	sansOnce sync.Once
	sansFont *opentype.Font
	sansErr  error
)

func watermarkFont() (*opentype.Font, error) {
	sansOnce.Do(func() {
		sansFont, sansErr = opentype.Parse(goregular.TTF)
	})
	return sansFont, sansErr
}

// WatermarkOrigin returns the baseline-left point where the text starts.
func WatermarkOrigin(pos Position, width, height int, textWidth float64, fontSize int) (float64, float64) {
	w, h := float64(width), float64(height)
	top := float64(fontSize + watermarkPadding)
	bottom := h - watermarkPadding
	left := float64(watermarkPadding)
	right := w - textWidth - watermarkPadding

	switch pos {
	case PositionTopLeft:
		return left, top
	case PositionTopRight:
		return right, top
	case PositionBottomLeft:
		return left, bottom
	case PositionCenter:
		return (w - textWidth) / 2, h / 2
	default:
		return right, bottom
	}
}

// MeasureText returns the advance width in pixels of text at fontSize.
func MeasureText(text string, fontSize int) (float64, error) {
	face, err := watermarkFace(fontSize)
	if err != nil {
		return 0, err
	}
	defer face.Close()
	return fixedToFloat(font.MeasureString(face, text)), nil
}

func watermarkFace(fontSize int) (font.Face, error) {
	f, err := watermarkFont()
	if err != nil {
		return nil, fmt.Errorf("load watermark font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(fontSize),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("build watermark face size=%d: %w", fontSize, err)
	}
	return face, nil
}

// drawWatermark composites white text once over img.
func drawWatermark(img *image.NRGBA, wm Watermark) error {
	if strings.TrimSpace(wm.Text) == "" {
		return nil
	}
	text := wm.Text
	if err := wm.Validate(); err != nil {
		return err
	}

	face, err := watermarkFace(wm.FontSize)
	if err != nil {
		return err
	}
	defer face.Close()

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: uint8(math.Round(wm.Opacity * 255))}),
		Face: face,
	}
	textWidth := fixedToFloat(drawer.MeasureString(text))
	x, y := WatermarkOrigin(wm.Position, img.Rect.Dx(), img.Rect.Dy(), textWidth, wm.FontSize)
	drawer.Dot = fixed.Point26_6{X: floatToFixed(x), Y: floatToFixed(y)}
	drawer.DrawString(text)
	return nil
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

func floatToFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}
