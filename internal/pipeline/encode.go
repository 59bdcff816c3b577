package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Encoder serializes a raster. quality is already normalized to [0, 1];
// lossless encoders ignore it.
type Encoder interface {
	Encode(w io.Writer, img image.Image, quality float64) error
}

type EncoderFunc func(w io.Writer, img image.Image, quality float64) error

func (f EncoderFunc) Encode(w io.Writer, img image.Image, quality float64) error {
	return f(w, img, quality)
}

// Encoders maps each available output format to its encoder.
type Encoders map[Format]Encoder

// DefaultEncoders returns the encoders available in this build. WebP is
// present only when built with the govips tag.
func DefaultEncoders() Encoders {
	enc := Encoders{
		FormatJPEG: EncoderFunc(encodeJPEG),
		FormatPNG:  EncoderFunc(encodePNG),
		FormatGIF:  EncoderFunc(encodeGIF),
		FormatBMP:  EncoderFunc(encodeBMP),
		FormatTIFF: EncoderFunc(encodeTIFF),
	}
	registerRuntimeEncoders(enc)
	return enc
}

// Available lists the formats with an encoder, in Formats order.
func (e Encoders) Available() []Format {
	out := make([]Format, 0, len(e))
	for _, f := range Formats {
		if _, ok := e[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

func (e Encoders) encode(img image.Image, format Format, quality float64) ([]byte, error) {
	enc, ok := e[format]
	if !ok {
		return nil, fmt.Errorf("%w: no %s encoder in this build", ErrUnsupportedFormat, format)
	}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img, quality); err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// lossyQuality maps [0, 1] onto the 1..100 scale used by JPEG and WebP
// encoders.
func lossyQuality(q float64) int {
	return clamp(int(math.Round(q*100)), 1, 100)
}

func encodeJPEG(w io.Writer, img image.Image, quality float64) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: lossyQuality(quality)})
}

func encodePNG(w io.Writer, img image.Image, _ float64) error {
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	return encoder.Encode(w, img)
}

func encodeGIF(w io.Writer, img image.Image, _ float64) error {
	return gif.Encode(w, img, &gif.Options{NumColors: 256})
}

func encodeBMP(w io.Writer, img image.Image, _ float64) error {
	return bmp.Encode(w, img)
}

func encodeTIFF(w io.Writer, img image.Image, _ float64) error {
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
