//go:build govips && cgo

package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

func Startup() error {
	startupOnce.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelWarning)
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

// RuntimeName identifies the encoder backend compiled into this binary.
const RuntimeName = "govips"

func registerRuntimeEncoders(enc Encoders) {
	enc[FormatWebP] = EncoderFunc(encodeGovipsWebP)
}

// encodeGovipsWebP hands libvips a lossless PNG of the raster and exports it
// as WebP.
func encodeGovipsWebP(w io.Writer, img image.Image, quality float64) error {
	var staged bytes.Buffer
	if err := (&png.Encoder{CompressionLevel: png.NoCompression}).Encode(&staged, img); err != nil {
		return fmt.Errorf("stage png for libvips: %w", err)
	}

	ref, err := vips.NewImageFromBuffer(staged.Bytes())
	if err != nil {
		return fmt.Errorf("load staged image: %w", err)
	}
	defer ref.Close()

	params := vips.NewWebpExportParams()
	params.Quality = lossyQuality(quality)
	data, _, err := ref.ExportWebp(params)
	if err != nil {
		return fmt.Errorf("export webp: %w", err)
	}
	_, err = w.Write(data)
	return err
}
