package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixeldesk/internal/domain"
	"github.com/dunamismax/pixeldesk/internal/pipeline"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type renderFlags struct {
	output     string
	preset     string
	maxPixels  int
	width      int
	height     int
	keepAspect bool
	scale      int
	rotate     int
	flipH      bool
	flipV      bool
	grayscale  bool
	sepia      bool
	brightness int
	contrast   int
	saturation int
	blur       int
	format     string
	quality    float64

	watermarkText     string
	watermarkPosition string
	watermarkOpacity  float64
	watermarkFontSize int
}

func newRenderCmd() *cobra.Command {
	f := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "render <input>",
		Short: "Render one image through the transform pipeline",
		Long: `Render decodes <input>, applies the geometric, photometric and watermark
stages and writes the encoded result.

When --format is not given the format follows the output file extension,
then the input format.

Examples:
  pixeldesk render photo.png -o thumb.jpg --width 320 --keep-aspect
  pixeldesk render photo.jpg -o out.png --rotate 90 --grayscale
  pixeldesk render photo.jpg -o out.jpg --preset web.yaml --watermark "(c) 2026"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, f, args[0])
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "output file path (required)")
	fl.StringVar(&f.preset, "preset", "", "YAML file with render settings; flags override it")
	fl.IntVar(&f.maxPixels, "max-pixels", pipeline.DefaultMaxSurfacePixels, "largest drawing surface in pixels")
	fl.IntVar(&f.width, "width", 0, "output width in pixels")
	fl.IntVar(&f.height, "height", 0, "output height in pixels")
	fl.BoolVar(&f.keepAspect, "keep-aspect", false, "derive the missing dimension from the source aspect ratio")
	fl.IntVar(&f.scale, "scale", 0, "scale percent applied when no size is set")
	fl.IntVar(&f.rotate, "rotate", 0, "rotation in degrees, clockwise")
	fl.BoolVar(&f.flipH, "flip-h", false, "mirror horizontally")
	fl.BoolVar(&f.flipV, "flip-v", false, "mirror vertically")
	fl.BoolVar(&f.grayscale, "grayscale", false, "convert to grayscale")
	fl.BoolVar(&f.sepia, "sepia", false, "apply a sepia tone")
	fl.IntVar(&f.brightness, "brightness", 100, "brightness percent")
	fl.IntVar(&f.contrast, "contrast", 100, "contrast percent")
	fl.IntVar(&f.saturation, "saturation", 100, "saturation percent")
	fl.IntVar(&f.blur, "blur", 0, "gaussian blur radius, 0 to 10")
	fl.StringVarP(&f.format, "format", "f", "", "output format: jpeg, png, webp, bmp, gif, tiff")
	fl.Float64VarP(&f.quality, "quality", "q", pipeline.DefaultConfig().Quality, "lossy quality in [0, 1]")
	fl.StringVar(&f.watermarkText, "watermark", "", "watermark text")
	fl.StringVar(&f.watermarkPosition, "watermark-position", string(pipeline.PositionBottomRight), "watermark position")
	fl.Float64Var(&f.watermarkOpacity, "watermark-opacity", 0.5, "watermark opacity in [0, 1]")
	fl.IntVar(&f.watermarkFontSize, "watermark-font-size", 24, "watermark font size in pixels")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runRender(cmd *cobra.Command, f *renderFlags, input string) error {
	settings, err := loadPreset(f.preset)
	if err != nil {
		return err
	}
	applyFlags(cmd, f, &settings)
	if settings.Format == "" {
		if format, err := pipeline.ParseFormat(filepath.Ext(f.output)); err == nil {
			settings.Format = string(format)
		}
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	in, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	renderer := pipeline.NewRenderer(pipeline.WithMaxPixels(f.maxPixels))
	src, err := renderer.Decode(in)
	if err != nil {
		return fmt.Errorf("decode %s: %w", input, err)
	}

	cfg, wm, err := renderer.StepConfig(settings, src.Format())
	if err != nil {
		return err
	}
	out, err := renderer.Render(src, cfg, wm)
	if err != nil {
		return err
	}

	if err := os.WriteFile(f.output, out.Data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s format=%s size=%dx%d bytes=%d\n", f.output, out.Format, out.Width, out.Height, out.Size)
	return nil
}

func loadPreset(path string) (domain.RenderSettings, error) {
	var settings domain.RenderSettings
	if strings.TrimSpace(path) == "" {
		return settings, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("read preset: %w", err)
	}
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return settings, fmt.Errorf("parse preset %s: %w", path, err)
	}
	return settings, nil
}

// applyFlags overlays only the flags the user actually set.
func applyFlags(cmd *cobra.Command, f *renderFlags, s *domain.RenderSettings) {
	changed := cmd.Flags().Changed
	if changed("width") {
		s.Width = domain.Int(f.width)
	}
	if changed("height") {
		s.Height = domain.Int(f.height)
	}
	if changed("keep-aspect") {
		s.KeepAspect = f.keepAspect
	}
	if changed("scale") {
		s.ScalePercent = f.scale
	}
	if changed("rotate") {
		s.Rotation = f.rotate
	}
	if changed("flip-h") {
		s.FlipHorizontal = f.flipH
	}
	if changed("flip-v") {
		s.FlipVertical = f.flipV
	}
	if changed("grayscale") {
		s.Grayscale = f.grayscale
	}
	if changed("sepia") {
		s.Sepia = f.sepia
	}
	if changed("brightness") {
		s.Brightness = domain.Int(f.brightness)
	}
	if changed("contrast") {
		s.Contrast = domain.Int(f.contrast)
	}
	if changed("saturation") {
		s.Saturation = domain.Int(f.saturation)
	}
	if changed("blur") {
		s.Blur = f.blur
	}
	if changed("format") {
		s.Format = f.format
	}
	if changed("quality") {
		s.Quality = domain.Float(f.quality)
	}

	if changed("watermark") {
		if s.Watermark == nil {
			s.Watermark = &domain.Watermark{}
		}
		s.Watermark.Text = f.watermarkText
	}
	if s.Watermark == nil {
		return
	}
	if changed("watermark-position") {
		s.Watermark.Position = f.watermarkPosition
	}
	if changed("watermark-opacity") {
		s.Watermark.Opacity = domain.Float(f.watermarkOpacity)
	}
	if changed("watermark-font-size") {
		s.Watermark.FontSize = f.watermarkFontSize
	}
}

// ExitCode maps an error returned by the command tree to a process status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pipeline.ErrInvalidDimensions),
		errors.Is(err, pipeline.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrExplicitZeroSize):
		return 2
	default:
		return 1
	}
}
