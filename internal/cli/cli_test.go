package cli

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dunamismax/pixeldesk/internal/domain"
	"github.com/dunamismax/pixeldesk/internal/pipeline"
)

func writeTestPNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 80, A: 255})
		}
	}
	path := filepath.Join(dir, "input.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create input: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode input: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeFile(t *testing.T, path string) (image.Image, string) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return img, format
}

func TestRootCommand(t *testing.T) {
	root := NewRootCmd()
	if root.Use != "pixeldesk" {
		t.Fatalf("expected Use pixeldesk, got %q", root.Use)
	}
	for _, name := range []string{"render", "formats", "version"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Fatalf("expected subcommand %q, err=%v", name, err)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	old := version
	defer func() { version = old }()
	SetVersion("1.2.3")

	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != "pixeldesk 1.2.3" {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestRenderInfersFormatFromExtension(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 20, 10)
	output := filepath.Join(dir, "out.jpg")

	if _, err := execute(t, "render", input, "-o", output, "--width", "10", "--keep-aspect"); err != nil {
		t.Fatalf("render: %v", err)
	}

	img, format := decodeFile(t, output)
	if format != "jpeg" {
		t.Fatalf("expected jpeg output, got %s", format)
	}
	if b := img.Bounds(); b.Dx() != 10 || b.Dy() != 5 {
		t.Fatalf("expected 10x5, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderHalfTurnMovesCorners(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 8, 4)
	output := filepath.Join(dir, "out.png")

	if _, err := execute(t, "render", input, "-o", output, "--rotate", "180"); err != nil {
		t.Fatalf("render: %v", err)
	}
	img, _ := decodeFile(t, output)
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Fatalf("expected 8x4 canvas, got %dx%d", b.Dx(), b.Dy())
	}
	got := color.NRGBAModel.Convert(img.At(0, 0)).(color.NRGBA)
	want := color.NRGBA{R: 70, G: 30, B: 80, A: 255}
	if got != want {
		t.Fatalf("expected source corner %v at origin, got %v", want, got)
	}
}

func TestRenderPresetWithFlagOverride(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 20, 20)
	preset := filepath.Join(dir, "preset.yaml")
	if err := os.WriteFile(preset, []byte("width: 6\nheight: 6\ngrayscale: true\nformat: png\n"), 0o644); err != nil {
		t.Fatalf("write preset: %v", err)
	}
	output := filepath.Join(dir, "out.bin")

	if _, err := execute(t, "render", input, "-o", output, "--preset", preset, "--height", "3"); err != nil {
		t.Fatalf("render: %v", err)
	}

	img, format := decodeFile(t, output)
	if format != "png" {
		t.Fatalf("expected png from preset, got %s", format)
	}
	if b := img.Bounds(); b.Dx() != 6 || b.Dy() != 3 {
		t.Fatalf("expected 6x3, got %dx%d", b.Dx(), b.Dy())
	}
	r, g, bl, _ := img.At(2, 1).RGBA()
	if r != g || g != bl {
		t.Fatalf("expected gray pixel, got %d %d %d", r, g, bl)
	}
}

func TestRenderErrors(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 4, 4)
	output := filepath.Join(dir, "out.png")

	tests := []struct {
		name string
		args []string
		want error
		code int
	}{
		{name: "zero width", args: []string{"--width", "0"}, want: domain.ErrExplicitZeroSize, code: 2},
		{name: "unknown format", args: []string{"--format", "heic"}, want: pipeline.ErrUnsupportedFormat, code: 2},
		{name: "blur out of range", args: []string{"--blur", "11"}, want: pipeline.ErrInvalidFilter, code: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"render", input, "-o", output}, tt.args...)
			_, err := execute(t, args...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if code := ExitCode(err); code != tt.code {
				t.Fatalf("expected exit code %d, got %d", tt.code, code)
			}
		})
	}
}

func TestRenderRequiresOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 4, 4)
	if _, err := execute(t, "render", input); err == nil {
		t.Fatal("expected missing --output error")
	}
}

func TestFormatsCommand(t *testing.T) {
	out, err := execute(t, "formats")
	if err != nil {
		t.Fatalf("formats: %v", err)
	}
	for _, want := range []string{"FORMAT", "jpeg", "image/png", "runtime: " + pipeline.RuntimeName} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
