package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/dunamismax/pixeldesk/internal/domain"
)

func TestLocalProcessor_FileInTransformFileOut(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	outputDir := filepath.Join(tmp, "out")

	srcBytes := encodePNGBytes(t, gradientNRGBA(240, 120, true))
	if err := os.WriteFile(inputPath, srcBytes, 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	processor, err := NewLocalProcessor(outputDir, nil)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	req := Request{
		JobID:      "job-local-1",
		SourceType: SourceTypeLocalFile,
		ObjectKey:  inputPath,
		Pipeline: []domain.PipelineStep{
			{
				ID: "thumb_small",
				Settings: domain.RenderSettings{
					Width:      domain.Int(80),
					KeepAspect: true,
					Format:     "jpeg",
					Quality:    domain.Float(0.75),
				},
			},
			{
				ID: "watermarked",
				Settings: domain.RenderSettings{
					Watermark: &domain.Watermark{
						Text:     "pixeldesk",
						Opacity:  domain.Float(0.75),
						Position: "bottom-left",
					},
				},
			},
		},
	}

	result, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process request: %v", err)
	}

	if len(result.Outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(result.Outputs))
	}
	if result.SourceBytes != len(srcBytes) || result.SourceWidth != 240 || result.SourceHeight != 120 {
		t.Fatalf("unexpected source stats %+v", result)
	}

	resized := result.Outputs[0]
	if resized.Format != "jpeg" || filepath.Ext(resized.Path) != ".jpg" {
		t.Fatalf("expected jpeg output, got %s at %s", resized.Format, resized.Path)
	}
	verifyImageSize(t, resized.Path, 80, 40)

	watermarked := result.Outputs[1]
	if watermarked.Format != "png" {
		t.Fatalf("expected source format png to be kept, got %s", watermarked.Format)
	}

	watermarkedBytes, err := os.ReadFile(watermarked.Path)
	if err != nil {
		t.Fatalf("read watermarked image: %v", err)
	}
	if bytes.Equal(srcBytes, watermarkedBytes) {
		t.Fatal("expected watermark output to differ from source image bytes")
	}
}

func TestLocalProcessor_UnsupportedSourceType(t *testing.T) {
	processor, err := NewLocalProcessor(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		JobID:      "job-unsupported",
		SourceType: SourceTypeS3Presigned,
		ObjectKey:  "uploads/job/source",
		Pipeline:   []domain.PipelineStep{{ID: "thumb_small"}},
	})
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("expected unsupported source_type error, got %v", err)
	}
}

func TestObjectStoreProcessorWritesUnderPrefix(t *testing.T) {
	store := &memoryObjects{objects: map[string][]byte{
		"uploads/job-9/source": encodePNGBytes(t, gradientNRGBA(30, 30, true)),
	}}
	processor, err := NewObjectStoreProcessor(
		ObjectStoreFetcher{Storage: store},
		ObjectStoreEmitter{Storage: store, OutputPrefix: "renders"},
		nil,
	)
	if err != nil {
		t.Fatalf("new object-store processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{
		JobID:      "job-9",
		SourceType: SourceTypeS3Presigned,
		ObjectKey:  "uploads/job-9/source",
		Pipeline:   []domain.PipelineStep{{ID: "gray/1", Settings: domain.RenderSettings{Grayscale: true, Format: "bmp"}}},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	key := "renders/job-9/gray_1.bmp"
	if result.Outputs[0].Path != key {
		t.Fatalf("expected object key %s, got %s", key, result.Outputs[0].Path)
	}
	if store.types[key] != "image/bmp" {
		t.Fatalf("expected content type image/bmp, got %q", store.types[key])
	}
}

func TestProcessorFailsWholeJobOnBadStep(t *testing.T) {
	store := &memoryObjects{objects: map[string][]byte{
		"src": encodePNGBytes(t, gradientNRGBA(10, 10, true)),
	}}
	processor, err := NewObjectStoreProcessor(ObjectStoreFetcher{Storage: store}, ObjectStoreEmitter{Storage: store}, nil)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		JobID:      "job-bad",
		SourceType: SourceTypeS3Presigned,
		ObjectKey:  "src",
		Pipeline:   []domain.PipelineStep{{ID: "zero", Settings: domain.RenderSettings{Height: domain.Int(0)}}},
	})
	if !errors.Is(err, ErrInvalidDimensions) {
		t.Fatalf("expected ErrInvalidDimensions, got %v", err)
	}
	if len(store.types) != 0 {
		t.Fatalf("expected nothing written, got %v", store.types)
	}
}

type memoryObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func (m *memoryObjects) ReadObject(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (m *memoryObjects) WriteObject(_ context.Context, key string, data []byte, contentType string) error {
	if m.types == nil {
		m.types = make(map[string]string)
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func verifyImageSize(t *testing.T, path string, wantW, wantH int) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open image %s: %v", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode image %s: %v", path, err)
	}

	if b := img.Bounds(); b.Dx() != wantW || b.Dy() != wantH {
		t.Fatalf("expected %dx%d, got %dx%d", wantW, wantH, b.Dx(), b.Dy())
	}
}
