package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixeldesk/internal/domain"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	Pipeline   []domain.PipelineStep
}

type Output struct {
	StepID  string `json:"step_id"`
	Format  string `json:"format"`
	MIME    string `json:"mime"`
	Path    string `json:"path"`
	Bytes   int    `json:"bytes"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Success bool   `json:"success"`
}

type Result struct {
	SourceBytes  int
	SourceWidth  int
	SourceHeight int
	Outputs      []Output
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, step domain.PipelineStep, out *Rendered) (Output, error)
}

// Decoder turns fetched bytes into a source raster. *Renderer implements it
// with its own surface limit.
type Decoder interface {
	DecodeBytes(data []byte) (*SourceRaster, error)
}

type defaultDecoder struct{}

func (defaultDecoder) DecodeBytes(data []byte) (*SourceRaster, error) {
	return DecodeSourceBytes(data)
}

// Processor runs the fetch -> render -> emit stages for one job.
type Processor struct {
	fetcher     Fetcher
	decoder     Decoder
	transformer Transformer
	emitter     Emitter
}

// NewProcessor wires the stages. When transformer also implements Decoder
// it decodes the source too; otherwise the default surface limit applies.
func NewProcessor(fetcher Fetcher, transformer Transformer, emitter Emitter) (*Processor, error) {
	if fetcher == nil || transformer == nil || emitter == nil {
		return nil, errors.New("fetcher, transformer and emitter are required")
	}
	var decoder Decoder = defaultDecoder{}
	if d, ok := transformer.(Decoder); ok {
		decoder = d
	}
	return &Processor{fetcher: fetcher, decoder: decoder, transformer: transformer, emitter: emitter}, nil
}

func NewLocalProcessor(outputDir string, renderer *Renderer) (*Processor, error) {
	if renderer == nil {
		renderer = NewRenderer()
	}
	return NewProcessor(LocalFileFetcher{}, renderer, LocalFileEmitter{OutputDir: outputDir})
}

func NewObjectStoreProcessor(fetcher ObjectStoreFetcher, emitter ObjectStoreEmitter, renderer *Renderer) (*Processor, error) {
	if renderer == nil {
		renderer = NewRenderer()
	}
	return NewProcessor(fetcher, renderer, emitter)
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if len(req.Pipeline) == 0 {
		return Result{}, errors.New("pipeline must contain at least one step")
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}
	src, err := p.decoder.DecodeBytes(sourceBytes)
	if err != nil {
		return Result{}, fmt.Errorf("decode stage: %w", err)
	}

	out := Result{
		SourceBytes:  len(sourceBytes),
		SourceWidth:  src.Width(),
		SourceHeight: src.Height(),
		Outputs:      make([]Output, 0, len(req.Pipeline)),
	}
	for _, step := range req.Pipeline {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		rendered, err := p.transformer.Transform(ctx, src, step)
		if err != nil {
			return Result{}, fmt.Errorf("render stage step=%s: %w", step.ID, err)
		}

		written, err := p.emitter.Emit(ctx, req, step, rendered)
		if err != nil {
			return Result{}, fmt.Errorf("emit stage step=%s: %w", step.ID, err)
		}
		out.Outputs = append(out.Outputs, written)
	}

	return out, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, step domain.PipelineStep, out *Rendered) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}
	if strings.TrimSpace(step.ID) == "" {
		return Output{}, errors.New("pipeline step id is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, OutputFileName(step.ID, out.Format))
	if err := os.WriteFile(fullPath, out.Data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return outputFor(step, out, fullPath), nil
}

// OutputFileName is the file name an emitter stores a step's output under.
func OutputFileName(stepID string, format Format) string {
	return fmt.Sprintf("%s.%s", sanitizePathToken(stepID), format.Extension())
}

func outputFor(step domain.PipelineStep, out *Rendered, path string) Output {
	return Output{
		StepID:  step.ID,
		Format:  string(out.Format),
		MIME:    out.MIME,
		Path:    path,
		Bytes:   out.Size,
		Width:   out.Width,
		Height:  out.Height,
		Success: true,
	}
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
