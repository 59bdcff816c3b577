package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/pixeldesk/internal/pipeline"
	"github.com/dunamismax/pixeldesk/internal/preview"
	"github.com/dunamismax/pixeldesk/internal/queue"
	"github.com/dunamismax/pixeldesk/internal/ratelimit"
	"github.com/dunamismax/pixeldesk/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultMaxUploadBytes = 32 << 20

type Server struct {
	logger         *log.Logger
	queueClient    queueEnqueuer
	jobStore       store.JobStore
	storage        objectStorage
	presignTTL     time.Duration
	renderer       *pipeline.Renderer
	previews       *preview.Manager
	rateLimiter    ratelimit.Limiter
	userIDHeader   string
	maxUploadBytes int64
	metrics        *metrics
	tracer         trace.Tracer
	mux            *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueRenderJob(ctx context.Context, payload queue.RenderJobPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

// Options wires the server's collaborators. Zero values fall back to
// in-memory or disabled implementations.
type Options struct {
	Queue          queueEnqueuer
	Jobs           store.JobStore
	Storage        objectStorage
	PresignTTL     time.Duration
	RateLimiter    ratelimit.Limiter
	UserIDHeader   string
	MaxUploadBytes int64
	MaxPixels      int
	PreviewDelay   time.Duration
	PreviewTTL     time.Duration
	// Encoders overrides the build's default encoder set.
	Encoders pipeline.Encoders
}

func NewServer(logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.Storage == nil {
		opts.Storage = unavailableObjectStorage{}
	}
	if opts.Jobs == nil {
		opts.Jobs = store.NewMemoryJobStore()
	}
	if strings.TrimSpace(opts.UserIDHeader) == "" {
		opts.UserIDHeader = "X-User-ID"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}

	m := newMetrics()
	renderOpts := []pipeline.RendererOption{pipeline.WithStageObserver(m)}
	if opts.MaxPixels > 0 {
		renderOpts = append(renderOpts, pipeline.WithMaxPixels(opts.MaxPixels))
	}
	if opts.Encoders != nil {
		renderOpts = append(renderOpts, pipeline.WithEncoders(opts.Encoders))
	}
	renderer := pipeline.NewRenderer(renderOpts...)

	previews := preview.NewManager(renderer, preview.Config{
		Delay: opts.PreviewDelay,
		TTL:   opts.PreviewTTL,
		Hook:  m.observePreview,
	})
	m.trackPreviewSessions(previews.Len)

	s := &Server{
		logger:         logger,
		queueClient:    opts.Queue,
		jobStore:       opts.Jobs,
		storage:        opts.Storage,
		presignTTL:     opts.PresignTTL,
		renderer:       renderer,
		previews:       previews,
		rateLimiter:    opts.RateLimiter,
		userIDHeader:   opts.UserIDHeader,
		maxUploadBytes: opts.MaxUploadBytes,
		metrics:        m,
		tracer:         otel.Tracer("pixeldesk/api"),
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

// Previews exposes the session manager so the caller can run its sweeper.
func (s *Server) Previews() *preview.Manager {
	return s.previews
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("GET /v1/formats", s.handleFormats)

	s.mux.HandleFunc("POST /v1/render", s.handleRender)

	s.mux.HandleFunc("POST /v1/previews", s.handleCreatePreview)
	s.mux.HandleFunc("PUT /v1/previews/{id}/settings", s.handleUpdatePreview)
	s.mux.HandleFunc("GET /v1/previews/{id}", s.handleGetPreview)
	s.mux.HandleFunc("DELETE /v1/previews/{id}", s.handleDeletePreview)

	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("POST /v1/jobs/{id}/start", s.handleStartJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "runtime": pipeline.RuntimeName})
}

func (s *Server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	available := make(map[pipeline.Format]bool, len(pipeline.Formats))
	for _, f := range s.renderer.Encoders().Available() {
		available[f] = true
	}

	formats := make([]map[string]any, 0, len(pipeline.Formats))
	for _, f := range pipeline.Formats {
		formats = append(formats, map[string]any{
			"format":    f,
			"mime":      f.MIME(),
			"extension": f.Extension(),
			"lossy":     f.Lossy(),
			"available": available[f],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"runtime": pipeline.RuntimeName, "formats": formats})
}

func (s *Server) userID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(s.userIDHeader)); v != "" {
		return v
	}
	return "anonymous"
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	return decodeJSONReader(io.LimitReader(r.Body, maxBodyBytes), into)
}

func decodeJSONReader(r io.Reader, into any) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
