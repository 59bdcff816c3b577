package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dunamismax/pixeldesk/internal/config"
	"github.com/dunamismax/pixeldesk/internal/domain"
	"github.com/dunamismax/pixeldesk/internal/pipeline"
	"github.com/dunamismax/pixeldesk/internal/queue"
	"github.com/dunamismax/pixeldesk/internal/storage"
	"github.com/dunamismax/pixeldesk/internal/store"
	"github.com/dunamismax/pixeldesk/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  jobProcessor
	objectProcessor jobProcessor
	webhookClient   webhookSender
	jobStore        store.JobStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

type jobProcessor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

// Options are the worker's collaborators. A nil Storage disables
// s3_presigned jobs; nil stores skip status and usage bookkeeping.
type Options struct {
	Queue   config.QueueConfig
	Worker  config.WorkerConfig
	Render  config.RenderConfig
	Storage *storage.Client
	Prefix  string
	Webhook *webhook.Client
	Jobs    store.JobStore
	Usage   store.UsageStore
}

func NewServer(logger *log.Logger, opts Options) (*Server, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	m := newMetrics()
	renderOpts := []pipeline.RendererOption{pipeline.WithStageObserver(m)}
	if opts.Render.MaxPixels > 0 {
		renderOpts = append(renderOpts, pipeline.WithMaxPixels(opts.Render.MaxPixels))
	}
	renderer := pipeline.NewRenderer(renderOpts...)

	localProcessor, err := pipeline.NewLocalProcessor(opts.Worker.LocalOutputDir, renderer)
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline processor: %w", err)
	}

	s := &Server{
		logger:         logger,
		sem:            make(chan struct{}, max(1, opts.Worker.MaxActiveJobs)),
		localProcessor: localProcessor,
		jobStore:       opts.Jobs,
		usageStore:     opts.Usage,
		metrics:        m,
		tracer:         otel.Tracer("pixeldesk/worker"),
	}
	if opts.Webhook != nil {
		s.webhookClient = opts.Webhook
	}

	if opts.Storage != nil {
		objectProcessor, err := pipeline.NewObjectStoreProcessor(
			pipeline.ObjectStoreFetcher{Storage: opts.Storage},
			pipeline.ObjectStoreEmitter{Storage: opts.Storage, OutputPrefix: opts.Prefix},
			renderer,
		)
		if err != nil {
			return nil, fmt.Errorf("initialize object-store processor: %w", err)
		}
		s.objectProcessor = objectProcessor
	}

	if s.usageStore == nil {
		if jobAndUsageStore, ok := opts.Jobs.(store.UsageStore); ok {
			s.usageStore = jobAndUsageStore
		}
	}

	s.server = asynq.NewServer(
		opts.Queue.RedisClientOpt(),
		asynq.Config{
			Concurrency: opts.Worker.Concurrency,
			Queues: map[string]int{
				opts.Queue.Name: 1,
			},
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
			}),
		},
	)
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeRenderJob, s.handleRenderJob)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleRenderJob(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseRenderJobPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.render_job", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.Int("job.pipeline_steps", len(payload.Pipeline)),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Printf(
		"rendering job_id=%s source_type=%s steps=%d object_key=%s",
		payload.JobID,
		payload.SourceType,
		len(payload.Pipeline),
		payload.ObjectKey,
	)
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	result, err := s.process(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")

		permanent := isPermanent(err)
		if !permanent && !finalAttempt(ctx) {
			s.updateJobStatus(ctx, payload.JobID, domain.JobStatusQueued)
			return fmt.Errorf("run pipeline: %w", err)
		}

		s.finishJob(ctx, payload.JobID, domain.JobStatusFailed, nil, err.Error())
		s.dispatchWebhook(ctx, payload, webhook.EventJobFailed, webhook.JobEvent{
			JobID:       payload.JobID,
			Status:      domain.JobStatusFailed,
			SourceType:  payload.SourceType,
			ObjectKey:   payload.ObjectKey,
			RequestedAt: payload.RequestedAt,
			FinishedAt:  time.Now().UTC(),
			Error:       err.Error(),
		})
		if permanent {
			return fmt.Errorf("run pipeline: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("run pipeline: %w", err)
	}

	outputs := jobOutputs(result)
	s.logger.Printf("rendered job_id=%s outputs=%d", payload.JobID, len(outputs))
	s.finishJob(ctx, payload.JobID, domain.JobStatusSucceeded, outputs, "")
	s.metrics.pipelineOutputsTotal.Add(float64(len(outputs)))
	s.recordUsage(ctx, payload.JobID, payload.UserID, result, time.Since(startedAt))
	outcome = domain.JobStatusSucceeded

	if err := s.dispatchWebhook(ctx, payload, webhook.EventJobCompleted, webhook.JobEvent{
		JobID:       payload.JobID,
		Status:      domain.JobStatusSucceeded,
		SourceType:  payload.SourceType,
		ObjectKey:   payload.ObjectKey,
		RequestedAt: payload.RequestedAt,
		FinishedAt:  time.Now().UTC(),
		Outputs:     outputs,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		// The outputs already exist; re-running the job would only duplicate them.
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	span.SetStatus(codes.Ok, "rendered")
	return nil
}

func (s *Server) process(ctx context.Context, payload queue.RenderJobPayload) (pipeline.Result, error) {
	request := pipeline.Request{
		JobID:      payload.JobID,
		SourceType: payload.SourceType,
		ObjectKey:  payload.ObjectKey,
		Pipeline:   payload.Pipeline,
	}

	switch payload.SourceType {
	case domain.SourceTypeLocalFile:
		return s.localProcessor.Process(ctx, request)
	case domain.SourceTypeS3Presigned:
		if s.objectProcessor == nil {
			return pipeline.Result{}, fmt.Errorf("%w: object storage is not configured", pipeline.ErrUnsupportedSourceType)
		}
		return s.objectProcessor.Process(ctx, request)
	default:
		return pipeline.Result{}, fmt.Errorf("%w: %s", pipeline.ErrUnsupportedSourceType, payload.SourceType)
	}
}

// isPermanent reports errors that no retry can fix.
func isPermanent(err error) bool {
	for _, target := range []error{
		pipeline.ErrInvalidDimensions,
		pipeline.ErrUnsupportedFormat,
		pipeline.ErrDrawingSurfaceUnavailable,
		pipeline.ErrInvalidRotation,
		pipeline.ErrInvalidWatermark,
		pipeline.ErrInvalidFilter,
		pipeline.ErrInvalidSource,
		pipeline.ErrUnsupportedSourceType,
		domain.ErrExplicitZeroSize,
		storage.ErrObjectTooLarge,
		os.ErrNotExist,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return retried >= maxRetry
}

func jobOutputs(result pipeline.Result) []domain.JobOutput {
	out := make([]domain.JobOutput, 0, len(result.Outputs))
	for _, o := range result.Outputs {
		out = append(out, domain.JobOutput{
			StepID: o.StepID,
			Format: o.Format,
			MIME:   o.MIME,
			Path:   o.Path,
			Bytes:  o.Bytes,
			Width:  o.Width,
			Height: o.Height,
		})
	}
	return out
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

func (s *Server) finishJob(ctx context.Context, jobID, status string, outputs []domain.JobOutput, errMsg string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.Finish(ctx, jobID, status, outputs, errMsg); err != nil {
		s.logger.Printf("job finish failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.RenderJobPayload, event string, body webhook.JobEvent) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.metrics.webhookFailures.WithLabelValues(event).Inc()
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

// recordUsage writes one usage log. userID comes from the payload and falls
// back to the stored job for tasks enqueued without it.
func (s *Server) recordUsage(ctx context.Context, jobID, userID string, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	userID = strings.TrimSpace(userID)
	if userID == "" && s.jobStore != nil {
		job, ok, err := s.jobStore.Get(ctx, jobID)
		if err != nil {
			s.logger.Printf("usage lookup failed job_id=%s err=%v", jobID, err)
		} else if ok {
			userID = strings.TrimSpace(job.UserID)
		}
	}
	if userID == "" {
		userID = "anonymous"
	}

	var (
		pixelsProcessed  int64
		totalOutputBytes int
	)
	for _, output := range result.Outputs {
		pixelsProcessed += int64(output.Width * output.Height)
		totalOutputBytes += output.Bytes
	}

	bytesSaved := int64(result.SourceBytes - totalOutputBytes)
	if bytesSaved < 0 {
		bytesSaved = 0
	}

	computeTimeMS := computeDuration.Milliseconds()
	if computeTimeMS < 1 {
		computeTimeMS = 1
	}

	usage := domain.UsageLog{
		UserID:          userID,
		JobID:           jobID,
		Outputs:         len(result.Outputs),
		SourcePixels:    int64(result.SourceWidth) * int64(result.SourceHeight),
		PixelsProcessed: pixelsProcessed,
		BytesSaved:      bytesSaved,
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed job_id=%s err=%v", jobID, err)
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(pixelsProcessed))
	s.metrics.bytesSavedTotal.Add(float64(bytesSaved))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}
