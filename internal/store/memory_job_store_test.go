package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dunamismax/pixeldesk/internal/domain"
)

func seedJob(t *testing.T, s *MemoryJobStore, id string) {
	t.Helper()
	now := time.Now().UTC()
	err := s.Create(context.Background(), domain.Job{
		ID:         id,
		UserID:     "user-1",
		Status:     domain.JobStatusCreated,
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/" + id + "/source",
		Pipeline:   []domain.PipelineStep{{ID: "thumb", Settings: domain.RenderSettings{Width: domain.Int(64)}}},
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}
}

func TestMemoryJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()
	seedJob(t, s, "job-1")

	job, err := s.UpdateStatus(ctx, "job-1", domain.JobStatusProcessing)
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("expected processing, got %s", job.Status)
	}

	outputs := []domain.JobOutput{{StepID: "thumb", Format: "png", Width: 64, Height: 32}}
	job, err = s.Finish(ctx, "job-1", domain.JobStatusSucceeded, outputs, "")
	if err != nil {
		t.Fatalf("Finish returned error: %v", err)
	}
	if !job.Terminal() || len(job.Outputs) != 1 {
		t.Fatalf("unexpected finished job %+v", job)
	}

	got, ok, err := s.Get(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("Get returned ok=%v err=%v", ok, err)
	}
	if got.Outputs[0].Width != 64 {
		t.Fatalf("expected stored output, got %+v", got.Outputs)
	}
}

func TestMemoryJobStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()
	seedJob(t, s, "job-1")

	got, _, _ := s.Get(ctx, "job-1")
	got.Pipeline[0].ID = "mutated"

	again, _, _ := s.Get(ctx, "job-1")
	if again.Pipeline[0].ID != "thumb" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestMemoryJobStoreMissingJob(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	if _, ok, err := s.Get(ctx, "nope"); ok || err != nil {
		t.Fatalf("expected missing job without error, got ok=%v err=%v", ok, err)
	}
	if _, err := s.UpdateStatus(ctx, "nope", domain.JobStatusQueued); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, err := s.Finish(ctx, "nope", domain.JobStatusFailed, nil, "boom"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryJobStoreUsage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	for _, u := range []domain.UsageLog{
		{UserID: "a", JobID: "1", PixelsProcessed: 10},
		{UserID: "b", JobID: "2", PixelsProcessed: 20},
		{UserID: "a", JobID: "3", PixelsProcessed: 30},
	} {
		if err := s.CreateUsageLog(ctx, u); err != nil {
			t.Fatalf("CreateUsageLog returned error: %v", err)
		}
	}

	got := s.UsageFor("a")
	if len(got) != 2 || got[0].JobID != "1" || got[1].JobID != "3" {
		t.Fatalf("unexpected usage for a: %+v", got)
	}
}

var (
	_ JobStore   = (*MemoryJobStore)(nil)
	_ UsageStore = (*MemoryJobStore)(nil)
	_ JobStore   = (*PostgresJobStore)(nil)
	_ UsageStore = (*PostgresJobStore)(nil)
)
