package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/pixeldesk/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeRenderJob = "render:job"

// RenderJobPayload is everything a worker needs to run a job without a
// store lookup.
type RenderJobPayload struct {
	JobID       string                `json:"job_id"`
	UserID      string                `json:"user_id,omitempty"`
	SourceType  string                `json:"source_type"`
	WebhookURL  string                `json:"webhook_url,omitempty"`
	ObjectKey   string                `json:"object_key"`
	Pipeline    []domain.PipelineStep `json:"pipeline"`
	RequestedAt time.Time             `json:"requested_at"`
}

// PayloadFromJob builds the task payload for a stored job.
func PayloadFromJob(job domain.Job, requestedAt time.Time) RenderJobPayload {
	return RenderJobPayload{
		JobID:       job.ID,
		UserID:      job.UserID,
		SourceType:  job.SourceType,
		WebhookURL:  job.WebhookURL,
		ObjectKey:   job.ObjectKey,
		Pipeline:    job.Pipeline,
		RequestedAt: requestedAt,
	}
}

func NewRenderJobTask(payload RenderJobPayload) (*asynq.Task, error) {
	if payload.JobID == "" {
		return nil, errors.New("render payload requires job_id")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal render payload: %w", err)
	}
	return asynq.NewTask(TypeRenderJob, body), nil
}

func ParseRenderJobPayload(task *asynq.Task) (RenderJobPayload, error) {
	var payload RenderJobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RenderJobPayload{}, fmt.Errorf("unmarshal render payload: %w", err)
	}
	if payload.JobID == "" {
		return RenderJobPayload{}, errors.New("render payload missing job_id")
	}
	return payload, nil
}
