package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
)

type CreateJobRequest struct {
	SourceType string         `json:"source_type"`
	UserID     string         `json:"user_id,omitempty"`
	WebhookURL string         `json:"webhook_url,omitempty"`
	ObjectKey  string         `json:"object_key,omitempty"`
	Pipeline   []PipelineStep `json:"pipeline"`
}

// PipelineStep renders one output from the job's source image.
type PipelineStep struct {
	ID       string         `json:"id" yaml:"id"`
	Settings RenderSettings `json:"settings" yaml:"settings"`
}

type Job struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id,omitempty"`
	Status     string         `json:"status"`
	SourceType string         `json:"source_type"`
	WebhookURL string         `json:"webhook_url,omitempty"`
	Pipeline   []PipelineStep `json:"pipeline"`
	ObjectKey  string         `json:"object_key"`
	Outputs    []JobOutput    `json:"outputs,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// JobOutput describes one rendered step of a finished job.
type JobOutput struct {
	StepID string `json:"step_id"`
	Format string `json:"format"`
	MIME   string `json:"mime"`
	Path   string `json:"path"`
	Bytes  int    `json:"bytes"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Terminal reports whether no further status change is expected.
func (j Job) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if len(r.Pipeline) == 0 {
		return errors.New("pipeline must contain at least one step")
	}
	seen := make(map[string]struct{}, len(r.Pipeline))
	for i, step := range r.Pipeline {
		id := strings.TrimSpace(step.ID)
		if id == "" {
			return fmt.Errorf("pipeline[%d].id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("pipeline[%d].id %q is duplicated", i, id)
		}
		seen[id] = struct{}{}
		if err := step.Settings.Validate(); err != nil {
			return fmt.Errorf("pipeline[%d].settings: %w", i, err)
		}
	}
	return nil
}
