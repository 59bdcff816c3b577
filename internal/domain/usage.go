package domain

import "time"

// UsageLog is the per-job accounting row written after a render succeeds.
// PixelsProcessed sums the output surfaces, SourcePixels counts the decoded
// source once.
type UsageLog struct {
	UserID          string    `json:"user_id"`
	JobID           string    `json:"job_id"`
	Outputs         int       `json:"outputs"`
	SourcePixels    int64     `json:"source_pixels"`
	PixelsProcessed int64     `json:"pixels_processed"`
	BytesSaved      int64     `json:"bytes_saved"`
	ComputeTimeMS   int64     `json:"compute_time_ms"`
	CreatedAt       time.Time `json:"created_at"`
}
