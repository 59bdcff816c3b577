package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

const (
	renderMaxRetry = 5
	renderTimeout  = 3 * time.Minute
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

// EnqueueRenderJob enqueues the job once; the job id doubles as the task id
// so a repeated start is rejected by asynq with ErrTaskIDConflict.
func (c *Client) EnqueueRenderJob(ctx context.Context, payload RenderJobPayload) (*asynq.TaskInfo, error) {
	task, err := NewRenderJobTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(renderMaxRetry),
		asynq.Timeout(renderTimeout),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
