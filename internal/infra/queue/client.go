package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"async-import-export/internal/config"
	"async-import-export/internal/domain/ports/queue"
)

var _ queue.TaskQueue = (*Client)(nil)

// Client enqueues job tasks onto the asynq broker.
type Client struct {
	client    *asynq.Client
	queueName string
	maxRetry  int
}

func NewClient(cfg *config.QueueConfig) (*Client, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse queue redis url: %w", err)
	}
	return &Client{
		client:    asynq.NewClient(opt),
		queueName: cfg.Queue,
		maxRetry:  cfg.MaxRetry,
	}, nil
}

func (c *Client) EnqueueExport(ctx context.Context, jobID string) (string, error) {
	return c.enqueue(ctx, TaskTypeExport, jobID)
}

func (c *Client) EnqueueParse(ctx context.Context, jobID string) (string, error) {
	return c.enqueue(ctx, TaskTypeParse, jobID)
}

func (c *Client) EnqueueConfirm(ctx context.Context, jobID string) (string, error) {
	return c.enqueue(ctx, TaskTypeConfirm, jobID)
}

func (c *Client) enqueue(ctx context.Context, taskType, jobID string) (string, error) {
	task, err := newTask(taskType, jobID, c.queueName)
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task, asynq.MaxRetry(c.maxRetry))
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return info.ID, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
