package queue

import "context"

// TaskQueue hands jobs to the background workers. Each method enqueues a
// task carrying only the job id; workers re-read everything else from the
// job record so a stale payload can never override the database.
type TaskQueue interface {
	EnqueueExport(ctx context.Context, jobID string) (taskID string, err error)
	EnqueueParse(ctx context.Context, jobID string) (taskID string, err error)
	EnqueueConfirm(ctx context.Context, jobID string) (taskID string, err error)
}
