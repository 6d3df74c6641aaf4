// Package queue adapts the asynq task queue for background job execution.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeExport  = "export:run"
	TaskTypeParse   = "import:parse"
	TaskTypeConfirm = "import:confirm"
)

// taskPayload carries the job id and nothing else.
type taskPayload struct {
	JobID string `json:"job_id"`
}

func newTask(taskType, jobID, queueName string) (*asynq.Task, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job id is required")
	}
	body, err := json.Marshal(taskPayload{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("marshal task payload: %w", err)
	}
	return asynq.NewTask(taskType, body, asynq.Queue(queueName)), nil
}

func jobIDFromTask(task *asynq.Task) (string, error) {
	var payload taskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return "", fmt.Errorf("unmarshal task payload: %w", err)
	}
	if payload.JobID == "" {
		return "", fmt.Errorf("missing job_id in %s payload", task.Type())
	}
	return payload.JobID, nil
}
