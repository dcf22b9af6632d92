package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TaskAITaskRun = "ai.task.run"

const TaskIdempotencyCleanup = "idempotency.cleanup"

const TaskStuckClaimScan = "claims.stuck_scan"

type AITaskRunPayload struct {
	TaskID string `json:"taskId"`
}

func NewAITaskRunTask(taskID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(AITaskRunPayload{TaskID: taskID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAITaskRun, data), nil
}

func ParseAITaskRunPayload(task *asynq.Task) (uuid.UUID, error) {
	var payload AITaskRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(payload.TaskID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid ai task id %q: %w", payload.TaskID, err)
	}
	return id, nil
}

// Periodic tasks carry no payload; each tick re-reads the database.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

func NewStuckClaimScanTask() *asynq.Task {
	return asynq.NewTask(TaskStuckClaimScan, nil)
}
