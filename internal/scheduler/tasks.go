package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskFollowupRun = "followups.run"

type FollowupRunPayload struct {
	RequestedAt time.Time `json:"requestedAt"`
	Source      string    `json:"source"` // "ticker" or "manual"
}

func NewFollowupRunTask(payload FollowupRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowupRun, data), nil
}

func ParseFollowupRunPayload(task *asynq.Task) (FollowupRunPayload, error) {
	var payload FollowupRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FollowupRunPayload{}, err
	}
	return payload, nil
}
