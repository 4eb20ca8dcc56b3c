package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// TaskHITLAutoRelease enforces the auto-release window server-side: when it
// fires, the conversation returns to agent control unless the escalation was
// prolonged or already released.
const TaskHITLAutoRelease = "inbox.hitl.auto_release"

// HITLAutoReleasePayload pins the task to one specific escalation.
// EscalatedAt must match the session's current value for the release to run.
type HITLAutoReleasePayload struct {
	SessionID      string    `json:"sessionId"`
	OrganizationID string    `json:"organizationId"`
	EscalatedAt    time.Time `json:"escalatedAt"`
}

func NewHITLAutoReleaseTask(payload HITLAutoReleasePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskHITLAutoRelease, data), nil
}

func ParseHITLAutoReleasePayload(task *asynq.Task) (HITLAutoReleasePayload, error) {
	var payload HITLAutoReleasePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return HITLAutoReleasePayload{}, err
	}
	return payload, nil
}
