package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskResolveRoles resolves the roles of a freshly signed-in session.
	TaskResolveRoles = "auth:resolve-roles"
)

// ResolveRolesPayload identifies the session whose roles must be resolved.
type ResolveRolesPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// NewResolveRolesTask constructs an Asynq task.
func NewResolveRolesTask(payload ResolveRolesPayload) (*asynq.Task, error) {
	if payload.SessionID == "" || payload.UserID == "" {
		return nil, errors.New("jobs: resolve roles requires session and user")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskResolveRoles, data), nil
}
