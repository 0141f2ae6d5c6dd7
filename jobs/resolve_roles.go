package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/conformapro/conformapro/internal/jobs"
)

// RoleResolver completes the sign-in state of a session, or gives up on it.
type RoleResolver interface {
	ResolveRoles(ctx context.Context, sessionID, userID string) error
	AbandonRoles(ctx context.Context, sessionID, userID string) error
}

// ResolveRolesJob processes TaskResolveRoles.
type ResolveRolesJob struct {
	Resolver RoleResolver
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Timeout  time.Duration

	// FinalAttempt reports whether a failed run will not be retried.
	FinalAttempt func(ctx context.Context, err error) bool
}

// NewResolveRolesJob wires dependencies for the role resolution handler.
func NewResolveRolesJob(resolver RoleResolver, logger *slog.Logger, metrics *jobmetrics.Metrics) *ResolveRolesJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResolveRolesJob{
		Resolver:     resolver,
		Logger:       logger,
		Metrics:      metrics,
		Timeout:      10 * time.Second,
		FinalAttempt: lastRetry,
	}
}

// lastRetry matches asynq's archiving rule: retries are exhausted or the
// handler asked to skip them.
func lastRetry(ctx context.Context, err error) bool {
	if errors.Is(err, asynq.SkipRetry) {
		return true
	}
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= maxRetry
}

// Handle resolves the roles named by the task payload.
func (j *ResolveRolesJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Resolver == nil {
		return errors.New("resolve roles: handler not configured")
	}
	var payload ResolveRolesPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.SessionID == "" || payload.UserID == "" {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskResolveRoles)
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	err := j.Resolver.ResolveRoles(ctx, payload.SessionID, payload.UserID)
	if err != nil {
		j.Logger.Error("resolve roles", slog.String("user_id", payload.UserID), slog.Any("error", err))
	}
	return tracker.End(err)
}

// HandleError is installed as the worker's asynq.ErrorHandler. Once the task
// will not run again the session is abandoned instead of waiting forever.
func (j *ResolveRolesJob) HandleError(ctx context.Context, t *asynq.Task, err error) {
	if j == nil || j.Resolver == nil || t.Type() != TaskResolveRoles {
		return
	}
	final := lastRetry
	if j.FinalAttempt != nil {
		final = j.FinalAttempt
	}
	if !final(ctx, err) {
		return
	}
	var payload ResolveRolesPayload
	if json.Unmarshal(t.Payload(), &payload) != nil || payload.SessionID == "" || payload.UserID == "" {
		return
	}
	if aerr := j.Resolver.AbandonRoles(context.WithoutCancel(ctx), payload.SessionID, payload.UserID); aerr != nil {
		j.Logger.Error("abandon role resolution", slog.String("user_id", payload.UserID), slog.Any("error", aerr))
	}
}
