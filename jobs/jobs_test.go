package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/conformapro/conformapro/internal/jobs"
	"github.com/conformapro/conformapro/jobs"
)

type recordingResolver struct {
	calls     [][2]string
	abandoned [][2]string
	err       error
}

func (r *recordingResolver) AbandonRoles(_ context.Context, sessionID, userID string) error {
	r.abandoned = append(r.abandoned, [2]string{sessionID, userID})
	return nil
}

func (r *recordingResolver) ResolveRoles(_ context.Context, sessionID, userID string) error {
	r.calls = append(r.calls, [2]string{sessionID, userID})
	return r.err
}

func TestNewResolveRolesTask(t *testing.T) {
	task, err := jobs.NewResolveRolesTask(jobs.ResolveRolesPayload{SessionID: "s-1", UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskResolveRoles, task.Type())

	var payload jobs.ResolveRolesPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "s-1", payload.SessionID)

	_, err = jobs.NewResolveRolesTask(jobs.ResolveRolesPayload{SessionID: "s-1"})
	assert.Error(t, err)
}

func TestResolveRolesJobHandle(t *testing.T) {
	resolver := &recordingResolver{}
	reg := prometheus.NewRegistry()
	job := jobs.NewResolveRolesJob(resolver, nil, jobmetrics.NewMetrics(reg))

	task, err := jobs.NewResolveRolesTask(jobs.ResolveRolesPayload{SessionID: "s-1", UserID: "u-1"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, [][2]string{{"s-1", "u-1"}}, resolver.calls)

	resolver.err = errors.New("db down")
	assert.Error(t, job.Handle(context.Background(), task))

	count, err := testutil.GatherAndCount(reg, "conformapro_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestResolveRolesJobSkipsMalformedPayload(t *testing.T) {
	resolver := &recordingResolver{}
	job := jobs.NewResolveRolesJob(resolver, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskResolveRoles, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, resolver.calls)
}

func TestResolveRolesJobAbandonsOnFinalAttempt(t *testing.T) {
	resolver := &recordingResolver{err: errors.New("db down")}
	job := jobs.NewResolveRolesJob(resolver, nil, nil)
	final := false
	job.FinalAttempt = func(context.Context, error) bool { return final }

	task, err := jobs.NewResolveRolesTask(jobs.ResolveRolesPayload{SessionID: "s-1", UserID: "u-1"})
	require.NoError(t, err)

	runErr := job.Handle(context.Background(), task)
	require.Error(t, runErr)
	job.HandleError(context.Background(), task, runErr)
	assert.Empty(t, resolver.abandoned, "retries remain")

	final = true
	job.HandleError(context.Background(), task, runErr)
	assert.Equal(t, [][2]string{{"s-1", "u-1"}}, resolver.abandoned)
}

func TestResolveRolesJobDefaultFinalAttempt(t *testing.T) {
	resolver := &recordingResolver{}
	job := jobs.NewResolveRolesJob(resolver, nil, nil)
	task, err := jobs.NewResolveRolesTask(jobs.ResolveRolesPayload{SessionID: "s-1", UserID: "u-1"})
	require.NoError(t, err)

	job.HandleError(context.Background(), task, errors.New("db down"))
	assert.Empty(t, resolver.abandoned, "outside a worker run there is no retry budget to exhaust")

	job.HandleError(context.Background(), task, fmt.Errorf("resolve: %w", asynq.SkipRetry))
	assert.Equal(t, [][2]string{{"s-1", "u-1"}}, resolver.abandoned)

	job.HandleError(context.Background(), asynq.NewTask("other:task", nil), asynq.SkipRetry)
	assert.Len(t, resolver.abandoned, 1)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/staff/jobs", jobs.NewHandler(nil, nil).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/staff/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0,"archived":0,"processed_today":0,"failed_today":0}`, rr.Body.String())
}
