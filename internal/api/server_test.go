package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-triage/server/internal/a2a"
	"github.com/Chative-triage/server/internal/agent/model"
	errx "github.com/Chative-triage/server/internal/core/error"
	"github.com/Chative-triage/server/internal/metrics"
)

type fakeEngine struct {
	started  model.RunInput
	resumed  model.ReviewDecision
	resumeID string
	key      string
	result   *model.RunResult
	err      error
}

func (f *fakeEngine) Start(_ context.Context, in model.RunInput) (*model.RunResult, error) {
	f.started = in
	return f.result, f.err
}

func (f *fakeEngine) Resume(ctx context.Context, runID string, d model.ReviewDecision) (*model.RunResult, error) {
	f.resumeID, f.resumed, f.key = runID, d, a2a.CredentialFrom(ctx)
	return f.result, f.err
}

func (f *fakeEngine) Get(_ context.Context, runID string) (*model.ConversationState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return model.NewConversationState(runID, "conv-1"), nil
}

func (f *fakeEngine) Transitions(_ context.Context, runID string) ([]model.StageTransition, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.StageTransition{{RunID: runID, Seq: 1, Stage: "ingress"}}, nil
}

func do(t *testing.T, s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStartRun(t *testing.T) {
	eng := &fakeEngine{result: &model.RunResult{RunID: "run-1", Status: model.RunCompleted, Reply: "Try resetting your password."}}
	s := NewServer(":0", eng, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/runs",
		`{"conversation_id":"conv-1","messages":[{"role":"user","content":[{"type":"text","text":"I can't log in"}]}]}`,
		map[string]string{AdminKeyHeader: " secret "})

	require.Equal(t, http.StatusOK, rec.Code)
	var got model.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "Try resetting your password.", got.Reply)

	assert.Equal(t, "conv-1", eng.started.ConversationID)
	assert.Equal(t, "secret", eng.started.AdminAgentKey)
	require.Len(t, eng.started.Messages, 1)
	msg, err := eng.started.Messages[0].Normalize()
	require.NoError(t, err)
	assert.Equal(t, "I can't log in", msg.Content)
}

func TestSuspendedRunIsAccepted(t *testing.T) {
	eng := &fakeEngine{result: &model.RunResult{
		RunID:  "run-2",
		Status: model.RunSuspended,
		Review: &model.ReviewRequest{Question: "Proceed?", Details: "delete account"},
	}}
	s := NewServer(":0", eng, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/runs", `{"messages":[{"content":"delete my account"}]}`, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"question":"Proceed?"`)
}

func TestResumeRun(t *testing.T) {
	eng := &fakeEngine{result: &model.RunResult{RunID: "run-2", Status: model.RunCompleted}}
	s := NewServer(":0", eng, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/runs/run-2/resume", `{"decision":"yes, go ahead"}`, map[string]string{AdminKeyHeader: "k1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-2", eng.resumeID)
	assert.Equal(t, "yes, go ahead", eng.resumed.Decision)
	assert.Equal(t, "k1", eng.key)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"not found", errx.NotFound(fmt.Errorf("%w: run-9", errx.ErrRunNotFound)), http.StatusNotFound, "run not found: run-9"},
		{"conflict", errx.Conflict(errx.ErrRunNotSuspended), http.StatusConflict, errx.ErrRunNotSuspended.Error()},
		{"bad request", errx.BadRequest("decision is required"), http.StatusBadRequest, "decision is required"},
		{"internal", fmt.Errorf("dial tcp: refused"), http.StatusInternalServerError, errx.SystemErrorMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(":0", &fakeEngine{err: tt.err}, nil)
			rec := do(t, s, http.MethodPost, "/api/v1/runs/run-9/resume", `{"decision":"yes"}`, nil)
			assert.Equal(t, tt.status, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.body, body.Error)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	s := NewServer(":0", &fakeEngine{}, nil)
	rec := do(t, s, http.MethodPost, "/api/v1/runs", `{"messages":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadEndpoints(t *testing.T) {
	s := NewServer(":0", &fakeEngine{}, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/runs/run-3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"run-3"`)

	rec = do(t, s, http.MethodGet, "/api/v1/runs/run-3/transitions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stage":"ingress"`)

	rec = do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.ObserveReview("admin_confirmation")

	s := NewServer(":0", &fakeEngine{}, reg)
	rec := do(t, s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "triage_reviews_total")

	rec = do(t, NewServer(":0", &fakeEngine{}, nil), http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
