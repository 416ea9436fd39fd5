package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/rhythm/ai/suggestion"
	"github.com/hrygo/rhythm/internal/profile"
	"github.com/hrygo/rhythm/server/auth"
	apiv1 "github.com/hrygo/rhythm/server/router/api/v1"
	"github.com/hrygo/rhythm/store"
	"github.com/hrygo/rhythm/store/db/memory"
)

const testSecret = "server-test-secret"

type testServer struct {
	server *Server
	store  *store.Store
	token  string
	userID int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	p := &profile.Profile{
		Mode:                  "dev",
		Driver:                "memory",
		Secret:                testSecret,
		LearningInterval:      time.Hour,
		GenerateRatePerMinute: 6,
		GenerateBurst:         2,
		MetricsEnabled:        true,
	}
	s := store.New(memory.NewDB(), p)
	user, err := s.CreateUser(ctx, &store.User{Username: "ada"})
	require.NoError(t, err)
	token, err := auth.GenerateAccessToken(testSecret, user.ID, user.Username, time.Now().Add(time.Hour))
	require.NoError(t, err)

	srv, err := NewServer(ctx, p, s)
	require.NoError(t, err)
	t.Cleanup(func() { srv.scheduler.Close() })
	return &testServer{server: srv, store: s, token: token, userID: user.ID}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) seedSuggestion(t *testing.T, id string, priority store.SuggestionPriority, confidence float64) {
	t.Helper()
	_, err := ts.store.CreateSuggestion(context.Background(), &store.Suggestion{
		ID:         id,
		UserID:     ts.userID,
		Type:       store.SuggestionTypeBreakReminder,
		Title:      "Schedule a Break",
		Priority:   priority,
		Confidence: confidence,
		Context:    map[string]any{"suggestedBreakDuration": float64(15)},
		ValidUntil: time.Now().Add(time.Hour),
		Status:     store.SuggestionStatusActive,
		CreatedTs:  time.Now().Unix(),
		Actionable: true,
	})
	require.NoError(t, err)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	ts.token = ""
	rec := ts.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "memory", health.Driver)
	assert.NotEmpty(t, health.Version.Version)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	for _, token := range []string{"", "garbage"} {
		ts.token = token
		rec := ts.do(t, http.MethodGet, "/api/v1/suggestions", "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decode[apiv1.ErrorResponse](t, rec)
		assert.False(t, body.Success)
		assert.NotEmpty(t, body.Message)
	}
}

func TestListSuggestionsRanked(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSuggestion(t, "a", store.SuggestionPriorityHigh, 0.8)
	ts.seedSuggestion(t, "b", store.SuggestionPriorityMedium, 0.95)
	ts.seedSuggestion(t, "c", store.SuggestionPriorityHigh, 0.9)

	rec := ts.do(t, http.MethodGet, "/api/v1/suggestions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[apiv1.SuggestionsResponse](t, rec)
	require.Len(t, body.Suggestions, 3)
	assert.Equal(t, "c", body.Suggestions[0].ID)
	assert.Equal(t, "a", body.Suggestions[1].ID)
	assert.Equal(t, "b", body.Suggestions[2].ID)
}

func TestApplyAndDismiss(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSuggestion(t, "s1", store.SuggestionPriorityMedium, 0.7)
	ts.seedSuggestion(t, "s2", store.SuggestionPriorityMedium, 0.7)

	rec := ts.do(t, http.MethodPost, "/api/v1/suggestions/apply", `{"suggestionId":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[suggestion.ApplyResult](t, rec)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Succeeded)

	rec = ts.do(t, http.MethodPost, "/api/v1/suggestions/apply", `{"suggestionId":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[suggestion.ApplyResult](t, rec).AlreadyApplied)

	rec = ts.do(t, http.MethodPost, "/api/v1/suggestions/apply", `{"suggestionId":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/suggestions/apply", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/suggestions/dismiss/s2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[apiv1.MessageResponse](t, rec).Success)

	rec = ts.do(t, http.MethodPost, "/api/v1/suggestions/dismiss/s2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[apiv1.ErrorResponse](t, rec)
	assert.False(t, body.Success)
}

func TestGenerateIsRateLimited(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.store.CreateTask(context.Background(), &store.Task{
		UserID:            ts.userID,
		Title:             "write",
		ScheduledDate:     time.Now().Format(store.DateLayout),
		EstimatedDuration: 30,
		Priority:          store.TaskPriorityMedium,
		Status:            store.TaskStatusPending,
	})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/api/v1/suggestions/generate", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[apiv1.SuggestionsResponse](t, rec)
	require.NotEmpty(t, body.Suggestions)
	assert.Equal(t, store.SuggestionTypeScheduleOptimization, body.Suggestions[len(body.Suggestions)-1].Type)

	rec = ts.do(t, http.MethodPost, "/api/v1/suggestions/generate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/suggestions/generate", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLearningLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/suggestions/learning-status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[apiv1.LearningStatusResponse](t, rec)
	assert.False(t, status.Learning)
	assert.Equal(t, time.Hour.Milliseconds(), status.Interval)
	assert.Nil(t, status.StartedAt)

	rec = ts.do(t, http.MethodPost, "/api/v1/suggestions/start-learning", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/suggestions/learning-status", "")
	status = decode[apiv1.LearningStatusResponse](t, rec)
	assert.True(t, status.Learning)
	require.NotNil(t, status.StartedAt)
	require.NotNil(t, status.NextRunAt)

	rec = ts.do(t, http.MethodPost, "/api/v1/suggestions/stop-learning", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/suggestions/stop-learning", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/suggestions/learning-status", "")
	assert.False(t, decode[apiv1.LearningStatusResponse](t, rec).Learning)
}

func TestListInsights(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	for i, insightType := range []store.InsightType{
		store.InsightTypeOptimalWorkHours,
		store.InsightTypeTaskCompletionPattern,
		store.InsightTypeOptimalWorkHours,
	} {
		_, err := ts.store.CreateBehaviorInsight(ctx, &store.BehaviorInsight{
			UserID:      ts.userID,
			InsightType: insightType,
			Data:        json.RawMessage(`{"n":1}`),
			Confidence:  "0.70",
			CreatedTs:   int64(1000 + i),
		})
		require.NoError(t, err)
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/insights?type=optimal_work_hours&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[apiv1.InsightsResponse](t, rec)
	require.Len(t, body.Insights, 1)
	assert.Equal(t, "optimal_work_hours", body.Insights[0].Type)
	assert.Equal(t, int64(1002), body.Insights[0].CreatedAt.Unix())
	assert.Equal(t, 0.7, body.Insights[0].Confidence)

	rec = ts.do(t, http.MethodGet, "/api/v1/insights", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[apiv1.InsightsResponse](t, rec).Insights, 3)

	rec = ts.do(t, http.MethodGet, "/api/v1/insights?type=mood", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/v1/insights?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/api/v1/suggestions", "")

	ts.token = ""
	rec := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rhythm_http_requests_total{code="200",method="GET",route="/api/v1/suggestions"} 1`)
}
