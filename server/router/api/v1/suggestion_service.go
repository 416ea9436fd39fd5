package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/ai/learning"
	"github.com/hrygo/rhythm/ai/suggestion"
	"github.com/hrygo/rhythm/store"
)

// SuggestionsResponse is the body of the list and generate endpoints.
type SuggestionsResponse struct {
	Suggestions []*store.Suggestion `json:"suggestions"`
	Count       int                 `json:"count"`
	Success     bool                `json:"success"`
}

// ApplyRequest is the body of POST /suggestions/apply.
type ApplyRequest struct {
	SuggestionID string `json:"suggestionId"`
}

// MessageResponse is the body of endpoints that only acknowledge.
type MessageResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// LearningStatusResponse is the body of GET /suggestions/learning-status.
// Interval is in milliseconds.
type LearningStatusResponse struct {
	StartedAt *time.Time `json:"startedAt"`
	LastRunAt *time.Time `json:"lastRunAt"`
	NextRunAt *time.Time `json:"nextRunAt"`
	LastError string     `json:"lastError,omitempty"`
	Interval  int64      `json:"interval"`
	RunCount  int        `json:"runCount"`
	Learning  bool       `json:"learning"`
}

func suggestionsResponse(list []*store.Suggestion) *SuggestionsResponse {
	if list == nil {
		list = []*store.Suggestion{}
	}
	return &SuggestionsResponse{Success: true, Suggestions: list, Count: len(list)}
}

// ListSuggestions returns the caller's active suggestions, highest priority first.
func (s *APIV1Service) ListSuggestions(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUserID(c)

	active, err := s.Suggestions.ListActive(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "failed to list suggestions")
	}
	return c.JSON(http.StatusOK, suggestionsResponse(suggestion.Rank(active)))
}

// ApplySuggestion executes a suggestion and returns the apply summary.
func (s *APIV1Service) ApplySuggestion(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUserID(c)

	var req ApplyRequest
	if err := c.Bind(&req); err != nil || req.SuggestionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "suggestionId is required")
	}

	result, err := s.Suggestions.Apply(ctx, userID, req.SuggestionID)
	if err != nil {
		if errors.Is(err, suggestion.ErrSuggestionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Suggestion not found or expired")
		}
		slog.Error("failed to apply suggestion", "user_id", userID, "suggestion_id", req.SuggestionID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to apply suggestion")
	}
	return c.JSON(http.StatusOK, result)
}

// DismissSuggestion records that the caller rejected a suggestion.
func (s *APIV1Service) DismissSuggestion(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUserID(c)
	id := c.Param("id")

	if err := s.Suggestions.Dismiss(ctx, userID, id); err != nil {
		if errors.Is(err, suggestion.ErrSuggestionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Suggestion not found or expired")
		}
		slog.Error("failed to dismiss suggestion", "user_id", userID, "suggestion_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to dismiss suggestion")
	}
	return c.JSON(http.StatusOK, &MessageResponse{Success: true, Message: "Suggestion dismissed"})
}

// GenerateSuggestions runs the suggestion rules for the caller now. Rule
// failures are logged; whatever the other rules produced is returned.
func (s *APIV1Service) GenerateSuggestions(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUserID(c)

	if !s.generateLimit.Allow(userID) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many generate requests, try again later")
	}

	generated, err := s.Suggestions.GenerateNow(ctx, userID)
	if err != nil {
		if len(generated) == 0 {
			slog.Error("failed to generate suggestions", "user_id", userID, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate suggestions")
		}
		slog.Warn("some suggestion rules failed", "user_id", userID, "error", err)
	}
	return c.JSON(http.StatusOK, suggestionsResponse(suggestion.Rank(generated)))
}

// GetLearningStatus reports the caller's learning schedule.
func (s *APIV1Service) GetLearningStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, learningStatusResponse(s.Scheduler.Status(currentUserID(c))))
}

// StartLearning turns periodic learning on for the caller.
func (s *APIV1Service) StartLearning(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUserID(c)

	if err := s.Scheduler.Start(ctx, userID); err != nil {
		slog.Error("failed to start learning", "user_id", userID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to start learning")
	}
	return c.JSON(http.StatusOK, &MessageResponse{Success: true, Message: "Behavioral learning started"})
}

// StopLearning turns periodic learning off for the caller.
func (s *APIV1Service) StopLearning(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUserID(c)

	if err := s.Scheduler.Stop(ctx, userID); err != nil {
		slog.Error("failed to stop learning", "user_id", userID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to stop learning")
	}
	return c.JSON(http.StatusOK, &MessageResponse{Success: true, Message: "Behavioral learning stopped"})
}

func learningStatusResponse(status learning.Status) *LearningStatusResponse {
	optional := func(t time.Time) *time.Time {
		if t.IsZero() {
			return nil
		}
		return &t
	}
	return &LearningStatusResponse{
		Learning:  status.Learning,
		Interval:  status.Interval.Milliseconds(),
		StartedAt: optional(status.StartedAt),
		LastRunAt: optional(status.LastRunAt),
		NextRunAt: optional(status.NextRunAt),
		RunCount:  status.RunCount,
		LastError: status.LastError,
	}
}
