package v1

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/store"
)

const (
	defaultInsightLimit = 50
	maxInsightLimit     = 200
)

var insightTypes = map[store.InsightType]struct{}{
	store.InsightTypeOptimalWorkHours:      {},
	store.InsightTypeTaskCompletionPattern: {},
	store.InsightTypeSchedulingPreference:  {},
	store.InsightTypeSuggestionDismissed:   {},
}

// Insight is the API form of a behavior insight.
type Insight struct {
	CreatedAt  time.Time       `json:"createdAt"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	Confidence float64         `json:"confidence"`
	ID         int64           `json:"id"`
}

// InsightsResponse is the body of GET /insights.
type InsightsResponse struct {
	Insights []*Insight `json:"insights"`
	Success  bool       `json:"success"`
}

// ListInsights returns the caller's most recent insights, newest first.
// Query parameters: type (repeatable) and limit.
func (s *APIV1Service) ListInsights(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUserID(c)

	find := &store.FindBehaviorInsight{UserID: &userID, Limit: defaultInsightLimit}
	for _, raw := range c.QueryParams()["type"] {
		t := store.InsightType(raw)
		if _, ok := insightTypes[t]; !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown insight type: "+raw)
		}
		find.Types = append(find.Types, t)
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		find.Limit = min(limit, maxInsightLimit)
	}

	list, err := s.Store.ListBehaviorInsights(ctx, find)
	if err != nil {
		return errors.Wrap(err, "failed to list insights")
	}
	insights := make([]*Insight, 0, len(list))
	for _, insight := range list {
		insights = append(insights, &Insight{
			ID:         insight.ID,
			Type:       string(insight.InsightType),
			Data:       insight.Data,
			Confidence: insight.ConfidenceValue(),
			CreatedAt:  time.Unix(insight.CreatedTs, 0).UTC(),
		})
	}
	return c.JSON(http.StatusOK, &InsightsResponse{Success: true, Insights: insights})
}
