package store

import (
	"encoding/json"
	"strconv"
)

// InsightType categorizes a behavior insight.
type InsightType string

const (
	InsightTypeOptimalWorkHours      InsightType = "optimal_work_hours"
	InsightTypeTaskCompletionPattern InsightType = "task_completion_pattern"
	InsightTypeSchedulingPreference  InsightType = "scheduling_preference"
	InsightTypeSuggestionDismissed   InsightType = "suggestion_dismissed"
)

// BehaviorInsight is an append-only record of a derived behavioral fact or an
// embedded suggestion. Rows are never updated or deleted.
type BehaviorInsight struct {
	InsightType InsightType
	Data        json.RawMessage
	// Confidence is a decimal string in [0,1], e.g. "0.80".
	Confidence string
	ID         int64
	CreatedTs  int64
	UserID     int32
}

// ConfidenceValue parses Confidence, returning 0 when it is malformed.
func (i *BehaviorInsight) ConfidenceValue() float64 {
	v, err := strconv.ParseFloat(i.Confidence, 64)
	if err != nil {
		return 0
	}
	return v
}

// FormatConfidence renders a confidence the way it is stored.
func FormatConfidence(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// FindBehaviorInsight specifies the conditions for listing insights.
// Results are ordered newest first.
type FindBehaviorInsight struct {
	UserID *int32
	// CreatedAfter keeps insights with CreatedTs >= *CreatedAfter.
	CreatedAfter *int64
	// PayloadType keeps insights whose JSON payload has a matching "type" field.
	PayloadType *string
	Types       []InsightType
	Limit       int
}
