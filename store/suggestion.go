package store

import "time"

// SuggestionType selects the apply handler of a suggestion.
type SuggestionType string

const (
	SuggestionTypeScheduleOptimization SuggestionType = "schedule_optimization"
	SuggestionTypeTaskCreation         SuggestionType = "task_creation"
	SuggestionTypeGoalAdjustment       SuggestionType = "goal_adjustment"
	SuggestionTypeBreakReminder        SuggestionType = "break_reminder"
	SuggestionTypeEnergyOptimization   SuggestionType = "energy_optimization"
)

// SuggestionPriority is the display priority of a suggestion.
type SuggestionPriority string

const (
	SuggestionPriorityLow    SuggestionPriority = "low"
	SuggestionPriorityMedium SuggestionPriority = "medium"
	SuggestionPriorityHigh   SuggestionPriority = "high"
)

// SuggestionStatus is the lifecycle state of a suggestion. Every state other
// than active is terminal.
type SuggestionStatus string

const (
	SuggestionStatusActive    SuggestionStatus = "active"
	SuggestionStatusApplied   SuggestionStatus = "applied"
	SuggestionStatusDismissed SuggestionStatus = "dismissed"
	SuggestionStatusExpired   SuggestionStatus = "expired"
)

// Suggestion is a time-bounded proactive suggestion. The JSON form is also
// the payload embedded in scheduling_preference insights.
type Suggestion struct {
	ValidUntil  time.Time          `json:"validUntil"`
	Context     map[string]any     `json:"context"`
	ID          string             `json:"id"`
	Type        SuggestionType     `json:"type"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Priority    SuggestionPriority `json:"priority"`
	Status      SuggestionStatus   `json:"status,omitempty"`
	Confidence  float64            `json:"confidence"`
	CreatedTs   int64              `json:"createdTs,omitempty"`
	UpdatedTs   int64              `json:"updatedTs,omitempty"`
	UserID      int32              `json:"userId"`
	Actionable  bool               `json:"actionable"`
}

// IsActive reports whether the suggestion can still be applied at now.
func (s *Suggestion) IsActive(now time.Time) bool {
	if s.Status != "" && s.Status != SuggestionStatusActive {
		return false
	}
	return now.Before(s.ValidUntil)
}

// FindSuggestion specifies the conditions for listing suggestions.
type FindSuggestion struct {
	ID         *string
	UserID     *int32
	Status     *SuggestionStatus
	ValidAfter *time.Time
}

// UpdateSuggestion transitions a suggestion's status. When ExpectedStatus is
// set the update only applies if the current status matches; otherwise the
// driver returns ErrStatusConflict.
type UpdateSuggestion struct {
	ExpectedStatus *SuggestionStatus
	ID             string
	Status         SuggestionStatus
	UpdatedTs      int64
	UserID         int32
}
