// Package suggestion generates, ranks and applies proactive suggestions.
package suggestion

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/store"
)

var (
	// ErrSuggestionNotFound is returned for unknown, expired or no longer active suggestions.
	ErrSuggestionNotFound = errors.New("suggestion not found or expired")
	// ErrUnknownSuggestionType is returned when no apply handler matches the suggestion type.
	ErrUnknownSuggestionType = errors.New("unknown suggestion type")
	// ErrAlreadyApplied marks a second apply of the same suggestion.
	ErrAlreadyApplied = errors.New("suggestion already applied")
)

// PayloadTypeProactiveSuggestion tags insight payloads that embed a suggestion.
const PayloadTypeProactiveSuggestion = "proactive_suggestion"

// Envelope is the insight payload wrapping a generated suggestion.
type Envelope struct {
	Generated  time.Time         `json:"generated"`
	Suggestion *store.Suggestion `json:"suggestion"`
	Type       string            `json:"type"`
}

// Dismissal is the payload of a suggestion_dismissed insight.
type Dismissal struct {
	DismissedAt  time.Time `json:"dismissedAt"`
	SuggestionID string    `json:"suggestionId"`
}

// Store is the persistence used by the generator and the service.
type Store interface {
	ListTasks(ctx context.Context, find *store.FindTask) ([]*store.Task, error)
	GetTask(ctx context.Context, id int32) (*store.Task, error)
	CreateTask(ctx context.Context, create *store.Task) (*store.Task, error)
	UpdateTask(ctx context.Context, update *store.UpdateTask) (*store.Task, error)
	GetUser(ctx context.Context, find *store.FindUser) (*store.User, error)
	ListGoals(ctx context.Context, find *store.FindGoal) ([]*store.Goal, error)
	GetGoal(ctx context.Context, id int32) (*store.Goal, error)
	ListObjectives(ctx context.Context, find *store.FindObjective) ([]*store.Objective, error)
	CreateBehaviorInsight(ctx context.Context, create *store.BehaviorInsight) (*store.BehaviorInsight, error)
	ListBehaviorInsights(ctx context.Context, find *store.FindBehaviorInsight) ([]*store.BehaviorInsight, error)
	CreateSuggestion(ctx context.Context, create *store.Suggestion) (*store.Suggestion, error)
	ListSuggestions(ctx context.Context, find *store.FindSuggestion) ([]*store.Suggestion, error)
	UpdateSuggestion(ctx context.Context, update *store.UpdateSuggestion) (*store.Suggestion, error)
}

// Recorder observes suggestion lifecycle events.
type Recorder interface {
	SuggestionGenerated(suggestionType store.SuggestionType)
	SuggestionApplied(suggestionType store.SuggestionType, outcome string)
	SuggestionDismissed()
}

// Apply outcomes reported to the Recorder.
const (
	OutcomeSuccess        = "success"
	OutcomePartial        = "partial"
	OutcomeFailed         = "failed"
	OutcomeAlreadyApplied = "already_applied"
)

type noopRecorder struct{}

func (noopRecorder) SuggestionGenerated(store.SuggestionType) {}

func (noopRecorder) SuggestionApplied(store.SuggestionType, string) {}

func (noopRecorder) SuggestionDismissed() {}

// Config is shared by the generator and the service.
type Config struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Location decides what "today" is. Defaults to time.Local.
	Location *time.Location
	// Recorder receives lifecycle events. Optional.
	Recorder Recorder
}

func (c Config) withDefaults() Config {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Recorder == nil {
		c.Recorder = noopRecorder{}
	}
	return c
}
