package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a single-row lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict is returned by UpdateSuggestion when ExpectedStatus does not match.
	ErrStatusConflict = errors.New("suggestion status conflict")
)

// Driver is the persistence backend behind Store.
type Driver interface {
	// GetDB returns the underlying database handle, or nil for non-SQL drivers.
	GetDB() *sql.DB
	Close() error
	// Migrate creates the schema if it does not exist yet.
	Migrate(ctx context.Context) error

	CreateTask(ctx context.Context, create *Task) (*Task, error)
	ListTasks(ctx context.Context, find *FindTask) ([]*Task, error)
	UpdateTask(ctx context.Context, update *UpdateTask) (*Task, error)

	CreateUser(ctx context.Context, create *User) (*User, error)
	ListUsers(ctx context.Context, find *FindUser) ([]*User, error)
	UpdateUser(ctx context.Context, update *UpdateUser) (*User, error)

	CreateGoal(ctx context.Context, create *Goal) (*Goal, error)
	ListGoals(ctx context.Context, find *FindGoal) ([]*Goal, error)
	CreateObjective(ctx context.Context, create *Objective) (*Objective, error)
	ListObjectives(ctx context.Context, find *FindObjective) ([]*Objective, error)

	CreateBehaviorInsight(ctx context.Context, create *BehaviorInsight) (*BehaviorInsight, error)
	ListBehaviorInsights(ctx context.Context, find *FindBehaviorInsight) ([]*BehaviorInsight, error)

	CreateSuggestion(ctx context.Context, create *Suggestion) (*Suggestion, error)
	ListSuggestions(ctx context.Context, find *FindSuggestion) ([]*Suggestion, error)
	UpdateSuggestion(ctx context.Context, update *UpdateSuggestion) (*Suggestion, error)

	UpsertLearningState(ctx context.Context, upsert *LearningState) (*LearningState, error)
	ListLearningStates(ctx context.Context, find *FindLearningState) ([]*LearningState, error)
}
