package habit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/hrygo/rhythm/store"
)

// Analysis window lengths in days.
const (
	CompletionWindowDays = 30
	EnergyWindowDays     = 7
	PreferenceWindowDays = 30
	HabitWindowDays      = 30
)

// Analysis pass names, used in errors and metrics.
const (
	PassCompletionHours  = "completion_hours"
	PassEnergyPeriods    = "energy_periods"
	PassTaskPreferences  = "task_preferences"
	PassSchedulingHabits = "scheduling_habits"
)

// Store is the persistence the analyzer reads tasks from and writes insights to.
type Store interface {
	ListTasks(ctx context.Context, find *store.FindTask) ([]*store.Task, error)
	GetUser(ctx context.Context, find *store.FindUser) (*store.User, error)
	UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.User, error)
	CreateBehaviorInsight(ctx context.Context, create *store.BehaviorInsight) (*store.BehaviorInsight, error)
}

// Config configures the analyzer.
type Config struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Location interprets task dates. Defaults to time.Local.
	Location *time.Location
}

// Analyzer runs the four pattern analysis passes for a user. Each pass reads
// a trailing window of tasks and appends at most one insight.
type Analyzer struct {
	store Store
	now   func() time.Time
	loc   *time.Location
}

// PassError reports the failure of one analysis pass.
type PassError struct {
	Err  error
	Pass string
}

func (e *PassError) Error() string {
	return e.Pass + ": " + e.Err.Error()
}

func (e *PassError) Unwrap() error {
	return e.Err
}

// NewAnalyzer creates a new pattern analyzer.
func NewAnalyzer(s Store, cfg Config) *Analyzer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Analyzer{store: s, now: cfg.Now, loc: cfg.Location}
}

// AnalyzeAll runs every pass even when an earlier one fails. The returned
// error combines one *PassError per failed pass.
func (a *Analyzer) AnalyzeAll(ctx context.Context, userID int32) error {
	passes := []struct {
		run  func(context.Context, int32) (*store.BehaviorInsight, error)
		name string
	}{
		{a.AnalyzeCompletionHours, PassCompletionHours},
		{a.AnalyzeEnergyPeriods, PassEnergyPeriods},
		{a.AnalyzeTaskPreferences, PassTaskPreferences},
		{a.AnalyzeSchedulingHabits, PassSchedulingHabits},
	}

	var errs error
	for _, pass := range passes {
		if ctx.Err() != nil {
			return multierr.Append(errs, &PassError{Pass: pass.name, Err: ctx.Err()})
		}
		if _, err := pass.run(ctx, userID); err != nil {
			slog.Warn("habit analysis pass failed", "user_id", userID, "pass", pass.name, "error", err)
			errs = multierr.Append(errs, &PassError{Pass: pass.name, Err: err})
		}
	}
	return errs
}

// AnalyzeCompletionHours finds the hours in which the user completes tasks
// most efficiently and stores them as an optimal_work_hours insight.
func (a *Analyzer) AnalyzeCompletionHours(ctx context.Context, userID int32) (*store.BehaviorInsight, error) {
	tasks, err := a.window(ctx, userID, CompletionWindowDays)
	if err != nil {
		return nil, err
	}
	hours, confidence := ComputeOptimalHours(tasks)
	if hours == nil {
		return nil, nil
	}
	return a.persist(ctx, userID, store.InsightTypeOptimalWorkHours, hours, confidence)
}

// AnalyzeEnergyPeriods labels the user's energy per day period and stores
// the labels in the user's preferences when they changed.
func (a *Analyzer) AnalyzeEnergyPeriods(ctx context.Context, userID int32) (*store.BehaviorInsight, error) {
	tasks, err := a.window(ctx, userID, EnergyWindowDays)
	if err != nil {
		return nil, err
	}
	profile := ComputeEnergyProfile(tasks)

	user, err := a.store.GetUser(ctx, &store.FindUser{ID: &userID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	if user == nil {
		return nil, errors.Wrapf(store.ErrNotFound, "user %d", userID)
	}

	preferences := &store.UserPreferences{}
	if user.Preferences != nil {
		*preferences = *user.Preferences
		if current := user.Preferences.EnergyLevels; current != nil && *current == profile.EnergyLevels {
			return nil, nil
		}
	}
	levels := profile.EnergyLevels
	preferences.EnergyLevels = &levels

	if _, err := a.store.UpdateUser(ctx, &store.UpdateUser{
		ID:          userID,
		Preferences: preferences,
		UpdatedTs:   a.now().Unix(),
	}); err != nil {
		return nil, errors.Wrap(err, "failed to update energy levels")
	}
	return a.persist(ctx, userID, store.InsightTypeOptimalWorkHours, profile, energyConfidence)
}

// AnalyzeTaskPreferences stores the user's duration, priority and completion
// tendencies as a task_completion_pattern insight.
func (a *Analyzer) AnalyzeTaskPreferences(ctx context.Context, userID int32) (*store.BehaviorInsight, error) {
	tasks, err := a.window(ctx, userID, PreferenceWindowDays)
	if err != nil {
		return nil, err
	}
	prefs, confidence := ComputeTaskPreferences(tasks, a.today())
	if prefs == nil {
		return nil, nil
	}
	return a.persist(ctx, userID, store.InsightTypeTaskCompletionPattern, prefs, confidence)
}

// AnalyzeSchedulingHabits stores the user's planning style and slot
// adherence as a scheduling_preference insight.
func (a *Analyzer) AnalyzeSchedulingHabits(ctx context.Context, userID int32) (*store.BehaviorInsight, error) {
	tasks, err := a.window(ctx, userID, HabitWindowDays)
	if err != nil {
		return nil, err
	}
	habits := ComputeSchedulingHabits(tasks, a.loc)
	if habits == nil {
		return nil, nil
	}
	return a.persist(ctx, userID, store.InsightTypeSchedulingPreference, habits, habitConfidence)
}

// window lists the user's tasks scheduled in [today - days, today].
func (a *Analyzer) window(ctx context.Context, userID int32, days int) ([]*store.Task, error) {
	now := a.now().In(a.loc)
	from := now.AddDate(0, 0, -days).Format(store.DateLayout)
	to := now.Format(store.DateLayout)

	tasks, err := a.store.ListTasks(ctx, &store.FindTask{UserID: &userID, FromDate: &from, ToDate: &to})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tasks")
	}
	return tasks, nil
}

func (a *Analyzer) today() string {
	return a.now().In(a.loc).Format(store.DateLayout)
}

func (a *Analyzer) persist(ctx context.Context, userID int32, insightType store.InsightType, payload any, confidence float64) (*store.BehaviorInsight, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal insight")
	}
	insight, err := a.store.CreateBehaviorInsight(ctx, &store.BehaviorInsight{
		UserID:      userID,
		InsightType: insightType,
		Data:        data,
		Confidence:  store.FormatConfidence(confidence),
		CreatedTs:   a.now().Unix(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s insight", insightType)
	}
	return insight, nil
}
