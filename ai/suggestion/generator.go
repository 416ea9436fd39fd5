package suggestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/hrygo/rhythm/ai/habit"
	"github.com/hrygo/rhythm/store"
)

const (
	breakGapMinutes        = 15
	maxConsecutiveMinutes  = 120
	defaultBreakMinutes    = 15
	lowGoalProgress        = 30
	insightScanLimit       = 200
	planningSessionMinutes = 60
	// maxValidity is the longest validity any rule assigns.
	maxValidity = 48 * time.Hour
)

var weeklyPlanningTags = []string{"planning", "review", "goals"}

// Generator evaluates the suggestion rules for a user. Every rule runs on
// each call; a failing rule does not stop the others.
type Generator struct {
	store Store
	cfg   Config
	newID func(time.Time) string
}

type rule struct {
	eval func(ctx context.Context, in *ruleInput) (*store.Suggestion, error)
	name store.SuggestionType
}

// ruleInput is the data shared by all rules of one run.
type ruleInput struct {
	now    time.Time
	tasks  []*store.Task
	userID int32
}

// NewGenerator creates a suggestion generator.
func NewGenerator(s Store, cfg Config) *Generator {
	return &Generator{
		store: s,
		cfg:   cfg.withDefaults(),
		newID: func(now time.Time) string {
			return fmt.Sprintf("suggestion_%d_%s", now.UnixMilli(), shortuuid.New())
		},
	}
}

// Generate evaluates every rule against today's tasks and stored insights,
// persists each produced suggestion and returns them. The error combines the
// failures of individual rules; suggestions from the other rules are still
// returned alongside it.
func (g *Generator) Generate(ctx context.Context, userID int32) ([]*store.Suggestion, error) {
	now := g.cfg.Now()
	today := now.In(g.cfg.Location).Format(store.DateLayout)
	tasks, err := g.store.ListTasks(ctx, &store.FindTask{UserID: &userID, FromDate: &today, ToDate: &today})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list today's tasks")
	}
	in := &ruleInput{userID: userID, now: now, tasks: tasks}

	rules := []rule{
		{name: store.SuggestionTypeScheduleOptimization, eval: g.scheduleOptimization},
		{name: store.SuggestionTypeEnergyOptimization, eval: g.energyOptimization},
		{name: store.SuggestionTypeBreakReminder, eval: g.breakReminder},
		{name: store.SuggestionTypeGoalAdjustment, eval: g.goalAdjustment},
		{name: store.SuggestionTypeTaskCreation, eval: g.taskCreation},
	}

	var (
		generated []*store.Suggestion
		errs      error
	)
	for _, r := range rules {
		suggestion, err := r.eval(ctx, in)
		if err == nil && suggestion != nil {
			suggestion, err = g.persist(ctx, suggestion)
		}
		if err != nil {
			slog.Warn("suggestion rule failed", "user_id", userID, "rule", r.name, "error", err)
			errs = multierr.Append(errs, errors.Wrapf(err, "rule %s", r.name))
			continue
		}
		if suggestion != nil {
			g.cfg.Recorder.SuggestionGenerated(suggestion.Type)
			generated = append(generated, suggestion)
		}
	}
	return generated, errs
}

func (g *Generator) newSuggestion(in *ruleInput, t store.SuggestionType, priority store.SuggestionPriority, validity time.Duration, confidence float64, title, description string, extra map[string]any) (*store.Suggestion, error) {
	normalized, err := normalizeContext(extra)
	if err != nil {
		return nil, err
	}
	return &store.Suggestion{
		ID:          g.newID(in.now),
		UserID:      in.userID,
		Type:        t,
		Title:       title,
		Description: description,
		Actionable:  true,
		Priority:    priority,
		Context:     normalized,
		ValidUntil:  in.now.Add(validity),
		Confidence:  confidence,
		Status:      store.SuggestionStatusActive,
		CreatedTs:   in.now.Unix(),
		UpdatedTs:   in.now.Unix(),
	}, nil
}

// persist appends the suggestion to the insight log, then stores its row.
func (g *Generator) persist(ctx context.Context, suggestion *store.Suggestion) (*store.Suggestion, error) {
	data, err := json.Marshal(&Envelope{
		Suggestion: suggestion,
		Type:       PayloadTypeProactiveSuggestion,
		Generated:  g.cfg.Now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal suggestion envelope")
	}
	if _, err := g.store.CreateBehaviorInsight(ctx, &store.BehaviorInsight{
		UserID:      suggestion.UserID,
		InsightType: store.InsightTypeSchedulingPreference,
		Data:        data,
		Confidence:  store.FormatConfidence(suggestion.Confidence),
		CreatedTs:   suggestion.CreatedTs,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to create suggestion insight")
	}
	created, err := g.store.CreateSuggestion(ctx, suggestion)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create suggestion")
	}
	return created, nil
}

// scheduleOptimization fires when pending tasks today have no time slot.
func (g *Generator) scheduleOptimization(ctx context.Context, in *ruleInput) (*store.Suggestion, error) {
	var ids []int32
	for _, task := range in.tasks {
		if task.Status == store.TaskStatusPending && !task.HasScheduledTime() {
			ids = append(ids, task.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	hours, err := g.latestPeakHours(ctx, in.userID)
	if err != nil {
		return nil, err
	}
	description := fmt.Sprintf("You have %d unscheduled tasks today. Give them a time slot to stay on track.", len(ids))
	if len(hours) > 0 {
		description = fmt.Sprintf("You have %d unscheduled tasks today. Schedule them during your peak hours (%s).", len(ids), strings.Join(hours, ", "))
	}
	return g.newSuggestion(in, store.SuggestionTypeScheduleOptimization, store.SuggestionPriorityMedium, 24*time.Hour, 0.8,
		"Optimize Your Schedule", description,
		map[string]any{keyUnscheduledTaskIDs: ids, keyOptimalHours: hours})
}

// energyOptimization fires when important tasks sit in a low energy period.
func (g *Generator) energyOptimization(ctx context.Context, in *ruleInput) (*store.Suggestion, error) {
	user, err := g.store.GetUser(ctx, &store.FindUser{ID: &in.userID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	if user == nil || user.Preferences == nil || user.Preferences.EnergyLevels == nil {
		return nil, nil
	}
	levels := user.Preferences.EnergyLevels

	var ids []int32
	for _, task := range in.tasks {
		if task.Priority != store.TaskPriorityHigh && task.Priority != store.TaskPriorityCritical {
			continue
		}
		hour, ok := habit.TaskHour(task)
		if !ok {
			continue
		}
		period, ok := habit.DayPeriod(hour)
		if !ok {
			continue
		}
		if habit.PeriodLevel(levels, period) == store.EnergyLevelLow {
			ids = append(ids, task.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return g.newSuggestion(in, store.SuggestionTypeEnergyOptimization, store.SuggestionPriorityHigh, 12*time.Hour, 0.9,
		"Align Tasks with Your Energy",
		fmt.Sprintf("%d important tasks are scheduled during your low-energy hours. Move them to a high-energy period.", len(ids)),
		map[string]any{keyMisalignedTaskIDs: ids, keyEnergyLevels: levels})
}

// breakReminder fires when scheduled tasks today run back to back for more
// than two hours. A gap of at least 15 minutes counts as a break.
func (g *Generator) breakReminder(_ context.Context, in *ruleInput) (*store.Suggestion, error) {
	var active []*store.Task
	for _, task := range in.tasks {
		if task.Status != store.TaskStatusCancelled {
			active = append(active, task)
		}
	}
	slotted := habit.SortBySlot(active)
	if len(slotted) < 2 {
		return nil, nil
	}

	longest := ConsecutiveWorkMinutes(slotted)
	if longest <= maxConsecutiveMinutes {
		return nil, nil
	}
	hours := math.Round(float64(longest)/60*10) / 10
	return g.newSuggestion(in, store.SuggestionTypeBreakReminder, store.SuggestionPriorityMedium, 8*time.Hour, 0.7,
		"Schedule a Break",
		fmt.Sprintf("You have %.1f hours of back-to-back work today. Take a %d minute break to stay focused.", hours, defaultBreakMinutes),
		map[string]any{keyConsecutiveHours: hours, keySuggestedBreakDuration: defaultBreakMinutes})
}

// ConsecutiveWorkMinutes returns the longest stretch of slot-sorted tasks not
// interrupted by a gap of at least 15 minutes.
func ConsecutiveWorkMinutes(sorted []*store.Task) int {
	longest, current, prevEnd := 0, 0, 0
	for i, task := range sorted {
		start, _ := habit.ParseClock(*task.ScheduledTime)
		if i > 0 && start-prevEnd >= breakGapMinutes {
			current = 0
		}
		current += int(task.EstimatedDuration)
		longest = max(longest, current)
		prevEnd = start + int(task.EstimatedDuration)
	}
	return longest
}

// goalAdjustment fires for current-year goals whose objectives this month
// average less than 30% progress.
func (g *Generator) goalAdjustment(ctx context.Context, in *ruleInput) (*store.Suggestion, error) {
	local := in.now.In(g.cfg.Location)
	year, month := int32(local.Year()), int32(local.Month())

	goals, err := g.store.ListGoals(ctx, &store.FindGoal{UserID: &in.userID, Year: &year})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list goals")
	}
	if len(goals) == 0 {
		return nil, nil
	}
	objectives, err := g.store.ListObjectives(ctx, &store.FindObjective{UserID: &in.userID, Month: &month, Year: &year})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list objectives")
	}

	ids := LowProgressGoals(goals, objectives)
	if len(ids) == 0 {
		return nil, nil
	}
	return g.newSuggestion(in, store.SuggestionTypeGoalAdjustment, store.SuggestionPriorityHigh, maxValidity, 0.8,
		"Review Goal Progress",
		fmt.Sprintf("%d goals are behind this month. Plan a review to get back on track.", len(ids)),
		map[string]any{keyLowProgressGoalIDs: ids})
}

// LowProgressGoals returns the goals whose linked objectives average less
// than 30% progress. Goals without objectives are ignored.
func LowProgressGoals(goals []*store.Goal, objectives []*store.Objective) []int32 {
	sums := map[int32]float64{}
	counts := map[int32]int{}
	for _, obj := range objectives {
		sums[obj.GoalID] += obj.Progress
		counts[obj.GoalID]++
	}

	var ids []int32
	for _, goal := range goals {
		n := counts[goal.ID]
		if n == 0 {
			continue
		}
		if sums[goal.ID]/float64(n) < lowGoalProgress {
			ids = append(ids, goal.ID)
		}
	}
	return ids
}

// taskCreation fires on Mondays for users who plan ahead.
func (g *Generator) taskCreation(ctx context.Context, in *ruleInput) (*store.Suggestion, error) {
	weekday := in.now.In(g.cfg.Location).Weekday()
	if weekday != time.Monday {
		return nil, nil
	}
	habits, err := g.latestSchedulingHabits(ctx, in.userID)
	if err != nil {
		return nil, err
	}
	if habits == nil || habits.PlanningStyle != habit.PlanningProactive {
		return nil, nil
	}
	return g.newSuggestion(in, store.SuggestionTypeTaskCreation, store.SuggestionPriorityLow, 6*time.Hour, 0.6,
		"Plan Your Week",
		"You usually plan ahead. Start the week with a planning session.",
		map[string]any{keySuggestedTags: weeklyPlanningTags, keyWeekday: weekday.String()})
}

// latestPeakHours returns the peak hours of the newest completion-hour insight.
func (g *Generator) latestPeakHours(ctx context.Context, userID int32) ([]string, error) {
	insights, err := g.store.ListBehaviorInsights(ctx, &store.FindBehaviorInsight{
		UserID: &userID,
		Types:  []store.InsightType{store.InsightTypeOptimalWorkHours},
		Limit:  insightScanLimit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list work hour insights")
	}
	for _, insight := range insights {
		var payload habit.OptimalHours
		if err := json.Unmarshal(insight.Data, &payload); err != nil {
			continue
		}
		if len(payload.PeakHours) > 0 {
			return payload.PeakHours, nil
		}
	}
	return []string{}, nil
}

// latestSchedulingHabits returns the newest scheduling-habit analysis.
// Suggestion envelopes share the insight type and are filtered out by the store.
func (g *Generator) latestSchedulingHabits(ctx context.Context, userID int32) (*habit.SchedulingHabits, error) {
	payloadType := habit.PayloadTypeSchedulingHabits
	insights, err := g.store.ListBehaviorInsights(ctx, &store.FindBehaviorInsight{
		UserID:      &userID,
		Types:       []store.InsightType{store.InsightTypeSchedulingPreference},
		PayloadType: &payloadType,
		Limit:       1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list scheduling insights")
	}
	if len(insights) == 0 {
		return nil, nil
	}
	var payload habit.SchedulingHabits
	if err := json.Unmarshal(insights[0].Data, &payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode scheduling habits")
	}
	return &payload, nil
}
