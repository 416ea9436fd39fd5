package suggestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hrygo/rhythm/ai/habit"
	"github.com/hrygo/rhythm/store"
)

const (
	defaultScheduleSlot = "09:00"
	breakSlot           = "14:00"
	reviewTaskMinutes   = 30
)

// energySlots are the candidate time slots of each day period, tried only
// for periods labeled high.
var energySlots = []struct {
	period string
	slots  []string
}{
	{"morning", []string{"09:00", "10:00", "11:00"}},
	{"afternoon", []string{"14:00", "15:00", "16:00"}},
	{"evening", []string{"19:00", "20:00"}},
}

// ApplyResult summarizes the mutations performed by an apply. Attempted
// counts mutations that were tried, Skipped counts references that were
// missing, not owned by the user or no longer needed a change.
type ApplyResult struct {
	Message        string `json:"message"`
	Attempted      int    `json:"attempted"`
	Succeeded      int    `json:"succeeded"`
	Failed         int    `json:"failed"`
	Skipped        int    `json:"skipped"`
	Success        bool   `json:"success"`
	AlreadyApplied bool   `json:"alreadyApplied,omitempty"`
}

type handler func(ctx context.Context, userID int32, suggestion *store.Suggestion) *ApplyResult

func (r *ApplyResult) record(err error) {
	r.Attempted++
	if err != nil {
		r.Failed++
		return
	}
	r.Succeeded++
}

func (r *ApplyResult) finish() {
	r.Success = r.Failed == 0
	if r.Failed > 0 {
		r.Message = fmt.Sprintf("%s (%d of %d changes failed)", r.Message, r.Failed, r.Attempted)
	}
}

func (r *ApplyResult) outcome() string {
	switch {
	case r.Failed == 0:
		return OutcomeSuccess
	case r.Succeeded > 0:
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}

func (s *Service) today() string {
	return s.cfg.Now().In(s.cfg.Location).Format(store.DateLayout)
}

// ownedTask returns the task when it exists and belongs to userID. Lookup
// errors are logged and treated as a missing task.
func (s *Service) ownedTask(ctx context.Context, userID, taskID int32) *store.Task {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		slog.Warn("failed to load task for suggestion", "user_id", userID, "task_id", taskID, "error", err)
		return nil
	}
	if task == nil || task.UserID != userID {
		return nil
	}
	return task
}

func (s *Service) reschedule(ctx context.Context, taskID int32, slot string) error {
	_, err := s.store.UpdateTask(ctx, &store.UpdateTask{
		ID:            taskID,
		ScheduledTime: &slot,
		UpdatedTs:     s.cfg.Now().Unix(),
	})
	return err
}

func (s *Service) createTask(ctx context.Context, create *store.Task) error {
	create.ScheduledDate = s.today()
	create.Status = store.TaskStatusPending
	create.CreatedTs = s.cfg.Now().Unix()
	_, err := s.store.CreateTask(ctx, create)
	return err
}

// applyScheduleOptimization gives every owned, still unscheduled task the
// first optimal hour.
func (s *Service) applyScheduleOptimization(ctx context.Context, userID int32, suggestion *store.Suggestion) *ApplyResult {
	slot := defaultScheduleSlot
	if hours := contextStrings(suggestion.Context, keyOptimalHours); len(hours) > 0 {
		slot = hours[0]
	}

	result := &ApplyResult{}
	for _, id := range contextIDs(suggestion.Context, keyUnscheduledTaskIDs) {
		task := s.ownedTask(ctx, userID, id)
		if task == nil || task.HasScheduledTime() {
			result.Skipped++
			continue
		}
		result.record(s.reschedule(ctx, id, slot))
	}
	result.Message = fmt.Sprintf("Scheduled %d tasks at %s", result.Succeeded, slot)
	return result
}

// applyEnergyOptimization moves misaligned tasks into high energy slots, in
// order, until either list runs out.
func (s *Service) applyEnergyOptimization(ctx context.Context, userID int32, suggestion *store.Suggestion) *ApplyResult {
	var slots []string
	if levels := contextEnergyLevels(suggestion.Context, keyEnergyLevels); levels != nil {
		for _, period := range energySlots {
			if habit.PeriodLevel(levels, period.period) == store.EnergyLevelHigh {
				slots = append(slots, period.slots...)
			}
		}
	}

	result := &ApplyResult{}
	for i, id := range contextIDs(suggestion.Context, keyMisalignedTaskIDs) {
		if i >= len(slots) {
			result.Skipped++
			continue
		}
		if s.ownedTask(ctx, userID, id) == nil {
			result.Skipped++
			continue
		}
		result.record(s.reschedule(ctx, id, slots[i]))
	}
	result.Message = fmt.Sprintf("Moved %d tasks to high-energy time slots", result.Succeeded)
	return result
}

// applyBreakReminder adds a break to today's schedule.
func (s *Service) applyBreakReminder(ctx context.Context, userID int32, suggestion *store.Suggestion) *ApplyResult {
	duration := int32(contextNumber(suggestion.Context, keySuggestedBreakDuration, defaultBreakMinutes))
	slot := breakSlot

	result := &ApplyResult{}
	result.record(s.createTask(ctx, &store.Task{
		UserID:            userID,
		Title:             "Take a Break",
		Description:       "Step away from work to recharge.",
		ScheduledTime:     &slot,
		EstimatedDuration: duration,
		Priority:          store.TaskPriorityLow,
	}))
	result.Message = fmt.Sprintf("Added a %d minute break at %s", duration, slot)
	return result
}

// applyGoalAdjustment adds a review task for every owned low-progress goal.
func (s *Service) applyGoalAdjustment(ctx context.Context, userID int32, suggestion *store.Suggestion) *ApplyResult {
	result := &ApplyResult{}
	for _, id := range contextIDs(suggestion.Context, keyLowProgressGoalIDs) {
		goal, err := s.store.GetGoal(ctx, id)
		if err != nil {
			slog.Warn("failed to load goal for suggestion", "user_id", userID, "goal_id", id, "error", err)
		}
		if goal == nil || goal.UserID != userID {
			result.Skipped++
			continue
		}
		result.record(s.createTask(ctx, &store.Task{
			UserID:            userID,
			Title:             "Review Progress: " + goal.Title,
			Description:       "Check this month's objectives and adjust the plan.",
			EstimatedDuration: reviewTaskMinutes,
			Priority:          store.TaskPriorityHigh,
		}))
	}
	result.Message = fmt.Sprintf("Created %d goal review tasks", result.Succeeded)
	return result
}

// applyTaskCreation adds a weekly planning session for today.
func (s *Service) applyTaskCreation(ctx context.Context, userID int32, suggestion *store.Suggestion) *ApplyResult {
	result := &ApplyResult{}
	result.record(s.createTask(ctx, &store.Task{
		UserID:            userID,
		Title:             "Weekly Planning Session",
		Description:       "Review last week and plan the week ahead.",
		EstimatedDuration: planningSessionMinutes,
		Priority:          store.TaskPriorityMedium,
		Tags:              contextStrings(suggestion.Context, keySuggestedTags),
	}))
	result.Message = "Created a weekly planning session"
	return result
}
