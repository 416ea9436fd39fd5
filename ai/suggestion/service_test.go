package suggestion

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/rhythm/store"
)

func (f *fixture) seed(t *testing.T, id string, suggestionType store.SuggestionType, extra map[string]any, validUntil time.Time) *store.Suggestion {
	t.Helper()
	normalized, err := normalizeContext(extra)
	require.NoError(t, err)
	created, err := f.store.CreateSuggestion(context.Background(), &store.Suggestion{
		ID:         id,
		UserID:     f.userID,
		Type:       suggestionType,
		Title:      "title",
		Priority:   store.SuggestionPriorityMedium,
		Confidence: 0.8,
		Context:    normalized,
		ValidUntil: validUntil,
		Status:     store.SuggestionStatusActive,
		CreatedTs:  testNow.Unix(),
		Actionable: true,
	})
	require.NoError(t, err)
	return created
}

func (f *fixture) status(t *testing.T, id string) store.SuggestionStatus {
	t.Helper()
	rows, err := f.store.ListSuggestions(context.Background(), &store.FindSuggestion{ID: &id})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0].Status
}

func (f *fixture) service() *Service {
	return NewService(f.store, NewGenerator(f.store, f.cfg), f.cfg)
}

type countingRecorder struct {
	generated int
	applied   map[string]int
	dismissed int
}

func (r *countingRecorder) SuggestionGenerated(store.SuggestionType) { r.generated++ }

func (r *countingRecorder) SuggestionApplied(_ store.SuggestionType, outcome string) {
	if r.applied == nil {
		r.applied = map[string]int{}
	}
	r.applied[outcome]++
}

func (r *countingRecorder) SuggestionDismissed() { r.dismissed++ }

func TestListActiveExcludesExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "live", store.SuggestionTypeBreakReminder, nil, testNow.Add(time.Hour))
	f.seed(t, "stale", store.SuggestionTypeBreakReminder, nil, testNow.Add(-time.Second))

	active, err := f.service().ListActive(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "live", active[0].ID)
	assert.Equal(t, store.SuggestionStatusExpired, f.status(t, "stale"))
}

func TestListActiveIncludesLegacySuggestions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	legacy := &store.Suggestion{
		ID:         "suggestion_legacy",
		UserID:     f.userID,
		Type:       store.SuggestionTypeBreakReminder,
		Priority:   store.SuggestionPriorityLow,
		ValidUntil: testNow.Add(time.Hour),
	}
	gone := &store.Suggestion{
		ID:         "suggestion_gone",
		UserID:     f.userID,
		Type:       store.SuggestionTypeBreakReminder,
		ValidUntil: testNow.Add(time.Hour),
	}
	f.insight(t, store.InsightTypeSchedulingPreference, Envelope{Type: PayloadTypeProactiveSuggestion, Suggestion: legacy}, testNow.Unix()-60)
	f.insight(t, store.InsightTypeSchedulingPreference, Envelope{Type: PayloadTypeProactiveSuggestion, Suggestion: gone}, testNow.Unix()-60)
	f.insight(t, store.InsightTypeSuggestionDismissed, Dismissal{SuggestionID: "suggestion_gone"}, testNow.Unix()-30)

	active, err := f.service().ListActive(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "suggestion_legacy", active[0].ID)
	assert.Equal(t, store.SuggestionStatusActive, active[0].Status)
}

func TestExtractFromInsights(t *testing.T) {
	envelope := func(id string, validUntil time.Time) *store.BehaviorInsight {
		data, err := json.Marshal(Envelope{Suggestion: &store.Suggestion{ID: id, ValidUntil: validUntil}})
		require.NoError(t, err)
		return &store.BehaviorInsight{InsightType: store.InsightTypeSchedulingPreference, Data: data}
	}
	insights := []*store.BehaviorInsight{
		envelope("a", testNow.Add(time.Hour)),
		envelope("a", testNow.Add(time.Hour)),
		envelope("expired", testNow.Add(-time.Hour)),
		{InsightType: store.InsightTypeSchedulingPreference, Data: json.RawMessage(`{"type":"scheduling_habits"}`)},
		{InsightType: store.InsightTypeSchedulingPreference, Data: json.RawMessage(`not json`)},
	}

	extracted := ExtractFromInsights(insights, testNow)
	require.Len(t, extracted, 1)
	assert.Equal(t, "a", extracted[0].ID)
}

func TestApplyScheduleOptimization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := &countingRecorder{}
	f.cfg.Recorder = rec

	a := f.task(t, f.userID, "", 30, store.TaskPriorityMedium, store.TaskStatusPending)
	b := f.task(t, f.userID, "", 30, store.TaskPriorityMedium, store.TaskStatusPending)
	foreign := f.task(t, f.other, "", 30, store.TaskPriorityMedium, store.TaskStatusPending)
	f.seed(t, "s1", store.SuggestionTypeScheduleOptimization, map[string]any{
		keyUnscheduledTaskIDs: []int32{a.ID, b.ID, foreign.ID, 999},
		keyOptimalHours:       []string{"9:00", "14:00"},
	}, testNow.Add(time.Hour))

	svc := f.service()
	result, err := svc.Apply(ctx, f.userID, "s1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempted)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, store.SuggestionStatusApplied, f.status(t, "s1"))

	for _, id := range []int32{a.ID, b.ID} {
		task, err := f.store.GetTask(ctx, id)
		require.NoError(t, err)
		require.True(t, task.HasScheduledTime())
		assert.Equal(t, "9:00", *task.ScheduledTime)
	}
	untouched, err := f.store.GetTask(ctx, foreign.ID)
	require.NoError(t, err)
	assert.False(t, untouched.HasScheduledTime())

	// A second apply has no side effects.
	again, err := svc.Apply(ctx, f.userID, "s1")
	require.NoError(t, err)
	assert.True(t, again.AlreadyApplied)
	assert.Zero(t, again.Attempted)
	assert.Equal(t, 1, rec.applied[OutcomeSuccess])
	assert.Equal(t, 1, rec.applied[OutcomeAlreadyApplied])
}

func TestApplyDefaultsToNineWithoutOptimalHours(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.task(t, f.userID, "", 30, store.TaskPriorityMedium, store.TaskStatusPending)
	f.seed(t, "s1", store.SuggestionTypeScheduleOptimization, map[string]any{
		keyUnscheduledTaskIDs: []int32{a.ID},
		keyOptimalHours:       []string{},
	}, testNow.Add(time.Hour))

	_, err := f.service().Apply(ctx, f.userID, "s1")
	require.NoError(t, err)
	task, err := f.store.GetTask(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "09:00", *task.ScheduledTime)
}

func TestApplyRevertsWhenEveryMutationFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.task(t, f.userID, "", 30, store.TaskPriorityMedium, store.TaskStatusPending)
	b := f.task(t, f.userID, "", 30, store.TaskPriorityMedium, store.TaskStatusPending)
	f.db.FailTaskUpdates[a.ID] = errors.New("disk full")
	f.db.FailTaskUpdates[b.ID] = errors.New("disk full")
	f.seed(t, "s1", store.SuggestionTypeScheduleOptimization, map[string]any{
		keyUnscheduledTaskIDs: []int32{a.ID, b.ID},
	}, testNow.Add(time.Hour))

	svc := f.service()
	result, err := svc.Apply(ctx, f.userID, "s1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Failed)
	assert.Contains(t, result.Message, "2 of 2 changes failed")
	assert.Equal(t, store.SuggestionStatusActive, f.status(t, "s1"))

	// Retry once the store recovers.
	delete(f.db.FailTaskUpdates, a.ID)
	delete(f.db.FailTaskUpdates, b.ID)
	result, err = svc.Apply(ctx, f.userID, "s1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Succeeded)
}

func TestApplyPartialFailureStaysApplied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.task(t, f.userID, "", 30, store.TaskPriorityMedium, store.TaskStatusPending)
	b := f.task(t, f.userID, "", 30, store.TaskPriorityMedium, store.TaskStatusPending)
	f.db.FailTaskUpdates[a.ID] = errors.New("disk full")
	f.seed(t, "s1", store.SuggestionTypeScheduleOptimization, map[string]any{
		keyUnscheduledTaskIDs: []int32{a.ID, b.ID},
	}, testNow.Add(time.Hour))

	result, err := f.service().Apply(ctx, f.userID, "s1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, store.SuggestionStatusApplied, f.status(t, "s1"))
}

func TestApplyNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "stale", store.SuggestionTypeBreakReminder, nil, testNow.Add(-time.Minute))
	svc := f.service()

	_, err := svc.Apply(ctx, f.userID, "missing")
	assert.ErrorIs(t, err, ErrSuggestionNotFound)

	_, err = svc.Apply(ctx, f.userID, "stale")
	assert.ErrorIs(t, err, ErrSuggestionNotFound)
	assert.Equal(t, store.SuggestionStatusExpired, f.status(t, "stale"))

	// Suggestions of other users are invisible.
	_, err = svc.Apply(ctx, f.other, "stale")
	assert.ErrorIs(t, err, ErrSuggestionNotFound)
}

func TestApplyUnknownType(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "odd", store.SuggestionType("focus_mode"), nil, testNow.Add(time.Hour))

	_, err := f.service().Apply(context.Background(), f.userID, "odd")
	assert.ErrorIs(t, err, ErrUnknownSuggestionType)
	assert.Equal(t, store.SuggestionStatusActive, f.status(t, "odd"))
}

func TestApplyEnergyOptimization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	t1 := f.task(t, f.userID, "19:00", 30, store.TaskPriorityHigh, store.TaskStatusPending)
	t2 := f.task(t, f.userID, "20:00", 30, store.TaskPriorityHigh, store.TaskStatusPending)
	f.seed(t, "e1", store.SuggestionTypeEnergyOptimization, map[string]any{
		keyMisalignedTaskIDs: []int32{t1.ID, t2.ID},
		keyEnergyLevels: store.EnergyLevels{
			Morning:   store.EnergyLevelLow,
			Afternoon: store.EnergyLevelHigh,
			Evening:   store.EnergyLevelLow,
		},
	}, testNow.Add(time.Hour))

	result, err := f.service().Apply(ctx, f.userID, "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)

	got1, err := f.store.GetTask(ctx, t1.ID)
	require.NoError(t, err)
	got2, err := f.store.GetTask(ctx, t2.ID)
	require.NoError(t, err)
	assert.Equal(t, "14:00", *got1.ScheduledTime)
	assert.Equal(t, "15:00", *got2.ScheduledTime)
}

func TestApplyEnergyOptimizationWithoutHighPeriods(t *testing.T) {
	f := newFixture(t)
	t1 := f.task(t, f.userID, "19:00", 30, store.TaskPriorityHigh, store.TaskStatusPending)
	f.seed(t, "e1", store.SuggestionTypeEnergyOptimization, map[string]any{
		keyMisalignedTaskIDs: []int32{t1.ID},
		keyEnergyLevels:      store.EnergyLevels{Morning: store.EnergyLevelLow, Afternoon: store.EnergyLevelMedium, Evening: store.EnergyLevelLow},
	}, testNow.Add(time.Hour))

	result, err := f.service().Apply(context.Background(), f.userID, "e1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.Attempted)
	assert.Equal(t, 1, result.Skipped)
}

func TestApplyBreakReminder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "b1", store.SuggestionTypeBreakReminder, map[string]any{
		keyConsecutiveHours:       2.5,
		keySuggestedBreakDuration: 20,
	}, testNow.Add(time.Hour))

	result, err := f.service().Apply(ctx, f.userID, "b1")
	require.NoError(t, err)
	assert.True(t, result.Success)

	tasks, err := f.store.ListTasks(ctx, &store.FindTask{UserID: &f.userID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Take a Break", tasks[0].Title)
	assert.Equal(t, "14:00", *tasks[0].ScheduledTime)
	assert.Equal(t, int32(20), tasks[0].EstimatedDuration)
	assert.Equal(t, store.TaskPriorityLow, tasks[0].Priority)
	assert.Equal(t, today, tasks[0].ScheduledDate)
}

func TestApplyGoalAdjustment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mine, err := f.store.CreateGoal(ctx, &store.Goal{UserID: f.userID, Title: "Ship the book", Year: 2026})
	require.NoError(t, err)
	theirs, err := f.store.CreateGoal(ctx, &store.Goal{UserID: f.other, Title: "Secret", Year: 2026})
	require.NoError(t, err)
	f.seed(t, "g1", store.SuggestionTypeGoalAdjustment, map[string]any{
		keyLowProgressGoalIDs: []int32{mine.ID, theirs.ID},
	}, testNow.Add(time.Hour))

	result, err := f.service().Apply(ctx, f.userID, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Skipped)

	tasks, err := f.store.ListTasks(ctx, &store.FindTask{UserID: &f.userID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Review Progress: Ship the book", tasks[0].Title)
	assert.Equal(t, store.TaskPriorityHigh, tasks[0].Priority)
	assert.Equal(t, int32(30), tasks[0].EstimatedDuration)
}

func TestApplyTaskCreation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "c1", store.SuggestionTypeTaskCreation, map[string]any{
		keySuggestedTags: weeklyPlanningTags,
		keyWeekday:       "Monday",
	}, testNow.Add(time.Hour))

	_, err := f.service().Apply(ctx, f.userID, "c1")
	require.NoError(t, err)

	tasks, err := f.store.ListTasks(ctx, &store.FindTask{UserID: &f.userID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Weekly Planning Session", tasks[0].Title)
	assert.Equal(t, []string{"planning", "review", "goals"}, tasks[0].Tags)
	assert.Equal(t, int32(60), tasks[0].EstimatedDuration)
}

func TestApplyAdoptsLegacySuggestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	legacy := &store.Suggestion{
		ID:         "suggestion_legacy",
		UserID:     f.userID,
		Type:       store.SuggestionTypeBreakReminder,
		ValidUntil: testNow.Add(time.Hour),
		Context:    map[string]any{keySuggestedBreakDuration: 15},
	}
	f.insight(t, store.InsightTypeSchedulingPreference, Envelope{Type: PayloadTypeProactiveSuggestion, Suggestion: legacy}, testNow.Unix())

	result, err := f.service().Apply(ctx, f.userID, "suggestion_legacy")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, store.SuggestionStatusApplied, f.status(t, "suggestion_legacy"))
}

func TestDismiss(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := &countingRecorder{}
	f.cfg.Recorder = rec
	f.seed(t, "d1", store.SuggestionTypeBreakReminder, nil, testNow.Add(time.Hour))
	svc := f.service()

	require.NoError(t, svc.Dismiss(ctx, f.userID, "d1"))
	assert.Equal(t, store.SuggestionStatusDismissed, f.status(t, "d1"))
	assert.Equal(t, 1, rec.dismissed)

	insights, err := f.store.ListBehaviorInsights(ctx, &store.FindBehaviorInsight{
		UserID: &f.userID,
		Types:  []store.InsightType{store.InsightTypeSuggestionDismissed},
	})
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "1.00", insights[0].Confidence)
	var payload Dismissal
	require.NoError(t, json.Unmarshal(insights[0].Data, &payload))
	assert.Equal(t, "d1", payload.SuggestionID)

	active, err := svc.ListActive(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, svc.Dismiss(ctx, f.userID, "d1"), ErrSuggestionNotFound)
	assert.ErrorIs(t, svc.Dismiss(ctx, f.userID, "missing"), ErrSuggestionNotFound)

	_, err = svc.Apply(ctx, f.userID, "d1")
	assert.ErrorIs(t, err, ErrSuggestionNotFound)
}

func TestGenerateNow(t *testing.T) {
	f := newFixture(t)
	f.task(t, f.userID, "", 30, store.TaskPriorityMedium, store.TaskStatusPending)

	generated, err := f.service().GenerateNow(context.Background(), f.userID)
	require.NoError(t, err)
	require.Len(t, generated, 1)

	_, err = NewService(f.store, nil, f.cfg).GenerateNow(context.Background(), f.userID)
	assert.Error(t, err)
}

// insightFailingStore fails insight writes while fail is set.
type insightFailingStore struct {
	Store
	fail bool
}

func (s *insightFailingStore) CreateBehaviorInsight(ctx context.Context, create *store.BehaviorInsight) (*store.BehaviorInsight, error) {
	if s.fail {
		return nil, errors.New("insight log unavailable")
	}
	return s.Store.CreateBehaviorInsight(ctx, create)
}

func TestDismissKeepsSuggestionActiveWhenInsightWriteFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := &countingRecorder{}
	f.cfg.Recorder = rec
	f.seed(t, "d1", store.SuggestionTypeBreakReminder, nil, testNow.Add(time.Hour))

	failing := &insightFailingStore{Store: f.store, fail: true}
	svc := NewService(failing, nil, f.cfg)

	err := svc.Dismiss(ctx, f.userID, "d1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSuggestionNotFound)
	assert.Equal(t, store.SuggestionStatusActive, f.status(t, "d1"))
	assert.Zero(t, rec.dismissed)

	failing.fail = false
	require.NoError(t, svc.Dismiss(ctx, f.userID, "d1"))
	assert.Equal(t, store.SuggestionStatusDismissed, f.status(t, "d1"))
	assert.Equal(t, 1, rec.dismissed)

	insights, err := f.store.ListBehaviorInsights(ctx, &store.FindBehaviorInsight{
		UserID: &f.userID,
		Types:  []store.InsightType{store.InsightTypeSuggestionDismissed},
	})
	require.NoError(t, err)
	assert.Len(t, insights, 1)
}

// scanCountingStore counts the insights returned to the service.
type scanCountingStore struct {
	Store
	scanned int
}

func (s *scanCountingStore) ListBehaviorInsights(ctx context.Context, find *store.FindBehaviorInsight) ([]*store.BehaviorInsight, error) {
	insights, err := s.Store.ListBehaviorInsights(ctx, find)
	s.scanned += len(insights)
	return insights, err
}

func TestListActiveOnlyScansRecentInsights(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	old := testNow.Add(-60 * 24 * time.Hour).Unix()
	for i := 0; i < 100; i++ {
		f.insight(t, store.InsightTypeSchedulingPreference, map[string]any{"type": "scheduling_habits"}, old+int64(i))
	}
	f.seed(t, "row", store.SuggestionTypeBreakReminder, nil, testNow.Add(time.Hour))
	recent := &store.Suggestion{
		ID:         "suggestion_recent",
		UserID:     f.userID,
		Type:       store.SuggestionTypeBreakReminder,
		ValidUntil: testNow.Add(time.Hour),
	}
	f.insight(t, store.InsightTypeSchedulingPreference, Envelope{Type: PayloadTypeProactiveSuggestion, Suggestion: recent}, testNow.Unix()-60)

	counting := &scanCountingStore{Store: f.store}
	active, err := NewService(counting, nil, f.cfg).ListActive(ctx, f.userID)
	require.NoError(t, err)
	ids := make([]string, 0, len(active))
	for _, suggestion := range active {
		ids = append(ids, suggestion.ID)
	}
	assert.ElementsMatch(t, []string{"row", "suggestion_recent"}, ids)
	assert.Equal(t, 1, counting.scanned)
}

// racingAdoptStore lets another caller adopt the suggestion first.
type racingAdoptStore struct {
	Store
}

func (s racingAdoptStore) CreateSuggestion(ctx context.Context, create *store.Suggestion) (*store.Suggestion, error) {
	if _, err := s.Store.CreateSuggestion(ctx, create); err != nil {
		return nil, err
	}
	return nil, errors.Errorf("suggestion %s already exists", create.ID)
}

func TestApplyLegacySuggestionAdoptedConcurrently(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	legacy := &store.Suggestion{
		ID:         "suggestion_legacy",
		UserID:     f.userID,
		Type:       store.SuggestionTypeBreakReminder,
		ValidUntil: testNow.Add(time.Hour),
		Context:    map[string]any{keySuggestedBreakDuration: 15},
	}
	f.insight(t, store.InsightTypeSchedulingPreference, Envelope{Type: PayloadTypeProactiveSuggestion, Suggestion: legacy}, testNow.Unix())

	result, err := NewService(racingAdoptStore{Store: f.store}, nil, f.cfg).Apply(ctx, f.userID, "suggestion_legacy")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, store.SuggestionStatusApplied, f.status(t, "suggestion_legacy"))
}
