package habit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/rhythm/store"
)

func slot(s string) *string { return &s }

func completedAt(clock string, priority store.TaskPriority, tags ...string) *store.Task {
	return &store.Task{
		ScheduledDate: "2026-03-02",
		ScheduledTime: slot(clock),
		Status:        store.TaskStatusCompleted,
		Priority:      priority,
		Tags:          tags,
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"09:30", 570, true},
		{"9:00", 540, true},
		{"23:59", 1439, true},
		{"24:00", 0, false},
		{"10:75", 0, false},
		{"noon", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseClock(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDayPeriod(t *testing.T) {
	for hour, want := range map[int]string{5: "", 6: "morning", 11: "morning", 12: "afternoon", 17: "afternoon", 18: "evening", 23: "evening"} {
		got, ok := DayPeriod(hour)
		assert.Equal(t, want != "", ok, "hour %d", hour)
		assert.Equal(t, want, got, "hour %d", hour)
	}
}

func TestEnergyLabel(t *testing.T) {
	tests := []struct {
		mean float64
		want store.EnergyLevel
	}{
		{0.85, store.EnergyLevelHigh},
		{0.8, store.EnergyLevelHigh},
		{0.65, store.EnergyLevelMedium},
		{0.6, store.EnergyLevelMedium},
		{0.59, store.EnergyLevelLow},
		{0.4, store.EnergyLevelLow},
		{0, store.EnergyLevelLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EnergyLabel(tt.mean), "mean %v", tt.mean)
	}
}

func TestComputeOptimalHours(t *testing.T) {
	t.Run("single qualifying bucket", func(t *testing.T) {
		tasks := []*store.Task{
			completedAt("09:00", store.TaskPriorityHigh, "deep", "code"),
			completedAt("09:15", store.TaskPriorityHigh, "mail"),
			completedAt("09:30", store.TaskPriorityMedium, "code"),
			completedAt("09:45", store.TaskPriorityCritical, "deep"),
			completedAt("09:50", store.TaskPriorityLow, "review"),
			// Two samples do not qualify.
			completedAt("14:00", store.TaskPriorityHigh),
			completedAt("14:30", store.TaskPriorityHigh),
			// Pending and unslotted tasks are ignored.
			{ScheduledDate: "2026-03-02", ScheduledTime: slot("14:45"), Status: store.TaskStatusPending, Priority: store.TaskPriorityHigh},
			{ScheduledDate: "2026-03-02", Status: store.TaskStatusCompleted, Priority: store.TaskPriorityHigh},
		}

		hours, confidence := ComputeOptimalHours(tasks)
		require.NotNil(t, hours)
		require.Len(t, hours.Hours, 1)
		assert.Equal(t, 9, hours.Hours[0].Hour)
		assert.Equal(t, 5, hours.Hours[0].Count)
		assert.InDelta(t, 0.98, hours.Hours[0].AvgEfficiency, 1e-9)
		assert.Equal(t, []string{"deep", "code", "mail"}, hours.Hours[0].TopTags)
		assert.Equal(t, []string{"9:00"}, hours.PeakHours)
		assert.Equal(t, 0.6, confidence)
	})

	t.Run("five buckets raise confidence", func(t *testing.T) {
		var tasks []*store.Task
		for i, clock := range []string{"08:00", "09:00", "10:00", "15:00", "20:00", "21:00"} {
			priority := store.TaskPriorityMedium
			if i == 0 {
				priority = store.TaskPriorityLow
			}
			for j := 0; j < 3; j++ {
				tasks = append(tasks, completedAt(clock, priority))
			}
		}

		hours, confidence := ComputeOptimalHours(tasks)
		require.NotNil(t, hours)
		assert.Equal(t, 0.8, confidence)
		assert.Equal(t, 6, hours.QualifyingHours)
		assert.Len(t, hours.Hours, 5)
		assert.Equal(t, []string{"9:00", "10:00"}, hours.PeakHours)
		// The low-priority hour ranks last and is cut.
		for _, stat := range hours.Hours {
			assert.NotEqual(t, 8, stat.Hour)
		}
	})

	t.Run("no qualifying bucket", func(t *testing.T) {
		hours, confidence := ComputeOptimalHours([]*store.Task{completedAt("09:00", store.TaskPriorityHigh)})
		assert.Nil(t, hours)
		assert.Zero(t, confidence)
	})
}

func TestComputeEnergyProfile(t *testing.T) {
	tasks := []*store.Task{
		completedAt("09:00", store.TaskPriorityHigh),
		completedAt("10:00", store.TaskPriorityLow),
		{ScheduledDate: "2026-03-02", ScheduledTime: slot("14:00"), Status: store.TaskStatusPending, Priority: store.TaskPriorityHigh},
		completedAt("15:00", store.TaskPriorityMedium),
		completedAt("19:00", store.TaskPriorityLow),
		{ScheduledDate: "2026-03-02", ScheduledTime: slot("20:00"), Status: store.TaskStatusPending, Priority: store.TaskPriorityCritical},
		completedAt("21:00", store.TaskPriorityMedium),
		completedAt("03:00", store.TaskPriorityLow),
	}

	profile := ComputeEnergyProfile(tasks)
	assert.Equal(t, PayloadTypeEnergyLevels, profile.Type)
	assert.InDelta(t, 0.95, profile.PeriodEfficiency.Morning, 1e-9)
	assert.InDelta(t, 0.55, profile.PeriodEfficiency.Afternoon, 1e-9)
	assert.InDelta(t, 0.7, profile.PeriodEfficiency.Evening, 1e-9)
	assert.Equal(t, store.EnergyLevels{
		Morning:   store.EnergyLevelHigh,
		Afternoon: store.EnergyLevelLow,
		Evening:   store.EnergyLevelMedium,
	}, profile.EnergyLevels)

	empty := ComputeEnergyProfile(nil)
	assert.Equal(t, store.EnergyLevelLow, empty.EnergyLevels.Morning)
	assert.Zero(t, empty.PeriodEfficiency.Evening)
}

func TestComputeTaskPreferences(t *testing.T) {
	tasks := []*store.Task{
		{ScheduledDate: "2026-03-01", Status: store.TaskStatusCompleted, Priority: store.TaskPriorityHigh, EstimatedDuration: 60},
		{ScheduledDate: "2026-03-01", Status: store.TaskStatusCompleted, Priority: store.TaskPriorityMedium, EstimatedDuration: 30},
		{ScheduledDate: "2026-03-02", Status: store.TaskStatusPending, Priority: store.TaskPriorityLow, EstimatedDuration: 90},
		{ScheduledDate: "2026-03-06", Status: store.TaskStatusPending, Priority: store.TaskPriorityMedium, EstimatedDuration: 15},
	}

	prefs, confidence := ComputeTaskPreferences(tasks, "2026-03-05")
	require.NotNil(t, prefs)
	assert.Equal(t, 0.6, confidence)
	assert.Equal(t, 45, prefs.PreferredDuration)
	assert.Equal(t, 50, prefs.CompletionRate)
	assert.Equal(t, 1, prefs.AvgTasksPerDay)
	assert.Equal(t, map[store.TaskPriority]int{
		store.TaskPriorityHigh:   25,
		store.TaskPriorityMedium: 50,
		store.TaskPriorityLow:    25,
	}, prefs.PreferredPriorities)
	assert.Equal(t, TrendDeclining, prefs.CompletionTrend)
	assert.Equal(t, LevelHigh, prefs.ProcrastinationRisk)
	assert.Equal(t, 4, prefs.TotalTasks)

	t.Run("defaults without completed tasks", func(t *testing.T) {
		prefs, _ := ComputeTaskPreferences([]*store.Task{
			{ScheduledDate: "2026-03-05", Status: store.TaskStatusPending, Priority: store.TaskPriorityLow},
		}, "2026-03-05")
		assert.Equal(t, 30, prefs.PreferredDuration)
		assert.Equal(t, LevelLow, prefs.ProcrastinationRisk)
	})

	t.Run("large sample raises confidence", func(t *testing.T) {
		var many []*store.Task
		for i := 0; i < 20; i++ {
			many = append(many, &store.Task{ScheduledDate: "2026-03-01", Status: store.TaskStatusCompleted, Priority: store.TaskPriorityMedium})
		}
		prefs, confidence := ComputeTaskPreferences(many, "2026-03-05")
		assert.Equal(t, 0.8, confidence)
		assert.Equal(t, TrendStable, prefs.CompletionTrend)
		assert.Equal(t, 20, prefs.AvgTasksPerDay)
	})

	t.Run("empty window", func(t *testing.T) {
		prefs, confidence := ComputeTaskPreferences(nil, "2026-03-05")
		assert.Nil(t, prefs)
		assert.Zero(t, confidence)
	})
}

func TestComputeSchedulingHabits(t *testing.T) {
	at := func(s string) int64 {
		ts, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return ts.Unix()
	}
	tasks := []*store.Task{
		{ScheduledDate: "2026-03-05", ScheduledTime: slot("09:00"), EstimatedDuration: 60, Status: store.TaskStatusCompleted, CreatedTs: at("2026-03-01T00:00:00Z")},
		{ScheduledDate: "2026-03-05", ScheduledTime: slot("10:30"), EstimatedDuration: 30, Status: store.TaskStatusCompleted, CreatedTs: at("2026-03-05T08:00:00Z")},
		{ScheduledDate: "2026-03-05", ScheduledTime: slot("10:45"), EstimatedDuration: 60, Status: store.TaskStatusPending, CreatedTs: at("2026-03-02T00:00:00Z")},
		{ScheduledDate: "2026-03-05", EstimatedDuration: 30, Status: store.TaskStatusPending, CreatedTs: at("2026-03-04T12:00:00Z")},
	}

	habits := ComputeSchedulingHabits(tasks, time.UTC)
	require.NotNil(t, habits)
	assert.Equal(t, PayloadTypeSchedulingHabits, habits.Type)
	assert.Equal(t, 50, habits.PlanningAheadPercentage)
	assert.Equal(t, PlanningModerate, habits.PlanningStyle)
	assert.Equal(t, 67, habits.AdherenceRate)
	assert.Equal(t, LevelMedium, habits.AdherenceLevel)
	assert.Equal(t, 30, habits.AvgBufferTime)
	assert.Equal(t, 63, habits.BreakTimePercentage)
	assert.Equal(t, BreakGood, habits.BreakTimeQuality)

	assert.Nil(t, ComputeSchedulingHabits(nil, time.UTC))
}

func TestDaysAhead(t *testing.T) {
	created := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC).Unix()
	assert.Equal(t, 0, DaysAhead(&store.Task{ScheduledDate: "2026-03-05", CreatedTs: created}, time.UTC))
	assert.Equal(t, 1, DaysAhead(&store.Task{ScheduledDate: "2026-03-06", CreatedTs: created}, time.UTC))
	assert.Equal(t, -1, DaysAhead(&store.Task{ScheduledDate: "2026-03-04", CreatedTs: created}, time.UTC))
}

func TestSortBySlot(t *testing.T) {
	sorted := SortBySlot([]*store.Task{
		{ID: 1, ScheduledTime: slot("14:00")},
		{ID: 2},
		{ID: 3, ScheduledTime: slot("9:30")},
		{ID: 4, ScheduledTime: slot("bogus")},
	})
	require.Len(t, sorted, 2)
	assert.Equal(t, int32(3), sorted[0].ID)
	assert.Equal(t, int32(1), sorted[1].ID)
}
