package habit

import "github.com/hrygo/rhythm/store"

// Payload discriminators stored in the "type" field of analysis payloads.
const (
	PayloadTypeEnergyLevels     = "energy_levels"
	PayloadTypeSchedulingHabits = "scheduling_habits"
)

// HourStat summarizes completed tasks scheduled in one hour of the day.
type HourStat struct {
	TopTags       []string `json:"topTags"`
	Hour          int      `json:"hour"`
	Count         int      `json:"count"`
	AvgEfficiency float64  `json:"avgEfficiency"`
}

// OptimalHours is the payload of a completion-hour optimal_work_hours insight.
type OptimalHours struct {
	// Hours holds at most five qualifying hours, best first.
	Hours []HourStat `json:"optimalHours"`
	// PeakHours renders the first two hours as "H:00".
	PeakHours []string `json:"peakHours"`
	// QualifyingHours counts every hour with enough samples, including the ones cut from Hours.
	QualifyingHours int `json:"qualifyingHours"`
}

// PeriodEfficiency is the mean efficiency of each day period.
type PeriodEfficiency struct {
	Morning   float64 `json:"morning"`
	Afternoon float64 `json:"afternoon"`
	Evening   float64 `json:"evening"`
}

// EnergyProfile is the payload of an energy-period optimal_work_hours insight.
type EnergyProfile struct {
	Type             string             `json:"type"`
	PeriodEfficiency PeriodEfficiency   `json:"periodEfficiency"`
	EnergyLevels     store.EnergyLevels `json:"energyLevels"`
}

// TaskPreferences is the payload of a task_completion_pattern insight.
// Percentages are rounded integers.
type TaskPreferences struct {
	PreferredPriorities map[store.TaskPriority]int `json:"preferredPriorities"`
	CompletionTrend     string                     `json:"completionTrend"`
	ProcrastinationRisk string                     `json:"procrastinationRisk"`
	PreferredDuration   int                        `json:"preferredDuration"`
	CompletionRate      int                        `json:"completionRate"`
	AvgTasksPerDay      int                        `json:"avgTasksPerDay"`
	TotalTasks          int                        `json:"totalTasks"`
}

// SchedulingHabits is the payload of an analysis scheduling_preference insight.
type SchedulingHabits struct {
	Type                    string `json:"type"`
	PlanningStyle           string `json:"planningStyle"`
	AdherenceLevel          string `json:"adherenceLevel"`
	BreakTimeQuality        string `json:"breakTimeQuality"`
	PlanningAheadPercentage int    `json:"planningAheadPercentage"`
	AdherenceRate           int    `json:"adherenceRate"`
	AvgBufferTime           int    `json:"avgBufferTime"`
	BreakTimePercentage     int    `json:"breakTimePercentage"`
}

// Completion trend values.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// Planning styles.
const (
	PlanningProactive = "proactive"
	PlanningModerate  = "moderate"
	PlanningReactive  = "reactive"
)

// Risk and adherence tiers.
const (
	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)

// Break time quality tiers.
const (
	BreakGood         = "good"
	BreakModerate     = "moderate"
	BreakInsufficient = "insufficient"
)
