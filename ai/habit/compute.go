package habit

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hrygo/rhythm/store"
)

const (
	minHourSamples   = 3
	maxOptimalHours  = 5
	maxPeakHours     = 2
	maxTopTags       = 3
	workdayMinutes   = 8 * 60
	defaultDuration  = 30
	richTaskSample   = 20
	richHourBuckets  = 5
	energyConfidence = 0.7
	habitConfidence  = 0.7
)

// ParseClock parses an "HH:MM" slot into minutes after midnight.
func ParseClock(clock string) (int, bool) {
	h, m, found := strings.Cut(clock, ":")
	if !found {
		return 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

// TaskHour returns the hour of the task's time slot.
func TaskHour(task *store.Task) (int, bool) {
	if !task.HasScheduledTime() {
		return 0, false
	}
	minutes, ok := ParseClock(*task.ScheduledTime)
	if !ok {
		return 0, false
	}
	return minutes / 60, true
}

// FormatHour renders an hour of the day as "H:00" without zero padding.
func FormatHour(hour int) string {
	return fmt.Sprintf("%d:00", hour)
}

// DayPeriod names the third of the day an hour falls in: morning [6,12),
// afternoon [12,18) or evening [18,24). Night hours have no period.
func DayPeriod(hour int) (string, bool) {
	switch {
	case hour >= 6 && hour < 12:
		return "morning", true
	case hour >= 12 && hour < 18:
		return "afternoon", true
	case hour >= 18 && hour < 24:
		return "evening", true
	default:
		return "", false
	}
}

// EnergyLabel maps a mean efficiency to an energy level.
func EnergyLabel(mean float64) store.EnergyLevel {
	switch {
	case mean >= 0.8:
		return store.EnergyLevelHigh
	case mean >= 0.6:
		return store.EnergyLevelMedium
	default:
		return store.EnergyLevelLow
	}
}

// PeriodLevel returns the label of period in levels.
func PeriodLevel(levels *store.EnergyLevels, period string) store.EnergyLevel {
	switch period {
	case "morning":
		return levels.Morning
	case "afternoon":
		return levels.Afternoon
	case "evening":
		return levels.Evening
	default:
		return ""
	}
}

type hourBucket struct {
	tagCounts map[string]int
	tags      []string
	mean      runningMean
	hour      int
}

// ComputeOptimalHours buckets completed, time-slotted tasks by hour and keeps
// the best hours with at least three samples. It returns nil when no hour
// qualifies.
func ComputeOptimalHours(tasks []*store.Task) (*OptimalHours, float64) {
	buckets := map[int]*hourBucket{}
	for _, task := range tasks {
		if task.Status != store.TaskStatusCompleted {
			continue
		}
		hour, ok := TaskHour(task)
		if !ok {
			continue
		}
		bucket, ok := buckets[hour]
		if !ok {
			bucket = &hourBucket{hour: hour, tagCounts: map[string]int{}}
			buckets[hour] = bucket
		}
		bucket.mean.add(EfficiencyScore(task))
		for _, tag := range task.Tags {
			if bucket.tagCounts[tag] == 0 {
				bucket.tags = append(bucket.tags, tag)
			}
			bucket.tagCounts[tag]++
		}
	}

	var stats []HourStat
	for _, bucket := range buckets {
		if bucket.mean.n < minHourSamples {
			continue
		}
		stats = append(stats, HourStat{
			Hour:          bucket.hour,
			Count:         bucket.mean.n,
			AvgEfficiency: bucket.mean.value,
			TopTags:       topTags(bucket),
		})
	}
	if len(stats) == 0 {
		return nil, 0
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].AvgEfficiency != stats[j].AvgEfficiency {
			return stats[i].AvgEfficiency > stats[j].AvgEfficiency
		}
		return stats[i].Hour < stats[j].Hour
	})

	result := &OptimalHours{QualifyingHours: len(stats)}
	result.Hours = stats[:min(len(stats), maxOptimalHours)]
	for _, stat := range result.Hours[:min(len(result.Hours), maxPeakHours)] {
		result.PeakHours = append(result.PeakHours, FormatHour(stat.Hour))
	}

	confidence := 0.6
	if len(stats) >= richHourBuckets {
		confidence = 0.8
	}
	return result, confidence
}

func topTags(bucket *hourBucket) []string {
	tags := append([]string(nil), bucket.tags...)
	sort.SliceStable(tags, func(i, j int) bool {
		return bucket.tagCounts[tags[i]] > bucket.tagCounts[tags[j]]
	})
	if len(tags) > maxTopTags {
		tags = tags[:maxTopTags]
	}
	if tags == nil {
		tags = []string{}
	}
	return tags
}

// ComputeEnergyProfile averages the efficiency of completed, time-slotted
// tasks per day period and labels each period. Empty periods score 0.
func ComputeEnergyProfile(tasks []*store.Task) *EnergyProfile {
	var morning, afternoon, evening runningMean
	for _, task := range tasks {
		if task.Status != store.TaskStatusCompleted {
			continue
		}
		hour, ok := TaskHour(task)
		if !ok {
			continue
		}
		period, ok := DayPeriod(hour)
		if !ok {
			continue
		}
		score := EfficiencyScore(task)
		switch period {
		case "morning":
			morning.add(score)
		case "afternoon":
			afternoon.add(score)
		case "evening":
			evening.add(score)
		}
	}

	return &EnergyProfile{
		Type: PayloadTypeEnergyLevels,
		PeriodEfficiency: PeriodEfficiency{
			Morning:   morning.value,
			Afternoon: afternoon.value,
			Evening:   evening.value,
		},
		EnergyLevels: store.EnergyLevels{
			Morning:   EnergyLabel(morning.value),
			Afternoon: EnergyLabel(afternoon.value),
			Evening:   EnergyLabel(evening.value),
		},
	}
}

// ComputeTaskPreferences summarizes duration, priority and completion
// tendencies. today is the "2006-01-02" date used to detect overdue tasks.
// It returns nil for an empty window.
func ComputeTaskPreferences(tasks []*store.Task, today string) (*TaskPreferences, float64) {
	if len(tasks) == 0 {
		return nil, 0
	}

	var (
		duration  runningMean
		completed int
		pending   int
		overdue   int
	)
	dates := map[string]struct{}{}
	priority := map[store.TaskPriority]int{}
	for _, task := range tasks {
		priority[task.Priority]++
		dates[task.ScheduledDate] = struct{}{}
		switch task.Status {
		case store.TaskStatusCompleted:
			completed++
			duration.add(float64(task.EstimatedDuration))
		case store.TaskStatusPending:
			pending++
			if task.ScheduledDate < today {
				overdue++
			}
		}
	}

	total := len(tasks)
	prefs := &TaskPreferences{
		PreferredDuration:   defaultDuration,
		PreferredPriorities: make(map[store.TaskPriority]int, len(priority)),
		CompletionRate:      percent(completed, total),
		AvgTasksPerDay:      int(math.Round(float64(total) / float64(len(dates)))),
		CompletionTrend:     completionTrend(tasks),
		ProcrastinationRisk: procrastinationRisk(overdue, pending),
		TotalTasks:          total,
	}
	if duration.n > 0 {
		prefs.PreferredDuration = int(math.Round(duration.value))
	}
	for p, count := range priority {
		prefs.PreferredPriorities[p] = percent(count, total)
	}

	confidence := 0.6
	if total >= richTaskSample {
		confidence = 0.8
	}
	return prefs, confidence
}

func completionTrend(tasks []*store.Task) string {
	half := len(tasks) / 2
	delta := completionRatio(tasks[half:]) - completionRatio(tasks[:half])
	switch {
	case delta > 0.1:
		return TrendImproving
	case delta < -0.1:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func completionRatio(tasks []*store.Task) float64 {
	if len(tasks) == 0 {
		return 0
	}
	completed := 0
	for _, task := range tasks {
		if task.Status == store.TaskStatusCompleted {
			completed++
		}
	}
	return float64(completed) / float64(len(tasks))
}

func procrastinationRisk(overdue, pending int) string {
	if pending == 0 {
		return LevelLow
	}
	rate := float64(overdue) / float64(pending) * 100
	switch {
	case rate > 30:
		return LevelHigh
	case rate > 10:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ComputeSchedulingHabits measures how far ahead tasks are planned and how
// well time slots are kept. Dates are interpreted in loc. It returns nil for
// an empty window.
func ComputeSchedulingHabits(tasks []*store.Task, loc *time.Location) *SchedulingHabits {
	if len(tasks) == 0 {
		return nil
	}

	var (
		ahead         int
		slotted       int
		slottedDone   int
		totalDuration int
	)
	byDate := map[string][]*store.Task{}
	for _, task := range tasks {
		totalDuration += int(task.EstimatedDuration)
		if DaysAhead(task, loc) > 0 {
			ahead++
		}
		if _, ok := TaskHour(task); ok {
			slotted++
			if task.Status == store.TaskStatusCompleted {
				slottedDone++
			}
			byDate[task.ScheduledDate] = append(byDate[task.ScheduledDate], task)
		}
	}

	habits := &SchedulingHabits{
		Type:                    PayloadTypeSchedulingHabits,
		PlanningAheadPercentage: percent(ahead, len(tasks)),
		AdherenceRate:           percent(slottedDone, slotted),
		AvgBufferTime:           avgBufferMinutes(byDate),
		BreakTimePercentage:     int(math.Round(float64(workdayMinutes-totalDuration) / workdayMinutes * 100)),
	}

	switch {
	case habits.PlanningAheadPercentage > 70:
		habits.PlanningStyle = PlanningProactive
	case habits.PlanningAheadPercentage > 30:
		habits.PlanningStyle = PlanningModerate
	default:
		habits.PlanningStyle = PlanningReactive
	}
	switch {
	case habits.AdherenceRate > 80:
		habits.AdherenceLevel = LevelHigh
	case habits.AdherenceRate > 60:
		habits.AdherenceLevel = LevelMedium
	default:
		habits.AdherenceLevel = LevelLow
	}
	switch {
	case habits.BreakTimePercentage > 20:
		habits.BreakTimeQuality = BreakGood
	case habits.BreakTimePercentage > 10:
		habits.BreakTimeQuality = BreakModerate
	default:
		habits.BreakTimeQuality = BreakInsufficient
	}
	return habits
}

// DaysAhead is the number of whole days between the task's creation and the
// start of its scheduled date.
func DaysAhead(task *store.Task, loc *time.Location) int {
	scheduled, err := time.ParseInLocation(store.DateLayout, task.ScheduledDate, loc)
	if err != nil {
		return 0
	}
	return int(math.Floor(scheduled.Sub(task.CreatedAt(loc)).Hours() / 24))
}

// avgBufferMinutes averages the non-negative gaps between the end of a
// slotted task and the start of the next one on the same day.
func avgBufferMinutes(byDate map[string][]*store.Task) int {
	var gaps runningMean
	for _, day := range byDate {
		sorted := SortBySlot(day)
		for i := 1; i < len(sorted); i++ {
			prevStart, _ := ParseClock(*sorted[i-1].ScheduledTime)
			start, _ := ParseClock(*sorted[i].ScheduledTime)
			gap := start - (prevStart + int(sorted[i-1].EstimatedDuration))
			if gap >= 0 {
				gaps.add(float64(gap))
			}
		}
	}
	return int(math.Round(gaps.value))
}

// SortBySlot returns the tasks with a valid time slot ordered by slot.
func SortBySlot(tasks []*store.Task) []*store.Task {
	var slotted []*store.Task
	for _, task := range tasks {
		if _, ok := TaskHour(task); ok {
			slotted = append(slotted, task)
		}
	}
	sort.SliceStable(slotted, func(i, j int) bool {
		a, _ := ParseClock(*slotted[i].ScheduledTime)
		b, _ := ParseClock(*slotted[j].ScheduledTime)
		return a < b
	})
	return slotted
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
