// Package habit derives behavioral patterns from a user's task history.
package habit

import "github.com/hrygo/rhythm/store"

var priorityBonus = map[store.TaskPriority]float64{
	store.TaskPriorityCritical: 0.2,
	store.TaskPriorityHigh:     0.1,
	store.TaskPriorityMedium:   0,
	store.TaskPriorityLow:      -0.1,
}

// EfficiencyScore rates a task outcome in [0,1]: 1 for a completed task,
// 0 otherwise, shifted by a bonus for its priority.
func EfficiencyScore(task *store.Task) float64 {
	base := 0.0
	if task.Status == store.TaskStatusCompleted {
		base = 1.0
	}
	return clamp(base+priorityBonus[task.Priority], 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// runningMean accumulates an arithmetic mean one sample at a time.
type runningMean struct {
	value float64
	n     int
}

func (m *runningMean) add(x float64) {
	m.n++
	m.value += (x - m.value) / float64(m.n)
}
