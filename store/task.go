package store

import "time"

// DateLayout is the layout of Task.ScheduledDate.
const DateLayout = "2006-01-02"

// TaskStatus is the lifecycle state of a daily task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskPriority is the user-assigned importance of a task.
type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

// Task is a daily task. ScheduledTime is "HH:MM" when the task has a slot.
type Task struct {
	ScheduledTime     *string
	Title             string
	Description       string
	ScheduledDate     string
	Priority          TaskPriority
	Status            TaskStatus
	Tags              []string
	CreatedTs         int64
	UpdatedTs         int64
	ID                int32
	UserID            int32
	EstimatedDuration int32
}

// HasScheduledTime reports whether the task has a non-empty time slot.
func (t *Task) HasScheduledTime() bool {
	return t.ScheduledTime != nil && *t.ScheduledTime != ""
}

// CreatedAt returns the creation time in loc.
func (t *Task) CreatedAt(loc *time.Location) time.Time {
	return time.Unix(t.CreatedTs, 0).In(loc)
}

// FindTask specifies the conditions for finding tasks.
// FromDate and ToDate are inclusive "2006-01-02" bounds on ScheduledDate.
type FindTask struct {
	ID       *int32
	UserID   *int32
	FromDate *string
	ToDate   *string
	Status   *TaskStatus
}

// UpdateTask specifies the fields to update on a task.
type UpdateTask struct {
	ScheduledTime *string
	ScheduledDate *string
	Status        *TaskStatus
	Priority      *TaskPriority
	Title         *string
	UpdatedTs     int64
	ID            int32
}
