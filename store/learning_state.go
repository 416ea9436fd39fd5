package store

// LearningState records whether periodic learning is switched on for a user,
// so the scheduler can be resumed after a restart.
type LearningState struct {
	StartedTs int64
	UpdatedTs int64
	UserID    int32
	Enabled   bool
}

// FindLearningState specifies the conditions for listing learning states.
type FindLearningState struct {
	UserID  *int32
	Enabled *bool
}
