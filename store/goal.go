package store

// Goal is a yearly goal.
type Goal struct {
	Title     string
	CreatedTs int64
	ID        int32
	UserID    int32
	Year      int32
}

// FindGoal specifies the conditions for finding goals.
type FindGoal struct {
	ID     *int32
	UserID *int32
	Year   *int32
}

// Objective is a monthly objective linked to a goal. Progress is a percentage.
type Objective struct {
	Title     string
	Progress  float64
	CreatedTs int64
	ID        int32
	GoalID    int32
	UserID    int32
	Month     int32
	Year      int32
}

// FindObjective specifies the conditions for finding objectives.
type FindObjective struct {
	UserID *int32
	GoalID *int32
	Month  *int32
	Year   *int32
}
