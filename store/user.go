package store

// EnergyLevel is a coarse productivity label for a third of the day.
type EnergyLevel string

const (
	EnergyLevelLow    EnergyLevel = "low"
	EnergyLevelMedium EnergyLevel = "medium"
	EnergyLevelHigh   EnergyLevel = "high"
)

// EnergyLevels holds the learned energy label of each day period.
type EnergyLevels struct {
	Morning   EnergyLevel `json:"morning"`
	Afternoon EnergyLevel `json:"afternoon"`
	Evening   EnergyLevel `json:"evening"`
}

// UserPreferences is the JSON document stored in the user's preferences column.
type UserPreferences struct {
	EnergyLevels *EnergyLevels `json:"energyLevels,omitempty"`
	Timezone     string        `json:"timezone,omitempty"`
}

// User is the subset of the user entity this service reads and writes.
type User struct {
	Preferences *UserPreferences
	Username    string
	CreatedTs   int64
	UpdatedTs   int64
	ID          int32
}

// FindUser specifies the conditions for finding users.
type FindUser struct {
	ID       *int32
	Username *string
}

// UpdateUser specifies the fields to update on a user.
type UpdateUser struct {
	Preferences *UserPreferences
	UpdatedTs   int64
	ID          int32
}
