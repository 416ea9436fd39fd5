package suggestion

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/store"
)

// Context keys shared by generator rules and apply handlers.
const (
	keyUnscheduledTaskIDs     = "unscheduledTaskIds"
	keyOptimalHours           = "optimalHours"
	keyMisalignedTaskIDs      = "misalignedTaskIds"
	keyEnergyLevels           = "energyLevels"
	keyConsecutiveHours       = "consecutiveHours"
	keySuggestedBreakDuration = "suggestedBreakDuration"
	keyLowProgressGoalIDs     = "lowProgressGoalIds"
	keySuggestedTags          = "suggestedTags"
	keyWeekday                = "weekday"
)

// normalizeContext round-trips a context through JSON so it has the same
// shape whether it was just generated or read back from storage.
func normalizeContext(in map[string]any) (map[string]any, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal suggestion context")
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal suggestion context")
	}
	return out, nil
}

func contextIDs(ctx map[string]any, key string) []int32 {
	raw, ok := ctx[key].([]any)
	if !ok {
		return nil
	}
	ids := make([]int32, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			ids = append(ids, int32(f))
		}
	}
	return ids
}

func contextStrings(ctx map[string]any, key string) []string {
	raw, ok := ctx[key].([]any)
	if !ok {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			values = append(values, s)
		}
	}
	return values
}

func contextNumber(ctx map[string]any, key string, fallback float64) float64 {
	if f, ok := ctx[key].(float64); ok && f > 0 {
		return f
	}
	return fallback
}

func contextEnergyLevels(ctx map[string]any, key string) *store.EnergyLevels {
	raw, ok := ctx[key].(map[string]any)
	if !ok {
		return nil
	}
	levels := &store.EnergyLevels{}
	if s, ok := raw["morning"].(string); ok {
		levels.Morning = store.EnergyLevel(s)
	}
	if s, ok := raw["afternoon"].(string); ok {
		levels.Afternoon = store.EnergyLevel(s)
	}
	if s, ok := raw["evening"].(string); ok {
		levels.Evening = store.EnergyLevel(s)
	}
	return levels
}
