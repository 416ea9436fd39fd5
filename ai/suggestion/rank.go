package suggestion

import (
	"sort"

	"github.com/hrygo/rhythm/store"
)

var priorityWeight = map[store.SuggestionPriority]int{
	store.SuggestionPriorityHigh:   3,
	store.SuggestionPriorityMedium: 2,
	store.SuggestionPriorityLow:    1,
}

// Rank returns the suggestions ordered by priority, then confidence, both
// descending. Equal suggestions keep their input order.
func Rank(suggestions []*store.Suggestion) []*store.Suggestion {
	ranked := append([]*store.Suggestion(nil), suggestions...)
	sort.SliceStable(ranked, func(i, j int) bool {
		wi, wj := priorityWeight[ranked[i].Priority], priorityWeight[ranked[j].Priority]
		if wi != wj {
			return wi > wj
		}
		return ranked[i].Confidence > ranked[j].Confidence
	})
	return ranked
}
