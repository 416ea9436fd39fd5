// Package memory is an in-process store.Driver used by tests and demo mode.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/store"
)

// DB keeps every table in maps guarded by one mutex. Returned rows are copies.
type DB struct {
	tasks          map[int32]*store.Task
	users          map[int32]*store.User
	goals          map[int32]*store.Goal
	objectives     map[int32]*store.Objective
	insights       []*store.BehaviorInsight
	suggestions    map[string]*store.Suggestion
	learningStates map[int32]*store.LearningState

	// FailTaskUpdates makes UpdateTask fail for the listed task ids.
	FailTaskUpdates map[int32]error

	mu          sync.Mutex
	nextTaskID  int32
	nextUserID  int32
	nextGoalID  int32
	nextObjID   int32
	nextInsight int64
}

// NewDB creates an empty in-memory driver.
func NewDB() *DB {
	return &DB{
		tasks:           make(map[int32]*store.Task),
		users:           make(map[int32]*store.User),
		goals:           make(map[int32]*store.Goal),
		objectives:      make(map[int32]*store.Objective),
		suggestions:     make(map[string]*store.Suggestion),
		learningStates:  make(map[int32]*store.LearningState),
		FailTaskUpdates: make(map[int32]error),
	}
}

func (*DB) GetDB() *sql.DB { return nil }

func (*DB) Close() error { return nil }

func (*DB) Migrate(context.Context) error { return nil }

func (d *DB) CreateTask(_ context.Context, create *store.Task) (*store.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextTaskID++
	task := copyTask(create)
	task.ID = d.nextTaskID
	if task.CreatedTs == 0 {
		task.CreatedTs = time.Now().Unix()
	}
	task.UpdatedTs = task.CreatedTs
	d.tasks[task.ID] = task
	return copyTask(task), nil
}

func (d *DB) ListTasks(_ context.Context, find *store.FindTask) ([]*store.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var list []*store.Task
	for _, task := range d.tasks {
		if find.ID != nil && task.ID != *find.ID {
			continue
		}
		if find.UserID != nil && task.UserID != *find.UserID {
			continue
		}
		if find.FromDate != nil && task.ScheduledDate < *find.FromDate {
			continue
		}
		if find.ToDate != nil && task.ScheduledDate > *find.ToDate {
			continue
		}
		if find.Status != nil && task.Status != *find.Status {
			continue
		}
		list = append(list, copyTask(task))
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].ScheduledDate != list[j].ScheduledDate {
			return list[i].ScheduledDate < list[j].ScheduledDate
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (d *DB) UpdateTask(_ context.Context, update *store.UpdateTask) (*store.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.FailTaskUpdates[update.ID]; ok {
		return nil, err
	}
	task, ok := d.tasks[update.ID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "task %d", update.ID)
	}
	if update.ScheduledTime != nil {
		v := *update.ScheduledTime
		task.ScheduledTime = &v
	}
	if update.ScheduledDate != nil {
		task.ScheduledDate = *update.ScheduledDate
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.Priority != nil {
		task.Priority = *update.Priority
	}
	if update.Title != nil {
		task.Title = *update.Title
	}
	task.UpdatedTs = update.UpdatedTs
	return copyTask(task), nil
}

func (d *DB) CreateUser(_ context.Context, create *store.User) (*store.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextUserID++
	user := copyUser(create)
	if user.ID == 0 {
		user.ID = d.nextUserID
	}
	if user.CreatedTs == 0 {
		user.CreatedTs = time.Now().Unix()
	}
	d.users[user.ID] = user
	return copyUser(user), nil
}

func (d *DB) ListUsers(_ context.Context, find *store.FindUser) ([]*store.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var list []*store.User
	for _, user := range d.users {
		if find.ID != nil && user.ID != *find.ID {
			continue
		}
		if find.Username != nil && user.Username != *find.Username {
			continue
		}
		list = append(list, copyUser(user))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (d *DB) UpdateUser(_ context.Context, update *store.UpdateUser) (*store.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.users[update.ID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "user %d", update.ID)
	}
	if update.Preferences != nil {
		user.Preferences = copyPreferences(update.Preferences)
	}
	user.UpdatedTs = update.UpdatedTs
	return copyUser(user), nil
}

func (d *DB) CreateGoal(_ context.Context, create *store.Goal) (*store.Goal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextGoalID++
	goal := *create
	goal.ID = d.nextGoalID
	d.goals[goal.ID] = &goal
	out := goal
	return &out, nil
}

func (d *DB) ListGoals(_ context.Context, find *store.FindGoal) ([]*store.Goal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var list []*store.Goal
	for _, goal := range d.goals {
		if find.ID != nil && goal.ID != *find.ID {
			continue
		}
		if find.UserID != nil && goal.UserID != *find.UserID {
			continue
		}
		if find.Year != nil && goal.Year != *find.Year {
			continue
		}
		g := *goal
		list = append(list, &g)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (d *DB) CreateObjective(_ context.Context, create *store.Objective) (*store.Objective, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextObjID++
	obj := *create
	obj.ID = d.nextObjID
	d.objectives[obj.ID] = &obj
	out := obj
	return &out, nil
}

func (d *DB) ListObjectives(_ context.Context, find *store.FindObjective) ([]*store.Objective, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var list []*store.Objective
	for _, obj := range d.objectives {
		if find.UserID != nil && obj.UserID != *find.UserID {
			continue
		}
		if find.GoalID != nil && obj.GoalID != *find.GoalID {
			continue
		}
		if find.Month != nil && obj.Month != *find.Month {
			continue
		}
		if find.Year != nil && obj.Year != *find.Year {
			continue
		}
		o := *obj
		list = append(list, &o)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (d *DB) CreateBehaviorInsight(_ context.Context, create *store.BehaviorInsight) (*store.BehaviorInsight, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextInsight++
	insight := *create
	insight.ID = d.nextInsight
	insight.Data = append(json.RawMessage(nil), create.Data...)
	if insight.CreatedTs == 0 {
		insight.CreatedTs = time.Now().Unix()
	}
	d.insights = append(d.insights, &insight)
	out := insight
	return &out, nil
}

func (d *DB) ListBehaviorInsights(_ context.Context, find *store.FindBehaviorInsight) ([]*store.BehaviorInsight, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var list []*store.BehaviorInsight
	for i := len(d.insights) - 1; i >= 0; i-- {
		insight := d.insights[i]
		if find.UserID != nil && insight.UserID != *find.UserID {
			continue
		}
		if len(find.Types) > 0 && !containsType(find.Types, insight.InsightType) {
			continue
		}
		if find.CreatedAfter != nil && insight.CreatedTs < *find.CreatedAfter {
			continue
		}
		if find.PayloadType != nil && payloadType(insight.Data) != *find.PayloadType {
			continue
		}
		out := *insight
		list = append(list, &out)
	}
	// Newest first; ties on CreatedTs keep insertion order reversed.
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedTs > list[j].CreatedTs })
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *DB) CreateSuggestion(_ context.Context, create *store.Suggestion) (*store.Suggestion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.suggestions[create.ID]; exists {
		return nil, errors.Errorf("suggestion %s already exists", create.ID)
	}
	s := copySuggestion(create)
	if s.Status == "" {
		s.Status = store.SuggestionStatusActive
	}
	d.suggestions[s.ID] = s
	return copySuggestion(s), nil
}

func (d *DB) ListSuggestions(_ context.Context, find *store.FindSuggestion) ([]*store.Suggestion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var list []*store.Suggestion
	for _, s := range d.suggestions {
		if find.ID != nil && s.ID != *find.ID {
			continue
		}
		if find.UserID != nil && s.UserID != *find.UserID {
			continue
		}
		if find.Status != nil && s.Status != *find.Status {
			continue
		}
		if find.ValidAfter != nil && !s.ValidUntil.After(*find.ValidAfter) {
			continue
		}
		list = append(list, copySuggestion(s))
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs > list[j].CreatedTs
		}
		return list[i].ID > list[j].ID
	})
	return list, nil
}

func (d *DB) UpdateSuggestion(_ context.Context, update *store.UpdateSuggestion) (*store.Suggestion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.suggestions[update.ID]
	if !ok || s.UserID != update.UserID {
		return nil, errors.Wrapf(store.ErrNotFound, "suggestion %s", update.ID)
	}
	if update.ExpectedStatus != nil && s.Status != *update.ExpectedStatus {
		return nil, errors.Wrapf(store.ErrStatusConflict, "suggestion %s is %s", update.ID, s.Status)
	}
	s.Status = update.Status
	s.UpdatedTs = update.UpdatedTs
	return copySuggestion(s), nil
}

func (d *DB) UpsertLearningState(_ context.Context, upsert *store.LearningState) (*store.LearningState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := *upsert
	if existing, ok := d.learningStates[upsert.UserID]; ok && state.StartedTs == 0 {
		state.StartedTs = existing.StartedTs
	}
	d.learningStates[state.UserID] = &state
	out := state
	return &out, nil
}

func (d *DB) ListLearningStates(_ context.Context, find *store.FindLearningState) ([]*store.LearningState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var list []*store.LearningState
	for _, state := range d.learningStates {
		if find.UserID != nil && state.UserID != *find.UserID {
			continue
		}
		if find.Enabled != nil && state.Enabled != *find.Enabled {
			continue
		}
		s := *state
		list = append(list, &s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	return list, nil
}

func containsType(types []store.InsightType, t store.InsightType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func copyTask(t *store.Task) *store.Task {
	out := *t
	if t.ScheduledTime != nil {
		v := *t.ScheduledTime
		out.ScheduledTime = &v
	}
	out.Tags = append([]string(nil), t.Tags...)
	return &out
}

func copyUser(u *store.User) *store.User {
	out := *u
	out.Preferences = copyPreferences(u.Preferences)
	return &out
}

func copyPreferences(p *store.UserPreferences) *store.UserPreferences {
	if p == nil {
		return nil
	}
	out := *p
	if p.EnergyLevels != nil {
		levels := *p.EnergyLevels
		out.EnergyLevels = &levels
	}
	return &out
}

func copySuggestion(s *store.Suggestion) *store.Suggestion {
	out := *s
	if s.Context != nil {
		out.Context = make(map[string]any, len(s.Context))
		for k, v := range s.Context {
			out.Context[k] = v
		}
	}
	return &out
}

func payloadType(data json.RawMessage) string {
	var payload struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.Type
}
