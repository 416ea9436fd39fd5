package store

import (
	"context"
	"time"

	"github.com/hrygo/rhythm/internal/profile"
	"github.com/hrygo/rhythm/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	cacheConfig cache.Config
	userCache   *cache.Cache[int32, *User]
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:      driver,
		profile:     profile,
		cacheConfig: cacheConfig,
		userCache:   cache.New[int32, *User](cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	s.userCache.Close()
	return s.driver.Close()
}

func (s *Store) CreateTask(ctx context.Context, create *Task) (*Task, error) {
	return s.driver.CreateTask(ctx, create)
}

func (s *Store) ListTasks(ctx context.Context, find *FindTask) ([]*Task, error) {
	return s.driver.ListTasks(ctx, find)
}

// GetTask returns the task with id, or nil when it does not exist.
func (s *Store) GetTask(ctx context.Context, id int32) (*Task, error) {
	list, err := s.driver.ListTasks(ctx, &FindTask{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateTask(ctx context.Context, update *UpdateTask) (*Task, error) {
	return s.driver.UpdateTask(ctx, update)
}

func (s *Store) CreateUser(ctx context.Context, create *User) (*User, error) {
	user, err := s.driver.CreateUser(ctx, create)
	if err != nil {
		return nil, err
	}
	s.userCache.Set(user.ID, user)
	return user, nil
}

// GetUser returns the user matching find, or nil when none does.
// Lookups by ID are served from the user cache.
func (s *Store) GetUser(ctx context.Context, find *FindUser) (*User, error) {
	if find.ID != nil && find.Username == nil {
		if user, ok := s.userCache.Get(*find.ID); ok {
			return user, nil
		}
	}

	list, err := s.driver.ListUsers(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	user := list[0]
	s.userCache.Set(user.ID, user)
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, update *UpdateUser) (*User, error) {
	user, err := s.driver.UpdateUser(ctx, update)
	if err != nil {
		s.userCache.Delete(update.ID)
		return nil, err
	}
	s.userCache.Set(user.ID, user)
	return user, nil
}

func (s *Store) CreateGoal(ctx context.Context, create *Goal) (*Goal, error) {
	return s.driver.CreateGoal(ctx, create)
}

func (s *Store) ListGoals(ctx context.Context, find *FindGoal) ([]*Goal, error) {
	return s.driver.ListGoals(ctx, find)
}

// GetGoal returns the goal with id, or nil when it does not exist.
func (s *Store) GetGoal(ctx context.Context, id int32) (*Goal, error) {
	list, err := s.driver.ListGoals(ctx, &FindGoal{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) CreateObjective(ctx context.Context, create *Objective) (*Objective, error) {
	return s.driver.CreateObjective(ctx, create)
}

func (s *Store) ListObjectives(ctx context.Context, find *FindObjective) ([]*Objective, error) {
	return s.driver.ListObjectives(ctx, find)
}

func (s *Store) CreateBehaviorInsight(ctx context.Context, create *BehaviorInsight) (*BehaviorInsight, error) {
	return s.driver.CreateBehaviorInsight(ctx, create)
}

func (s *Store) ListBehaviorInsights(ctx context.Context, find *FindBehaviorInsight) ([]*BehaviorInsight, error) {
	return s.driver.ListBehaviorInsights(ctx, find)
}

func (s *Store) CreateSuggestion(ctx context.Context, create *Suggestion) (*Suggestion, error) {
	return s.driver.CreateSuggestion(ctx, create)
}

func (s *Store) ListSuggestions(ctx context.Context, find *FindSuggestion) ([]*Suggestion, error) {
	return s.driver.ListSuggestions(ctx, find)
}

func (s *Store) UpdateSuggestion(ctx context.Context, update *UpdateSuggestion) (*Suggestion, error) {
	return s.driver.UpdateSuggestion(ctx, update)
}

func (s *Store) UpsertLearningState(ctx context.Context, upsert *LearningState) (*LearningState, error) {
	return s.driver.UpsertLearningState(ctx, upsert)
}

func (s *Store) ListLearningStates(ctx context.Context, find *FindLearningState) ([]*LearningState, error) {
	return s.driver.ListLearningStates(ctx, find)
}
