package suggestion

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/store"
)

// Service is the read and write path for a user's suggestions.
type Service struct {
	store     Store
	generator *Generator
	handlers  map[store.SuggestionType]handler
	cfg       Config
}

// NewService creates a suggestion service. generator may be nil when
// GenerateNow is not needed.
func NewService(s Store, generator *Generator, cfg Config) *Service {
	svc := &Service{
		store:     s,
		generator: generator,
		cfg:       cfg.withDefaults(),
	}
	svc.handlers = map[store.SuggestionType]handler{
		store.SuggestionTypeScheduleOptimization: svc.applyScheduleOptimization,
		store.SuggestionTypeEnergyOptimization:   svc.applyEnergyOptimization,
		store.SuggestionTypeBreakReminder:        svc.applyBreakReminder,
		store.SuggestionTypeGoalAdjustment:       svc.applyGoalAdjustment,
		store.SuggestionTypeTaskCreation:         svc.applyTaskCreation,
	}
	return svc
}

// GenerateNow runs the suggestion rules for the user outside of a learning cycle.
func (s *Service) GenerateNow(ctx context.Context, userID int32) ([]*store.Suggestion, error) {
	if s.generator == nil {
		return nil, errors.New("suggestion generator is not configured")
	}
	return s.generator.Generate(ctx, userID)
}

// ListActive returns the user's suggestions that are still active and not
// expired, unsorted. Rows found past their validity are marked expired.
// Suggestions that only exist in the insight log are included unless they
// were dismissed.
func (s *Service) ListActive(ctx context.Context, userID int32) ([]*store.Suggestion, error) {
	now := s.cfg.Now()
	rows, err := s.store.ListSuggestions(ctx, &store.FindSuggestion{UserID: &userID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list suggestions")
	}

	known := make(map[string]struct{}, len(rows))
	var active []*store.Suggestion
	for _, row := range rows {
		known[row.ID] = struct{}{}
		if row.Status != store.SuggestionStatusActive {
			continue
		}
		if !row.IsActive(now) {
			s.markExpired(ctx, row)
			continue
		}
		active = append(active, row)
	}

	legacy, err := s.legacySuggestions(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	for _, suggestion := range legacy {
		if _, ok := known[suggestion.ID]; !ok {
			active = append(active, suggestion)
		}
	}
	return active, nil
}

// ExtractFromInsights returns the suggestions embedded in insight payloads
// that are still valid at now and were not dismissed. Later insights win
// when the same suggestion id appears twice.
func ExtractFromInsights(insights []*store.BehaviorInsight, now time.Time) []*store.Suggestion {
	dismissed := map[string]struct{}{}
	for _, insight := range insights {
		if insight.InsightType != store.InsightTypeSuggestionDismissed {
			continue
		}
		var payload Dismissal
		if err := json.Unmarshal(insight.Data, &payload); err == nil && payload.SuggestionID != "" {
			dismissed[payload.SuggestionID] = struct{}{}
		}
	}

	seen := map[string]struct{}{}
	var suggestions []*store.Suggestion
	for _, insight := range insights {
		if insight.InsightType != store.InsightTypeSchedulingPreference {
			continue
		}
		var envelope Envelope
		if err := json.Unmarshal(insight.Data, &envelope); err != nil || envelope.Suggestion == nil {
			continue
		}
		suggestion := envelope.Suggestion
		if suggestion.ID == "" {
			continue
		}
		if _, ok := dismissed[suggestion.ID]; ok {
			continue
		}
		if _, ok := seen[suggestion.ID]; ok {
			continue
		}
		seen[suggestion.ID] = struct{}{}
		suggestion.Status = store.SuggestionStatusActive
		if suggestion.IsActive(now) {
			suggestions = append(suggestions, suggestion)
		}
	}
	return suggestions
}

// legacySuggestions scans the recent insight log for embedded suggestions.
// Nothing generated more than maxValidity ago can still be active.
func (s *Service) legacySuggestions(ctx context.Context, userID int32, now time.Time) ([]*store.Suggestion, error) {
	since := now.Add(-maxValidity).Unix()
	insights, err := s.store.ListBehaviorInsights(ctx, &store.FindBehaviorInsight{
		UserID:       &userID,
		Types:        []store.InsightType{store.InsightTypeSchedulingPreference, store.InsightTypeSuggestionDismissed},
		CreatedAfter: &since,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list insights")
	}
	return ExtractFromInsights(insights, now), nil
}

func (s *Service) markExpired(ctx context.Context, row *store.Suggestion) {
	active := store.SuggestionStatusActive
	if _, err := s.store.UpdateSuggestion(ctx, &store.UpdateSuggestion{
		ID:             row.ID,
		UserID:         row.UserID,
		ExpectedStatus: &active,
		Status:         store.SuggestionStatusExpired,
		UpdatedTs:      s.cfg.Now().Unix(),
	}); err != nil {
		slog.Debug("failed to mark suggestion expired", "suggestion_id", row.ID, "error", err)
	}
}

// find returns the suggestion row for id, adopting a suggestion that only
// exists in the insight log. It returns nil when neither has it.
func (s *Service) find(ctx context.Context, userID int32, id string) (*store.Suggestion, error) {
	rows, err := s.store.ListSuggestions(ctx, &store.FindSuggestion{ID: &id, UserID: &userID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to find suggestion")
	}
	if len(rows) > 0 {
		return rows[0], nil
	}

	legacy, err := s.legacySuggestions(ctx, userID, s.cfg.Now())
	if err != nil {
		return nil, err
	}
	for _, suggestion := range legacy {
		if suggestion.ID != id {
			continue
		}
		created, err := s.store.CreateSuggestion(ctx, suggestion)
		if err != nil {
			// A concurrent caller may have adopted it first.
			rows, lookupErr := s.store.ListSuggestions(ctx, &store.FindSuggestion{ID: &id, UserID: &userID})
			if lookupErr == nil && len(rows) > 0 {
				return rows[0], nil
			}
			return nil, errors.Wrap(err, "failed to adopt suggestion")
		}
		return created, nil
	}
	return nil, nil
}

// Apply executes the suggestion's handler once. A second apply returns an
// already-applied result without side effects. When every attempted mutation
// fails the suggestion becomes active again so it can be retried.
func (s *Service) Apply(ctx context.Context, userID int32, id string) (*ApplyResult, error) {
	suggestion, err := s.find(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if suggestion == nil {
		return nil, ErrSuggestionNotFound
	}
	if suggestion.Status == store.SuggestionStatusApplied {
		return s.alreadyApplied(suggestion), nil
	}
	if !suggestion.IsActive(s.cfg.Now()) {
		if suggestion.Status == store.SuggestionStatusActive {
			s.markExpired(ctx, suggestion)
		}
		return nil, ErrSuggestionNotFound
	}
	apply, ok := s.handlers[suggestion.Type]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSuggestionType, "type %q", suggestion.Type)
	}

	if err := s.transition(ctx, suggestion, store.SuggestionStatusActive, store.SuggestionStatusApplied); err != nil {
		if errors.Is(err, ErrAlreadyApplied) {
			return s.alreadyApplied(suggestion), nil
		}
		return nil, err
	}

	result := apply(ctx, userID, suggestion)
	result.finish()
	if result.Attempted > 0 && result.Succeeded == 0 {
		if err := s.transition(ctx, suggestion, store.SuggestionStatusApplied, store.SuggestionStatusActive); err != nil {
			slog.Warn("failed to release suggestion after failed apply", "suggestion_id", id, "error", err)
		}
	}
	s.cfg.Recorder.SuggestionApplied(suggestion.Type, result.outcome())
	slog.Info("suggestion applied", "user_id", userID, "suggestion_id", id, "type", suggestion.Type,
		"attempted", result.Attempted, "succeeded", result.Succeeded, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}

func (s *Service) alreadyApplied(suggestion *store.Suggestion) *ApplyResult {
	s.cfg.Recorder.SuggestionApplied(suggestion.Type, OutcomeAlreadyApplied)
	return &ApplyResult{Success: true, AlreadyApplied: true, Message: "Suggestion was already applied"}
}

// transition moves the suggestion from one status to another. It returns
// ErrAlreadyApplied when another caller applied it first and
// ErrSuggestionNotFound when it left from for any other reason.
func (s *Service) transition(ctx context.Context, suggestion *store.Suggestion, from, to store.SuggestionStatus) error {
	_, err := s.store.UpdateSuggestion(ctx, &store.UpdateSuggestion{
		ID:             suggestion.ID,
		UserID:         suggestion.UserID,
		ExpectedStatus: &from,
		Status:         to,
		UpdatedTs:      s.cfg.Now().Unix(),
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrStatusConflict):
		rows, lookupErr := s.store.ListSuggestions(ctx, &store.FindSuggestion{ID: &suggestion.ID, UserID: &suggestion.UserID})
		if lookupErr == nil && len(rows) > 0 && rows[0].Status == store.SuggestionStatusApplied {
			return ErrAlreadyApplied
		}
		return ErrSuggestionNotFound
	case errors.Is(err, store.ErrNotFound):
		return ErrSuggestionNotFound
	default:
		return errors.Wrap(err, "failed to update suggestion status")
	}
}

// Dismiss records that the user rejected an active suggestion. The dismissal
// insight is written before the status changes so a failed write leaves the
// suggestion active and the call can be retried.
func (s *Service) Dismiss(ctx context.Context, userID int32, id string) error {
	suggestion, err := s.find(ctx, userID, id)
	if err != nil {
		return err
	}
	now := s.cfg.Now()
	if suggestion == nil || !suggestion.IsActive(now) {
		return ErrSuggestionNotFound
	}

	data, err := json.Marshal(&Dismissal{SuggestionID: id, DismissedAt: now})
	if err != nil {
		return errors.Wrap(err, "failed to marshal dismissal")
	}
	if _, err := s.store.CreateBehaviorInsight(ctx, &store.BehaviorInsight{
		UserID:      userID,
		InsightType: store.InsightTypeSuggestionDismissed,
		Data:        data,
		Confidence:  store.FormatConfidence(1),
		CreatedTs:   now.Unix(),
	}); err != nil {
		return errors.Wrap(err, "failed to record dismissal")
	}
	if err := s.transition(ctx, suggestion, store.SuggestionStatusActive, store.SuggestionStatusDismissed); err != nil {
		if errors.Is(err, ErrAlreadyApplied) {
			return ErrSuggestionNotFound
		}
		return err
	}
	s.cfg.Recorder.SuggestionDismissed()
	return nil
}
