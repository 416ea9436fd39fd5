// Package learning runs the periodic per-user learning cycle: pattern
// analysis followed by suggestion generation.
package learning

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/rhythm/ai/habit"
	"github.com/hrygo/rhythm/store"
)

// ErrClosed is returned by Start and Resume after Close.
var ErrClosed = errors.New("learning scheduler is closed")

// Cycle outcomes reported to the Recorder.
const (
	CycleSuccess = "success"
	CyclePartial = "partial"
	CycleFailed  = "failed"
)

// Store persists which users have learning enabled.
type Store interface {
	UpsertLearningState(ctx context.Context, upsert *store.LearningState) (*store.LearningState, error)
	ListLearningStates(ctx context.Context, find *store.FindLearningState) ([]*store.LearningState, error)
}

// Analyzer runs the pattern analysis passes.
type Analyzer interface {
	AnalyzeAll(ctx context.Context, userID int32) error
}

// Generator produces suggestions from the stored insights.
type Generator interface {
	Generate(ctx context.Context, userID int32) ([]*store.Suggestion, error)
}

// Recorder observes learning cycles.
type Recorder interface {
	CycleFinished(status string, elapsed time.Duration)
	AnalyzerFailed(pass string)
	ActiveLearners(n int)
}

type noopRecorder struct{}

func (noopRecorder) CycleFinished(string, time.Duration) {}

func (noopRecorder) AnalyzerFailed(string) {}

func (noopRecorder) ActiveLearners(int) {}

// Config configures the scheduler.
type Config struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Recorder receives cycle events. Optional.
	Recorder Recorder
	// Interval between cycles of one user. Defaults to 4h.
	Interval time.Duration
	// CycleTimeout bounds a single cycle. Zero means no limit.
	CycleTimeout time.Duration
	// ResumeConcurrency bounds the first cycles run by Resume. Defaults to 4.
	ResumeConcurrency int
}

// DefaultInterval is the cycle interval when none is configured.
const DefaultInterval = 4 * time.Hour

const defaultResumeConcurrency = 4

// Status describes the learning state of one user.
type Status struct {
	StartedAt time.Time
	LastRunAt time.Time
	NextRunAt time.Time
	LastError string
	Interval  time.Duration
	RunCount  int
	Learning  bool
}

type learner struct {
	cancel    context.CancelFunc
	lastErr   error
	startedAt time.Time
	lastRunAt time.Time
	nextRunAt time.Time
	runCount  int
}

// Scheduler owns one timer goroutine per learning user.
type Scheduler struct {
	store     Store
	analyzer  Analyzer
	generator Generator
	cfg       Config

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	learners map[int32]*learner
	closed   bool
}

// NewScheduler creates a learning scheduler. No user learns until Start or
// Resume is called.
func NewScheduler(s Store, analyzer Analyzer, generator Generator, cfg Config) *Scheduler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CycleTimeout < 0 {
		cfg.CycleTimeout = 0
	}
	if cfg.ResumeConcurrency <= 0 {
		cfg.ResumeConcurrency = defaultResumeConcurrency
	}

	base, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:     s,
		analyzer:  analyzer,
		generator: generator,
		cfg:       cfg,
		base:      base,
		cancel:    cancel,
		learners:  make(map[int32]*learner),
	}
}

// Start turns learning on for the user. An existing timer is replaced. The
// first cycle runs immediately in the background.
func (s *Scheduler) Start(ctx context.Context, userID int32) error {
	now := s.cfg.Now()
	if _, err := s.store.UpsertLearningState(ctx, &store.LearningState{
		UserID:    userID,
		Enabled:   true,
		StartedTs: now.Unix(),
		UpdatedTs: now.Unix(),
	}); err != nil {
		return errors.Wrap(err, "failed to persist learning state")
	}

	if _, err := s.register(userID, now, true); err != nil {
		return err
	}
	slog.Info("learning started", "user_id", userID, "interval", s.cfg.Interval)
	return nil
}

// register installs a fresh timer for the user. With runNow the first cycle
// starts right away in its own goroutine.
func (s *Scheduler) register(userID int32, startedAt time.Time, runNow bool) (*learner, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if old, ok := s.learners[userID]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(s.base)
	l := &learner{
		cancel:    cancel,
		startedAt: startedAt,
		nextRunAt: s.cfg.Now().Add(s.cfg.Interval),
	}
	s.learners[userID] = l
	active := len(s.learners)
	s.wg.Add(1)
	if runNow {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.runCycle(userID, l)
		}()
	}
	s.mu.Unlock()

	go s.loop(ctx, userID, l)
	s.cfg.Recorder.ActiveLearners(active)
	return l, nil
}

func (s *Scheduler) loop(ctx context.Context, userID int32, l *learner) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			l.nextRunAt = s.cfg.Now().Add(s.cfg.Interval)
			s.mu.Unlock()
			_ = s.runCycle(userID, l)
		}
	}
}

// Stop turns learning off for the user. It is a no-op for users that are not
// learning, apart from persisting the disabled state. A cycle already running
// is not interrupted.
func (s *Scheduler) Stop(ctx context.Context, userID int32) error {
	s.mu.Lock()
	l, ok := s.learners[userID]
	if ok {
		l.cancel()
		delete(s.learners, userID)
	}
	active := len(s.learners)
	s.mu.Unlock()

	if ok {
		s.cfg.Recorder.ActiveLearners(active)
		slog.Info("learning stopped", "user_id", userID)
	}
	if _, err := s.store.UpsertLearningState(ctx, &store.LearningState{
		UserID:    userID,
		Enabled:   false,
		UpdatedTs: s.cfg.Now().Unix(),
	}); err != nil {
		return errors.Wrap(err, "failed to persist learning state")
	}
	return nil
}

// Status reports the learning state of the user.
func (s *Scheduler) Status(userID int32) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{Interval: s.cfg.Interval}
	l, ok := s.learners[userID]
	if !ok {
		return status
	}
	status.Learning = true
	status.StartedAt = l.startedAt
	status.LastRunAt = l.lastRunAt
	status.NextRunAt = l.nextRunAt
	status.RunCount = l.runCount
	if l.lastErr != nil {
		status.LastError = l.lastErr.Error()
	}
	return status
}

// Resume restarts learning for every user whose persisted state is enabled
// and runs their first cycles with bounded concurrency. It returns the number
// of users resumed.
func (s *Scheduler) Resume(ctx context.Context) (int, error) {
	enabled := true
	states, err := s.store.ListLearningStates(ctx, &store.FindLearningState{Enabled: &enabled})
	if err != nil {
		return 0, errors.Wrap(err, "failed to list learning states")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ResumeConcurrency)
	resumed := 0
	for _, state := range states {
		l, err := s.register(state.UserID, time.Unix(state.StartedTs, 0), false)
		if err != nil {
			_ = g.Wait()
			return resumed, err
		}
		resumed++
		userID := state.UserID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_ = s.runCycle(userID, l)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resumed, errors.Wrap(err, "resume interrupted")
	}
	slog.Info("learning resumed", "users", resumed)
	return resumed, nil
}

// RunCycle runs one learning cycle for the user outside of the timer.
func (s *Scheduler) RunCycle(ctx context.Context, userID int32) error {
	return s.cycle(ctx, userID)
}

func (s *Scheduler) runCycle(userID int32, l *learner) error {
	err := s.cycle(s.base, userID)

	s.mu.Lock()
	l.runCount++
	l.lastRunAt = s.cfg.Now()
	l.lastErr = err
	s.mu.Unlock()
	return err
}

// cycle analyzes then generates. Generation runs even when analysis fails.
func (s *Scheduler) cycle(ctx context.Context, userID int32) error {
	if s.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CycleTimeout)
		defer cancel()
	}
	start := time.Now()

	analyzeErr := s.analyzer.AnalyzeAll(ctx, userID)
	for _, err := range multierr.Errors(analyzeErr) {
		var passErr *habit.PassError
		if errors.As(err, &passErr) {
			s.cfg.Recorder.AnalyzerFailed(passErr.Pass)
		}
	}
	generated, generateErr := s.generator.Generate(ctx, userID)

	err := multierr.Combine(
		errors.Wrap(analyzeErr, "analysis"),
		errors.Wrap(generateErr, "generation"),
	)
	status := CycleSuccess
	switch {
	case analyzeErr != nil && generateErr != nil:
		status = CycleFailed
	case err != nil:
		status = CyclePartial
	}
	elapsed := time.Since(start)
	s.cfg.Recorder.CycleFinished(status, elapsed)

	if err != nil {
		slog.Warn("learning cycle finished with errors", "user_id", userID, "status", status, "error", err)
	} else {
		slog.Debug("learning cycle finished", "user_id", userID, "suggestions", len(generated), "elapsed", elapsed)
	}
	return err
}

// Close stops every timer and cancels running cycles. The persisted learning
// state is left untouched so Resume can pick it up again.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for userID, l := range s.learners {
		l.cancel()
		delete(s.learners, userID)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.cfg.Recorder.ActiveLearners(0)
}
