package cleanup

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/orderimages/options"
)

// ScheduleOption is the options row that registers the daily run.
const ScheduleOption = "aiep_cleanup_schedule"

// Schedule is the persisted registration of the periodic run.
type Schedule struct {
	PeriodSeconds int64      `json:"period_seconds"`
	LastRun       *time.Time `json:"last_run,omitempty"`
}

// Period returns the run interval, one day when unset.
func (s Schedule) Period() time.Duration {
	if s.PeriodSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.PeriodSeconds) * time.Second
}

// Register enables the periodic run. An existing registration, and its last run, is kept.
func Register(ctx context.Context, db *gorm.DB, period time.Duration) error {
	_, err := options.Add(ctx, db, ScheduleOption, Schedule{PeriodSeconds: int64(period / time.Second)})
	return err
}

// Deregister disables the periodic run.
func Deregister(ctx context.Context, db *gorm.DB) error {
	return options.Delete(ctx, db, ScheduleOption)
}

// Runner is what the scheduler triggers.
type Runner interface {
	Run(ctx context.Context) (Report, error)
}

// Scheduler checks the registration at a fixed interval and runs the reaper when a period has passed.
type Scheduler struct {
	db       *gorm.DB
	runner   Runner
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewScheduler returns a scheduler polling every interval.
func NewScheduler(db *gorm.DB, runner Runner, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{db: db, runner: runner, interval: interval, logger: logger, now: time.Now}
}

// Start polls until ctx is cancelled. It checks once immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled cleanup failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs the reaper if the schedule is registered and due, and records the run time.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	var sched Schedule
	found, err := options.Get(ctx, s.db, ScheduleOption, &sched)
	if err != nil || !found {
		return false, err
	}
	now := s.now()
	if sched.LastRun != nil && now.Sub(*sched.LastRun) < sched.Period() {
		return false, nil
	}
	if _, err := s.runner.Run(ctx); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			return false, nil
		}
		return false, err
	}
	// Re-check the registration so an uninstall during the run is not undone
	var current Schedule
	if found, err := options.Get(ctx, s.db, ScheduleOption, &current); err != nil || !found {
		return true, err
	}
	current.LastRun = &now
	return true, options.Put(ctx, s.db, ScheduleOption, current)
}
