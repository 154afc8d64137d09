// Package cleanup removes uploaded images that never made it onto an order.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cppla/orderimages/metrics"
	"github.com/cppla/orderimages/models"
	"github.com/cppla/orderimages/utils"
)

const (
	// RetentionWindow protects fresh uploads whose order may still be in progress.
	RetentionWindow = 24 * time.Hour
	// LockKey is the advisory lock shared by every replica.
	LockKey = "aiep:cleanup:lock"
	lockTTL = 30 * time.Minute
)

var (
	// ErrAlreadyRunning is returned when another run holds the lock.
	ErrAlreadyRunning = errors.New("cleanup already running")
	// ErrReferenceCheck marks a candidate whose order references could not be checked.
	ErrReferenceCheck = errors.New("reference check failed")
	// ErrDelete marks a candidate that could not be removed.
	ErrDelete = errors.New("delete failed")
)

// Library lists and removes stored objects.
type Library interface {
	Candidates(ctx context.Context, cutoff time.Time) ([]models.MediaFile, error)
	Remove(ctx context.Context, m models.MediaFile) error
	Path(m models.MediaFile) string
}

// Referencer tells whether an order still uses an object.
type Referencer interface {
	IsReferenced(ctx context.Context, m models.MediaFile) (bool, error)
}

// Report summarises one run.
type Report struct {
	RunID   string    `json:"run_id"`
	Scanned int       `json:"scanned"`
	Deleted int       `json:"deleted"`
	Skipped int       `json:"skipped"`
	Failed  int       `json:"failed"`
	Entry   *LogEntry `json:"entry,omitempty"`
	Errors  []error   `json:"-"`
}

// Reaper deletes plugin-owned objects older than RetentionWindow that no order references.
type Reaper struct {
	library Library
	refs    Referencer
	log     *LogStore
	rc      *redis.Client
	logger  *zap.Logger
	now     func() time.Time
	mu      sync.Mutex
}

// NewReaper wires a reaper. rc may be nil; the in-process guard still applies.
func NewReaper(library Library, refs Referencer, log *LogStore, rc *redis.Client, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{library: library, refs: refs, log: log, rc: rc, logger: logger, now: time.Now}
}

// Run performs one cleanup pass. A failing candidate is logged and skipped; only listing the
// candidates or writing the history fails the run.
func (r *Reaper) Run(ctx context.Context) (Report, error) {
	if !r.mu.TryLock() {
		metrics.IncCleanupRun("already_running")
		return Report{}, ErrAlreadyRunning
	}
	defer r.mu.Unlock()

	lock, err := utils.AcquireLock(ctx, r.rc, LockKey, lockTTL)
	switch {
	case errors.Is(err, utils.ErrLockHeld):
		metrics.IncCleanupRun("already_running")
		return Report{}, ErrAlreadyRunning
	case err != nil && r.rc != nil:
		r.logger.Warn("cleanup lock unavailable, continuing with local guard", zap.Error(err))
	}
	if lock != nil {
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("cleanup lock release failed", zap.Error(err))
			}
		}()
	}

	report, err := r.scan(ctx)
	if err != nil {
		metrics.IncCleanupRun("error")
		return report, err
	}
	metrics.IncCleanupRun("ok")
	return report, nil
}

func (r *Reaper) scan(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	logger := r.logger.With(zap.String("run_id", report.RunID))

	candidates, err := r.library.Candidates(ctx, r.now().Add(-RetentionWindow))
	if err != nil {
		return report, err
	}
	var details []DeletedImage
	for _, m := range candidates {
		if ctx.Err() != nil {
			break
		}
		report.Scanned++
		referenced, err := r.refs.IsReferenced(ctx, m)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("%w: media %d: %v", ErrReferenceCheck, m.ID, err))
			metrics.IncCleanupCandidateError("reference")
			logger.Error("cleanup reference check failed", zap.Uint("media_id", m.ID), zap.Error(err))
			continue
		}
		if referenced {
			report.Skipped++
			continue
		}
		path := r.library.Path(m)
		if err := r.library.Remove(ctx, m); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("%w: media %d: %v", ErrDelete, m.ID, err))
			metrics.IncCleanupCandidateError("delete")
			logger.Error("cleanup delete failed", zap.Uint("media_id", m.ID), zap.Error(err))
			continue
		}
		details = append(details, DeletedImage{ID: m.ID, URL: m.URL, Path: path, Time: r.now().Format(TimeLayout)})
		logger.Info("orphan image deleted", zap.Uint("media_id", m.ID), zap.String("url", m.URL))
	}
	report.Deleted = len(details)
	metrics.AddCleanupDeleted(report.Deleted)

	if report.Deleted > 0 {
		entry := LogEntry{Timestamp: r.now().Format(TimeLayout), ImagesDeleted: report.Deleted, Details: details}
		report.Entry = &entry
		if err := r.log.Append(context.WithoutCancel(ctx), entry); err != nil {
			return report, fmt.Errorf("write cleanup log: %w", err)
		}
	}
	logger.Info("cleanup finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("deleted", report.Deleted),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, ctx.Err()
}
