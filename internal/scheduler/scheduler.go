// Package scheduler runs the periodic background work: the auto-sync sweep
// over every sync-enabled connection and the reminder sweep.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/models"
	"contact-sync/internal/storage"
	"contact-sync/internal/syncengine"
)

// Syncer runs one sync pass for a connection.
type Syncer interface {
	SyncConnection(ctx context.Context, conn *models.CardDavConnection, opts syncengine.RunOptions) (*syncengine.Result, error)
}

// ReminderSweeper sends due reminders.
type ReminderSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Config struct {
	// SyncSchedule and ReminderSchedule are cron specs; descriptors such
	// as "@every 1m" are accepted. An empty spec disables the job.
	SyncSchedule     string
	ReminderSchedule string
	// InterConnectionDelay separates consecutive connections in a sweep.
	InterConnectionDelay time.Duration
	Logger               logging.Logger
	Now                  func() time.Time
}

// Scheduler owns the cron runner. Jobs never overlap with themselves.
type Scheduler struct {
	store     storage.Store
	syncer    Syncer
	reminders ReminderSweeper
	delay     time.Duration
	logger    logging.Logger
	now       func() time.Time

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates a Scheduler and registers its jobs. reminders may be nil.
func New(store storage.Store, syncer Syncer, reminders ReminderSweeper, config Config) (*Scheduler, error) {
	if config.Logger == nil {
		config.Logger = logging.GetGlobalLogger()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	logger := config.Logger.WithFields(logging.String("component", "scheduler"))
	cronLogger := cronLogger{logger: logger}

	s := &Scheduler{
		store:     store,
		syncer:    syncer,
		reminders: reminders,
		delay:     config.InterConnectionDelay,
		logger:    logger,
		now:       config.Now,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if config.SyncSchedule != "" {
		if _, err := s.cron.AddFunc(config.SyncSchedule, s.runSyncSweep); err != nil {
			return nil, errors.ConfigError("invalid sync sweep schedule").WithCause(err)
		}
	}
	if config.ReminderSchedule != "" && reminders != nil {
		if _, err := s.cron.AddFunc(config.ReminderSchedule, s.runReminderSweep); err != nil {
			return nil, errors.ConfigError("invalid reminder sweep schedule").WithCause(err)
		}
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", logging.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return errors.TimeoutError("scheduler did not stop in time")
	}
}

func (s *Scheduler) runSyncSweep() {
	if _, err := s.SweepConnections(s.ctx); err != nil && s.ctx.Err() == nil {
		s.logger.Error("Auto-sync sweep failed", err)
	}
}

func (s *Scheduler) runReminderSweep() {
	if _, err := s.reminders.Sweep(s.ctx); err != nil && s.ctx.Err() == nil {
		s.logger.Error("Reminder sweep failed", err)
	}
}

// IsDue reports whether conn should be synced at now. The interval runs
// from the most recent attempt, successful or not, so a failing server is
// retried at the same pace. A non-positive interval disables auto-sync.
func IsDue(conn *models.CardDavConnection, now time.Time) bool {
	if !conn.SyncEnabled || conn.AutoSyncInterval <= 0 {
		return false
	}
	last := conn.LastSyncAt
	if conn.LastErrorAt != nil && (last == nil || conn.LastErrorAt.After(*last)) {
		last = conn.LastErrorAt
	}
	if last == nil {
		return true
	}
	return now.Sub(*last) >= conn.AutoSyncInterval
}

// SweepConnections syncs every due connection one after another and
// returns how many runs completed. A failing connection is logged and the
// sweep moves on; a connection whose lock is held is skipped.
func (s *Scheduler) SweepConnections(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, err := s.store.ListSyncEnabledConnections(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	first := true
	for _, conn := range conns {
		if !IsDue(conn, s.now()) {
			continue
		}
		if !first && s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return synced, ctx.Err()
			}
		}
		first = false
		if err := ctx.Err(); err != nil {
			return synced, err
		}

		logger := s.logger.WithFields(
			logging.String("connection_id", conn.ID),
			logging.String("user_id", conn.UserID),
		)
		result, err := s.syncer.SyncConnection(ctx, conn, syncengine.RunOptions{})
		switch {
		case errors.IsType(err, errors.ErrTypeConflict):
			logger.Debug("Skipping connection with a sync already running")
			continue
		case err != nil:
			logger.Warn("Scheduled sync failed", logging.Err(err))
			continue
		}
		synced++
		logger.Debug("Scheduled sync finished",
			logging.Int("imported", result.Imported),
			logging.Int("exported", result.Exported),
			logging.Int("conflicts", result.Conflicts),
			logging.Int("errors", result.Errors),
		)
	}
	return synced, nil
}

// cronLogger routes cron's own messages into the service logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, kvFields(keysAndValues)...)
}

func kvFields(kv []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, logging.Any(key, kv[i+1]))
	}
	return fields
}
