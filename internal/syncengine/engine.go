// Package syncengine reconciles a user's local contacts with their remote
// CardDAV address book. One run pulls remote changes, raises conflicts
// where both sides moved, then pushes local changes.
package syncengine

import (
	"context"
	"fmt"
	"time"

	"contact-sync/internal/carddav"
	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/common/utils"
	"contact-sync/internal/locks"
	"contact-sync/internal/models"
	"contact-sync/internal/photos"
	"contact-sync/internal/storage"
)

// Phase is the part of a run an event belongs to.
type Phase string

const (
	PhasePull Phase = "pull"
	PhasePush Phase = "push"
)

// Outcome classifies what happened to one contact.
type Outcome string

const (
	OutcomeUnchanged       Outcome = "unchanged"
	OutcomeImported        Outcome = "imported"
	OutcomePendingImport   Outcome = "pending_import"
	OutcomeLinked          Outcome = "linked"
	OutcomeUpdatedLocally  Outcome = "updated_locally"
	OutcomeUpdatedRemotely Outcome = "updated_remotely"
	OutcomeExported        Outcome = "exported"
	OutcomeConflict        Outcome = "conflict"
	OutcomeUnlinked        Outcome = "unlinked"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeError           Outcome = "error"
)

// ProgressEvent is emitted once per processed contact.
type ProgressEvent struct {
	Index    int     `json:"index"`
	Total    int     `json:"total"`
	Phase    Phase   `json:"phase"`
	Outcome  Outcome `json:"outcome"`
	UID      string  `json:"uid,omitempty"`
	PersonID string  `json:"person_id,omitempty"`
	Name     string  `json:"name,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// RunOptions tune a single run.
type RunOptions struct {
	// Progress, if set, is called synchronously for every contact.
	Progress func(ProgressEvent)
}

// Result aggregates one run. Per-contact failures are counted in Errors
// and described in ErrorMessages; they never abort the run.
type Result struct {
	ConnectionID    string    `json:"connection_id"`
	RunID           string    `json:"run_id"`
	Imported        int       `json:"imported"`
	Exported        int       `json:"exported"`
	UpdatedLocally  int       `json:"updated_locally"`
	UpdatedRemotely int       `json:"updated_remotely"`
	Conflicts       int       `json:"conflicts"`
	Errors          int       `json:"errors"`
	PendingImports  int       `json:"pending_imports"`
	Linked          int       `json:"linked"`
	Unlinked        int       `json:"unlinked"`
	ErrorMessages   []string  `json:"error_messages"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

func (r *Result) count(o Outcome) {
	switch o {
	case OutcomeImported:
		r.Imported++
	case OutcomeExported:
		r.Exported++
	case OutcomeUpdatedLocally:
		r.UpdatedLocally++
	case OutcomeUpdatedRemotely:
		r.UpdatedRemotely++
	case OutcomeConflict:
		r.Conflicts++
	case OutcomePendingImport:
		r.PendingImports++
	case OutcomeLinked:
		r.Linked++
	case OutcomeUnlinked:
		r.Unlinked++
	}
}

func (r *Result) fail(label string, err error) {
	r.Errors++
	if label == "" {
		r.ErrorMessages = append(r.ErrorMessages, err.Error())
		return
	}
	r.ErrorMessages = append(r.ErrorMessages, fmt.Sprintf("%s: %v", label, err))
}

// Config holds the engine's collaborators' settings.
type Config struct {
	// LockTTL bounds how long a crashed run can block its connection.
	LockTTL time.Duration
	Logger  logging.Logger
	// Now replaces the clock in tests.
	Now func() time.Time
}

// Engine runs sync passes. It is safe for concurrent use; runs for the
// same connection are serialized by the lock manager.
type Engine struct {
	store   storage.Store
	clients carddav.ClientFactory
	locks   locks.Manager
	photos  photos.Store
	lockTTL time.Duration
	logger  logging.Logger
	now     func() time.Time
}

func New(store storage.Store, clients carddav.ClientFactory, lockManager locks.Manager, photoStore photos.Store, config Config) *Engine {
	if lockManager == nil {
		lockManager = locks.NewLocalManager()
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 10 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = logging.GetGlobalLogger()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Engine{
		store:   store,
		clients: clients,
		locks:   lockManager,
		photos:  photoStore,
		lockTTL: config.LockTTL,
		logger:  config.Logger,
		now:     func() time.Time { return config.Now().UTC() },
	}
}

// Sync runs a full pass for the user's connection.
func (e *Engine) Sync(ctx context.Context, userID string, opts RunOptions) (*Result, error) {
	conn, err := e.store.GetConnectionByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !conn.SyncEnabled {
		return nil, errors.ValidationError("CardDAV sync is disabled for this connection")
	}
	return e.SyncConnection(ctx, conn, opts)
}

// SyncConnection runs a full pass for conn while holding its sync lock. A
// connection-level failure is recorded on the connection and returned
// together with the partial result.
func (e *Engine) SyncConnection(ctx context.Context, conn *models.CardDavConnection, opts RunOptions) (*Result, error) {
	lock, err := e.locks.TryAcquire(ctx, locks.SyncLockKey(conn.ID), e.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			e.logger.Warn("Failed to release sync lock", logging.String("connection_id", conn.ID), logging.Err(err))
		}
	}()

	result := &Result{
		ConnectionID:  conn.ID,
		RunID:         utils.NewRunID(),
		ErrorMessages: []string{},
		StartedAt:     e.now(),
	}
	ctx = logging.ContextWith(ctx, logging.UserIDKey, conn.UserID)
	ctx = logging.ContextWith(ctx, logging.ConnectionIDKey, conn.ID)
	ctx = logging.ContextWith(ctx, logging.SyncRunIDKey, result.RunID)
	logger := e.logger.WithContext(ctx)
	logger.Info("CardDAV sync started")

	r := &run{
		engine:   e,
		conn:     conn,
		result:   result,
		progress: opts.Progress,
		logger:   logger,
	}
	if err := r.execute(ctx); err != nil {
		result.FinishedAt = e.now()
		logger.Error("CardDAV sync failed", err)
		conn.LastError = err.Error()
		conn.LastErrorAt = utils.TimePtr(result.FinishedAt)
		if uerr := e.store.UpdateConnectionSyncState(ctx, conn); uerr != nil {
			logger.Error("Failed to record sync error", uerr)
		}
		return result, err
	}

	result.FinishedAt = e.now()
	conn.LastSyncAt = utils.TimePtr(result.FinishedAt)
	conn.LastError = ""
	conn.LastErrorAt = nil
	if err := e.store.UpdateConnectionSyncState(ctx, conn); err != nil {
		logger.Error("Failed to record sync completion", err)
	}

	logger.Info("CardDAV sync finished",
		logging.Int("imported", result.Imported),
		logging.Int("exported", result.Exported),
		logging.Int("updated_locally", result.UpdatedLocally),
		logging.Int("updated_remotely", result.UpdatedRemotely),
		logging.Int("conflicts", result.Conflicts),
		logging.Int("pending_imports", result.PendingImports),
		logging.Int("errors", result.Errors),
		logging.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

// addressBooks returns the pinned address book or every discovered one.
func addressBooks(ctx context.Context, client carddav.Client, conn *models.CardDavConnection) ([]carddav.AddressBook, error) {
	if conn.AddressBookURL != "" {
		return []carddav.AddressBook{{URL: conn.AddressBookURL}}, nil
	}
	return client.FetchAddressBooks(ctx)
}
