// Package conflicts applies a user's decision to a recorded sync conflict.
package conflicts

import (
	"context"
	"sync"
	"time"

	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/models"
	"contact-sync/internal/storage"
	"contact-sync/internal/vcard"
)

// Syncer is the part of the sync engine the resolver drives.
type Syncer interface {
	PushPerson(ctx context.Context, userID, personID string) error
	Overwrite(ctx context.Context, person *models.Person, card *vcard.Card, inTx func(q storage.Queries, version string) error) error
}

// Config tunes a Resolver.
type Config struct {
	// PushTimeout bounds each background push.
	PushTimeout time.Duration
	Logger      logging.Logger
	Now         func() time.Time
}

// Resolver resolves conflicts. Pushes triggered by keep_local and merged
// run in the background; Wait blocks until they have finished.
type Resolver struct {
	store       storage.Store
	syncer      Syncer
	pushTimeout time.Duration
	logger      logging.Logger
	now         func() time.Time
	wg          sync.WaitGroup
}

func NewResolver(store storage.Store, syncer Syncer, config Config) *Resolver {
	if config.PushTimeout <= 0 {
		config.PushTimeout = 2 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = logging.GetGlobalLogger()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Resolver{
		store:       store,
		syncer:      syncer,
		pushTimeout: config.PushTimeout,
		logger:      config.Logger,
		now:         func() time.Time { return config.Now().UTC() },
	}
}

// List returns the user's open conflicts, oldest first.
func (r *Resolver) List(ctx context.Context, userID string) ([]*models.CardDavConflict, error) {
	return r.store.ListUnresolvedConflicts(ctx, userID)
}

// Resolve applies resolution to an open conflict owned by userID and
// returns the resolved conflict. A conflict can be resolved only once.
func (r *Resolver) Resolve(ctx context.Context, userID, conflictID, resolution string) (*models.CardDavConflict, error) {
	if !models.ValidResolution(resolution) {
		return nil, errors.ValidationError("resolution must be keep_local, keep_remote or merged").
			WithContext("resolution", resolution)
	}

	conflict, err := r.store.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.IsResolved() {
		return nil, errors.ConflictError("conflict already resolved").WithContext("conflict_id", conflictID)
	}
	mapping, err := r.store.GetMapping(ctx, conflict.MappingID)
	if err != nil {
		return nil, err
	}
	conn, err := r.store.GetConnection(ctx, mapping.ConnectionID)
	if err != nil {
		return nil, err
	}
	if conn.UserID != userID {
		return nil, errors.ForbiddenError("conflict belongs to another user")
	}

	logger := r.logger.WithFields(
		logging.String("conflict_id", conflictID),
		logging.String("person_id", mapping.PersonID),
		logging.String("resolution", resolution),
	)

	switch resolution {
	case models.ResolutionKeepRemote:
		err = r.keepRemote(ctx, userID, conflict, mapping)
	default:
		err = r.requeue(ctx, userID, conflict, mapping, resolution)
	}
	if err != nil {
		logger.Error("Failed to resolve conflict", err)
		return nil, err
	}
	logger.Info("Conflict resolved")

	if resolution != models.ResolutionKeepRemote {
		r.pushLater(userID, mapping.PersonID)
	}
	return r.store.GetConflict(ctx, conflictID)
}

// keepRemote replaces the local person with the stored remote snapshot and
// closes the conflict in the same transaction.
func (r *Resolver) keepRemote(ctx context.Context, userID string, c *models.CardDavConflict, m *models.CardDavMapping) error {
	card, err := vcard.Decode(c.RemoteVersion)
	if err != nil {
		return err
	}
	person, err := r.store.GetPerson(ctx, userID, m.PersonID)
	if err != nil {
		return err
	}

	now := r.now()
	return r.syncer.Overwrite(ctx, person, card, func(q storage.Queries, version string) error {
		if err := q.ResolveConflict(ctx, c.ID, models.ResolutionKeepRemote, userID, now); err != nil {
			return err
		}
		m.ETag = c.RemoteETag
		m.UID = person.UID
		m.LocalVersion = version
		m.SyncStatus = models.SyncStatusSynced
		m.LastRemoteChange = &now
		m.LastSyncedAt = &now
		return q.UpdateMapping(ctx, m)
	})
}

// requeue closes the conflict and marks the mapping for a push. The
// mapping adopts the remote etag so the push overwrites exactly the
// version the user saw.
func (r *Resolver) requeue(ctx context.Context, userID string, c *models.CardDavConflict, m *models.CardDavMapping, resolution string) error {
	now := r.now()
	return r.store.WithTx(ctx, func(q storage.Queries) error {
		if err := q.ResolveConflict(ctx, c.ID, resolution, userID, now); err != nil {
			return err
		}
		m.ETag = c.RemoteETag
		m.SyncStatus = models.SyncStatusPending
		m.LastLocalChange = &now
		return q.UpdateMapping(ctx, m)
	})
}

func (r *Resolver) pushLater(userID, personID string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.pushTimeout)
		defer cancel()
		if err := r.syncer.PushPerson(ctx, userID, personID); err != nil {
			r.logger.Warn("Background push after conflict resolution failed; the next sync retries it",
				logging.String("person_id", personID),
				logging.Err(err),
			)
		}
	}()
}

// Wait blocks until every background push has finished.
func (r *Resolver) Wait() {
	r.wg.Wait()
}
