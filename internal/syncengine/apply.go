package syncengine

import (
	"context"
	"time"

	"contact-sync/internal/carddav"
	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/common/utils"
	"contact-sync/internal/fingerprint"
	"contact-sync/internal/models"
	"contact-sync/internal/photos"
	"contact-sync/internal/storage"
	"contact-sync/internal/vcard"
)

// adopt overwrites person's synchronizable content with the card's. The
// person keeps its UID when the card has none. Photo is left to the caller.
func adopt(person *models.Person, card *vcard.Card) {
	uid, photo := person.UID, person.Photo
	person.CopyScalars(&card.Person)
	person.CopyCollections(&card.Person)
	person.UID = utils.FirstNonEmpty(card.Person.UID, uid)
	person.Photo = photo
}

// storePhoto returns the photo value person should carry after taking the
// card. Inline pictures go to the photo store; fallback is kept when that
// is not possible.
func (e *Engine) storePhoto(ctx context.Context, person *models.Person, card *vcard.Card, fallback string) string {
	if card.Photo == nil || len(card.Photo.Data) == 0 {
		return card.Person.Photo
	}
	if e.photos == nil {
		return fallback
	}
	ref, err := e.photos.Save(ctx, person.UserID, person.ID, card.Photo.Data, card.Photo.MediaType)
	if err != nil {
		e.logger.Warn("Failed to store contact photo",
			logging.String("person_id", person.ID), logging.Err(err))
		return fallback
	}
	return ref
}

// dropPhoto removes a stored picture the person no longer references.
func (e *Engine) dropPhoto(ctx context.Context, old, current string) {
	if e.photos == nil || old == current || !photos.IsRef(old) || photos.IsRef(current) {
		return
	}
	if err := e.photos.Delete(ctx, old); err != nil {
		e.logger.Warn("Failed to delete stale contact photo", logging.String("ref", old), logging.Err(err))
	}
}

// replacePerson writes person inside q: scalars are updated and every
// collection is deleted and recreated. It returns the fingerprint of the
// stored result.
func replacePerson(ctx context.Context, q storage.Queries, person *models.Person) (string, error) {
	if err := q.UpdatePerson(ctx, person); err != nil {
		return "", err
	}
	if err := q.ReplaceCollections(ctx, person); err != nil {
		return "", err
	}
	return storedFingerprint(ctx, q, person)
}

// storedFingerprint reloads person so group names and rows are hashed as
// the store keeps them.
func storedFingerprint(ctx context.Context, q storage.Queries, person *models.Person) (string, error) {
	stored, err := q.GetPerson(ctx, person.UserID, person.ID)
	if err != nil {
		return "", err
	}
	return fingerprint.Compute(stored), nil
}

// Overwrite replaces person with the card's content in one transaction.
// inTx runs inside that transaction with the fingerprint of the stored
// result. Stored pictures no longer referenced are removed afterwards.
func (e *Engine) Overwrite(ctx context.Context, person *models.Person, card *vcard.Card, inTx func(q storage.Queries, version string) error) error {
	oldPhoto := person.Photo
	adopt(person, card)
	person.Photo = e.storePhoto(ctx, person, card, oldPhoto)

	err := e.store.WithTx(ctx, func(q storage.Queries) error {
		version, err := replacePerson(ctx, q, person)
		if err != nil {
			return err
		}
		if inTx != nil {
			return inTx(q, version)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.dropPhoto(ctx, oldPhoto, person.Photo)
	return nil
}

// applyRemote pulls the card into the mapped person.
func (e *Engine) applyRemote(ctx context.Context, person *models.Person, card *vcard.Card, m *models.CardDavMapping, obj carddav.VCardObject) error {
	now := e.now()
	return e.Overwrite(ctx, person, card, func(q storage.Queries, version string) error {
		m.Href, m.ETag, m.UID = obj.Href, obj.ETag, person.UID
		m.LocalVersion = version
		m.SyncStatus = models.SyncStatusSynced
		m.LastRemoteChange = &now
		m.LastSyncedAt = &now
		return q.UpdateMapping(ctx, m)
	})
}

// raiseConflict records both sides and parks the mapping. No contact data
// is changed and the mapping keeps its last synced etag.
func (e *Engine) raiseConflict(ctx context.Context, m *models.CardDavMapping, person *models.Person, obj carddav.VCardObject) error {
	now := e.now()
	return e.store.WithTx(ctx, func(q storage.Queries) error {
		if err := q.CreateConflict(ctx, &models.CardDavConflict{
			MappingID:     m.ID,
			LocalVersion:  vcard.Encode(person),
			RemoteVersion: obj.Data,
			RemoteETag:    obj.ETag,
			DetectedAt:    now,
		}); err != nil {
			return err
		}
		m.Href = obj.Href
		m.SyncStatus = models.SyncStatusConflict
		m.LastRemoteChange = &now
		return q.UpdateMapping(ctx, m)
	})
}

// importCard creates a person from card or, when a person with the card's
// UID exists (deleted or not), restores and overwrites it. With a
// connection and remote object the person is mapped to that resource.
// extra runs in the same transaction.
func (e *Engine) importCard(ctx context.Context, userID string, card *vcard.Card, conn *models.CardDavConnection, obj *carddav.VCardObject, extra func(q storage.Queries) error) (*models.Person, error) {
	uid := card.Person.UID
	if uid == "" {
		uid = utils.NewVCardUID()
	}

	person, err := e.store.FindPersonByUIDUnscoped(ctx, userID, uid)
	existing := err == nil
	switch {
	case existing:
	case errors.IsType(err, errors.ErrTypeNotFound):
		person = &models.Person{ID: utils.NewID(), UserID: userID}
	default:
		return nil, err
	}

	restore := existing && person.IsDeleted()
	oldPhoto := person.Photo
	adopt(person, card)
	person.UID = uid
	person.SyncEnabled = true
	person.Photo = e.storePhoto(ctx, person, card, oldPhoto)

	now := e.now()
	err = e.store.WithTx(ctx, func(q storage.Queries) error {
		var version string
		var err error
		if existing {
			if restore {
				if err := q.RestorePerson(ctx, person.ID, now); err != nil {
					return err
				}
				person.DeletedAt = nil
			}
			if version, err = replacePerson(ctx, q, person); err != nil {
				return err
			}
		} else {
			if err := q.CreatePerson(ctx, person); err != nil {
				return err
			}
			if version, err = storedFingerprint(ctx, q, person); err != nil {
				return err
			}
		}

		if conn != nil && obj != nil {
			if err := linkImported(ctx, q, conn.ID, person, obj, version, now); err != nil {
				return err
			}
		}
		if extra != nil {
			return extra(q)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if restore {
		e.logger.Info("Restored deleted contact from import",
			logging.String("person_id", person.ID), logging.String("uid", uid))
	}
	e.dropPhoto(ctx, oldPhoto, person.Photo)
	return person, nil
}

// linkImported points the person's mapping for connID at obj, creating it
// when the person has none there.
func linkImported(ctx context.Context, q storage.Queries, connID string, person *models.Person, obj *carddav.VCardObject, version string, now time.Time) error {
	mappings, err := q.ListMappingsByPerson(ctx, person.ID)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		if m.ConnectionID != connID {
			continue
		}
		m.Href, m.ETag, m.UID = obj.Href, obj.ETag, person.UID
		m.SyncStatus = models.SyncStatusSynced
		m.LocalVersion = version
		m.LastRemoteChange, m.LastSyncedAt = &now, &now
		return q.UpdateMapping(ctx, m)
	}
	return q.CreateMapping(ctx, &models.CardDavMapping{
		ConnectionID:     connID,
		PersonID:         person.ID,
		Href:             obj.Href,
		ETag:             obj.ETag,
		UID:              person.UID,
		SyncStatus:       models.SyncStatusSynced,
		LastRemoteChange: &now,
		LastSyncedAt:     &now,
		LocalVersion:     version,
	})
}
