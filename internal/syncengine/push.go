package syncengine

import (
	"context"

	"contact-sync/internal/carddav"
	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/common/utils"
	"contact-sync/internal/fingerprint"
	"contact-sync/internal/locks"
	"contact-sync/internal/models"
	"contact-sync/internal/photos"
	"contact-sync/internal/vcard"
)

type pushCandidate struct {
	person  *models.Person
	mapping *models.CardDavMapping
}

// push exports every syncable person that has no mapping yet or whose
// content moved since the last sync. Mappings in conflict wait for a
// resolution.
func (r *run) push(ctx context.Context) error {
	e := r.engine
	persons, err := e.store.ListSyncablePersons(ctx, r.conn.UserID)
	if err != nil {
		return err
	}
	mappings, err := e.store.ListMappingsByConnection(ctx, r.conn.ID)
	if err != nil {
		return err
	}
	byPerson := make(map[string]*models.CardDavMapping, len(mappings))
	for _, m := range mappings {
		byPerson[m.PersonID] = m
	}

	var todo []pushCandidate
	for _, p := range persons {
		m := byPerson[p.ID]
		switch {
		case m == nil:
		case m.SyncStatus == models.SyncStatusConflict:
			continue
		case m.SyncStatus == models.SyncStatusPending:
		case fingerprint.Compute(p) != m.LocalVersion:
		default:
			continue
		}
		todo = append(todo, pushCandidate{person: p, mapping: m})
	}

	for i, c := range todo {
		ev := ProgressEvent{
			Index:    i + 1,
			Total:    len(todo),
			Phase:    PhasePush,
			UID:      c.person.UID,
			PersonID: c.person.ID,
			Name:     c.person.DisplayName(),
		}
		ev.Outcome, err = e.pushOne(ctx, r.client, r.books, c.person, c.mapping, r.conn.ID)
		r.emit(ev, err)
	}
	return nil
}

// pushOne writes person to the server. Without a mapping the card is
// created in the first address book and a mapping is recorded; otherwise
// the mapped resource is updated under its known etag.
func (e *Engine) pushOne(ctx context.Context, client carddav.Client, books []carddav.AddressBook, person *models.Person, m *models.CardDavMapping, connID string) (Outcome, error) {
	if person.UID == "" {
		person.UID = utils.NewVCardUID()
		if err := e.store.UpdatePerson(ctx, person); err != nil {
			return OutcomeError, err
		}
	}

	var opts []vcard.EncodeOption
	if photos.IsRef(person.Photo) && e.photos != nil {
		data, mediaType, err := e.photos.Load(ctx, person.Photo)
		if err != nil {
			e.logger.Warn("Exporting contact without its photo",
				logging.String("person_id", person.ID), logging.Err(err))
		} else {
			opts = append(opts, vcard.WithPhoto(data, mediaType))
		}
	}
	data := vcard.Encode(person, opts...)
	version := fingerprint.Compute(person)
	now := e.now()

	if m == nil {
		if len(books) == 0 {
			return OutcomeError, errors.NotFoundError("address book")
		}
		obj, err := client.CreateVCard(ctx, books[0], vcard.Filename(person.UID), data)
		if err != nil {
			return OutcomeError, err
		}
		err = e.store.CreateMapping(ctx, &models.CardDavMapping{
			ConnectionID:    connID,
			PersonID:        person.ID,
			Href:            obj.Href,
			ETag:            obj.ETag,
			UID:             person.UID,
			SyncStatus:      models.SyncStatusSynced,
			LastLocalChange: &now,
			LastSyncedAt:    &now,
			LocalVersion:    version,
		})
		return OutcomeExported, err
	}

	etag, err := client.UpdateVCard(ctx, m.Href, m.ETag, data)
	if err != nil {
		return OutcomeError, err
	}
	m.ETag, m.UID = etag, person.UID
	m.LocalVersion = version
	m.SyncStatus = models.SyncStatusSynced
	m.LastLocalChange = &now
	m.LastSyncedAt = &now
	return OutcomeUpdatedRemotely, e.store.UpdateMapping(ctx, m)
}

// PushPerson exports one person right away, outside a full run. It is a
// no-op when sync is off for the user's connection or for the person. A
// mapping in conflict is refused until the conflict is resolved.
func (e *Engine) PushPerson(ctx context.Context, userID, personID string) error {
	conn, err := e.store.GetConnectionByUser(ctx, userID)
	if errors.IsType(err, errors.ErrTypeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !conn.SyncEnabled {
		return nil
	}

	lock, err := e.locks.TryAcquire(ctx, locks.SyncLockKey(conn.ID), e.lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			e.logger.Warn("Failed to release sync lock", logging.String("connection_id", conn.ID), logging.Err(err))
		}
	}()

	person, err := e.store.GetPerson(ctx, userID, personID)
	if err != nil {
		return err
	}
	if !person.SyncEnabled {
		return nil
	}

	var mapping *models.CardDavMapping
	mappings, err := e.store.ListMappingsByPerson(ctx, person.ID)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		if m.ConnectionID == conn.ID {
			mapping = m
			break
		}
	}
	if mapping != nil && mapping.SyncStatus == models.SyncStatusConflict {
		return errors.ConflictError("contact has an unresolved sync conflict").
			WithContext("person_id", person.ID)
	}

	client, err := e.clients.Connect(ctx, conn)
	if err != nil {
		return err
	}
	var books []carddav.AddressBook
	if mapping == nil {
		if books, err = addressBooks(ctx, client, conn); err != nil {
			return err
		}
	}

	outcome, err := e.pushOne(ctx, client, books, person, mapping, conn.ID)
	if err != nil {
		return err
	}
	e.logger.Debug("Pushed contact",
		logging.String("person_id", person.ID),
		logging.String("outcome", string(outcome)),
	)
	return nil
}
