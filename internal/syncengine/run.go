package syncengine

import (
	"context"

	"contact-sync/internal/carddav"
	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/common/utils"
	"contact-sync/internal/fingerprint"
	"contact-sync/internal/models"
	"contact-sync/internal/storage"
	"contact-sync/internal/vcard"
)

// run is the state of one pass over one connection.
type run struct {
	engine   *Engine
	conn     *models.CardDavConnection
	client   carddav.Client
	books    []carddav.AddressBook
	result   *Result
	progress func(ProgressEvent)
	logger   logging.Logger

	byHref map[string]*models.CardDavMapping
	byUID  map[string]*models.CardDavMapping
	seen   map[string]bool
}

type remoteCard struct {
	carddav.VCardObject
	book carddav.AddressBook
}

// execute returns only connection-level failures.
func (r *run) execute(ctx context.Context) error {
	client, err := r.engine.clients.Connect(ctx, r.conn)
	if err != nil {
		return err
	}
	r.client = client

	if r.books, err = addressBooks(ctx, client, r.conn); err != nil {
		return err
	}
	if len(r.books) == 0 {
		return errors.NotFoundError("address book")
	}

	var cards []remoteCard
	for _, book := range r.books {
		objs, err := client.FetchVCards(ctx, book)
		if err != nil {
			return err
		}
		for _, obj := range objs {
			cards = append(cards, remoteCard{VCardObject: obj, book: book})
		}
	}

	mappings, err := r.engine.store.ListMappingsByConnection(ctx, r.conn.ID)
	if err != nil {
		return err
	}
	r.index(mappings)

	r.pull(ctx, cards)
	r.unlinkMissing(ctx, mappings)
	return r.push(ctx)
}

func (r *run) index(mappings []*models.CardDavMapping) {
	r.byHref = make(map[string]*models.CardDavMapping, len(mappings))
	r.byUID = make(map[string]*models.CardDavMapping, len(mappings))
	r.seen = make(map[string]bool, len(mappings))
	for _, m := range mappings {
		r.byHref[m.Href] = m
		if m.UID != "" {
			r.byUID[m.UID] = m
		}
	}
}

func (r *run) emit(ev ProgressEvent, err error) {
	r.result.count(ev.Outcome)
	if err != nil {
		ev.Outcome = OutcomeError
		ev.Error = err.Error()
		r.result.fail(utils.FirstNonEmpty(ev.Name, ev.UID, ev.PersonID), err)
		r.logger.Warn("Contact failed to sync",
			logging.String("phase", string(ev.Phase)),
			logging.String("uid", ev.UID),
			logging.String("person_id", ev.PersonID),
			logging.Err(err),
		)
	}
	if r.progress != nil {
		r.progress(ev)
	}
}

// outcome is what handling one contact produced.
type outcome struct {
	kind     Outcome
	personID string
}

func (r *run) pull(ctx context.Context, cards []remoteCard) {
	for i, rc := range cards {
		ev := ProgressEvent{Index: i + 1, Total: len(cards), Phase: PhasePull}
		if m := r.byHref[rc.Href]; m != nil {
			// A card that no longer parses is still present remotely.
			r.seen[m.ID] = true
		}

		card, err := vcard.Decode(rc.Data)
		if err != nil {
			r.emit(ev, errors.ValidationError("remote vCard could not be parsed").
				WithContext("href", rc.Href).WithCause(err))
			continue
		}
		ev.UID = card.Person.UID
		ev.Name = vcard.DisplayName(&card.Person)

		out, err := r.pullOne(ctx, rc, card)
		ev.Outcome, ev.PersonID = out.kind, out.personID
		r.emit(ev, err)
	}
}

func (r *run) pullOne(ctx context.Context, rc remoteCard, card *vcard.Card) (outcome, error) {
	uid := card.Person.UID
	m := r.byHref[rc.Href]
	if m == nil && uid != "" {
		if moved := r.byUID[uid]; moved != nil {
			if r.seen[moved.ID] {
				r.logger.Warn("Ignoring duplicate remote card", logging.String("uid", uid), logging.String("href", rc.Href))
				return outcome{kind: OutcomeSkipped, personID: moved.PersonID}, nil
			}
			m = moved
		}
	}
	if m == nil {
		return r.handleNew(ctx, rc, card)
	}
	r.seen[m.ID] = true
	out := outcome{kind: OutcomeUnchanged, personID: m.PersonID}

	if m.SyncStatus == models.SyncStatusConflict {
		out.kind = OutcomeSkipped
		return out, nil
	}
	if m.ETag == rc.ETag && m.ETag != "" {
		if m.Href != rc.Href {
			m.Href = rc.Href
			if err := r.engine.store.UpdateMapping(ctx, m); err != nil {
				return out, err
			}
		}
		return out, nil
	}

	person, err := r.engine.store.GetPerson(ctx, r.conn.UserID, m.PersonID)
	if errors.IsType(err, errors.ErrTypeNotFound) {
		// The local person is gone; the card is new again.
		if err := r.engine.store.DeleteMapping(ctx, m.ID); err != nil {
			return out, err
		}
		delete(r.byUID, m.UID)
		delete(r.byHref, m.Href)
		return r.handleNew(ctx, rc, card)
	}
	if err != nil {
		return out, err
	}

	if m.LocalVersion != "" && fingerprint.Compute(person) != m.LocalVersion {
		out.kind = OutcomeConflict
		return out, r.engine.raiseConflict(ctx, m, person, rc.VCardObject)
	}

	out.kind = OutcomeUpdatedLocally
	return out, r.engine.applyRemote(ctx, person, card, m, rc.VCardObject)
}

// handleNew deals with a remote card no mapping knows about.
func (r *run) handleNew(ctx context.Context, rc remoteCard, card *vcard.Card) (outcome, error) {
	e := r.engine
	uid := card.Person.UID

	if uid != "" {
		person, err := e.store.FindPersonByUID(ctx, r.conn.UserID, uid)
		switch {
		case err == nil:
			return r.link(ctx, rc, card, person)
		case !errors.IsType(err, errors.ErrTypeNotFound):
			return outcome{}, err
		}
	}

	if r.conn.AutoImport() {
		person, err := e.importCard(ctx, r.conn.UserID, card, r.conn, &rc.VCardObject, nil)
		if err != nil {
			return outcome{}, err
		}
		if pending, err := e.store.FindPendingImportByHref(ctx, r.conn.ID, rc.Href); err == nil {
			if err := e.store.DeletePendingImport(ctx, pending.ID); err != nil {
				r.logger.Warn("Failed to drop staged import", logging.String("pending_id", pending.ID), logging.Err(err))
			}
		}
		return outcome{kind: OutcomeImported, personID: person.ID}, nil
	}

	return r.stage(ctx, rc, card)
}

// link attaches an unmapped remote card to the active local person that
// already carries its UID. Differing content becomes a conflict.
func (r *run) link(ctx context.Context, rc remoteCard, card *vcard.Card, person *models.Person) (outcome, error) {
	e := r.engine
	out := outcome{kind: OutcomeLinked, personID: person.ID}

	existing, err := e.store.ListMappingsByPerson(ctx, person.ID)
	if err != nil {
		return out, err
	}
	for _, m := range existing {
		if m.ConnectionID == r.conn.ID {
			r.logger.Warn("Ignoring second remote card for mapped person",
				logging.String("uid", person.UID), logging.String("href", rc.Href))
			out.kind = OutcomeSkipped
			return out, nil
		}
	}

	now := e.now()
	localVersion := fingerprint.Compute(person)
	m := &models.CardDavMapping{
		ConnectionID: r.conn.ID,
		PersonID:     person.ID,
		Href:         rc.Href,
		ETag:         rc.ETag,
		UID:          person.UID,
		SyncStatus:   models.SyncStatusSynced,
		LastSyncedAt: &now,
		LocalVersion: localVersion,
	}

	if remoteFingerprint(person, card) == localVersion {
		if err := e.store.CreateMapping(ctx, m); err != nil {
			return out, err
		}
		r.byHref[m.Href], r.byUID[m.UID], r.seen[m.ID] = m, m, true
		return out, nil
	}

	out.kind = OutcomeConflict
	m.SyncStatus = models.SyncStatusConflict
	m.LastRemoteChange = &now
	err = e.store.WithTx(ctx, func(q storage.Queries) error {
		if err := q.CreateMapping(ctx, m); err != nil {
			return err
		}
		return q.CreateConflict(ctx, &models.CardDavConflict{
			MappingID:     m.ID,
			LocalVersion:  vcard.Encode(person),
			RemoteVersion: rc.Data,
			RemoteETag:    rc.ETag,
			DetectedAt:    now,
		})
	})
	if err == nil {
		r.byHref[m.Href], r.byUID[m.UID], r.seen[m.ID] = m, m, true
	}
	return out, err
}

// remoteFingerprint is the fingerprint person would have after taking the
// card's content. An inline photo is assumed to match the stored one.
func remoteFingerprint(person *models.Person, card *vcard.Card) string {
	candidate := *person
	candidate.CopyScalars(&card.Person)
	candidate.CopyCollections(&card.Person)
	if card.Photo != nil && len(card.Photo.Data) > 0 {
		candidate.Photo = person.Photo
	}
	return fingerprint.Compute(&candidate)
}

// stage records the card for an explicit import, refreshing an earlier
// staging of the same resource when the card changed.
func (r *run) stage(ctx context.Context, rc remoteCard, card *vcard.Card) (outcome, error) {
	store := r.engine.store
	name := displayName(&card.Person)

	pending, err := store.FindPendingImportByHref(ctx, r.conn.ID, rc.Href)
	switch {
	case err == nil:
		if pending.ETag == rc.ETag && pending.RawVCard == rc.Data {
			return outcome{kind: OutcomeUnchanged}, nil
		}
		pending.ETag, pending.UID, pending.RawVCard, pending.DisplayName = rc.ETag, card.Person.UID, rc.Data, name
		return outcome{kind: OutcomePendingImport}, store.UpdatePendingImport(ctx, pending)
	case !errors.IsType(err, errors.ErrTypeNotFound):
		return outcome{}, err
	}

	return outcome{kind: OutcomePendingImport}, store.CreatePendingImport(ctx, &models.CardDavPendingImport{
		UserID:       r.conn.UserID,
		ConnectionID: r.conn.ID,
		Href:         rc.Href,
		ETag:         rc.ETag,
		UID:          card.Person.UID,
		RawVCard:     rc.Data,
		DisplayName:  name,
	})
}

// unlinkMissing drops mappings whose remote card disappeared and stops
// syncing their persons so they are not re-created remotely.
func (r *run) unlinkMissing(ctx context.Context, mappings []*models.CardDavMapping) {
	var gone []*models.CardDavMapping
	for _, m := range mappings {
		if !r.seen[m.ID] {
			gone = append(gone, m)
		}
	}

	for i, m := range gone {
		ev := ProgressEvent{Index: i + 1, Total: len(gone), Phase: PhasePull, Outcome: OutcomeUnlinked, UID: m.UID, PersonID: m.PersonID}
		err := r.engine.store.WithTx(ctx, func(q storage.Queries) error {
			if err := q.DeleteMapping(ctx, m.ID); err != nil {
				return err
			}
			person, err := q.GetPerson(ctx, r.conn.UserID, m.PersonID)
			if errors.IsType(err, errors.ErrTypeNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			ev.Name = person.DisplayName()
			person.SyncEnabled = false
			return q.UpdatePerson(ctx, person)
		})
		if err == nil {
			delete(r.byHref, m.Href)
			delete(r.byUID, m.UID)
		}
		r.emit(ev, err)
	}
}

func displayName(p *models.Person) string {
	var email, phone string
	if len(p.Emails) > 0 {
		email = p.Emails[0].Email
	}
	if len(p.PhoneNumbers) > 0 {
		phone = p.PhoneNumbers[0].Number
	}
	return utils.FirstNonEmpty(vcard.DisplayName(p), email, phone, "Unnamed contact")
}
