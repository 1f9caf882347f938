// Package merge folds one contact into another: scalars fill gaps,
// multi-value rows and relationships move over without duplicates, remote
// copies of the absorbed contact are deleted and it is soft-deleted.
package merge

import (
	"context"
	"strings"
	"time"

	"contact-sync/internal/carddav"
	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/models"
	"contact-sync/internal/storage"
	"contact-sync/internal/vcard"
)

// FieldOverrides carries values the user chose explicitly. A nil field is
// not overridden; an empty string clears the primary's value.
type FieldOverrides struct {
	Name          *string `json:"name,omitempty"`
	Surname       *string `json:"surname,omitempty"`
	MiddleName    *string `json:"middle_name,omitempty"`
	SecondSurname *string `json:"second_surname,omitempty"`
	Nickname      *string `json:"nickname,omitempty"`
	Prefix        *string `json:"prefix,omitempty"`
	Suffix        *string `json:"suffix,omitempty"`
	Organization  *string `json:"organization,omitempty"`
	JobTitle      *string `json:"job_title,omitempty"`
	Gender        *string `json:"gender,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	Photo         *string `json:"photo,omitempty"`
	// Anniversary is YYYY-MM-DD, YYYYMMDD or --MMDD.
	Anniversary *string `json:"anniversary,omitempty"`
	// RelationshipToUserID connects a relationship type id or, when empty,
	// disconnects it.
	RelationshipToUserID *string `json:"relationship_to_user_id,omitempty"`
}

type Config struct {
	Logger logging.Logger
	Now    func() time.Time
}

type Engine struct {
	store   storage.Store
	clients carddav.ClientFactory
	logger  logging.Logger
	now     func() time.Time
}

// NewEngine creates a merge engine. clients may be nil, in which case
// remote copies are left alone.
func NewEngine(store storage.Store, clients carddav.ClientFactory, config Config) *Engine {
	if config.Logger == nil {
		config.Logger = logging.GetGlobalLogger()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Engine{
		store:   store,
		clients: clients,
		logger:  config.Logger,
		now:     func() time.Time { return config.Now().UTC() },
	}
}

// Merge folds secondary into primary and returns the primary's id. Both
// must be active persons of userID. Every local write happens in one
// transaction; remote deletions around it never fail the merge.
func (e *Engine) Merge(ctx context.Context, userID, primaryID, secondaryID string, overrides *FieldOverrides) (string, error) {
	if primaryID == secondaryID {
		return "", errors.ValidationError("cannot merge a contact into itself")
	}
	primary, err := e.store.GetPerson(ctx, userID, primaryID)
	if err != nil {
		return "", err
	}
	secondary, err := e.store.GetPerson(ctx, userID, secondaryID)
	if err != nil {
		return "", err
	}

	if err := e.mergeScalars(ctx, userID, primary, secondary, overrides); err != nil {
		return "", err
	}

	logger := e.logger.WithFields(
		logging.String("user_id", userID),
		logging.String("primary_id", primary.ID),
		logging.String("secondary_id", secondary.ID),
	)

	// The secondary's remote cards go first; their mapping rows are about
	// to disappear.
	known, err := e.store.ListMappingsByPerson(ctx, secondary.ID)
	if err != nil {
		return "", err
	}
	deleted := make(map[string]bool, len(known))
	for _, m := range known {
		deleted[m.ID] = true
		e.deleteRemote(ctx, logger, m)
	}

	var late []*models.CardDavMapping
	now := e.now()
	err = e.store.WithTx(ctx, func(q storage.Queries) error {
		if err := q.UpdatePerson(ctx, primary); err != nil {
			return err
		}
		if err := transferCollections(ctx, q, primary, secondary); err != nil {
			return err
		}
		if err := transferGroups(ctx, q, primary, secondary); err != nil {
			return err
		}
		if err := transferRelationships(ctx, q, primary.ID, secondary.ID, now); err != nil {
			return err
		}

		// A concurrent export may have mapped the secondary since the
		// first read.
		removed, err := q.DeleteMappingsByPerson(ctx, secondary.ID)
		if err != nil {
			return err
		}
		late = late[:0]
		for _, m := range removed {
			if !deleted[m.ID] {
				late = append(late, m)
			}
		}
		return q.SoftDeletePerson(ctx, secondary.ID, now)
	})
	if err != nil {
		logger.Error("Contact merge failed", err)
		return "", err
	}

	for _, m := range late {
		e.deleteRemote(ctx, logger, m)
	}
	logger.Info("Contacts merged", logging.Int("late_mappings", len(late)))
	return primary.ID, nil
}

// mergeScalars applies overrides, then fills primary's empty fields from
// secondary.
func (e *Engine) mergeScalars(ctx context.Context, userID string, primary, secondary *models.Person, o *FieldOverrides) error {
	if o == nil {
		o = &FieldOverrides{}
	}
	for _, f := range []struct {
		dst      *string
		src      string
		override *string
	}{
		{&primary.Name, secondary.Name, o.Name},
		{&primary.Surname, secondary.Surname, o.Surname},
		{&primary.MiddleName, secondary.MiddleName, o.MiddleName},
		{&primary.SecondSurname, secondary.SecondSurname, o.SecondSurname},
		{&primary.Nickname, secondary.Nickname, o.Nickname},
		{&primary.Prefix, secondary.Prefix, o.Prefix},
		{&primary.Suffix, secondary.Suffix, o.Suffix},
		{&primary.Organization, secondary.Organization, o.Organization},
		{&primary.JobTitle, secondary.JobTitle, o.JobTitle},
		{&primary.Gender, secondary.Gender, o.Gender},
		{&primary.Notes, secondary.Notes, o.Notes},
		{&primary.Photo, secondary.Photo, o.Photo},
	} {
		switch {
		case f.override != nil:
			*f.dst = strings.TrimSpace(*f.override)
		case strings.TrimSpace(*f.dst) == "" && f.src != "":
			*f.dst = f.src
		}
	}

	switch {
	case o.Anniversary != nil && strings.TrimSpace(*o.Anniversary) == "":
		primary.Anniversary = nil
	case o.Anniversary != nil:
		date, err := vcard.ParseDate(*o.Anniversary)
		if err != nil {
			return errors.ValidationError("invalid anniversary").WithCause(err)
		}
		primary.Anniversary = &date
	case primary.Anniversary == nil && secondary.Anniversary != nil:
		date := *secondary.Anniversary
		primary.Anniversary = &date
	}

	switch {
	case o.RelationshipToUserID != nil && *o.RelationshipToUserID == "":
		primary.RelationshipToUserID = ""
	case o.RelationshipToUserID != nil:
		rt, err := e.store.GetRelationshipType(ctx, userID, *o.RelationshipToUserID)
		if err != nil {
			return err
		}
		primary.RelationshipToUserID = rt.ID
	case primary.RelationshipToUserID == "":
		primary.RelationshipToUserID = secondary.RelationshipToUserID
	}
	return nil
}

// transferCollections re-parents secondary rows that primary lacks and
// deletes what is left on secondary.
func transferCollections(ctx context.Context, q storage.Queries, primary, secondary *models.Person) error {
	moves := map[storage.CollectionKind][]string{
		storage.PhoneNumbers: transferable(primary.PhoneNumbers, secondary.PhoneNumbers, PhoneKey,
			func(v models.PhoneNumber) string { return v.ID }),
		storage.Emails: transferable(primary.Emails, secondary.Emails, EmailKey,
			func(v models.Email) string { return v.ID }),
		storage.Addresses: transferable(primary.Addresses, secondary.Addresses, AddressKey,
			func(v models.Address) string { return v.ID }),
		storage.URLs: transferable(primary.URLs, secondary.URLs, URLKey,
			func(v models.URL) string { return v.ID }),
		storage.IMHandles: transferable(primary.IMHandles, secondary.IMHandles, IMKey,
			func(v models.IMHandle) string { return v.ID }),
		storage.Locations: transferable(primary.Locations, secondary.Locations, LocationKey,
			func(v models.Location) string { return v.ID }),
		storage.CustomFields: transferable(primary.CustomFields, secondary.CustomFields, CustomFieldKey,
			func(v models.CustomField) string { return v.ID }),
		storage.ImportantDates: transferable(primary.ImportantDates, secondary.ImportantDates, ImportantDateKey,
			func(v models.ImportantDate) string { return v.ID }),
	}

	for _, kind := range storage.AllCollections {
		if ids := moves[kind]; len(ids) > 0 {
			if err := q.ReassignChildren(ctx, kind, ids, primary.ID); err != nil {
				return err
			}
		}
		if err := q.DeleteChildrenOf(ctx, kind, secondary.ID); err != nil {
			return err
		}
	}
	return nil
}

func transferGroups(ctx context.Context, q storage.Queries, primary, secondary *models.Person) error {
	held := make(map[string]bool, len(primary.Groups))
	for _, g := range primary.Groups {
		held[g.ID] = true
	}
	for _, g := range secondary.Groups {
		if held[g.ID] {
			continue
		}
		held[g.ID] = true
		if err := q.AddPersonToGroup(ctx, primary.ID, g.ID); err != nil {
			return err
		}
	}
	return q.RemovePersonFromGroups(ctx, secondary.ID)
}

// transferRelationships moves secondary's edges to primary. Edges that
// would point primary at itself or duplicate one primary already has are
// soft-deleted.
func transferRelationships(ctx context.Context, q storage.Queries, primaryID, secondaryID string, now time.Time) error {
	existing, err := q.ListRelationshipsOf(ctx, primaryID)
	if err != nil {
		return err
	}
	linked := make(map[string]bool, len(existing))
	for _, r := range existing {
		linked[r.Other(primaryID)] = true
	}

	edges, err := q.ListRelationshipsOf(ctx, secondaryID)
	if err != nil {
		return err
	}
	var leftover []string
	for _, r := range edges {
		other := r.Other(secondaryID)
		if other == primaryID || other == secondaryID || linked[other] {
			leftover = append(leftover, r.ID)
			continue
		}
		personID, relatedID := r.PersonID, r.RelatedPersonID
		if personID == secondaryID {
			personID = primaryID
		} else {
			relatedID = primaryID
		}
		if err := q.UpdateRelationshipEndpoints(ctx, r.ID, personID, relatedID, now); err != nil {
			return err
		}
		linked[other] = true
	}
	if len(leftover) == 0 {
		return nil
	}
	return q.SoftDeleteRelationships(ctx, leftover, now)
}

// deleteRemote removes the card behind m. Failures are logged only.
func (e *Engine) deleteRemote(ctx context.Context, logger logging.Logger, m *models.CardDavMapping) {
	if e.clients == nil {
		return
	}
	logger = logger.WithFields(logging.String("href", m.Href))

	conn, err := e.store.GetConnection(ctx, m.ConnectionID)
	if err != nil {
		logger.Warn("Skipping remote delete of merged contact", logging.Err(err))
		return
	}
	client, err := e.clients.Connect(ctx, conn)
	if err != nil {
		logger.Warn("Skipping remote delete of merged contact", logging.Err(err))
		return
	}
	var books []carddav.AddressBook
	if conn.AddressBookURL != "" {
		books = []carddav.AddressBook{{URL: conn.AddressBookURL}}
	}
	if err := carddav.DeleteRemote(ctx, client, books, m.Href, m.ETag, m.UID); err != nil {
		if errors.IsType(err, errors.ErrTypeNotFound) {
			logger.Debug("Remote card of merged contact already gone")
			return
		}
		logger.Warn("Failed to delete remote card of merged contact", logging.Err(err))
		return
	}
	logger.Debug("Deleted remote card of merged contact")
}
