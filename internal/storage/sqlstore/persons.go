package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/utils"
	"contact-sync/internal/models"
	"contact-sync/internal/storage"
)

const personColumns = `id, user_id, uid, name, surname, middle_name, second_surname, nickname,
	prefix, suffix, organization, job_title, gender, notes, photo, anniversary,
	relationship_to_user_id, sync_enabled, created_at, updated_at, deleted_at`

// inChunk bounds the number of ids bound into one IN list.
const inChunk = 500

func scanPerson(s scanner) (*models.Person, error) {
	var (
		p                             models.Person
		anniversary, relTo, deletedAt sql.NullString
		createdAt, updatedAt          string
	)
	err := s.Scan(&p.ID, &p.UserID, &p.UID, &p.Name, &p.Surname, &p.MiddleName, &p.SecondSurname,
		&p.Nickname, &p.Prefix, &p.Suffix, &p.Organization, &p.JobTitle, &p.Gender, &p.Notes,
		&p.Photo, &anniversary, &relTo, &p.SyncEnabled, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if anniversary.Valid && anniversary.String != "" {
		d := parseDate(anniversary.String)
		p.Anniversary = &d
	}
	p.RelationshipToUserID = relTo.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	p.DeletedAt = parseNullTime(deletedAt)
	return &p, nil
}

func (q *queries) CreatePerson(ctx context.Context, p *models.Person) error {
	if p.ID == "" {
		p.ID = utils.NewID()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	_, err := q.exec(ctx, `INSERT INTO persons (`+personColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.UID, p.Name, p.Surname, p.MiddleName, p.SecondSurname, p.Nickname,
		p.Prefix, p.Suffix, p.Organization, p.JobTitle, p.Gender, p.Notes, p.Photo,
		nullDate(p.Anniversary), nullString(p.RelationshipToUserID), p.SyncEnabled,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt), nullTime(p.DeletedAt))
	if err != nil {
		return errors.InternalError("failed to create person", err)
	}
	return q.insertCollections(ctx, p)
}

func (q *queries) getPerson(ctx context.Context, where string, args ...interface{}) (*models.Person, error) {
	p, err := scanPerson(q.queryRow(ctx, `SELECT `+personColumns+` FROM persons WHERE `+where, args...))
	if err != nil {
		return nil, notFoundOr(err, "person")
	}
	if err := q.loadCollections(ctx, []*models.Person{p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (q *queries) GetPerson(ctx context.Context, userID, id string) (*models.Person, error) {
	return q.getPerson(ctx, `user_id = ? AND id = ? AND deleted_at IS NULL`, userID, id)
}

func (q *queries) GetPersonUnscoped(ctx context.Context, userID, id string) (*models.Person, error) {
	return q.getPerson(ctx, `user_id = ? AND id = ?`, userID, id)
}

func (q *queries) FindPersonByUID(ctx context.Context, userID, uid string) (*models.Person, error) {
	return q.getPerson(ctx, `user_id = ? AND uid = ? AND deleted_at IS NULL ORDER BY created_at LIMIT 1`, userID, uid)
}

func (q *queries) FindPersonByUIDUnscoped(ctx context.Context, userID, uid string) (*models.Person, error) {
	return q.getPerson(ctx, `user_id = ? AND uid = ? ORDER BY created_at LIMIT 1`, userID, uid)
}

func (q *queries) ListSyncablePersons(ctx context.Context, userID string) ([]*models.Person, error) {
	rows, err := q.query(ctx, `SELECT `+personColumns+` FROM persons
		WHERE user_id = ? AND sync_enabled = ? AND deleted_at IS NULL
		ORDER BY created_at, id`, userID, true)
	if err != nil {
		return nil, errors.InternalError("failed to list persons", err)
	}

	var persons []*models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			rows.Close()
			return nil, errors.InternalError("failed to scan person", err)
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.InternalError("failed to list persons", err)
	}
	rows.Close()

	if err := q.loadCollections(ctx, persons); err != nil {
		return nil, err
	}
	return persons, nil
}

func (q *queries) UpdatePerson(ctx context.Context, p *models.Person) error {
	p.UpdatedAt = time.Now().UTC()
	return q.execOne(ctx, "person", `UPDATE persons SET
		uid = ?, name = ?, surname = ?, middle_name = ?, second_surname = ?, nickname = ?,
		prefix = ?, suffix = ?, organization = ?, job_title = ?, gender = ?, notes = ?, photo = ?,
		anniversary = ?, relationship_to_user_id = ?, sync_enabled = ?, updated_at = ?
		WHERE id = ?`,
		p.UID, p.Name, p.Surname, p.MiddleName, p.SecondSurname, p.Nickname,
		p.Prefix, p.Suffix, p.Organization, p.JobTitle, p.Gender, p.Notes, p.Photo,
		nullDate(p.Anniversary), nullString(p.RelationshipToUserID), p.SyncEnabled,
		formatTime(p.UpdatedAt), p.ID)
}

func (q *queries) ReplaceCollections(ctx context.Context, p *models.Person) error {
	for _, kind := range storage.AllCollections {
		if err := q.DeleteChildrenOf(ctx, kind, p.ID); err != nil {
			return err
		}
	}
	if err := q.RemovePersonFromGroups(ctx, p.ID); err != nil {
		return err
	}
	return q.insertCollections(ctx, p)
}

func (q *queries) SoftDeletePerson(ctx context.Context, id string, at time.Time) error {
	return q.execOne(ctx, "person",
		`UPDATE persons SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(at), formatTime(at), id)
}

func (q *queries) RestorePerson(ctx context.Context, id string, at time.Time) error {
	return q.execOne(ctx, "person",
		`UPDATE persons SET deleted_at = NULL, updated_at = ? WHERE id = ?`,
		formatTime(at), id)
}

func tableFor(kind storage.CollectionKind) (string, error) {
	for _, k := range storage.AllCollections {
		if k == kind {
			return string(k), nil
		}
	}
	return "", errors.ValidationError(fmt.Sprintf("unknown collection %q", kind))
}

func (q *queries) ReassignChildren(ctx context.Context, kind storage.CollectionKind, ids []string, toPersonID string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	for start := 0; start < len(ids); start += inChunk {
		end := min(start+inChunk, len(ids))
		chunk := ids[start:end]
		args := append([]interface{}{toPersonID}, stringArgs(chunk)...)
		if _, err := q.exec(ctx, `UPDATE `+table+` SET person_id = ? WHERE id IN (`+placeholders(len(chunk))+`)`, args...); err != nil {
			return errors.InternalError("failed to reassign "+table, err)
		}
	}
	return nil
}

func (q *queries) DeleteChildrenOf(ctx context.Context, kind storage.CollectionKind, personID string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	if _, err := q.exec(ctx, `DELETE FROM `+table+` WHERE person_id = ?`, personID); err != nil {
		return errors.InternalError("failed to delete "+table, err)
	}
	return nil
}

// insertCollections writes every child row of p, assigning ids where
// missing, and links p to its groups by name.
func (q *queries) insertCollections(ctx context.Context, p *models.Person) error {
	insert := func(table, query string, args ...interface{}) error {
		if _, err := q.exec(ctx, query, args...); err != nil {
			return errors.InternalError("failed to insert into "+table, err)
		}
		return nil
	}

	for i := range p.PhoneNumbers {
		v := &p.PhoneNumbers[i]
		v.ID, v.PersonID = idOrNew(v.ID), p.ID
		if err := insert("phone_numbers", `INSERT INTO phone_numbers (id, person_id, type, number) VALUES (?, ?, ?, ?)`,
			v.ID, v.PersonID, v.Type, v.Number); err != nil {
			return err
		}
	}
	for i := range p.Emails {
		v := &p.Emails[i]
		v.ID, v.PersonID = idOrNew(v.ID), p.ID
		if err := insert("emails", `INSERT INTO emails (id, person_id, type, email) VALUES (?, ?, ?, ?)`,
			v.ID, v.PersonID, v.Type, v.Email); err != nil {
			return err
		}
	}
	for i := range p.Addresses {
		v := &p.Addresses[i]
		v.ID, v.PersonID = idOrNew(v.ID), p.ID
		if err := insert("addresses", `INSERT INTO addresses
			(id, person_id, type, street_line1, street_line2, locality, region, postal_code, country)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.PersonID, v.Type, v.StreetLine1, v.StreetLine2, v.Locality, v.Region, v.PostalCode, v.Country); err != nil {
			return err
		}
	}
	for i := range p.URLs {
		v := &p.URLs[i]
		v.ID, v.PersonID = idOrNew(v.ID), p.ID
		if err := insert("urls", `INSERT INTO urls (id, person_id, type, url) VALUES (?, ?, ?, ?)`,
			v.ID, v.PersonID, v.Type, v.URL); err != nil {
			return err
		}
	}
	for i := range p.IMHandles {
		v := &p.IMHandles[i]
		v.ID, v.PersonID = idOrNew(v.ID), p.ID
		if err := insert("im_handles", `INSERT INTO im_handles (id, person_id, protocol, handle) VALUES (?, ?, ?, ?)`,
			v.ID, v.PersonID, v.Protocol, v.Handle); err != nil {
			return err
		}
	}
	for i := range p.Locations {
		v := &p.Locations[i]
		v.ID, v.PersonID = idOrNew(v.ID), p.ID
		if err := insert("locations", `INSERT INTO locations (id, person_id, type, latitude, longitude) VALUES (?, ?, ?, ?, ?)`,
			v.ID, v.PersonID, v.Type, v.Latitude, v.Longitude); err != nil {
			return err
		}
	}
	for i := range p.CustomFields {
		v := &p.CustomFields[i]
		v.ID, v.PersonID = idOrNew(v.ID), p.ID
		if err := insert("custom_fields", `INSERT INTO custom_fields (id, person_id, field_key, field_value) VALUES (?, ?, ?, ?)`,
			v.ID, v.PersonID, v.Key, v.Value); err != nil {
			return err
		}
	}
	for i := range p.ImportantDates {
		v := &p.ImportantDates[i]
		v.ID, v.PersonID = idOrNew(v.ID), p.ID
		if err := insert("important_dates", `INSERT INTO important_dates
			(id, person_id, title, event_date, reminder_type, reminder_interval, reminder_interval_unit, last_reminder_sent)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.PersonID, v.Title, v.Date.UTC().Format(dateLayout), v.ReminderType,
			v.ReminderInterval, v.ReminderIntervalUnit, nullTime(v.LastReminderSent)); err != nil {
			return err
		}
	}

	return q.linkGroups(ctx, p)
}

// linkGroups resolves each group of p by id or by name, creating missing
// groups for p's owner.
func (q *queries) linkGroups(ctx context.Context, p *models.Person) error {
	seen := make(map[string]bool, len(p.Groups))
	for i := range p.Groups {
		g := &p.Groups[i]
		if g.ID == "" {
			name := strings.TrimSpace(g.Name)
			if name == "" {
				continue
			}
			existing, err := q.FindGroupByName(ctx, p.UserID, name)
			switch {
			case err == nil:
				*g = *existing
			case errors.IsType(err, errors.ErrTypeNotFound):
				g.UserID, g.Name = p.UserID, name
				if err := q.CreateGroup(ctx, g); err != nil {
					return err
				}
			default:
				return err
			}
		}
		if seen[g.ID] {
			continue
		}
		seen[g.ID] = true
		if err := q.AddPersonToGroup(ctx, p.ID, g.ID); err != nil {
			return err
		}
	}
	return nil
}

func idOrNew(id string) string {
	if id == "" {
		return utils.NewID()
	}
	return id
}

// loadCollections fills the child rows and groups of persons.
func (q *queries) loadCollections(ctx context.Context, persons []*models.Person) error {
	if len(persons) == 0 {
		return nil
	}
	for start := 0; start < len(persons); start += inChunk {
		end := min(start+inChunk, len(persons))
		if err := q.loadCollectionsChunk(ctx, persons[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) loadCollectionsChunk(ctx context.Context, persons []*models.Person) error {
	byID := make(map[string]*models.Person, len(persons))
	ids := make([]string, 0, len(persons))
	for _, p := range persons {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}
	in := `(` + placeholders(len(ids)) + `)`
	args := stringArgs(ids)

	load := func(table, query string, scan func(rows *sql.Rows) error) error {
		rows, err := q.query(ctx, query, args...)
		if err != nil {
			return errors.InternalError("failed to load "+table, err)
		}
		defer rows.Close()
		for rows.Next() {
			if err := scan(rows); err != nil {
				return errors.InternalError("failed to scan "+table, err)
			}
		}
		if err := rows.Err(); err != nil {
			return errors.InternalError("failed to load "+table, err)
		}
		return nil
	}

	if err := load("phone_numbers", `SELECT id, person_id, type, number FROM phone_numbers WHERE person_id IN `+in+` ORDER BY id`,
		func(rows *sql.Rows) error {
			var v models.PhoneNumber
			if err := rows.Scan(&v.ID, &v.PersonID, &v.Type, &v.Number); err != nil {
				return err
			}
			p := byID[v.PersonID]
			p.PhoneNumbers = append(p.PhoneNumbers, v)
			return nil
		}); err != nil {
		return err
	}
	if err := load("emails", `SELECT id, person_id, type, email FROM emails WHERE person_id IN `+in+` ORDER BY id`,
		func(rows *sql.Rows) error {
			var v models.Email
			if err := rows.Scan(&v.ID, &v.PersonID, &v.Type, &v.Email); err != nil {
				return err
			}
			p := byID[v.PersonID]
			p.Emails = append(p.Emails, v)
			return nil
		}); err != nil {
		return err
	}
	if err := load("addresses", `SELECT id, person_id, type, street_line1, street_line2, locality, region, postal_code, country
		FROM addresses WHERE person_id IN `+in+` ORDER BY id`,
		func(rows *sql.Rows) error {
			var v models.Address
			if err := rows.Scan(&v.ID, &v.PersonID, &v.Type, &v.StreetLine1, &v.StreetLine2,
				&v.Locality, &v.Region, &v.PostalCode, &v.Country); err != nil {
				return err
			}
			p := byID[v.PersonID]
			p.Addresses = append(p.Addresses, v)
			return nil
		}); err != nil {
		return err
	}
	if err := load("urls", `SELECT id, person_id, type, url FROM urls WHERE person_id IN `+in+` ORDER BY id`,
		func(rows *sql.Rows) error {
			var v models.URL
			if err := rows.Scan(&v.ID, &v.PersonID, &v.Type, &v.URL); err != nil {
				return err
			}
			p := byID[v.PersonID]
			p.URLs = append(p.URLs, v)
			return nil
		}); err != nil {
		return err
	}
	if err := load("im_handles", `SELECT id, person_id, protocol, handle FROM im_handles WHERE person_id IN `+in+` ORDER BY id`,
		func(rows *sql.Rows) error {
			var v models.IMHandle
			if err := rows.Scan(&v.ID, &v.PersonID, &v.Protocol, &v.Handle); err != nil {
				return err
			}
			p := byID[v.PersonID]
			p.IMHandles = append(p.IMHandles, v)
			return nil
		}); err != nil {
		return err
	}
	if err := load("locations", `SELECT id, person_id, type, latitude, longitude FROM locations WHERE person_id IN `+in+` ORDER BY id`,
		func(rows *sql.Rows) error {
			var v models.Location
			if err := rows.Scan(&v.ID, &v.PersonID, &v.Type, &v.Latitude, &v.Longitude); err != nil {
				return err
			}
			p := byID[v.PersonID]
			p.Locations = append(p.Locations, v)
			return nil
		}); err != nil {
		return err
	}
	if err := load("custom_fields", `SELECT id, person_id, field_key, field_value FROM custom_fields WHERE person_id IN `+in+` ORDER BY id`,
		func(rows *sql.Rows) error {
			var v models.CustomField
			if err := rows.Scan(&v.ID, &v.PersonID, &v.Key, &v.Value); err != nil {
				return err
			}
			p := byID[v.PersonID]
			p.CustomFields = append(p.CustomFields, v)
			return nil
		}); err != nil {
		return err
	}
	if err := load("important_dates", `SELECT id, person_id, title, event_date, reminder_type, reminder_interval,
		reminder_interval_unit, last_reminder_sent FROM important_dates WHERE person_id IN `+in+` ORDER BY id`,
		func(rows *sql.Rows) error {
			var (
				v        models.ImportantDate
				date     string
				lastSent sql.NullString
			)
			if err := rows.Scan(&v.ID, &v.PersonID, &v.Title, &date, &v.ReminderType, &v.ReminderInterval,
				&v.ReminderIntervalUnit, &lastSent); err != nil {
				return err
			}
			v.Date = parseDate(date)
			v.LastReminderSent = parseNullTime(lastSent)
			p := byID[v.PersonID]
			p.ImportantDates = append(p.ImportantDates, v)
			return nil
		}); err != nil {
		return err
	}
	return load("person_groups", `SELECT pg.person_id, g.id, g.user_id, g.name
		FROM person_groups pg JOIN contact_groups g ON g.id = pg.group_id
		WHERE pg.person_id IN `+in+` ORDER BY g.name`,
		func(rows *sql.Rows) error {
			var (
				personID string
				g        models.Group
			)
			if err := rows.Scan(&personID, &g.ID, &g.UserID, &g.Name); err != nil {
				return err
			}
			p := byID[personID]
			p.Groups = append(p.Groups, g)
			return nil
		})
}

func (q *queries) CreateGroup(ctx context.Context, g *models.Group) error {
	g.ID = idOrNew(g.ID)
	if _, err := q.exec(ctx, `INSERT INTO contact_groups (id, user_id, name, created_at) VALUES (?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, formatTime(time.Now())); err != nil {
		return errors.InternalError("failed to create group", err)
	}
	return nil
}

func (q *queries) FindGroupByName(ctx context.Context, userID, name string) (*models.Group, error) {
	var g models.Group
	err := q.queryRow(ctx, `SELECT id, user_id, name FROM contact_groups
		WHERE user_id = ? AND LOWER(name) = LOWER(?) ORDER BY created_at LIMIT 1`, userID, name).
		Scan(&g.ID, &g.UserID, &g.Name)
	if err != nil {
		return nil, notFoundOr(err, "group")
	}
	return &g, nil
}

func (q *queries) AddPersonToGroup(ctx context.Context, personID, groupID string) error {
	if _, err := q.exec(ctx, `INSERT INTO person_groups (person_id, group_id) VALUES (?, ?)
		ON CONFLICT (person_id, group_id) DO NOTHING`, personID, groupID); err != nil {
		return errors.InternalError("failed to add person to group", err)
	}
	return nil
}

func (q *queries) RemovePersonFromGroups(ctx context.Context, personID string) error {
	if _, err := q.exec(ctx, `DELETE FROM person_groups WHERE person_id = ?`, personID); err != nil {
		return errors.InternalError("failed to remove group memberships", err)
	}
	return nil
}
