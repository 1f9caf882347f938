package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"contact-sync/internal/common/errors"
	"contact-sync/internal/models"
	"contact-sync/internal/storage"
)

// ListReminderCandidates returns every important date with reminder
// settings that belongs to a live person.
func (q *queries) ListReminderCandidates(ctx context.Context) ([]storage.ReminderCandidate, error) {
	rows, err := q.query(ctx, `SELECT d.id, d.person_id, d.title, d.event_date, d.reminder_type,
		d.reminder_interval, d.reminder_interval_unit, d.last_reminder_sent,
		p.user_id, p.name, p.surname, p.nickname
		FROM important_dates d JOIN persons p ON p.id = d.person_id
		WHERE p.deleted_at IS NULL AND d.reminder_type <> ''
		ORDER BY d.event_date, d.id`)
	if err != nil {
		return nil, errors.InternalError("failed to list reminders", err)
	}
	defer rows.Close()

	var out []storage.ReminderCandidate
	for rows.Next() {
		var (
			c                       storage.ReminderCandidate
			date                    string
			lastSent                sql.NullString
			name, surname, nickname string
		)
		if err := rows.Scan(&c.ID, &c.PersonID, &c.Title, &date, &c.ReminderType,
			&c.ReminderInterval, &c.ReminderIntervalUnit, &lastSent,
			&c.UserID, &name, &surname, &nickname); err != nil {
			return nil, errors.InternalError("failed to scan reminder", err)
		}
		c.Date = parseDate(date)
		c.LastReminderSent = parseNullTime(lastSent)
		c.PersonName = (&models.Person{Name: name, Surname: surname, Nickname: nickname}).DisplayName()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError("failed to list reminders", err)
	}
	return out, nil
}

func (q *queries) MarkReminderSent(ctx context.Context, importantDateID string, at time.Time) error {
	return q.execOne(ctx, "important date",
		`UPDATE important_dates SET last_reminder_sent = ? WHERE id = ?`, formatTime(at), importantDateID)
}
