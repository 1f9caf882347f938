// Package reminders decides when an important date is due for a reminder
// and runs the sweep that hands due reminders to a Notifier.
package reminders

import (
	"context"
	"time"

	"contact-sync/internal/common/logging"
	"contact-sync/internal/models"
	"contact-sync/internal/storage"
)

// Grace is how long after an occurrence a missed reminder is still sent.
const Grace = 7 * 24 * time.Hour

// Reminder is one due occurrence of an important date.
type Reminder struct {
	ImportantDateID string    `json:"important_date_id"`
	UserID          string    `json:"user_id"`
	PersonID        string    `json:"person_id"`
	PersonName      string    `json:"person_name"`
	Title           string    `json:"title"`
	Date            time.Time `json:"date"`
	Occurrence      time.Time `json:"occurrence"`
}

// Notifier delivers reminders.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// LogNotifier writes each reminder to the log.
type LogNotifier struct {
	Logger logging.Logger
}

func (n LogNotifier) Notify(ctx context.Context, r Reminder) error {
	n.Logger.WithContext(ctx).Info("Reminder due",
		logging.String("user_id", r.UserID),
		logging.String("person_id", r.PersonID),
		logging.String("person", r.PersonName),
		logging.String("title", r.Title),
		logging.String("occurrence", r.Occurrence.Format("2006-01-02")),
	)
	return nil
}

// Occurrence returns the latest occurrence of d on or before now's
// calendar day. ok is false when d has no reminder or has not occurred
// yet.
func Occurrence(d models.ImportantDate, now time.Time) (time.Time, bool) {
	today := day(now)
	anchor := day(d.Date)

	switch d.ReminderType {
	case models.ReminderOnce:
		if !d.YearKnown() {
			anchor = clampedDate(today.Year(), anchor.Month(), anchor.Day())
		}
		if anchor.After(today) {
			return time.Time{}, false
		}
		return anchor, true

	case models.ReminderRecurring:
		if !d.YearKnown() {
			// Without a year the series starts at the first occurrence
			// this year.
			anchor = clampedDate(today.Year(), anchor.Month(), anchor.Day())
			if anchor.After(today) {
				anchor = clampedDate(today.Year()-1, anchor.Month(), d.Date.Day())
			}
		}
		if anchor.After(today) {
			return time.Time{}, false
		}
		return latestStep(anchor, today, d.ReminderInterval, d.ReminderIntervalUnit), true
	}
	return time.Time{}, false
}

// IsDue reports whether a reminder for d should be sent at now: an
// occurrence happened within Grace and no reminder was sent for it.
func IsDue(d models.ImportantDate, now time.Time) bool {
	occ, ok := Occurrence(d, now)
	if !ok {
		return false
	}
	if day(now).Sub(occ) >= Grace {
		return false
	}
	if d.LastReminderSent != nil && !day(*d.LastReminderSent).Before(occ) {
		return false
	}
	return true
}

// latestStep walks from anchor in steps of n units and returns the last
// step not after today.
func latestStep(anchor, today time.Time, n int, unit string) time.Time {
	if n <= 0 {
		n = 1
	}
	switch unit {
	case models.IntervalDays, models.IntervalWeeks:
		stepDays := n
		if unit == models.IntervalWeeks {
			stepDays = 7 * n
		}
		elapsed := int(today.Sub(anchor).Hours() / 24)
		return anchor.AddDate(0, 0, elapsed-elapsed%stepDays)
	default:
		stepMonths := n
		if unit == models.IntervalYears {
			stepMonths = 12 * n
		}
		months := (today.Year()-anchor.Year())*12 + int(today.Month()-anchor.Month())
		k := months - months%stepMonths
		for ; k >= 0; k -= stepMonths {
			if occ := addMonths(anchor, k); !occ.After(today) {
				return occ
			}
		}
		return anchor
	}
}

// addMonths moves t by k months, clamping the day to the month's end.
func addMonths(t time.Time, k int) time.Time {
	total := int(t.Month()) - 1 + k
	year := t.Year() + total/12
	month := time.Month(total%12 + 1)
	return clampedDate(year, month, t.Day())
}

func clampedDate(year int, month time.Month, d int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if d > last {
		d = last
	}
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Service sweeps all important dates for due reminders.
type Service struct {
	store    storage.Store
	notifier Notifier
	logger   logging.Logger
	now      func() time.Time
}

// NewService creates a Service. A nil notifier logs reminders.
func NewService(store storage.Store, notifier Notifier, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &Service{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// Sweep notifies every due reminder and stamps it as sent. It returns how
// many reminders were sent. A failure for one date is logged and does not
// stop the sweep.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	candidates, err := s.store.ListReminderCandidates(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	sent := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		occ, ok := Occurrence(c.ImportantDate, now)
		if !ok || !IsDue(c.ImportantDate, now) {
			continue
		}
		logger := s.logger.WithFields(logging.String("important_date_id", c.ID))

		r := Reminder{
			ImportantDateID: c.ID,
			UserID:          c.UserID,
			PersonID:        c.PersonID,
			PersonName:      c.PersonName,
			Title:           c.Title,
			Date:            c.Date,
			Occurrence:      occ,
		}
		if err := s.notifier.Notify(ctx, r); err != nil {
			logger.Error("Failed to send reminder", err)
			continue
		}
		if err := s.store.MarkReminderSent(ctx, c.ID, now); err != nil {
			logger.Error("Failed to record sent reminder", err)
			continue
		}
		sent++
	}
	if sent > 0 {
		s.logger.Info("Reminder sweep finished", logging.Int("sent", sent))
	}
	return sent, nil
}
