package models

import (
	"strings"
	"time"
)

// UnknownYear is stored in place of a year when only month and day are known.
// Any year below YearUnknownThreshold is read as "year unknown".
const (
	UnknownYear          = 1604
	YearUnknownThreshold = 1700
)

// BirthdayTitle marks the important date that maps to BDAY.
const BirthdayTitle = "Birthday"

// Person is the local contact aggregate.
type Person struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	UID           string `json:"uid,omitempty"`
	Name          string `json:"name"`
	Surname       string `json:"surname,omitempty"`
	MiddleName    string `json:"middle_name,omitempty"`
	SecondSurname string `json:"second_surname,omitempty"`
	Nickname      string `json:"nickname,omitempty"`
	Prefix        string `json:"prefix,omitempty"`
	Suffix        string `json:"suffix,omitempty"`
	Organization  string `json:"organization,omitempty"`
	JobTitle      string `json:"job_title,omitempty"`
	Gender        string `json:"gender,omitempty"`
	Notes         string `json:"notes,omitempty"`
	// Photo is a reference returned by the photo store or a remote URL.
	Photo       string     `json:"photo,omitempty"`
	Anniversary *time.Time `json:"anniversary,omitempty"`
	// RelationshipToUserID references the RelationshipType linking this
	// person to the owning user.
	RelationshipToUserID string `json:"relationship_to_user_id,omitempty"`
	SyncEnabled          bool   `json:"sync_enabled"`

	PhoneNumbers   []PhoneNumber   `json:"phone_numbers,omitempty"`
	Emails         []Email         `json:"emails,omitempty"`
	Addresses      []Address       `json:"addresses,omitempty"`
	URLs           []URL           `json:"urls,omitempty"`
	IMHandles      []IMHandle      `json:"im_handles,omitempty"`
	Locations      []Location      `json:"locations,omitempty"`
	CustomFields   []CustomField   `json:"custom_fields,omitempty"`
	ImportantDates []ImportantDate `json:"important_dates,omitempty"`
	Groups         []Group         `json:"groups,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// DisplayName joins the non-empty name parts in reading order.
func (p *Person) DisplayName() string {
	parts := make([]string, 0, 6)
	for _, s := range []string{p.Prefix, p.Name, p.MiddleName, p.Surname, p.SecondSurname, p.Suffix} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(p.Nickname)
	}
	return strings.Join(parts, " ")
}

// IsDeleted reports whether the person has been soft-deleted.
func (p *Person) IsDeleted() bool {
	return p.DeletedAt != nil
}

// CopyScalars overwrites every synchronizable scalar of p with src's values.
// Identity, ownership, sync flag and timestamps are left alone.
func (p *Person) CopyScalars(src *Person) {
	p.Name = src.Name
	p.Surname = src.Surname
	p.MiddleName = src.MiddleName
	p.SecondSurname = src.SecondSurname
	p.Nickname = src.Nickname
	p.Prefix = src.Prefix
	p.Suffix = src.Suffix
	p.Organization = src.Organization
	p.JobTitle = src.JobTitle
	p.Gender = src.Gender
	p.Notes = src.Notes
	p.Photo = src.Photo
	p.Anniversary = src.Anniversary
}

// CopyCollections replaces every multi-value collection of p with copies of
// src's rows, re-owned by p. Row ids are cleared so the store assigns new ones.
func (p *Person) CopyCollections(src *Person) {
	p.PhoneNumbers = make([]PhoneNumber, len(src.PhoneNumbers))
	for i, v := range src.PhoneNumbers {
		v.ID, v.PersonID = "", p.ID
		p.PhoneNumbers[i] = v
	}
	p.Emails = make([]Email, len(src.Emails))
	for i, v := range src.Emails {
		v.ID, v.PersonID = "", p.ID
		p.Emails[i] = v
	}
	p.Addresses = make([]Address, len(src.Addresses))
	for i, v := range src.Addresses {
		v.ID, v.PersonID = "", p.ID
		p.Addresses[i] = v
	}
	p.URLs = make([]URL, len(src.URLs))
	for i, v := range src.URLs {
		v.ID, v.PersonID = "", p.ID
		p.URLs[i] = v
	}
	p.IMHandles = make([]IMHandle, len(src.IMHandles))
	for i, v := range src.IMHandles {
		v.ID, v.PersonID = "", p.ID
		p.IMHandles[i] = v
	}
	p.Locations = make([]Location, len(src.Locations))
	for i, v := range src.Locations {
		v.ID, v.PersonID = "", p.ID
		p.Locations[i] = v
	}
	p.CustomFields = make([]CustomField, len(src.CustomFields))
	for i, v := range src.CustomFields {
		v.ID, v.PersonID = "", p.ID
		p.CustomFields[i] = v
	}
	p.ImportantDates = make([]ImportantDate, len(src.ImportantDates))
	for i, v := range src.ImportantDates {
		v.ID, v.PersonID = "", p.ID
		p.ImportantDates[i] = v
	}
	p.Groups = append([]Group(nil), src.Groups...)
}

// PhoneNumber is a phone row. Type is lowercase ("mobile", "work", ...) or a free label.
type PhoneNumber struct {
	ID       string `json:"id,omitempty"`
	PersonID string `json:"person_id,omitempty"`
	Type     string `json:"type,omitempty"`
	Number   string `json:"number"`
}

type Email struct {
	ID       string `json:"id,omitempty"`
	PersonID string `json:"person_id,omitempty"`
	Type     string `json:"type,omitempty"`
	Email    string `json:"email"`
}

// Address has no post-office-box or extended-address slot.
type Address struct {
	ID          string `json:"id,omitempty"`
	PersonID    string `json:"person_id,omitempty"`
	Type        string `json:"type,omitempty"`
	StreetLine1 string `json:"street_line1,omitempty"`
	StreetLine2 string `json:"street_line2,omitempty"`
	Locality    string `json:"locality,omitempty"`
	Region      string `json:"region,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Country     string `json:"country,omitempty"`
}

type URL struct {
	ID       string `json:"id,omitempty"`
	PersonID string `json:"person_id,omitempty"`
	Type     string `json:"type,omitempty"`
	URL      string `json:"url"`
}

type IMHandle struct {
	ID       string `json:"id,omitempty"`
	PersonID string `json:"person_id,omitempty"`
	Protocol string `json:"protocol"`
	Handle   string `json:"handle"`
}

type Location struct {
	ID        string  `json:"id,omitempty"`
	PersonID  string  `json:"person_id,omitempty"`
	Type      string  `json:"type,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type CustomField struct {
	ID       string `json:"id,omitempty"`
	PersonID string `json:"person_id,omitempty"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

// Reminder settings of an important date.
const (
	ReminderOnce      = "ONCE"
	ReminderRecurring = "RECURRING"

	IntervalDays   = "DAYS"
	IntervalWeeks  = "WEEKS"
	IntervalMonths = "MONTHS"
	IntervalYears  = "YEARS"
)

// ImportantDate is a titled date with optional reminder scheduling. A date
// whose year is below YearUnknownThreshold has no known year.
type ImportantDate struct {
	ID                   string     `json:"id,omitempty"`
	PersonID             string     `json:"person_id,omitempty"`
	Title                string     `json:"title"`
	Date                 time.Time  `json:"date"`
	ReminderType         string     `json:"reminder_type,omitempty"`
	ReminderInterval     int        `json:"reminder_interval,omitempty"`
	ReminderIntervalUnit string     `json:"reminder_interval_unit,omitempty"`
	LastReminderSent     *time.Time `json:"last_reminder_sent,omitempty"`
}

// YearKnown reports whether the date carries a real year.
func (d ImportantDate) YearKnown() bool {
	return d.Date.Year() >= YearUnknownThreshold
}

// IsBirthday reports whether the date is the one serialized as BDAY.
func (d ImportantDate) IsBirthday() bool {
	return strings.EqualFold(strings.TrimSpace(d.Title), BirthdayTitle)
}

// Group is a user-owned contact group.
type Group struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name"`
}

// RelationshipType names a kind of relationship ("friend", "sister").
type RelationshipType struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// Relationship is a directed, soft-deletable edge between two persons.
type Relationship struct {
	ID                 string     `json:"id"`
	PersonID           string     `json:"person_id"`
	RelatedPersonID    string     `json:"related_person_id"`
	RelationshipTypeID string     `json:"relationship_type_id,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
}

// Other returns the endpoint that is not personID.
func (r Relationship) Other(personID string) string {
	if r.PersonID == personID {
		return r.RelatedPersonID
	}
	return r.PersonID
}
