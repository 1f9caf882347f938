// Package fingerprint hashes the synchronizable state of a person so that
// local edits can be detected without a change log.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"contact-sync/internal/models"
)

// snapshot is the canonical projection. Field order is fixed by the struct,
// collections are sorted by content; row ids, timestamps and reminder
// bookkeeping are excluded.
type snapshot struct {
	UID            string     `json:"uid"`
	Name           string     `json:"name"`
	Surname        string     `json:"surname"`
	MiddleName     string     `json:"middle_name"`
	SecondSurname  string     `json:"second_surname"`
	Nickname       string     `json:"nickname"`
	Prefix         string     `json:"prefix"`
	Suffix         string     `json:"suffix"`
	Organization   string     `json:"organization"`
	JobTitle       string     `json:"job_title"`
	Gender         string     `json:"gender"`
	Notes          string     `json:"notes"`
	Photo          string     `json:"photo"`
	Anniversary    string     `json:"anniversary"`
	PhoneNumbers   [][]string `json:"phone_numbers"`
	Emails         [][]string `json:"emails"`
	Addresses      [][]string `json:"addresses"`
	URLs           [][]string `json:"urls"`
	IMHandles      [][]string `json:"im_handles"`
	Locations      [][]string `json:"locations"`
	CustomFields   [][]string `json:"custom_fields"`
	ImportantDates [][]string `json:"important_dates"`
	Groups         []string   `json:"groups"`
}

// Compute returns the hex SHA-256 of p's canonical projection. Two snapshots
// with the same content hash identically whatever the order of their rows.
func Compute(p *models.Person) string {
	s := snapshot{
		UID:           p.UID,
		Name:          p.Name,
		Surname:       p.Surname,
		MiddleName:    p.MiddleName,
		SecondSurname: p.SecondSurname,
		Nickname:      p.Nickname,
		Prefix:        p.Prefix,
		Suffix:        p.Suffix,
		Organization:  p.Organization,
		JobTitle:      p.JobTitle,
		Gender:        p.Gender,
		Notes:         p.Notes,
		Photo:         p.Photo,
	}
	if p.Anniversary != nil {
		s.Anniversary = p.Anniversary.UTC().Format("2006-01-02")
	}

	s.PhoneNumbers = rows(len(p.PhoneNumbers), func(i int) []string {
		v := p.PhoneNumbers[i]
		return []string{v.Type, v.Number}
	})
	s.Emails = rows(len(p.Emails), func(i int) []string {
		v := p.Emails[i]
		return []string{v.Type, v.Email}
	})
	s.Addresses = rows(len(p.Addresses), func(i int) []string {
		v := p.Addresses[i]
		return []string{v.Type, v.StreetLine1, v.StreetLine2, v.Locality, v.Region, v.PostalCode, v.Country}
	})
	s.URLs = rows(len(p.URLs), func(i int) []string {
		v := p.URLs[i]
		return []string{v.Type, v.URL}
	})
	s.IMHandles = rows(len(p.IMHandles), func(i int) []string {
		v := p.IMHandles[i]
		return []string{v.Protocol, v.Handle}
	})
	s.Locations = rows(len(p.Locations), func(i int) []string {
		v := p.Locations[i]
		return []string{v.Type, formatFloat(v.Latitude), formatFloat(v.Longitude)}
	})
	s.CustomFields = rows(len(p.CustomFields), func(i int) []string {
		v := p.CustomFields[i]
		return []string{v.Key, v.Value}
	})
	s.ImportantDates = rows(len(p.ImportantDates), func(i int) []string {
		v := p.ImportantDates[i]
		return []string{v.Title, v.Date.UTC().Format("2006-01-02")}
	})

	s.Groups = make([]string, 0, len(p.Groups))
	for _, g := range p.Groups {
		s.Groups = append(s.Groups, g.Name)
	}
	sort.Strings(s.Groups)

	// json.Marshal cannot fail on this struct.
	data, _ := json.Marshal(s)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func rows(n int, row func(i int) []string) [][]string {
	out := make([][]string, n)
	for i := 0; i < n; i++ {
		out[i] = row(i)
	}
	sort.Slice(out, func(a, b int) bool {
		return strings.Join(out[a], "\x00") < strings.Join(out[b], "\x00")
	})
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
