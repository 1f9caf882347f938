package merge

import (
	"strconv"
	"strings"

	"contact-sync/internal/models"
)

// Dedup keys decide which secondary rows already exist on the primary.

func PhoneKey(p models.PhoneNumber) string {
	return p.Number
}

func EmailKey(e models.Email) string {
	return strings.ToLower(e.Email)
}

func URLKey(u models.URL) string {
	return strings.ToLower(u.URL)
}

func AddressKey(a models.Address) string {
	parts := []string{a.StreetLine1, a.StreetLine2, a.Locality, a.Region, a.PostalCode, a.Country}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, "|")
}

func IMKey(h models.IMHandle) string {
	return strings.ToLower(h.Protocol + ":" + h.Handle)
}

func LocationKey(l models.Location) string {
	return strconv.FormatFloat(l.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(l.Longitude, 'f', -1, 64)
}

func CustomFieldKey(f models.CustomField) string {
	return f.Key + ":" + f.Value
}

func ImportantDateKey(d models.ImportantDate) string {
	return d.Title + ":" + d.Date.UTC().Format("2006-01-02")
}

// transferable returns the ids of secondary rows whose key is not yet
// held by primary. Duplicates within secondary are transferred once.
func transferable[T any](primary, secondary []T, key func(T) string, id func(T) string) []string {
	held := make(map[string]bool, len(primary)+len(secondary))
	for _, item := range primary {
		held[key(item)] = true
	}
	var ids []string
	for _, item := range secondary {
		k := key(item)
		if held[k] {
			continue
		}
		held[k] = true
		ids = append(ids, id(item))
	}
	return ids
}
