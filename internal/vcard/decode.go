package vcard

import (
	"encoding/base64"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	govcard "github.com/emersion/go-vcard"

	apperrors "contact-sync/internal/common/errors"
	"contact-sync/internal/models"
)

// Card is the result of parsing one vCard.
type Card struct {
	Person models.Person
	// Photo is set when the card carries an inline image or an image URL.
	Photo *Photo
}

// HasUID reports whether the card carried a UID property.
func (c *Card) HasUID() bool {
	return c.Person.UID != ""
}

// legacy per-service IM properties, in decode order
var legacyIMFields = []struct{ field, protocol string }{
	{"X-AIM", "aim"},
	{"X-ICQ", "icq"},
	{"X-JABBER", "xmpp"},
	{"X-MSN", "msn"},
	{"X-YAHOO", "yahoo"},
	{"X-SKYPE", "skype"},
	{"X-SKYPE-USERNAME", "skype"},
	{"X-GOOGLE-TALK", "gtalk"},
	{"X-QQ", "qq"},
}

// Decode parses the first vCard in text. Missing optional properties leave
// zero values; only a document that is not a vCard at all is an error.
func Decode(text string) (*Card, error) {
	card, err := govcard.NewDecoder(strings.NewReader(text)).Decode()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.ValidationError("no vCard found")
		}
		return nil, apperrors.ValidationError("malformed vCard").WithCause(err)
	}

	d := decoder{card: card, raw: text, labels: itemLabels(card)}
	return d.decode(), nil
}

type decoder struct {
	card   govcard.Card
	raw    string
	labels map[string]string
}

func itemLabels(card govcard.Card) map[string]string {
	labels := make(map[string]string)
	for _, f := range card[fieldLabel] {
		if f.Group != "" {
			labels[strings.ToLower(f.Group)] = f.Value
		}
	}
	return labels
}

// label returns the raw X-ABLabel paired with f, if any.
func (d *decoder) label(f *govcard.Field) (string, bool) {
	if f.Group == "" {
		return "", false
	}
	l, ok := d.labels[strings.ToLower(f.Group)]
	return l, ok
}

func (d *decoder) text(name string) string {
	if f := d.card.Get(name); f != nil {
		return trimText(f.Value)
	}
	return ""
}

func (d *decoder) decode() *Card {
	c := &Card{}
	p := &c.Person

	p.UID = d.text(govcard.FieldUID)

	nameField := d.card.Get(govcard.FieldName)
	if f := nameField; f != nil {
		n := splitStructured(f.Value, 5)
		p.Surname = strings.TrimSpace(n[0])
		p.Name = strings.TrimSpace(n[1])
		p.MiddleName = strings.TrimSpace(n[2])
		p.Prefix = strings.TrimSpace(n[3])
		p.Suffix = strings.TrimSpace(n[4])
	}

	p.SecondSurname = d.text(fieldSecondSurname)
	p.Nickname = d.text(govcard.FieldNickname)
	if f := d.card.Get(govcard.FieldOrganization); f != nil {
		org := splitStructured(f.Value, 1)
		p.Organization = strings.TrimSpace(org[0])
	}

	// FN stands in for a missing N, but an empty N next to an FN that only
	// repeats ORG is a company card.
	if p.Name == "" && p.Surname == "" {
		fn := d.text(govcard.FieldFormattedName)
		if nameField == nil || !strings.EqualFold(fn, p.Organization) {
			p.Name = fn
		}
	}
	p.JobTitle = d.text(govcard.FieldTitle)
	p.Gender = d.text(fieldXGender)
	if p.Gender == "" {
		if f := d.card.Get(govcard.FieldGender); f != nil {
			p.Gender = strings.TrimSpace(splitStructured(f.Value, 1)[0])
		}
	}
	if f := d.card.Get(govcard.FieldNote); f != nil {
		p.Notes = unescapeText(f.Value)
	}

	d.decodePhones(p)
	d.decodeEmails(p)
	d.decodeAddresses(p)
	d.decodeURLs(p)
	d.decodeIM(p)
	d.decodeLocations(p)
	d.decodeCustomFields(p)
	d.decodeDates(p)
	d.decodeCategories(p)
	c.Photo = d.decodePhoto()
	if c.Photo != nil && c.Photo.URL != "" {
		p.Photo = c.Photo.URL
	}

	return c
}

// paramTypes returns the lowercase TYPE values of f without PREF.
func paramTypes(f *govcard.Field) []string {
	var types []string
	for _, raw := range f.Params[govcard.ParamType] {
		for _, t := range strings.Split(raw, ",") {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" && t != "pref" {
				types = append(types, t)
			}
		}
	}
	return types
}

// pickType chooses the most specific TYPE, ignoring generic markers when
// something better is present.
func pickType(f *govcard.Field, generic ...string) string {
	types := paramTypes(f)
	for _, t := range types {
		isGeneric := false
		for _, g := range generic {
			if t == g {
				isGeneric = true
				break
			}
		}
		if !isGeneric {
			return t
		}
	}
	if len(types) > 0 {
		return types[0]
	}
	return ""
}

func (d *decoder) fieldType(f *govcard.Field, generic ...string) string {
	if l, ok := d.label(f); ok {
		return typeLabel(l)
	}
	return pickType(f, generic...)
}

func (d *decoder) decodePhones(p *models.Person) {
	for _, f := range d.card[govcard.FieldTelephone] {
		number := trimText(f.Value)
		if number == "" {
			continue
		}
		typ := d.fieldType(f, "voice")
		if typ == "cell" {
			typ = "mobile"
		}
		p.PhoneNumbers = append(p.PhoneNumbers, models.PhoneNumber{Type: typ, Number: number})
	}
}

func (d *decoder) decodeEmails(p *models.Person) {
	for _, f := range d.card[govcard.FieldEmail] {
		email := trimText(f.Value)
		if email == "" {
			continue
		}
		typ := d.fieldType(f, "internet", "x400")
		if typ == "internet" {
			typ = ""
		}
		p.Emails = append(p.Emails, models.Email{Type: typ, Email: email})
	}
}

func (d *decoder) decodeAddresses(p *models.Person) {
	for _, f := range d.card[govcard.FieldAddress] {
		parts := splitStructured(f.Value, 7)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		street := strings.ReplaceAll(parts[2], "\r\n", "\n")
		line1, line2, _ := strings.Cut(street, "\n")
		if line2 == "" && parts[1] != "" {
			line2 = parts[1]
		}
		addr := models.Address{
			Type:        d.fieldType(f, "postal", "parcel", "intl", "dom"),
			StreetLine1: strings.TrimSpace(line1),
			StreetLine2: strings.TrimSpace(line2),
			Locality:    parts[3],
			Region:      parts[4],
			PostalCode:  parts[5],
			Country:     parts[6],
		}
		if addr == (models.Address{Type: addr.Type}) {
			continue
		}
		p.Addresses = append(p.Addresses, addr)
	}
}

func (d *decoder) decodeURLs(p *models.Person) {
	for _, f := range d.card[govcard.FieldURL] {
		u := trimText(f.Value)
		if u == "" {
			continue
		}
		p.URLs = append(p.URLs, models.URL{Type: d.fieldType(f), URL: u})
	}
}

func (d *decoder) decodeIM(p *models.Person) {
	for _, f := range d.card[govcard.FieldIMPP] {
		value := trimText(f.Value)
		if value == "" {
			continue
		}
		scheme, handle, found := strings.Cut(value, ":")
		if !found {
			scheme, handle = "", value
		}

		protocol := ""
		if l, ok := d.label(f); ok {
			protocol = typeLabel(l)
		} else if svc := f.Params.Get("X-SERVICE-TYPE"); svc != "" {
			protocol = strings.ToLower(svc)
		} else {
			protocol = strings.ToLower(scheme)
		}
		p.IMHandles = append(p.IMHandles, models.IMHandle{Protocol: protocol, Handle: handle})
	}

	for _, legacy := range legacyIMFields {
		for _, f := range d.card[legacy.field] {
			if handle := trimText(f.Value); handle != "" && !hasIM(p.IMHandles, legacy.protocol, handle) {
				p.IMHandles = append(p.IMHandles, models.IMHandle{Protocol: legacy.protocol, Handle: handle})
			}
		}
	}
}

func hasIM(handles []models.IMHandle, protocol, handle string) bool {
	for _, h := range handles {
		if strings.EqualFold(h.Protocol, protocol) && strings.EqualFold(h.Handle, handle) {
			return true
		}
	}
	return false
}

func (d *decoder) decodeLocations(p *models.Person) {
	for _, f := range d.card[govcard.FieldGeolocation] {
		var latRaw, lngRaw string
		v := strings.TrimSpace(f.Value)
		if strings.HasPrefix(strings.ToLower(v), "geo:") {
			latRaw, lngRaw, _ = strings.Cut(v[4:], ",")
		} else {
			parts := splitStructured(v, 2)
			latRaw, lngRaw = parts[0], parts[1]
		}

		lat, err1 := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
		lng, err2 := strconv.ParseFloat(strings.TrimSpace(lngRaw), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		p.Locations = append(p.Locations, models.Location{Type: d.fieldType(f), Latitude: lat, Longitude: lng})
	}
}

func (d *decoder) decodeCustomFields(p *models.Person) {
	for _, f := range d.card[fieldCustom] {
		key := ""
		if l, ok := d.label(f); ok {
			key = trimText(l)
		}
		p.CustomFields = append(p.CustomFields, models.CustomField{Key: key, Value: unescapeText(f.Value)})
	}
}

func (d *decoder) decodeDates(p *models.Person) {
	if f := d.card.Get(govcard.FieldBirthday); f != nil {
		if t, err := ParseDate(f.Value); err == nil {
			p.ImportantDates = append(p.ImportantDates, models.ImportantDate{Title: models.BirthdayTitle, Date: t})
		}
	}

	// X-ANNIVERSARY repeats dates already present as X-ABDATE; count the
	// Apple dates so only Android-only values become new entries.
	seen := make(map[string]int)
	for _, f := range d.card[fieldABDate] {
		t, err := ParseDate(f.Value)
		if err != nil {
			continue
		}
		seen[FormatDate(t)]++

		raw, _ := d.label(f)
		title, _ := cleanLabel(raw)
		if raw == anniversaryLabel && p.Anniversary == nil {
			date := t
			p.Anniversary = &date
			continue
		}
		p.ImportantDates = append(p.ImportantDates, models.ImportantDate{Title: title, Date: t})
	}

	for _, f := range d.card[fieldXAnniversary] {
		t, err := ParseDate(f.Value)
		if err != nil {
			continue
		}
		key := FormatDate(t)
		if seen[key] > 0 {
			seen[key]--
			continue
		}
		d.addAnniversary(p, t)
	}

	if f := d.card.Get(govcard.FieldAnniversary); f != nil {
		if t, err := ParseDate(f.Value); err == nil && seen[FormatDate(t)] == 0 {
			d.addAnniversary(p, t)
		}
	}
}

func (d *decoder) addAnniversary(p *models.Person, date time.Time) {
	if p.Anniversary == nil {
		p.Anniversary = &date
		return
	}
	p.ImportantDates = append(p.ImportantDates, models.ImportantDate{Title: "Anniversary", Date: date})
}

// decodeCategories reads CATEGORIES from the raw text; the parsed value has
// already lost the difference between "\," and ",".
func (d *decoder) decodeCategories(p *models.Person) {
	seen := make(map[string]bool)
	for _, v := range rawValues(d.raw, govcard.FieldCategories) {
		for _, name := range splitList(v) {
			name = strings.TrimSpace(name)
			if name == "" || seen[strings.ToLower(name)] {
				continue
			}
			seen[strings.ToLower(name)] = true
			p.Groups = append(p.Groups, models.Group{Name: name})
		}
	}
}

func (d *decoder) decodePhoto() *Photo {
	f := d.card.Get(govcard.FieldPhoto)
	if f == nil {
		return nil
	}
	value := strings.TrimSpace(f.Value)
	if value == "" {
		return nil
	}

	encoding := strings.ToLower(f.Params.Get("ENCODING"))
	if encoding == "b" || encoding == "base64" {
		data, err := base64.StdEncoding.DecodeString(stripSpace(value))
		if err != nil {
			return nil
		}
		return &Photo{Data: data, MediaType: mediaTypeFor(f.Params.Get(govcard.ParamType))}
	}

	if strings.HasPrefix(value, "data:") {
		meta, payload, ok := strings.Cut(value[5:], ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil
		}
		data, err := base64.StdEncoding.DecodeString(stripSpace(payload))
		if err != nil {
			return nil
		}
		return &Photo{Data: data, MediaType: strings.TrimSuffix(meta, ";base64")}
	}

	if u := trimText(value); isRemoteURL(u) {
		return &Photo{URL: u}
	}
	return nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}

func mediaTypeFor(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	switch {
	case t == "":
		return "image/jpeg"
	case strings.Contains(t, "/"):
		return t
	case t == "jpg":
		return "image/jpeg"
	default:
		return "image/" + t
	}
}

// SplitCards splits a multi-card document into one text per card, keeping
// each card's original lines.
func SplitCards(text string) []string {
	var cards []string
	var cur strings.Builder
	inCard := false

	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case trimmed == "BEGIN:VCARD":
			cur.Reset()
			inCard = true
			cur.WriteString(line)
		case inCard && trimmed == "END:VCARD":
			cur.WriteString(strings.TrimRight(line, "\r\n"))
			cur.WriteString("\r\n")
			cards = append(cards, cur.String())
			inCard = false
		case inCard:
			cur.WriteString(line)
		}
	}
	return cards
}
