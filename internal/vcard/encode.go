package vcard

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	govcard "github.com/emersion/go-vcard"

	"contact-sync/internal/models"
)

const (
	productID = "-//contact-sync//CardDAV Sync//EN"

	fieldLabel         = "X-ABLABEL"
	labelName          = "X-ABLabel"
	fieldABDate        = "X-ABDATE"
	fieldXAnniversary  = "X-ANNIVERSARY"
	fieldSecondSurname = "X-SECOND-SURNAME"
	fieldXGender       = "X-GENDER"
	fieldCustom        = "X-CUSTOM-FIELD"

	anniversaryLabel = appleLabelPrefix + "Anniversary" + appleLabelSuffix
)

// Standard TYPE values per property; anything else goes through an
// itemN.X-ABLabel pair.
var (
	phoneTypes = map[string]string{
		"mobile": "CELL",
		"cell":   "CELL",
		"home":   "HOME",
		"work":   "WORK",
		"fax":    "FAX",
		"pager":  "PAGER",
		"voice":  "VOICE",
	}
	emailTypes = map[string]string{
		"home": "HOME",
		"work": "WORK",
	}
	addressTypes = map[string]string{
		"home": "HOME",
		"work": "WORK",
	}
)

// Photo is an embedded or referenced card image.
type Photo struct {
	Data      []byte
	MediaType string
	URL       string
}

type encodeOptions struct {
	photo *Photo
}

// EncodeOption customizes Encode.
type EncodeOption func(*encodeOptions)

// WithPhoto embeds image bytes as a base64 PHOTO property.
func WithPhoto(data []byte, mediaType string) EncodeOption {
	return func(o *encodeOptions) {
		if len(data) > 0 {
			o.photo = &Photo{Data: data, MediaType: mediaType}
		}
	}
}

type writer struct {
	b    strings.Builder
	item int
}

func (w *writer) line(group, name string, params govcard.Params, value string) {
	var l strings.Builder
	if group != "" {
		l.WriteString(group)
		l.WriteByte('.')
	}
	l.WriteString(name)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		l.WriteByte(';')
		l.WriteString(k)
		l.WriteByte('=')
		l.WriteString(strings.Join(params[k], ","))
	}

	l.WriteByte(':')
	l.WriteString(value)
	w.b.WriteString(foldLine(l.String()))
}

// labelled writes an itemN-grouped property followed by its X-ABLabel.
// An empty label omits the label line.
func (w *writer) labelled(name string, params govcard.Params, value, label string) {
	w.item++
	group := "item" + strconv.Itoa(w.item)
	w.line(group, name, params, value)
	if label != "" {
		w.line(group, labelName, nil, escapeText(label))
	}
}

// typed writes a property using TYPE when the type is standard and an
// item label otherwise.
func (w *writer) typed(name, typ string, standard map[string]string, value string) {
	t := strings.TrimSpace(typ)
	if t == "" {
		w.line("", name, nil, value)
		return
	}
	if std, ok := standard[strings.ToLower(t)]; ok {
		w.line("", name, govcard.Params{govcard.ParamType: {std}}, value)
		return
	}
	w.labelled(name, nil, value, t)
}

// Encode serializes p as a vCard 3.0 document with CRLF line endings.
func Encode(p *models.Person, opts ...EncodeOption) string {
	var o encodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	w := &writer{}
	w.line("", "BEGIN", nil, "VCARD")
	w.line("", govcard.FieldVersion, nil, "3.0")
	w.line("", govcard.FieldProductID, nil, productID)
	if p.UID != "" {
		w.line("", govcard.FieldUID, nil, escapeText(p.UID))
	}

	w.line("", govcard.FieldName, nil, joinStructured(p.Surname, p.Name, p.MiddleName, p.Prefix, p.Suffix))
	w.line("", govcard.FieldFormattedName, nil, escapeText(DisplayName(p)))

	if p.SecondSurname != "" {
		w.line("", fieldSecondSurname, nil, escapeText(p.SecondSurname))
	}
	if p.Nickname != "" {
		w.line("", govcard.FieldNickname, nil, escapeText(p.Nickname))
	}
	if p.Organization != "" {
		w.line("", govcard.FieldOrganization, nil, escapeText(p.Organization))
	}
	if p.JobTitle != "" {
		w.line("", govcard.FieldTitle, nil, escapeText(p.JobTitle))
	}
	if p.Gender != "" {
		w.line("", fieldXGender, nil, escapeText(p.Gender))
	}

	birthdayWritten := false
	var otherDates []models.ImportantDate
	for _, d := range p.ImportantDates {
		if !birthdayWritten && d.IsBirthday() {
			w.line("", govcard.FieldBirthday, nil, FormatDate(d.Date))
			birthdayWritten = true
			continue
		}
		otherDates = append(otherDates, d)
	}

	for _, ph := range p.PhoneNumbers {
		w.typed(govcard.FieldTelephone, ph.Type, phoneTypes, escapeText(ph.Number))
	}
	for _, e := range p.Emails {
		w.typed(govcard.FieldEmail, e.Type, emailTypes, escapeText(e.Email))
	}
	for _, a := range p.Addresses {
		street := a.StreetLine1
		if a.StreetLine2 != "" {
			street += "\n" + a.StreetLine2
		}
		w.typed(govcard.FieldAddress, a.Type, addressTypes,
			joinStructured("", "", street, a.Locality, a.Region, a.PostalCode, a.Country))
	}
	for _, u := range p.URLs {
		w.labelled(govcard.FieldURL, nil, escapeText(u.URL), u.Type)
	}
	for _, im := range p.IMHandles {
		w.labelled(govcard.FieldIMPP, nil, escapeText(im.Protocol+":"+im.Handle), im.Protocol)
	}
	for _, loc := range p.Locations {
		geo := strconv.FormatFloat(loc.Latitude, 'f', -1, 64) + ";" + strconv.FormatFloat(loc.Longitude, 'f', -1, 64)
		w.labelled(govcard.FieldGeolocation, nil, geo, loc.Type)
	}
	for _, cf := range p.CustomFields {
		w.labelled(fieldCustom, nil, escapeText(cf.Value), cf.Key)
	}

	if p.Anniversary != nil {
		w.labelledDate(*p.Anniversary, anniversaryLabel)
	}
	for _, d := range otherDates {
		w.labelledDate(d.Date, d.Title)
	}

	if names := groupNames(p.Groups); len(names) > 0 {
		escaped := make([]string, len(names))
		for i, n := range names {
			escaped[i] = escapeText(n)
		}
		w.line("", govcard.FieldCategories, nil, strings.Join(escaped, ","))
	}

	if p.Notes != "" {
		w.line("", govcard.FieldNote, nil, escapeText(p.Notes))
	}

	switch {
	case o.photo != nil:
		w.line("", govcard.FieldPhoto, govcard.Params{
			"ENCODING":        {"b"},
			govcard.ParamType: {photoType(o.photo.MediaType)},
		}, base64.StdEncoding.EncodeToString(o.photo.Data))
	case isRemoteURL(p.Photo):
		w.line("", govcard.FieldPhoto, govcard.Params{govcard.ParamValue: {"uri"}}, escapeText(p.Photo))
	}

	w.line("", "END", nil, "VCARD")
	return w.b.String()
}

// labelledDate writes the Apple item pair and the Android X-ANNIVERSARY
// line for one date.
func (w *writer) labelledDate(date time.Time, label string) {
	value := FormatDate(date)
	w.item++
	group := "item" + strconv.Itoa(w.item)
	w.line(group, fieldABDate, nil, value)
	w.line(group, labelName, nil, escapeText(label))
	w.line("", fieldXAnniversary, govcard.Params{govcard.ParamType: {"ANNIVERSARY"}}, value)
}

// DisplayName is the FN value: the person's joined name, falling back to
// the organization.
func DisplayName(p *models.Person) string {
	if name := p.DisplayName(); name != "" {
		return name
	}
	return strings.TrimSpace(p.Organization)
}

func groupNames(groups []models.Group) []string {
	seen := make(map[string]bool, len(groups))
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		n := strings.TrimSpace(g.Name)
		if n == "" || seen[strings.ToLower(n)] {
			continue
		}
		seen[strings.ToLower(n)] = true
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func photoType(mediaType string) string {
	mt := strings.ToLower(mediaType)
	if i := strings.IndexByte(mt, '/'); i >= 0 {
		mt = mt[i+1:]
	}
	switch mt {
	case "", "jpg", "jpeg", "pjpeg":
		return "JPEG"
	default:
		return strings.ToUpper(mt)
	}
}

func isRemoteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Filename returns the resource name used when creating a card on a server.
func Filename(uid string) string {
	return fmt.Sprintf("%s.vcf", uid)
}
