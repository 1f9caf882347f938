package vcard

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "contact-sync/internal/common/errors"
	"contact-sync/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func samplePerson() *models.Person {
	anniversary := day(2015, 6, 20)
	return &models.Person{
		UID:           "0b6b7c2e-4f0e-4c55-9a65-6b0d2a8b1f11",
		Name:          "Ada",
		Surname:       "Lovelace",
		MiddleName:    "Augusta",
		SecondSurname: "Byron",
		Nickname:      "Countess",
		Prefix:        "Lady",
		Suffix:        "FRS",
		Organization:  "Analytical Engines, Ltd; R&D",
		JobTitle:      "Programmer",
		Gender:        "F",
		Notes:         "Line one\nLine two, with comma; and semicolon \\ backslash",
		Anniversary:   &anniversary,
		PhoneNumbers: []models.PhoneNumber{
			{Type: "mobile", Number: "+44 20 1234 5678"},
			{Type: "work", Number: "+442012345678"},
			{Type: "summer house", Number: "+3312345"},
		},
		Emails: []models.Email{
			{Type: "home", Email: "ada@example.com"},
			{Email: "a@x.com"},
			{Type: "university", Email: "ada@uni.ac.uk"},
		},
		Addresses: []models.Address{{
			Type:        "home",
			StreetLine1: "12 St James's Square",
			StreetLine2: "Flat 3",
			Locality:    "London",
			Region:      "Greater London",
			PostalCode:  "SW1Y 4JH",
			Country:     "United Kingdom",
		}},
		URLs:         []models.URL{{Type: "homepage", URL: "https://ada.example.com/?a=1,2"}},
		IMHandles:    []models.IMHandle{{Protocol: "xmpp", Handle: "ada@jabber.example"}},
		Locations:    []models.Location{{Type: "home", Latitude: 51.5074, Longitude: -0.1278}},
		CustomFields: []models.CustomField{{Key: "Favourite engine", Value: "Difference; Analytical"}},
		ImportantDates: []models.ImportantDate{
			{Title: "Birthday", Date: day(1815, 12, 10)},
			{Title: "Wedding", Date: day(1835, 7, 8)},
			{Title: "First program", Date: day(models.UnknownYear, 9, 1)},
		},
		Groups: []models.Group{{Name: "Mathematicians"}, {Name: "Friends, Family"}},
	}
}

func lines(card string) []string {
	return strings.Split(strings.TrimSuffix(card, "\r\n"), "\r\n")
}

func TestEncode_AddressExportScenario(t *testing.T) {
	p := &models.Person{
		Name:         "Ada",
		Surname:      "Lovelace",
		PhoneNumbers: []models.PhoneNumber{{Type: "work", Number: "+442012345678"}},
	}

	out := Encode(p)
	got := lines(out)

	assert.Equal(t, "BEGIN:VCARD", got[0])
	assert.Equal(t, "VERSION:3.0", got[1])
	assert.Contains(t, got, "N:Lovelace;Ada;;;")
	assert.Contains(t, got, "FN:Ada Lovelace")
	assert.Contains(t, got, "TEL;TYPE=WORK:+442012345678")
	assert.Equal(t, "END:VCARD", got[len(got)-1])
	assert.True(t, strings.HasSuffix(out, "END:VCARD\r\n"))
	assert.NotContains(t, strings.ReplaceAll(out, "\r\n", ""), "\n")
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	p := samplePerson()

	card, err := Decode(Encode(p))
	require.NoError(t, err)

	assert.Equal(t, *p, card.Person)
	assert.True(t, card.HasUID())
	assert.Nil(t, card.Photo)
}

func TestEncode_PhoneTypes(t *testing.T) {
	p := &models.Person{Name: "M", PhoneNumbers: []models.PhoneNumber{
		{Type: "mobile", Number: "1"},
		{Type: "beach hut", Number: "2"},
	}}

	got := lines(Encode(p))
	assert.Contains(t, got, "TEL;TYPE=CELL:1")
	assert.Contains(t, got, "item1.TEL:2")
	assert.Contains(t, got, "item1.X-ABLabel:beach hut")
}

func TestEncode_ItemNumbersIncrease(t *testing.T) {
	p := &models.Person{
		Name:      "Ada",
		URLs:      []models.URL{{Type: "blog", URL: "https://a"}, {Type: "work", URL: "https://b"}},
		IMHandles: []models.IMHandle{{Protocol: "skype", Handle: "ada"}},
		Locations: []models.Location{{Type: "office", Latitude: 1.5, Longitude: 2}},
	}

	got := lines(Encode(p))
	assert.Contains(t, got, "item1.URL:https://a")
	assert.Contains(t, got, "item1.X-ABLabel:blog")
	assert.Contains(t, got, "item2.URL:https://b")
	assert.Contains(t, got, "item3.IMPP:skype:ada")
	assert.Contains(t, got, "item3.X-ABLabel:skype")
	assert.Contains(t, got, "item4.GEO:1.5;2")
	assert.Contains(t, got, "item4.X-ABLabel:office")
}

func TestEncode_Address(t *testing.T) {
	p := &models.Person{Name: "A", Addresses: []models.Address{{
		Type:        "work",
		StreetLine1: "1 Main St",
		StreetLine2: "Suite 2",
		Locality:    "Springfield",
		Region:      "IL",
		PostalCode:  "62701",
		Country:     "USA",
	}}}

	assert.Contains(t, lines(Encode(p)), `ADR;TYPE=WORK:;;1 Main St\nSuite 2;Springfield;IL;62701;USA`)
}

func TestEncode_BirthdayUsesBDAYOnly(t *testing.T) {
	p := &models.Person{Name: "B", ImportantDates: []models.ImportantDate{
		{Title: "Birthday", Date: day(1990, 12, 31)},
	}}

	out := Encode(p)
	assert.Contains(t, lines(out), "BDAY:19901231")
	assert.NotContains(t, out, "X-ABDATE")
	assert.NotContains(t, out, "X-ANNIVERSARY")

	card, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, p.ImportantDates, card.Person.ImportantDates)
}

func TestEncode_ImportantDatesEmittedTwice(t *testing.T) {
	p := &models.Person{Name: "C", ImportantDates: []models.ImportantDate{
		{Title: "Graduation", Date: day(2010, 5, 1)},
		{Title: "Name day", Date: day(models.UnknownYear, 3, 19)},
	}}

	got := lines(Encode(p))
	assert.Contains(t, got, "item1.X-ABDATE:20100501")
	assert.Contains(t, got, "item1.X-ABLabel:Graduation")
	assert.Contains(t, got, "X-ANNIVERSARY;TYPE=ANNIVERSARY:20100501")
	assert.Contains(t, got, "item2.X-ABDATE:--0319")
	assert.Contains(t, got, "item2.X-ABLabel:Name day")
	assert.Contains(t, got, "X-ANNIVERSARY;TYPE=ANNIVERSARY:--0319")

	card, err := Decode(strings.Join(got, "\r\n") + "\r\n")
	require.NoError(t, err)
	assert.Equal(t, p.ImportantDates, card.Person.ImportantDates)
	assert.Nil(t, card.Person.Anniversary)
}

func TestEncode_FoldsLongLines(t *testing.T) {
	notes := strings.Repeat("x", 80) + strings.Repeat("é", 60) + strings.Repeat("日本", 30)
	p := &models.Person{Name: "Fold", Notes: notes}

	out := Encode(p)
	physical := lines(out)
	for i, l := range physical {
		assert.LessOrEqual(t, len(l), maxLineOctets, "line %d too long", i)
		assert.True(t, utf8.ValidString(l), "line %d splits a UTF-8 sequence", i)
	}

	unfolded := strings.ReplaceAll(out, "\r\n ", "")
	assert.Contains(t, unfolded, "NOTE:"+notes+"\r\n")

	card, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, notes, card.Person.Notes)
}

func TestFoldLine(t *testing.T) {
	short := strings.Repeat("a", 75)
	assert.Equal(t, short+"\r\n", foldLine(short))

	long := strings.Repeat("b", 75+74+10)
	want := strings.Repeat("b", 75) + "\r\n " + strings.Repeat("b", 74) + "\r\n " + strings.Repeat("b", 10) + "\r\n"
	assert.Equal(t, want, foldLine(long))
}

func TestEscaping(t *testing.T) {
	assert.Equal(t, `a\\b\,c\;d\ne`, escapeText("a\\b,c;d\ne"))
	assert.Equal(t, `x\ny`, escapeText("x\r\ny"))
	assert.Equal(t, []string{"a;b", "c", ""}, splitStructured(`a\;b;c`, 3))
	assert.Equal(t, []string{"", "", "", "", ""}, splitStructured("", 5))
}

func TestDates(t *testing.T) {
	assert.Equal(t, "19901231", FormatDate(day(1990, 12, 31)))
	assert.Equal(t, "--0229", FormatDate(day(models.UnknownYear, 2, 29)))
	assert.Equal(t, "--0704", FormatDate(day(1, 7, 4)))

	tests := []struct {
		in   string
		want time.Time
	}{
		{"19901231", day(1990, 12, 31)},
		{"1990-12-31", day(1990, 12, 31)},
		{"1990-12-31T10:00:00Z", day(1990, 12, 31)},
		{"--1231", day(models.UnknownYear, 12, 31)},
		{"--12-31", day(models.UnknownYear, 12, 31)},
		{"--0229", day(models.UnknownYear, 2, 29)},
		{"1604-03-05", day(models.UnknownYear, 3, 5)},
		{"00010305", day(models.UnknownYear, 3, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseDate("not a date")
	assert.Error(t, err)
	_, err = ParseDate("--1332")
	assert.Error(t, err)
}

func TestDecode_AppleLabelsAndCell(t *testing.T) {
	text := "BEGIN:VCARD\r\n" +
		"VERSION:3.0\r\n" +
		"N:Doe;Jane;;;\r\n" +
		"FN:Jane Doe\r\n" +
		"TEL;type=CELL;type=VOICE;type=pref:+1 555 0100\r\n" +
		"item1.TEL:+1 555 0199\r\n" +
		"item1.X-ABLabel:_$!<Other>!$_\r\n" +
		"EMAIL;type=INTERNET;type=WORK:jane@work.example\r\n" +
		"item2.URL;type=pref:https://jane.example\r\n" +
		"item2.X-ABLabel:_$!<HomePage>!$_\r\n" +
		"item3.X-ABDATE;type=pref:2001-04-01\r\n" +
		"item3.X-ABLabel:_$!<Anniversary>!$_\r\n" +
		"X-JABBER:jane@chat.example\r\n" +
		"CATEGORIES:Work,Book club\r\n" +
		"END:VCARD\r\n"

	card, err := Decode(text)
	require.NoError(t, err)
	p := card.Person

	assert.Equal(t, "Jane", p.Name)
	assert.Equal(t, "Doe", p.Surname)
	assert.False(t, card.HasUID())
	assert.Equal(t, []models.PhoneNumber{
		{Type: "mobile", Number: "+1 555 0100"},
		{Type: "other", Number: "+1 555 0199"},
	}, p.PhoneNumbers)
	assert.Equal(t, []models.Email{{Type: "work", Email: "jane@work.example"}}, p.Emails)
	require.Len(t, p.URLs, 1)
	assert.Equal(t, "homepage", p.URLs[0].Type)
	require.NotNil(t, p.Anniversary)
	assert.Equal(t, day(2001, 4, 1), *p.Anniversary)
	assert.Empty(t, p.ImportantDates)
	assert.Equal(t, []models.IMHandle{{Protocol: "xmpp", Handle: "jane@chat.example"}}, p.IMHandles)
	assert.Equal(t, []models.Group{{Name: "Work"}, {Name: "Book club"}}, p.Groups)
}

func TestDecode_AndroidAnniversary(t *testing.T) {
	text := "BEGIN:VCARD\r\nVERSION:3.0\r\nFN:Solo\r\n" +
		"X-ANNIVERSARY;TYPE=ANNIVERSARY:20120909\r\n" +
		"X-ANNIVERSARY:--0101\r\n" +
		"END:VCARD\r\n"

	card, err := Decode(text)
	require.NoError(t, err)

	require.NotNil(t, card.Person.Anniversary)
	assert.Equal(t, day(2012, 9, 9), *card.Person.Anniversary)
	assert.Equal(t, []models.ImportantDate{{Title: "Anniversary", Date: day(models.UnknownYear, 1, 1)}}, card.Person.ImportantDates)
}

func TestDecode_MissingOptionalFields(t *testing.T) {
	card, err := Decode("BEGIN:VCARD\r\nVERSION:3.0\r\nFN:Solo Artist\r\nEND:VCARD\r\n")
	require.NoError(t, err)

	assert.Equal(t, "Solo Artist", card.Person.Name)
	assert.Empty(t, card.Person.UID)
	assert.Nil(t, card.Person.Anniversary)
	assert.Empty(t, card.Person.PhoneNumbers)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode("this is not a card")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	_, err = Decode("")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestPhoto(t *testing.T) {
	data := []byte(strings.Repeat("\xff\xd8\xff\xe0 jpeg bytes ", 20))
	p := &models.Person{Name: "Pic"}

	out := Encode(p, WithPhoto(data, "image/jpeg"))
	assert.Contains(t, out, "PHOTO;ENCODING=b;TYPE=JPEG:")

	card, err := Decode(out)
	require.NoError(t, err)
	require.NotNil(t, card.Photo)
	assert.Equal(t, data, card.Photo.Data)
	assert.Equal(t, "image/jpeg", card.Photo.MediaType)
	assert.Empty(t, card.Person.Photo)

	p.Photo = "https://cdn.example/p.jpg"
	out = Encode(p)
	assert.Contains(t, lines(out), "PHOTO;VALUE=uri:https://cdn.example/p.jpg")
	card, err = Decode(out)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/p.jpg", card.Person.Photo)
}

func TestSplitCards(t *testing.T) {
	a := Encode(&models.Person{UID: "a", Name: "A"})
	b := Encode(&models.Person{UID: "b", Name: "B"})

	cards := SplitCards("junk before\n" + a + strings.ReplaceAll(b, "\r\n", "\n"))
	require.Len(t, cards, 2)

	first, err := Decode(cards[0])
	require.NoError(t, err)
	second, err := Decode(cards[1])
	require.NoError(t, err)
	assert.Equal(t, "a", first.Person.UID)
	assert.Equal(t, "B", second.Person.Name)
}

func TestDisplayName_FallsBackToOrganization(t *testing.T) {
	assert.Equal(t, "Acme", DisplayName(&models.Person{Organization: "Acme"}))
	assert.Contains(t, lines(Encode(&models.Person{Organization: "Acme"})), "FN:Acme")
}

func TestEncodeDecode_OrganizationOnly(t *testing.T) {
	p := &models.Person{UID: "acme", Organization: "Acme"}

	card, err := Decode(Encode(p))
	require.NoError(t, err)

	assert.Equal(t, *p, card.Person)
	assert.Empty(t, card.Person.Name)
}

func TestDecode_EmptyNameUsesFormattedName(t *testing.T) {
	card, err := Decode("BEGIN:VCARD\r\nVERSION:3.0\r\nN:;;;;\r\nFN:Jo Bloggs\r\nORG:Acme\r\nEND:VCARD\r\n")
	require.NoError(t, err)

	assert.Equal(t, "Jo Bloggs", card.Person.Name)
	assert.Equal(t, "Acme", card.Person.Organization)
}

func TestDecode_CategoriesEscapedComma(t *testing.T) {
	card, err := Decode("BEGIN:VCARD\r\nVERSION:3.0\r\nFN:C\r\n" +
		"CATEGORIES:Friends\\, Family,Work\r\n" +
		"item1.categories;X-FOO=\"a:b\":Chess\\\\Go, work\r\nEND:VCARD\r\n")
	require.NoError(t, err)

	assert.Equal(t, []models.Group{{Name: "Friends, Family"}, {Name: "Work"}, {Name: "Chess\\Go"}}, card.Person.Groups)
}

func TestEncodeDecode_NotesKeepWhitespace(t *testing.T) {
	p := &models.Person{Name: "Ws", Notes: "  indented\n", CustomFields: []models.CustomField{{Key: "pad", Value: " x "}}}

	card, err := Decode(Encode(p))
	require.NoError(t, err)

	assert.Equal(t, "  indented\n", card.Person.Notes)
	assert.Equal(t, " x ", card.Person.CustomFields[0].Value)
}
