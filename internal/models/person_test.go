package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPerson_DisplayName(t *testing.T) {
	p := &Person{Prefix: "Dr.", Name: "Ada", Surname: "Lovelace", Suffix: " "}
	assert.Equal(t, "Dr. Ada Lovelace", p.DisplayName())

	assert.Equal(t, "Countess", (&Person{Nickname: "Countess"}).DisplayName())
	assert.Equal(t, "", (&Person{}).DisplayName())
}

func TestPerson_CopyCollectionsReowns(t *testing.T) {
	src := &Person{
		ID:           "src",
		PhoneNumbers: []PhoneNumber{{ID: "ph1", PersonID: "src", Number: "+1"}},
		Emails:       []Email{{ID: "e1", PersonID: "src", Email: "a@x.com"}},
	}
	dst := &Person{ID: "dst", Emails: []Email{{ID: "old", Email: "gone@x.com"}}}

	dst.CopyCollections(src)

	assert.Equal(t, []PhoneNumber{{PersonID: "dst", Number: "+1"}}, dst.PhoneNumbers)
	assert.Equal(t, []Email{{PersonID: "dst", Email: "a@x.com"}}, dst.Emails)
	assert.Empty(t, dst.Addresses)
	assert.Equal(t, "src", src.PhoneNumbers[0].PersonID)
}

func TestImportantDate_YearKnown(t *testing.T) {
	known := ImportantDate{Date: time.Date(1990, 3, 1, 0, 0, 0, 0, time.UTC)}
	unknown := ImportantDate{Date: time.Date(UnknownYear, 3, 1, 0, 0, 0, 0, time.UTC)}

	assert.True(t, known.YearKnown())
	assert.False(t, unknown.YearKnown())
	assert.True(t, ImportantDate{Title: " birthday"}.IsBirthday())
}

func TestValidResolution(t *testing.T) {
	assert.True(t, ValidResolution(ResolutionKeepRemote))
	assert.False(t, ValidResolution("keep_both"))
}
