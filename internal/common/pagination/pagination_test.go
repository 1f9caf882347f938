package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		query      string
		page, size int
		offset     int
	}{
		{"", 1, DefaultPerPage, 0},
		{"?page=3&per_page=10", 3, 10, 20},
		{"?page=0&per_page=-4", 1, DefaultPerPage, 0},
		{"?per_page=1000", 1, MaxPerPage, 0},
		{"?page=abc", 1, DefaultPerPage, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := ParseParams(httptest.NewRequest("GET", "/api/carddav/imports"+tt.query, nil))
			assert.Equal(t, tt.page, p.Page)
			assert.Equal(t, tt.size, p.PerPage)
			assert.Equal(t, tt.size, p.Limit)
			assert.Equal(t, tt.offset, p.Offset)
		})
	}
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	r := Slice(items, Params{Page: 2, PerPage: 2, Limit: 2, Offset: 2})
	assert.Equal(t, []int{3, 4}, r.Results)
	assert.Equal(t, 3, r.TotalPages)
	assert.Equal(t, 5, r.TotalResults)

	r = Slice(items, Params{Page: 9, PerPage: 2, Limit: 2, Offset: 16})
	assert.Empty(t, r.Results)
	assert.NotNil(t, r.Results)

	r = Slice([]int(nil), Params{Page: 1, PerPage: 20, Limit: 20})
	assert.Equal(t, 1, r.TotalPages)
	assert.Equal(t, 0, r.TotalResults)
}
