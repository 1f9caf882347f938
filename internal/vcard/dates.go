package vcard

import (
	"fmt"
	"strings"
	"time"

	"contact-sync/internal/models"
)

// FormatDate renders YYYYMMDD, or --MMDD when the year is unknown.
func FormatDate(t time.Time) string {
	if t.Year() < models.YearUnknownThreshold {
		return fmt.Sprintf("--%02d%02d", int(t.Month()), t.Day())
	}
	return t.Format("20060102")
}

// ParseDate accepts the basic and extended vCard date forms, with or without
// a year or time part. Years below the threshold come back as the sentinel.
func ParseDate(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if strings.HasPrefix(v, "--") {
		md := strings.ReplaceAll(v[2:], "-", "")
		if i := strings.IndexByte(md, 'T'); i >= 0 {
			md = md[:i]
		}
		t, err := time.Parse("0102", md)
		if err != nil {
			return time.Time{}, fmt.Errorf("unable to parse date %q: %w", value, err)
		}
		return time.Date(models.UnknownYear, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}

	if i := strings.IndexByte(v, 'T'); i >= 0 {
		v = v[:i]
	}
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return normalizeYear(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date %q", value)
}

func normalizeYear(t time.Time) time.Time {
	if t.Year() < models.YearUnknownThreshold {
		return time.Date(models.UnknownYear, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
