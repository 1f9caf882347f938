package utils

import (
	"strings"
	"time"
)

// StringOrNil returns a pointer to the string if it's not empty, otherwise returns nil.
func StringOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringFromPtr safely dereferences a string pointer, returning an empty string if nil.
func StringFromPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// FirstNonEmpty returns the first argument that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
