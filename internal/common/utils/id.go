// Package utils provides identifier generation, retry with backoff and
// small value helpers shared across the sync packages.
package utils

import (
	"github.com/google/uuid"
	"github.com/lucsky/cuid"
)

// NewID returns a collision-resistant row identifier.
func NewID() string {
	return cuid.New()
}

// NewVCardUID returns a stable identity for a card exported for the first time.
func NewVCardUID() string {
	return uuid.NewString()
}

// NewRunID returns an identifier used to correlate log lines of one sync run.
func NewRunID() string {
	return "run-" + cuid.Slug()
}
