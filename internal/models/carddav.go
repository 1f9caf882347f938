package models

import (
	"time"
)

// Import modes of a connection.
const (
	ImportModeManual = "manual"
	ImportModeAuto   = "auto"
)

// CardDavConnection is the single remote address book account of a user.
type CardDavConnection struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	ServerURL         string `json:"server_url"`
	Username          string `json:"username"`
	EncryptedPassword string `json:"-"`
	// AddressBookURL pins one collection; empty means every discovered book.
	AddressBookURL   string        `json:"address_book_url,omitempty"`
	SyncEnabled      bool          `json:"sync_enabled"`
	AutoSyncInterval time.Duration `json:"auto_sync_interval"`
	ImportMode       string        `json:"import_mode"`
	LastSyncAt       *time.Time    `json:"last_sync_at,omitempty"`
	LastError        string        `json:"last_error,omitempty"`
	LastErrorAt      *time.Time    `json:"last_error_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// AutoImport reports whether new remote cards are imported without staging.
func (c *CardDavConnection) AutoImport() bool {
	return c.ImportMode == ImportModeAuto
}

// Mapping sync states.
const (
	SyncStatusSynced   = "synced"
	SyncStatusPending  = "pending"
	SyncStatusConflict = "conflict"
)

// CardDavMapping links one person to one remote vCard resource.
type CardDavMapping struct {
	ID               string     `json:"id"`
	ConnectionID     string     `json:"connection_id"`
	PersonID         string     `json:"person_id"`
	Href             string     `json:"href"`
	ETag             string     `json:"etag"`
	UID              string     `json:"uid"`
	SyncStatus       string     `json:"sync_status"`
	LastLocalChange  *time.Time `json:"last_local_change,omitempty"`
	LastRemoteChange *time.Time `json:"last_remote_change,omitempty"`
	LastSyncedAt     *time.Time `json:"last_synced_at,omitempty"`
	// LocalVersion is the fingerprint of the person as last synced.
	LocalVersion string    `json:"local_version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Conflict resolutions.
const (
	ResolutionKeepLocal  = "keep_local"
	ResolutionKeepRemote = "keep_remote"
	ResolutionMerged     = "merged"
)

// ValidResolution reports whether r names a known resolution.
func ValidResolution(r string) bool {
	switch r {
	case ResolutionKeepLocal, ResolutionKeepRemote, ResolutionMerged:
		return true
	}
	return false
}

// CardDavConflict records both sides of a concurrent edit. It is terminal
// once ResolvedAt is set.
type CardDavConflict struct {
	ID            string     `json:"id"`
	MappingID     string     `json:"mapping_id"`
	LocalVersion  string     `json:"local_version"`
	RemoteVersion string     `json:"remote_version"`
	RemoteETag    string     `json:"remote_etag"`
	DetectedAt    time.Time  `json:"detected_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	Resolution    string     `json:"resolution,omitempty"`
	ResolvedBy    string     `json:"resolved_by,omitempty"`
}

// IsResolved reports whether a resolution has been applied.
func (c *CardDavConflict) IsResolved() bool {
	return c.ResolvedAt != nil
}

// CardDavPendingImport is a remote or uploaded card waiting for an explicit
// import. ConnectionID is empty for file uploads.
type CardDavPendingImport struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Href         string    `json:"href,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	UID          string    `json:"uid,omitempty"`
	RawVCard     string    `json:"raw_vcard"`
	DisplayName  string    `json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
}
