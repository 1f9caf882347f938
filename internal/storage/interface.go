package storage

import (
	"context"
	"time"

	"contact-sync/internal/models"
)

// StorageConfig identifies a backend and how to reach it.
type StorageConfig interface {
	GetType() string
	GetConnectionString() string
}

// CollectionKind names one multi-value child table of a person.
type CollectionKind string

const (
	PhoneNumbers   CollectionKind = "phone_numbers"
	Emails         CollectionKind = "emails"
	Addresses      CollectionKind = "addresses"
	URLs           CollectionKind = "urls"
	IMHandles      CollectionKind = "im_handles"
	Locations      CollectionKind = "locations"
	CustomFields   CollectionKind = "custom_fields"
	ImportantDates CollectionKind = "important_dates"
)

// AllCollections lists every child table in a fixed order.
var AllCollections = []CollectionKind{
	PhoneNumbers, Emails, Addresses, URLs, IMHandles, Locations, CustomFields, ImportantDates,
}

// ReminderCandidate is an important date with reminder settings together
// with the owner it would be sent to.
type ReminderCandidate struct {
	models.ImportantDate
	UserID     string
	PersonName string
}

// Queries is every read and write the sync, conflict and merge packages
// need. Person lookups exclude soft-deleted rows unless the method name
// says Unscoped. Missing rows are reported as not_found AppErrors.
type Queries interface {
	// Persons
	CreatePerson(ctx context.Context, p *models.Person) error
	GetPerson(ctx context.Context, userID, id string) (*models.Person, error)
	GetPersonUnscoped(ctx context.Context, userID, id string) (*models.Person, error)
	FindPersonByUID(ctx context.Context, userID, uid string) (*models.Person, error)
	FindPersonByUIDUnscoped(ctx context.Context, userID, uid string) (*models.Person, error)
	ListSyncablePersons(ctx context.Context, userID string) ([]*models.Person, error)
	UpdatePerson(ctx context.Context, p *models.Person) error
	// ReplaceCollections deletes every child row and group membership of p
	// and recreates them from p.
	ReplaceCollections(ctx context.Context, p *models.Person) error
	SoftDeletePerson(ctx context.Context, id string, at time.Time) error
	RestorePerson(ctx context.Context, id string, at time.Time) error

	// Child rows
	ReassignChildren(ctx context.Context, kind CollectionKind, ids []string, toPersonID string) error
	DeleteChildrenOf(ctx context.Context, kind CollectionKind, personID string) error

	// Groups
	CreateGroup(ctx context.Context, g *models.Group) error
	FindGroupByName(ctx context.Context, userID, name string) (*models.Group, error)
	AddPersonToGroup(ctx context.Context, personID, groupID string) error
	RemovePersonFromGroups(ctx context.Context, personID string) error

	// Relationships
	CreateRelationshipType(ctx context.Context, rt *models.RelationshipType) error
	GetRelationshipType(ctx context.Context, userID, id string) (*models.RelationshipType, error)
	CreateRelationship(ctx context.Context, r *models.Relationship) error
	ListRelationshipsOf(ctx context.Context, personID string) ([]models.Relationship, error)
	UpdateRelationshipEndpoints(ctx context.Context, id, personID, relatedPersonID string, at time.Time) error
	SoftDeleteRelationships(ctx context.Context, ids []string, at time.Time) error

	// Connections
	UpsertConnection(ctx context.Context, c *models.CardDavConnection) error
	GetConnection(ctx context.Context, id string) (*models.CardDavConnection, error)
	GetConnectionByUser(ctx context.Context, userID string) (*models.CardDavConnection, error)
	ListSyncEnabledConnections(ctx context.Context) ([]*models.CardDavConnection, error)
	UpdateConnectionSyncState(ctx context.Context, c *models.CardDavConnection) error

	// Mappings
	CreateMapping(ctx context.Context, m *models.CardDavMapping) error
	UpdateMapping(ctx context.Context, m *models.CardDavMapping) error
	GetMapping(ctx context.Context, id string) (*models.CardDavMapping, error)
	ListMappingsByConnection(ctx context.Context, connectionID string) ([]*models.CardDavMapping, error)
	ListMappingsByPerson(ctx context.Context, personID string) ([]*models.CardDavMapping, error)
	// DeleteMapping removes a mapping and the conflicts recorded against it.
	DeleteMapping(ctx context.Context, id string) error
	// DeleteMappingsByPerson removes every mapping of a person and returns them.
	DeleteMappingsByPerson(ctx context.Context, personID string) ([]*models.CardDavMapping, error)

	// Conflicts
	CreateConflict(ctx context.Context, c *models.CardDavConflict) error
	GetConflict(ctx context.Context, id string) (*models.CardDavConflict, error)
	ListUnresolvedConflicts(ctx context.Context, userID string) ([]*models.CardDavConflict, error)
	// ResolveConflict sets the resolution only if the conflict is still
	// open; otherwise it returns a conflict AppError.
	ResolveConflict(ctx context.Context, id, resolution, resolvedBy string, at time.Time) error

	// Pending imports
	CreatePendingImport(ctx context.Context, pi *models.CardDavPendingImport) error
	UpdatePendingImport(ctx context.Context, pi *models.CardDavPendingImport) error
	GetPendingImport(ctx context.Context, userID, id string) (*models.CardDavPendingImport, error)
	FindPendingImportByHref(ctx context.Context, connectionID, href string) (*models.CardDavPendingImport, error)
	ListPendingImports(ctx context.Context, userID string) ([]*models.CardDavPendingImport, error)
	DeletePendingImport(ctx context.Context, id string) error

	// Reminders
	ListReminderCandidates(ctx context.Context) ([]ReminderCandidate, error)
	MarkReminderSent(ctx context.Context, importantDateID string, at time.Time) error
}

// Store is a Queries bound to the database plus transactions.
type Store interface {
	Queries
	// WithTx runs fn in one transaction, committing when fn returns nil.
	// Only the Queries passed to fn may be used inside it.
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Health(ctx context.Context) error
	Close() error
}

// StorageFactory creates a Store for a registered backend type.
type StorageFactory interface {
	Create(config StorageConfig) (Store, error)
	GetType() string
}
