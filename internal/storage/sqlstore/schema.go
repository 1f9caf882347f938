package sqlstore

import (
	"context"
	"fmt"
)

// Timestamps are stored as RFC 3339 text and calendar dates as YYYY-MM-DD so
// both drivers round-trip them identically.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS persons (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		uid TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		surname TEXT NOT NULL DEFAULT '',
		middle_name TEXT NOT NULL DEFAULT '',
		second_surname TEXT NOT NULL DEFAULT '',
		nickname TEXT NOT NULL DEFAULT '',
		prefix TEXT NOT NULL DEFAULT '',
		suffix TEXT NOT NULL DEFAULT '',
		organization TEXT NOT NULL DEFAULT '',
		job_title TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		photo TEXT NOT NULL DEFAULT '',
		anniversary TEXT,
		relationship_to_user_id TEXT,
		sync_enabled BOOLEAN NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_persons_user_uid ON persons(user_id, uid)`,

	`CREATE TABLE IF NOT EXISTS phone_numbers (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL REFERENCES persons(id),
		type TEXT NOT NULL DEFAULT '',
		number TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS emails (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL REFERENCES persons(id),
		type TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS addresses (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL REFERENCES persons(id),
		type TEXT NOT NULL DEFAULT '',
		street_line1 TEXT NOT NULL DEFAULT '',
		street_line2 TEXT NOT NULL DEFAULT '',
		locality TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		postal_code TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS urls (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL REFERENCES persons(id),
		type TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS im_handles (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL REFERENCES persons(id),
		protocol TEXT NOT NULL DEFAULT '',
		handle TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL REFERENCES persons(id),
		type TEXT NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS custom_fields (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL REFERENCES persons(id),
		field_key TEXT NOT NULL DEFAULT '',
		field_value TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS important_dates (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL REFERENCES persons(id),
		title TEXT NOT NULL DEFAULT '',
		event_date TEXT NOT NULL,
		reminder_type TEXT NOT NULL DEFAULT '',
		reminder_interval INTEGER NOT NULL DEFAULT 0,
		reminder_interval_unit TEXT NOT NULL DEFAULT '',
		last_reminder_sent TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_phone_numbers_person ON phone_numbers(person_id)`,
	`CREATE INDEX IF NOT EXISTS idx_emails_person ON emails(person_id)`,
	`CREATE INDEX IF NOT EXISTS idx_addresses_person ON addresses(person_id)`,
	`CREATE INDEX IF NOT EXISTS idx_urls_person ON urls(person_id)`,
	`CREATE INDEX IF NOT EXISTS idx_im_handles_person ON im_handles(person_id)`,
	`CREATE INDEX IF NOT EXISTS idx_locations_person ON locations(person_id)`,
	`CREATE INDEX IF NOT EXISTS idx_custom_fields_person ON custom_fields(person_id)`,
	`CREATE INDEX IF NOT EXISTS idx_important_dates_person ON important_dates(person_id)`,

	`CREATE TABLE IF NOT EXISTS contact_groups (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS person_groups (
		person_id TEXT NOT NULL REFERENCES persons(id),
		group_id TEXT NOT NULL REFERENCES contact_groups(id),
		PRIMARY KEY (person_id, group_id)
	)`,

	`CREATE TABLE IF NOT EXISTS relationship_types (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS relationships (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL REFERENCES persons(id),
		related_person_id TEXT NOT NULL REFERENCES persons(id),
		relationship_type_id TEXT,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_person ON relationships(person_id)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_related ON relationships(related_person_id)`,

	`CREATE TABLE IF NOT EXISTS carddav_connections (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		server_url TEXT NOT NULL,
		username TEXT NOT NULL,
		encrypted_password TEXT NOT NULL,
		address_book_url TEXT NOT NULL DEFAULT '',
		sync_enabled BOOLEAN NOT NULL,
		auto_sync_interval_seconds BIGINT NOT NULL DEFAULT 0,
		import_mode TEXT NOT NULL DEFAULT 'manual',
		last_sync_at TEXT,
		last_error TEXT NOT NULL DEFAULT '',
		last_error_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS carddav_mappings (
		id TEXT PRIMARY KEY,
		connection_id TEXT NOT NULL REFERENCES carddav_connections(id),
		person_id TEXT NOT NULL REFERENCES persons(id),
		href TEXT NOT NULL,
		etag TEXT NOT NULL DEFAULT '',
		uid TEXT NOT NULL DEFAULT '',
		sync_status TEXT NOT NULL,
		last_local_change TEXT,
		last_remote_change TEXT,
		last_synced_at TEXT,
		local_version TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_carddav_mappings_connection ON carddav_mappings(connection_id)`,
	`CREATE INDEX IF NOT EXISTS idx_carddav_mappings_person ON carddav_mappings(person_id)`,
	`CREATE TABLE IF NOT EXISTS carddav_conflicts (
		id TEXT PRIMARY KEY,
		mapping_id TEXT NOT NULL REFERENCES carddav_mappings(id),
		local_version TEXT NOT NULL,
		remote_version TEXT NOT NULL,
		remote_etag TEXT NOT NULL DEFAULT '',
		detected_at TEXT NOT NULL,
		resolved_at TEXT,
		resolution TEXT NOT NULL DEFAULT '',
		resolved_by TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_carddav_conflicts_mapping ON carddav_conflicts(mapping_id)`,
	`CREATE TABLE IF NOT EXISTS carddav_pending_imports (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		connection_id TEXT,
		href TEXT NOT NULL DEFAULT '',
		etag TEXT NOT NULL DEFAULT '',
		uid TEXT NOT NULL DEFAULT '',
		raw_vcard TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_carddav_pending_connection_href ON carddav_pending_imports(connection_id, href)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.sqlDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i, err)
		}
	}
	return nil
}
