package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"contact-sync/internal/common/errors"
	"contact-sync/internal/models"
)

const connectionColumns = `id, user_id, server_url, username, encrypted_password, address_book_url,
	sync_enabled, auto_sync_interval_seconds, import_mode, last_sync_at, last_error, last_error_at,
	created_at, updated_at`

func scanConnection(s scanner) (*models.CardDavConnection, error) {
	var (
		c                       models.CardDavConnection
		intervalSeconds         int64
		lastSyncAt, lastErrorAt sql.NullString
		createdAt, updatedAt    string
	)
	if err := s.Scan(&c.ID, &c.UserID, &c.ServerURL, &c.Username, &c.EncryptedPassword, &c.AddressBookURL,
		&c.SyncEnabled, &intervalSeconds, &c.ImportMode, &lastSyncAt, &c.LastError, &lastErrorAt,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.AutoSyncInterval = time.Duration(intervalSeconds) * time.Second
	c.LastSyncAt = parseNullTime(lastSyncAt)
	c.LastErrorAt = parseNullTime(lastErrorAt)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// UpsertConnection creates or replaces the user's single connection. The
// stored id is kept when one already exists and written back into c.
func (q *queries) UpsertConnection(ctx context.Context, c *models.CardDavConnection) error {
	c.ID = idOrNew(c.ID)
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.ImportMode == "" {
		c.ImportMode = models.ImportModeManual
	}

	_, err := q.exec(ctx, `INSERT INTO carddav_connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			server_url = excluded.server_url,
			username = excluded.username,
			encrypted_password = excluded.encrypted_password,
			address_book_url = excluded.address_book_url,
			sync_enabled = excluded.sync_enabled,
			auto_sync_interval_seconds = excluded.auto_sync_interval_seconds,
			import_mode = excluded.import_mode,
			updated_at = excluded.updated_at`,
		c.ID, c.UserID, c.ServerURL, c.Username, c.EncryptedPassword, c.AddressBookURL,
		c.SyncEnabled, int64(c.AutoSyncInterval/time.Second), c.ImportMode,
		nullTime(c.LastSyncAt), c.LastError, nullTime(c.LastErrorAt),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return errors.InternalError("failed to save connection", err)
	}

	stored, err := q.GetConnectionByUser(ctx, c.UserID)
	if err != nil {
		return err
	}
	*c = *stored
	return nil
}

func (q *queries) GetConnection(ctx context.Context, id string) (*models.CardDavConnection, error) {
	c, err := scanConnection(q.queryRow(ctx, `SELECT `+connectionColumns+` FROM carddav_connections WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "connection")
	}
	return c, nil
}

func (q *queries) GetConnectionByUser(ctx context.Context, userID string) (*models.CardDavConnection, error) {
	c, err := scanConnection(q.queryRow(ctx, `SELECT `+connectionColumns+` FROM carddav_connections WHERE user_id = ?`, userID))
	if err != nil {
		return nil, notFoundOr(err, "connection")
	}
	return c, nil
}

func (q *queries) ListSyncEnabledConnections(ctx context.Context) ([]*models.CardDavConnection, error) {
	rows, err := q.query(ctx, `SELECT `+connectionColumns+` FROM carddav_connections
		WHERE sync_enabled = ? ORDER BY created_at, id`, true)
	if err != nil {
		return nil, errors.InternalError("failed to list connections", err)
	}
	defer rows.Close()

	var out []*models.CardDavConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, errors.InternalError("failed to scan connection", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError("failed to list connections", err)
	}
	return out, nil
}

// UpdateConnectionSyncState writes the run bookkeeping columns only.
func (q *queries) UpdateConnectionSyncState(ctx context.Context, c *models.CardDavConnection) error {
	c.UpdatedAt = time.Now().UTC()
	return q.execOne(ctx, "connection", `UPDATE carddav_connections SET
		last_sync_at = ?, last_error = ?, last_error_at = ?, address_book_url = ?, updated_at = ?
		WHERE id = ?`,
		nullTime(c.LastSyncAt), c.LastError, nullTime(c.LastErrorAt), c.AddressBookURL,
		formatTime(c.UpdatedAt), c.ID)
}

const mappingColumns = `id, connection_id, person_id, href, etag, uid, sync_status,
	last_local_change, last_remote_change, last_synced_at, local_version, created_at, updated_at`

func scanMapping(s scanner) (*models.CardDavMapping, error) {
	var (
		m                                     models.CardDavMapping
		localChange, remoteChange, lastSynced sql.NullString
		createdAt, updatedAt                  string
	)
	if err := s.Scan(&m.ID, &m.ConnectionID, &m.PersonID, &m.Href, &m.ETag, &m.UID, &m.SyncStatus,
		&localChange, &remoteChange, &lastSynced, &m.LocalVersion, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.LastLocalChange = parseNullTime(localChange)
	m.LastRemoteChange = parseNullTime(remoteChange)
	m.LastSyncedAt = parseNullTime(lastSynced)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

func (q *queries) listMappings(ctx context.Context, where string, arg string) ([]*models.CardDavMapping, error) {
	rows, err := q.query(ctx, `SELECT `+mappingColumns+` FROM carddav_mappings WHERE `+where+` ORDER BY created_at, id`, arg)
	if err != nil {
		return nil, errors.InternalError("failed to list mappings", err)
	}
	defer rows.Close()

	var out []*models.CardDavMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, errors.InternalError("failed to scan mapping", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError("failed to list mappings", err)
	}
	return out, nil
}

func (q *queries) CreateMapping(ctx context.Context, m *models.CardDavMapping) error {
	m.ID = idOrNew(m.ID)
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	if m.SyncStatus == "" {
		m.SyncStatus = models.SyncStatusSynced
	}
	if _, err := q.exec(ctx, `INSERT INTO carddav_mappings (`+mappingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConnectionID, m.PersonID, m.Href, m.ETag, m.UID, m.SyncStatus,
		nullTime(m.LastLocalChange), nullTime(m.LastRemoteChange), nullTime(m.LastSyncedAt),
		m.LocalVersion, formatTime(m.CreatedAt), formatTime(m.UpdatedAt)); err != nil {
		return errors.InternalError("failed to create mapping", err)
	}
	return nil
}

func (q *queries) UpdateMapping(ctx context.Context, m *models.CardDavMapping) error {
	m.UpdatedAt = time.Now().UTC()
	return q.execOne(ctx, "mapping", `UPDATE carddav_mappings SET
		person_id = ?, href = ?, etag = ?, uid = ?, sync_status = ?, last_local_change = ?,
		last_remote_change = ?, last_synced_at = ?, local_version = ?, updated_at = ?
		WHERE id = ?`,
		m.PersonID, m.Href, m.ETag, m.UID, m.SyncStatus, nullTime(m.LastLocalChange),
		nullTime(m.LastRemoteChange), nullTime(m.LastSyncedAt), m.LocalVersion,
		formatTime(m.UpdatedAt), m.ID)
}

func (q *queries) GetMapping(ctx context.Context, id string) (*models.CardDavMapping, error) {
	m, err := scanMapping(q.queryRow(ctx, `SELECT `+mappingColumns+` FROM carddav_mappings WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "mapping")
	}
	return m, nil
}

func (q *queries) ListMappingsByConnection(ctx context.Context, connectionID string) ([]*models.CardDavMapping, error) {
	return q.listMappings(ctx, `connection_id = ?`, connectionID)
}

func (q *queries) ListMappingsByPerson(ctx context.Context, personID string) ([]*models.CardDavMapping, error) {
	return q.listMappings(ctx, `person_id = ?`, personID)
}

func (q *queries) DeleteMapping(ctx context.Context, id string) error {
	if _, err := q.exec(ctx, `DELETE FROM carddav_conflicts WHERE mapping_id = ?`, id); err != nil {
		return errors.InternalError("failed to delete conflicts", err)
	}
	return q.execOne(ctx, "mapping", `DELETE FROM carddav_mappings WHERE id = ?`, id)
}

func (q *queries) DeleteMappingsByPerson(ctx context.Context, personID string) ([]*models.CardDavMapping, error) {
	mappings, err := q.ListMappingsByPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	for _, m := range mappings {
		if err := q.DeleteMapping(ctx, m.ID); err != nil {
			return nil, err
		}
	}
	return mappings, nil
}

const conflictColumns = `c.id, c.mapping_id, c.local_version, c.remote_version, c.remote_etag,
	c.detected_at, c.resolved_at, c.resolution, c.resolved_by`

func scanConflict(s scanner) (*models.CardDavConflict, error) {
	var (
		c          models.CardDavConflict
		detectedAt string
		resolvedAt sql.NullString
	)
	if err := s.Scan(&c.ID, &c.MappingID, &c.LocalVersion, &c.RemoteVersion, &c.RemoteETag,
		&detectedAt, &resolvedAt, &c.Resolution, &c.ResolvedBy); err != nil {
		return nil, err
	}
	c.DetectedAt = parseTime(detectedAt)
	c.ResolvedAt = parseNullTime(resolvedAt)
	return &c, nil
}

func (q *queries) CreateConflict(ctx context.Context, c *models.CardDavConflict) error {
	c.ID = idOrNew(c.ID)
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now().UTC()
	}
	if _, err := q.exec(ctx, `INSERT INTO carddav_conflicts
		(id, mapping_id, local_version, remote_version, remote_etag, detected_at, resolved_at, resolution, resolved_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.MappingID, c.LocalVersion, c.RemoteVersion, c.RemoteETag,
		formatTime(c.DetectedAt), nullTime(c.ResolvedAt), c.Resolution, c.ResolvedBy); err != nil {
		return errors.InternalError("failed to create conflict", err)
	}
	return nil
}

func (q *queries) GetConflict(ctx context.Context, id string) (*models.CardDavConflict, error) {
	c, err := scanConflict(q.queryRow(ctx, `SELECT `+conflictColumns+` FROM carddav_conflicts c WHERE c.id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "conflict")
	}
	return c, nil
}

// ListUnresolvedConflicts returns open conflicts on the user's connection,
// oldest first.
func (q *queries) ListUnresolvedConflicts(ctx context.Context, userID string) ([]*models.CardDavConflict, error) {
	rows, err := q.query(ctx, `SELECT `+conflictColumns+` FROM carddav_conflicts c
		JOIN carddav_mappings m ON m.id = c.mapping_id
		JOIN carddav_connections cn ON cn.id = m.connection_id
		WHERE cn.user_id = ? AND c.resolved_at IS NULL
		ORDER BY c.detected_at, c.id`, userID)
	if err != nil {
		return nil, errors.InternalError("failed to list conflicts", err)
	}
	defer rows.Close()

	var out []*models.CardDavConflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, errors.InternalError("failed to scan conflict", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError("failed to list conflicts", err)
	}
	return out, nil
}

func (q *queries) ResolveConflict(ctx context.Context, id, resolution, resolvedBy string, at time.Time) error {
	res, err := q.exec(ctx, `UPDATE carddav_conflicts SET resolved_at = ?, resolution = ?, resolved_by = ?
		WHERE id = ? AND resolved_at IS NULL`, formatTime(at), resolution, resolvedBy, id)
	if err != nil {
		return errors.InternalError("failed to resolve conflict", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.InternalError("failed to resolve conflict", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := q.GetConflict(ctx, id); err != nil {
		return err
	}
	return errors.ConflictError("conflict already resolved").WithContext("conflict_id", id)
}

const pendingColumns = `id, user_id, connection_id, href, etag, uid, raw_vcard, display_name, created_at`

func scanPending(s scanner) (*models.CardDavPendingImport, error) {
	var (
		pi           models.CardDavPendingImport
		connectionID sql.NullString
		createdAt    string
	)
	if err := s.Scan(&pi.ID, &pi.UserID, &connectionID, &pi.Href, &pi.ETag, &pi.UID,
		&pi.RawVCard, &pi.DisplayName, &createdAt); err != nil {
		return nil, err
	}
	pi.ConnectionID = connectionID.String
	pi.CreatedAt = parseTime(createdAt)
	return &pi, nil
}

func (q *queries) CreatePendingImport(ctx context.Context, pi *models.CardDavPendingImport) error {
	pi.ID = idOrNew(pi.ID)
	if pi.CreatedAt.IsZero() {
		pi.CreatedAt = time.Now().UTC()
	}
	if _, err := q.exec(ctx, `INSERT INTO carddav_pending_imports (`+pendingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pi.ID, pi.UserID, nullString(pi.ConnectionID), pi.Href, pi.ETag, pi.UID,
		pi.RawVCard, pi.DisplayName, formatTime(pi.CreatedAt)); err != nil {
		return errors.InternalError("failed to stage import", err)
	}
	return nil
}

func (q *queries) UpdatePendingImport(ctx context.Context, pi *models.CardDavPendingImport) error {
	return q.execOne(ctx, "pending import", `UPDATE carddav_pending_imports SET
		etag = ?, uid = ?, raw_vcard = ?, display_name = ? WHERE id = ?`,
		pi.ETag, pi.UID, pi.RawVCard, pi.DisplayName, pi.ID)
}

func (q *queries) GetPendingImport(ctx context.Context, userID, id string) (*models.CardDavPendingImport, error) {
	pi, err := scanPending(q.queryRow(ctx, `SELECT `+pendingColumns+` FROM carddav_pending_imports
		WHERE user_id = ? AND id = ?`, userID, id))
	if err != nil {
		return nil, notFoundOr(err, "pending import")
	}
	return pi, nil
}

func (q *queries) FindPendingImportByHref(ctx context.Context, connectionID, href string) (*models.CardDavPendingImport, error) {
	pi, err := scanPending(q.queryRow(ctx, `SELECT `+pendingColumns+` FROM carddav_pending_imports
		WHERE connection_id = ? AND href = ? ORDER BY created_at LIMIT 1`, connectionID, href))
	if err != nil {
		return nil, notFoundOr(err, "pending import")
	}
	return pi, nil
}

func (q *queries) ListPendingImports(ctx context.Context, userID string) ([]*models.CardDavPendingImport, error) {
	rows, err := q.query(ctx, `SELECT `+pendingColumns+` FROM carddav_pending_imports
		WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, errors.InternalError("failed to list pending imports", err)
	}
	defer rows.Close()

	var out []*models.CardDavPendingImport
	for rows.Next() {
		pi, err := scanPending(rows)
		if err != nil {
			return nil, errors.InternalError("failed to scan pending import", err)
		}
		out = append(out, pi)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError("failed to list pending imports", err)
	}
	return out, nil
}

func (q *queries) DeletePendingImport(ctx context.Context, id string) error {
	return q.execOne(ctx, "pending import", `DELETE FROM carddav_pending_imports WHERE id = ?`, id)
}
