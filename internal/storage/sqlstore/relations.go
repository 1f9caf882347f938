package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"contact-sync/internal/common/errors"
	"contact-sync/internal/models"
)

func (q *queries) CreateRelationshipType(ctx context.Context, rt *models.RelationshipType) error {
	rt.ID = idOrNew(rt.ID)
	if _, err := q.exec(ctx, `INSERT INTO relationship_types (id, user_id, name) VALUES (?, ?, ?)`,
		rt.ID, rt.UserID, rt.Name); err != nil {
		return errors.InternalError("failed to create relationship type", err)
	}
	return nil
}

func (q *queries) GetRelationshipType(ctx context.Context, userID, id string) (*models.RelationshipType, error) {
	var rt models.RelationshipType
	err := q.queryRow(ctx, `SELECT id, user_id, name FROM relationship_types WHERE user_id = ? AND id = ?`, userID, id).
		Scan(&rt.ID, &rt.UserID, &rt.Name)
	if err != nil {
		return nil, notFoundOr(err, "relationship type")
	}
	return &rt, nil
}

func (q *queries) CreateRelationship(ctx context.Context, r *models.Relationship) error {
	r.ID = idOrNew(r.ID)
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if _, err := q.exec(ctx, `INSERT INTO relationships
		(id, person_id, related_person_id, relationship_type_id, notes, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.PersonID, r.RelatedPersonID, nullString(r.RelationshipTypeID), r.Notes,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt), nullTime(r.DeletedAt)); err != nil {
		return errors.InternalError("failed to create relationship", err)
	}
	return nil
}

// ListRelationshipsOf returns live relationships in which personID is
// either endpoint.
func (q *queries) ListRelationshipsOf(ctx context.Context, personID string) ([]models.Relationship, error) {
	rows, err := q.query(ctx, `SELECT id, person_id, related_person_id, relationship_type_id, notes,
		created_at, updated_at, deleted_at FROM relationships
		WHERE (person_id = ? OR related_person_id = ?) AND deleted_at IS NULL
		ORDER BY created_at, id`, personID, personID)
	if err != nil {
		return nil, errors.InternalError("failed to list relationships", err)
	}
	defer rows.Close()

	var out []models.Relationship
	for rows.Next() {
		var (
			r                    models.Relationship
			typeID, deletedAt    sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&r.ID, &r.PersonID, &r.RelatedPersonID, &typeID, &r.Notes,
			&createdAt, &updatedAt, &deletedAt); err != nil {
			return nil, errors.InternalError("failed to scan relationship", err)
		}
		r.RelationshipTypeID = typeID.String
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		r.DeletedAt = parseNullTime(deletedAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError("failed to list relationships", err)
	}
	return out, nil
}

func (q *queries) UpdateRelationshipEndpoints(ctx context.Context, id, personID, relatedPersonID string, at time.Time) error {
	return q.execOne(ctx, "relationship",
		`UPDATE relationships SET person_id = ?, related_person_id = ?, updated_at = ? WHERE id = ?`,
		personID, relatedPersonID, formatTime(at), id)
}

func (q *queries) SoftDeleteRelationships(ctx context.Context, ids []string, at time.Time) error {
	for start := 0; start < len(ids); start += inChunk {
		end := min(start+inChunk, len(ids))
		chunk := ids[start:end]
		args := append([]interface{}{formatTime(at), formatTime(at)}, stringArgs(chunk)...)
		if _, err := q.exec(ctx, `UPDATE relationships SET deleted_at = ?, updated_at = ?
			WHERE deleted_at IS NULL AND id IN (`+placeholders(len(chunk))+`)`, args...); err != nil {
			return errors.InternalError("failed to delete relationships", err)
		}
	}
	return nil
}
