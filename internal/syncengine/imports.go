package syncengine

import (
	"context"

	"contact-sync/internal/carddav"
	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/models"
	"contact-sync/internal/storage"
	"contact-sync/internal/vcard"
)

// StageUpload splits an uploaded .vcf document and stages every parsable
// card as a pending import owned by the user. Unparsable cards are
// skipped; a document without any usable card is rejected.
func (e *Engine) StageUpload(ctx context.Context, userID, text string) ([]*models.CardDavPendingImport, error) {
	var staged []*models.CardDavPendingImport
	skipped := 0
	for _, raw := range vcard.SplitCards(text) {
		card, err := vcard.Decode(raw)
		if err != nil {
			skipped++
			continue
		}
		staged = append(staged, &models.CardDavPendingImport{
			UserID:      userID,
			UID:         card.Person.UID,
			RawVCard:    raw,
			DisplayName: displayName(&card.Person),
		})
	}
	if len(staged) == 0 {
		return nil, errors.ValidationError("file contains no valid vCards")
	}

	err := e.store.WithTx(ctx, func(q storage.Queries) error {
		for _, pi := range staged {
			if err := q.CreatePendingImport(ctx, pi); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Staged uploaded vCards",
		logging.String("user_id", userID),
		logging.Int("staged", len(staged)),
		logging.Int("skipped", skipped),
	)
	return staged, nil
}

// ImportPending imports one staged card. Cards staged from a connection
// are mapped to their remote resource; uploads are exported on the next
// run. The staged row is removed in the same transaction.
func (e *Engine) ImportPending(ctx context.Context, userID, pendingID string) (*models.Person, error) {
	pending, err := e.store.GetPendingImport(ctx, userID, pendingID)
	if err != nil {
		return nil, err
	}
	card, err := vcard.Decode(pending.RawVCard)
	if err != nil {
		return nil, err
	}

	var (
		conn *models.CardDavConnection
		obj  *carddav.VCardObject
	)
	if pending.ConnectionID != "" {
		conn, err = e.store.GetConnection(ctx, pending.ConnectionID)
		if err != nil {
			return nil, err
		}
		if conn.UserID != userID {
			return nil, errors.ForbiddenError("pending import belongs to another user")
		}
		obj = &carddav.VCardObject{Href: pending.Href, ETag: pending.ETag, Data: pending.RawVCard}
	}

	person, err := e.importCard(ctx, userID, card, conn, obj, func(q storage.Queries) error {
		return q.DeletePendingImport(ctx, pending.ID)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("Imported pending contact",
		logging.String("pending_id", pending.ID),
		logging.String("person_id", person.ID),
	)
	return person, nil
}

// ListPending returns the user's staged imports.
func (e *Engine) ListPending(ctx context.Context, userID string) ([]*models.CardDavPendingImport, error) {
	return e.store.ListPendingImports(ctx, userID)
}

// DismissPending drops a staged card without importing it. A card that is
// still on the server is staged again by the next run.
func (e *Engine) DismissPending(ctx context.Context, userID, pendingID string) error {
	pending, err := e.store.GetPendingImport(ctx, userID, pendingID)
	if err != nil {
		return err
	}
	return e.store.DeletePendingImport(ctx, pending.ID)
}
