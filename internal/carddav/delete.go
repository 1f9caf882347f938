package carddav

import (
	"context"

	"contact-sync/internal/common/errors"
)

// DeleteRemote removes a remote vCard as reliably as the server allows:
// first gated on the known etag, then unconditionally when the etag turned
// out stale, and finally by looking the UID up in books when href no
// longer exists or the server refuses the unconditional delete. books may
// be nil, in which case they are discovered.
//
// The returned error is informational; callers log it and carry on.
func DeleteRemote(ctx context.Context, client Client, books []AddressBook, href, etag, uid string) error {
	err := client.DeleteVCard(ctx, href, etag)
	if err == nil {
		return nil
	}

	if errors.IsType(err, errors.ErrTypePrecondition) && etag != "" {
		if err = client.DeleteVCard(ctx, href, ""); err == nil {
			return nil
		}
	}

	relocate := errors.IsType(err, errors.ErrTypeNotFound) || errors.IsType(err, errors.ErrTypePrecondition)
	if !relocate || uid == "" {
		return err
	}

	if books == nil {
		found, ferr := client.FetchAddressBooks(ctx)
		if ferr != nil {
			return ferr
		}
		books = found
	}
	for _, book := range books {
		obj, ferr := client.FindVCardByUID(ctx, book, uid)
		if errors.IsType(ferr, errors.ErrTypeNotFound) {
			continue
		}
		if ferr != nil {
			return ferr
		}
		if derr := client.DeleteVCard(ctx, obj.Href, obj.ETag); derr != nil {
			if !errors.IsType(derr, errors.ErrTypePrecondition) {
				return derr
			}
			return client.DeleteVCard(ctx, obj.Href, "")
		}
		return nil
	}
	return err
}
