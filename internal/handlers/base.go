// Package handlers exposes the contact sync operations over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"contact-sync/internal/auth"
	"contact-sync/internal/carddav"
	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/common/validation"
	"contact-sync/internal/crypto"
	"contact-sync/internal/merge"
	"contact-sync/internal/models"
	"contact-sync/internal/storage"
	"contact-sync/internal/syncengine"
)

const maxBodySize = 10 << 20

// SyncService is the part of the sync engine the API drives.
type SyncService interface {
	Sync(ctx context.Context, userID string, opts syncengine.RunOptions) (*syncengine.Result, error)
	StageUpload(ctx context.Context, userID, text string) ([]*models.CardDavPendingImport, error)
	ImportPending(ctx context.Context, userID, pendingID string) (*models.Person, error)
	ListPending(ctx context.Context, userID string) ([]*models.CardDavPendingImport, error)
	DismissPending(ctx context.Context, userID, pendingID string) error
}

type ConflictService interface {
	List(ctx context.Context, userID string) ([]*models.CardDavConflict, error)
	Resolve(ctx context.Context, userID, conflictID, resolution string) (*models.CardDavConflict, error)
}

type MergeService interface {
	Merge(ctx context.Context, userID, primaryID, secondaryID string, overrides *merge.FieldOverrides) (string, error)
}

// Deps are the collaborators of Handlers. Clients is optional and only
// used to verify credentials when a connection is saved with ?verify=true.
type Deps struct {
	Store     storage.Store
	Sync      SyncService
	Conflicts ConflictService
	Merge     MergeService
	Secrets   crypto.SecretStore
	Clients   carddav.ClientFactory
	Policy    carddav.URLPolicy
	Auth      *auth.Auth
	Logger    logging.Logger
}

type Handlers struct {
	store     storage.Store
	sync      SyncService
	conflicts ConflictService
	merge     MergeService
	secrets   crypto.SecretStore
	clients   carddav.ClientFactory
	policy    carddav.URLPolicy
	auth      *auth.Auth
	logger    logging.Logger
}

func New(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		store:     deps.Store,
		sync:      deps.Sync,
		conflicts: deps.Conflicts,
		merge:     deps.Merge,
		secrets:   deps.Secrets,
		clients:   deps.Clients,
		policy:    deps.Policy,
		auth:      deps.Auth,
		logger:    deps.Logger,
	}
}

type errorResponse struct {
	Error  string                  `json:"error"`
	Type   errors.ErrorType        `json:"type,omitempty"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps an error to the HTTP status the API answers with.
func statusFor(err error) int {
	switch errors.GetType(err) {
	case errors.ErrTypeValidation:
		return http.StatusBadRequest
	case errors.ErrTypeAuth:
		return http.StatusUnauthorized
	case errors.ErrTypeForbidden:
		return http.StatusForbidden
	case errors.ErrTypeNotFound:
		return http.StatusNotFound
	case errors.ErrTypeConflict:
		return http.StatusConflict
	case errors.ErrTypePrecondition:
		return http.StatusPreconditionFailed
	case errors.ErrTypeConnection, errors.ErrTypeTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), Type: errors.GetType(err)}
	if appErr, ok := errors.As(err); ok {
		resp.Error = appErr.Message
		if fields, ok := appErr.Context["fields"].([]validation.FieldError); ok {
			resp.Fields = fields
		}
	}

	logger := h.logger.WithContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", err, logging.String("path", r.URL.Path), logging.Int("status", status))
		if status == http.StatusInternalServerError {
			resp.Error = "Internal server error"
		}
	} else {
		logger.Debug("Request rejected", logging.String("path", r.URL.Path), logging.Int("status", status), logging.Err(err))
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a size-limited JSON body into v and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.ValidationError("request body is empty")
		}
		return errors.ValidationError("invalid JSON body").WithCause(err)
	}
	return validation.ValidateStruct(v)
}
