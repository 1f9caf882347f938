package handlers

import (
	"net/http"
	"time"

	"contact-sync/internal/auth"
	"contact-sync/internal/carddav"
	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/models"
)

const defaultAutoSyncInterval = time.Hour

type connectionRequest struct {
	ServerURL string `json:"server_url" validate:"required,server_url"`
	Username  string `json:"username" validate:"required,max=255"`
	// Password may be omitted to keep the stored one.
	Password         string `json:"password,omitempty" validate:"max=1024"`
	AddressBookURL   string `json:"address_book_url,omitempty" validate:"omitempty,server_url"`
	SyncEnabled      *bool  `json:"sync_enabled,omitempty"`
	AutoSyncInterval string `json:"auto_sync_interval,omitempty" validate:"omitempty,duration"`
	ImportMode       string `json:"import_mode,omitempty" validate:"omitempty,import_mode"`
}

type connectionResponse struct {
	ID               string     `json:"id"`
	ServerURL        string     `json:"server_url"`
	Username         string     `json:"username"`
	AddressBookURL   string     `json:"address_book_url,omitempty"`
	SyncEnabled      bool       `json:"sync_enabled"`
	AutoSyncInterval string     `json:"auto_sync_interval"`
	ImportMode       string     `json:"import_mode"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	LastErrorAt      *time.Time `json:"last_error_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toConnectionResponse(c *models.CardDavConnection) connectionResponse {
	return connectionResponse{
		ID:               c.ID,
		ServerURL:        c.ServerURL,
		Username:         c.Username,
		AddressBookURL:   c.AddressBookURL,
		SyncEnabled:      c.SyncEnabled,
		AutoSyncInterval: c.AutoSyncInterval.String(),
		ImportMode:       c.ImportMode,
		LastSyncAt:       c.LastSyncAt,
		LastError:        c.LastError,
		LastErrorAt:      c.LastErrorAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// GetConnection returns the caller's CardDAV connection
// @Summary Get CardDAV connection
// @Description Returns the connection settings and last sync state. The password is never returned.
// @Tags carddav
// @Produce json
// @Security BearerAuth
// @Success 200 {object} connectionResponse
// @Failure 404 {object} errorResponse "No connection configured"
// @Router /api/carddav/connection [get]
func (h *Handlers) GetConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.store.GetConnectionByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConnectionResponse(conn))
}

// PutConnection creates or replaces the caller's CardDAV connection
// @Summary Save CardDAV connection
// @Description Validates the server URL against the outbound policy, encrypts the password and stores the connection. With verify=true the credentials are checked against the server first.
// @Tags carddav
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param verify query bool false "Check credentials before saving"
// @Success 200 {object} connectionResponse
// @Failure 400 {object} errorResponse "Invalid settings"
// @Failure 502 {object} errorResponse "Server unreachable"
// @Router /api/carddav/connection [put]
func (h *Handlers) PutConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)

	var req connectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	serverURL, err := carddav.ValidateServerURL(ctx, req.ServerURL, h.policy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.AddressBookURL != "" {
		if _, err := carddav.ValidateServerURL(ctx, req.AddressBookURL, h.policy); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	existing, err := h.store.GetConnectionByUser(ctx, userID)
	if err != nil && !errors.IsType(err, errors.ErrTypeNotFound) {
		h.writeError(w, r, err)
		return
	}

	conn := &models.CardDavConnection{
		UserID:           userID,
		ServerURL:        serverURL.String(),
		Username:         req.Username,
		AddressBookURL:   req.AddressBookURL,
		SyncEnabled:      true,
		AutoSyncInterval: defaultAutoSyncInterval,
		ImportMode:       models.ImportModeManual,
	}
	if existing != nil {
		conn.ID = existing.ID
		conn.EncryptedPassword = existing.EncryptedPassword
		conn.SyncEnabled = existing.SyncEnabled
		conn.AutoSyncInterval = existing.AutoSyncInterval
		conn.ImportMode = existing.ImportMode
		conn.CreatedAt = existing.CreatedAt
	}
	if req.SyncEnabled != nil {
		conn.SyncEnabled = *req.SyncEnabled
	}
	if req.AutoSyncInterval != "" {
		// Already checked by the duration rule.
		conn.AutoSyncInterval, _ = time.ParseDuration(req.AutoSyncInterval)
	}
	if req.ImportMode != "" {
		conn.ImportMode = req.ImportMode
	}

	switch {
	case req.Password != "":
		encrypted, err := h.secrets.Encrypt(req.Password)
		if err != nil {
			h.writeError(w, r, errors.InternalError("failed to encrypt password", err))
			return
		}
		conn.EncryptedPassword = encrypted
	case existing == nil:
		h.writeError(w, r, errors.ValidationError("field 'password' is required"))
		return
	}

	if r.URL.Query().Get("verify") == "true" && h.clients != nil {
		if err := h.verify(r, conn); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	if err := h.store.UpsertConnection(ctx, conn); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.WithContext(ctx).Info("CardDAV connection saved",
		logging.String("connection_id", conn.ID),
		logging.String("server", serverURL.Host),
		logging.Bool("sync_enabled", conn.SyncEnabled))

	writeJSON(w, http.StatusOK, toConnectionResponse(conn))
}

// verify checks the credentials by discovering the address books.
func (h *Handlers) verify(r *http.Request, conn *models.CardDavConnection) error {
	client, err := h.clients.Connect(r.Context(), conn)
	if err != nil {
		return err
	}
	books, err := client.FetchAddressBooks(r.Context())
	if errors.IsType(err, errors.ErrTypeAuth) {
		return errors.ValidationError("the CardDAV server rejected the credentials").WithCause(err)
	}
	if err != nil {
		return err
	}
	if len(books) == 0 {
		return errors.ValidationError("the server has no address books for this account")
	}
	return nil
}
