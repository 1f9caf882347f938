package carddav

import (
	"context"
	"net/http"
	"time"

	"contact-sync/internal/circuitbreaker"
	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/common/utils"
	"contact-sync/internal/crypto"
	"contact-sync/internal/models"
)

// ClientFactory opens a Client for a stored connection.
type ClientFactory interface {
	Connect(ctx context.Context, conn *models.CardDavConnection) (Client, error)
}

// ConnectorConfig configures every client a Connector builds.
type ConnectorConfig struct {
	Timeout    time.Duration
	Policy     URLPolicy
	Retry      utils.RetryConfig
	Breakers   *circuitbreaker.Manager
	Logger     logging.Logger
	HTTPClient *http.Client
}

// Connector decrypts a connection's password only while building its
// client. The plaintext lives no longer than the client.
type Connector struct {
	secrets crypto.SecretStore
	config  ConnectorConfig
}

func NewConnector(secrets crypto.SecretStore, config ConnectorConfig) *Connector {
	if config.Breakers == nil {
		config.Breakers = circuitbreaker.NewManager(circuitbreaker.DefaultConfig(), config.Logger)
	}
	return &Connector{secrets: secrets, config: config}
}

func (c *Connector) Connect(ctx context.Context, conn *models.CardDavConnection) (Client, error) {
	if conn == nil {
		return nil, errors.NotFoundError("CardDAV connection")
	}
	password, err := c.secrets.Decrypt(conn.EncryptedPassword)
	if err != nil {
		return nil, errors.ConfigError("stored CardDAV password cannot be decrypted").
			WithCause(err).
			WithContext("connection_id", conn.ID)
	}
	return NewHTTPClient(ctx, conn.ServerURL, conn.Username, password, Options{
		Timeout:    c.config.Timeout,
		Policy:     c.config.Policy,
		Retry:      c.config.Retry,
		Breakers:   c.config.Breakers,
		Logger:     c.config.Logger,
		HTTPClient: c.config.HTTPClient,
	})
}

// Policy returns the URL policy used to validate server URLs.
func (c *Connector) Policy() URLPolicy {
	return c.config.Policy
}

var _ ClientFactory = (*Connector)(nil)
