// Package auth validates bearer tokens and puts the caller's user id on
// the request context. Tokens are HS256 JWTs whose subject is the user id.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
)

const (
	issuer        = "contact-sync"
	defaultTTL    = 24 * time.Hour
	revokedPrefix = "jwt:revoked:"
	cookieName    = "token"
)

// Claims are the token claims. The subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// RevocationStore remembers revoked tokens until they expire. The redis
// client satisfies it.
type RevocationStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

type Auth struct {
	secret  []byte
	revoked RevocationStore
	logger  logging.Logger
}

// New creates an Auth. revoked may be nil, in which case tokens stay valid
// until they expire.
func New(secret string, revoked RevocationStore) (*Auth, error) {
	if len(secret) < 32 {
		return nil, errors.ConfigError("JWT secret must be at least 32 characters")
	}
	return &Auth{
		secret:  []byte(secret),
		revoked: revoked,
		logger:  logging.GetGlobalLogger().WithFields(logging.String("component", "auth")),
	}, nil
}

// GenerateJWT issues a token for userID. A non-positive ttl uses 24h.
func (a *Auth) GenerateJWT(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.ValidationError("user id is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := time.Now()
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.InternalError("failed to sign token", err)
	}
	return token, nil
}

// ValidateJWT parses token and rejects bad signatures, expired or revoked
// tokens and tokens without a subject.
func (a *Auth) ValidateJWT(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, errors.AuthError("missing token")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil || !parsed.Valid {
		return nil, errors.AuthError("invalid token").WithCause(err)
	}
	if claims.Subject == "" {
		return nil, errors.AuthError("token has no subject")
	}
	if a.revoked != nil {
		if v, err := a.revoked.Get(ctx, revocationKey(token)); err == nil && v != "" {
			return nil, errors.AuthError("token revoked")
		}
	}
	return claims, nil
}

// Revoke invalidates token for the rest of its lifetime.
func (a *Auth) Revoke(ctx context.Context, token string) error {
	claims, err := a.ValidateJWT(ctx, token)
	if err != nil {
		return err
	}
	if a.revoked == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if err := a.revoked.Set(ctx, revocationKey(token), "1", ttl); err != nil {
		return errors.InternalError("failed to revoke token", err)
	}
	return nil
}

func revocationKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return revokedPrefix + hex.EncodeToString(sum[:])
}

// TokenFromRequest reads the bearer token, falling back to the token
// cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

type ctxKey struct{}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user id, or "" outside RequireAuth.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// RequireAuth rejects requests without a valid token with 401.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.ValidateJWT(r.Context(), TokenFromRequest(r))
		if err != nil {
			a.logger.Debug("Rejected request", logging.String("path", r.URL.Path), logging.Err(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Authentication required"})
			return
		}

		userID := claims.UserID()
		r.Header.Set("X-User-ID", userID)
		ctx := WithUserID(r.Context(), userID)
		ctx = logging.ContextWith(ctx, logging.UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
