package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "contact-sync/internal/common/errors"
)

func fastConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestRetryWithBackoff_RetriesTransient(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return apperrors.ConnectionError("server returned 503", nil)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_SemanticErrorsNotRetried(t *testing.T) {
	for _, semantic := range []error{
		apperrors.AuthError("401"),
		apperrors.NotFoundError("vcard"),
		apperrors.PreconditionError("412"),
	} {
		attempts := 0
		err := RetryWithBackoff(context.Background(), fastConfig(), func() error {
			attempts++
			return semantic
		})

		assert.Equal(t, 1, attempts)
		assert.Same(t, semantic, err)
	}
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastConfig(), func() error {
		attempts++
		return apperrors.ConnectionError("dial tcp: refused", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConnection))
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, cfg, func() error {
		return apperrors.ConnectionError("timeout", nil)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithBackoff_NilPredicateRetriesEverything(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryableErrors = nil

	attempts := 0
	_ = RetryWithBackoff(context.Background(), cfg, func() error {
		attempts++
		return errors.New("plain")
	})
	assert.Equal(t, 3, attempts)
}

func TestRandomInt64n(t *testing.T) {
	assert.Equal(t, int64(0), randomInt64n(0))
	assert.Equal(t, int64(0), randomInt64n(-5))
	for i := 0; i < 100; i++ {
		v := randomInt64n(10)
		assert.GreaterOrEqual(t, v, int64(0))
		assert.Less(t, v, int64(10))
	}
}

func TestIdentifiers(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)

	_, err := uuid.Parse(NewVCardUID())
	assert.NoError(t, err)
	assert.Contains(t, NewRunID(), "run-")
}

func TestStringHelpers(t *testing.T) {
	assert.Nil(t, StringOrNil(""))
	assert.Equal(t, "x", *StringOrNil("x"))
	assert.Equal(t, "", StringFromPtr(nil))
	assert.Equal(t, "b", FirstNonEmpty("", "  ", "b", "c"))
}
