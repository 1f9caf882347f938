package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
)

func testConfig() Config {
	return Config{MaxFailures: 2, Timeout: 50 * time.Millisecond, MaxConcurrentRequests: 1}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Timeout: time.Second, MaxConcurrentRequests: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, MaxConcurrentRequests: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, Timeout: time.Second}.Validate())
}

func TestBreaker_OpensOnTransientFailures(t *testing.T) {
	b := New("dav.example.com", testConfig(), logging.NewNopLogger())
	ctx := context.Background()
	transient := errors.ConnectionError("server returned 503", nil)

	assert.Equal(t, transient, b.Execute(ctx, func() error { return transient }))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, transient, b.Execute(ctx, func() error { return transient }))
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func() error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, IsOpenError(err))
	assert.True(t, errors.IsType(err, errors.ErrTypeConnection))

	time.Sleep(60 * time.Millisecond)
	assert.NoError(t, b.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_SemanticErrorsDoNotTrip(t *testing.T) {
	b := New("dav.example.com", testConfig(), logging.NewNopLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := b.Execute(ctx, func() error { return errors.PreconditionError("etag mismatch") })
		assert.True(t, errors.IsType(err, errors.ErrTypePrecondition))
		err = b.Execute(ctx, func() error { return errors.AuthError("unauthorized") })
		assert.True(t, errors.IsType(err, errors.ErrTypeAuth))
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_InvalidConfigFallsBack(t *testing.T) {
	b := New("x", Config{}, logging.NewNopLogger())
	assert.Equal(t, "x", b.Name())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_CancelledContext(t *testing.T) {
	b := New("x", testConfig(), logging.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Execute(ctx, func() error { return nil }), context.Canceled)
}

func TestManager_SharesBreakers(t *testing.T) {
	m := NewManager(testConfig(), logging.NewNopLogger())
	a := m.Get("dav.example.com")
	assert.Same(t, a, m.Get("dav.example.com"))
	assert.NotSame(t, a, m.Get("other.example.com"))
	assert.Equal(t, map[string]string{"dav.example.com": "closed", "other.example.com": "closed"}, m.States())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
