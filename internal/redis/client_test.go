package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-sync/internal/common/errors"
)

func TestNewClient(t *testing.T) {
	s := miniredis.RunT(t)

	client, err := NewClient(&Config{Address: s.Addr()})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 10, client.poolSize)
	assert.NoError(t, client.Health(context.Background()))
	assert.NotNil(t, client.Underlying())
}

func TestNewClient_Errors(t *testing.T) {
	_, err := NewClient(nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	_, err = NewClient(&Config{})
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	_, err = NewClient(&Config{Address: addr, DialTimeout: 200 * time.Millisecond})
	assert.True(t, errors.IsType(err, errors.ErrTypeConnection))
}

func TestClient_HealthAfterServerStops(t *testing.T) {
	s := miniredis.RunT(t)

	client, err := NewClient(&Config{Address: s.Addr()})
	require.NoError(t, err)
	defer client.Close()

	s.Close()
	assert.Error(t, client.Health(context.Background()))
}

func TestClient_SetGetDelete(t *testing.T) {
	s := miniredis.RunT(t)

	client, err := NewClient(&Config{Address: s.Addr()})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "jwt:revoked:abc", "1", time.Minute))
	value, err := client.Get(ctx, "jwt:revoked:abc")
	require.NoError(t, err)
	assert.Equal(t, "1", value)

	s.FastForward(2 * time.Minute)
	_, err = client.Get(ctx, "jwt:revoked:abc")
	assert.ErrorIs(t, err, Nil)

	require.NoError(t, client.Set(ctx, "a", "1", 0))
	require.NoError(t, client.Delete(ctx, "a"))
	assert.False(t, s.Exists("a"))
}
