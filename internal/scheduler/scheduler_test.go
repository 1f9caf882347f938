package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/models"
	"contact-sync/internal/storage/sqlite"
	"contact-sync/internal/storage/sqlstore"
	"contact-sync/internal/syncengine"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func TestIsDue(t *testing.T) {
	tests := []struct {
		name string
		conn models.CardDavConnection
		want bool
	}{
		{"never synced", models.CardDavConnection{SyncEnabled: true, AutoSyncInterval: time.Hour}, true},
		{"interval elapsed", models.CardDavConnection{SyncEnabled: true, AutoSyncInterval: time.Hour, LastSyncAt: ago(time.Hour)}, true},
		{"interval not elapsed", models.CardDavConnection{SyncEnabled: true, AutoSyncInterval: time.Hour, LastSyncAt: ago(59 * time.Minute)}, false},
		{"sync disabled", models.CardDavConnection{AutoSyncInterval: time.Hour}, false},
		{"manual only", models.CardDavConnection{SyncEnabled: true}, false},
		{
			"recent failure waits a full interval",
			models.CardDavConnection{SyncEnabled: true, AutoSyncInterval: time.Hour, LastSyncAt: ago(3 * time.Hour), LastErrorAt: ago(time.Minute)},
			false,
		},
		{
			"old failure after a recent success",
			models.CardDavConnection{SyncEnabled: true, AutoSyncInterval: time.Hour, LastSyncAt: ago(2 * time.Hour), LastErrorAt: ago(5 * time.Hour)},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDue(&tt.conn, now))
		})
	}
}

type fakeSyncer struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
}

func (f *fakeSyncer) SyncConnection(ctx context.Context, conn *models.CardDavConnection, opts syncengine.RunOptions) (*syncengine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, conn.UserID)
	if err := f.errs[conn.UserID]; err != nil {
		return nil, err
	}
	return &syncengine.Result{ConnectionID: conn.ID}, nil
}

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlite.Open(&sqlite.Config{DatabasePath: filepath.Join(t.TempDir(), "scheduler.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func addConnection(t *testing.T, store *sqlstore.Store, userID string, enabled bool, lastSync *time.Time) {
	t.Helper()
	ctx := context.Background()
	conn := &models.CardDavConnection{
		UserID:           userID,
		ServerURL:        "https://dav.example.com/",
		Username:         userID,
		SyncEnabled:      enabled,
		AutoSyncInterval: time.Hour,
	}
	require.NoError(t, store.UpsertConnection(ctx, conn))
	if lastSync != nil {
		conn.LastSyncAt = lastSync
		require.NoError(t, store.UpdateConnectionSyncState(ctx, conn))
	}
}

func TestSweepConnections(t *testing.T) {
	store := newStore(t)
	addConnection(t, store, "fresh", true, nil)
	addConnection(t, store, "failing", true, nil)
	addConnection(t, store, "busy", true, nil)
	addConnection(t, store, "recent", true, ago(10*time.Minute))
	addConnection(t, store, "stale", true, ago(2*time.Hour))
	addConnection(t, store, "disabled", false, nil)

	syncer := &fakeSyncer{errs: map[string]error{
		"failing": errors.AuthError("CardDAV server rejected the credentials"),
		"busy":    errors.ConflictError("sync already in progress"),
	}}
	s, err := New(store, syncer, nil, Config{
		InterConnectionDelay: time.Millisecond,
		Logger:               logging.NewNopLogger(),
		Now:                  func() time.Time { return now },
	})
	require.NoError(t, err)

	synced, err := s.SweepConnections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, synced)
	assert.Equal(t, []string{"fresh", "failing", "busy", "stale"}, syncer.calls)
}

func TestSweepConnections_StopsOnCancel(t *testing.T) {
	store := newStore(t)
	addConnection(t, store, "a", true, nil)
	addConnection(t, store, "b", true, nil)

	syncer := &fakeSyncer{}
	s, err := New(store, syncer, nil, Config{
		InterConnectionDelay: time.Hour,
		Logger:               logging.NewNopLogger(),
		Now:                  func() time.Time { return now },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	synced, err := s.SweepConnections(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, synced)
	assert.Equal(t, []string{"a"}, syncer.calls)
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSweeper) Sweep(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 0, fmt.Errorf("notifier offline")
}

func (c *countingSweeper) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestScheduler_RunsJobs(t *testing.T) {
	store := newStore(t)
	sweeper := &countingSweeper{}
	s, err := New(store, &fakeSyncer{}, sweeper, Config{
		SyncSchedule:     "@every 1s",
		ReminderSchedule: "@every 1s",
		Logger:           logging.NewNopLogger(),
	})
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return sweeper.count() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(newStore(t), &fakeSyncer{}, nil, Config{SyncSchedule: "every minute", Logger: logging.NewNopLogger()})
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}
