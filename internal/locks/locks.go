// Package locks provides the per-connection sync lease. A run holds the
// lease for its whole duration; a second run for the same connection fails
// fast with a conflict error instead of waiting.
//
// Two implementations exist: LocalManager for a single process and
// RedsyncManager (Redlock via go-redsync) when several instances share one
// database.
package locks

import (
	"context"
	"sync"
	"time"

	"contact-sync/internal/common/errors"
)

// Lock is a held lease.
type Lock interface {
	Key() string
	// Release gives the lease up. Calling it twice is harmless.
	Release(ctx context.Context) error
	IsHeld() bool
}

// Manager hands out leases.
type Manager interface {
	// TryAcquire takes the lease for key or returns a conflict AppError if
	// another holder has it. ttl bounds how long a crashed holder blocks others.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
	Close() error
}

// SyncLockKey is the lease name of a connection's sync run.
func SyncLockKey(connectionID string) string {
	return "carddav-sync:" + connectionID
}

func heldError(key string) error {
	return errors.ConflictError("sync already running").WithContext("lock", key)
}

// LocalManager keeps leases in memory.
type LocalManager struct {
	mu     sync.Mutex
	leases map[string]*localLock
	now    func() time.Time
}

type localLock struct {
	manager   *LocalManager
	key       string
	expiresAt time.Time
	released  bool
}

func NewLocalManager() *LocalManager {
	return &LocalManager{
		leases: make(map[string]*localLock),
		now:    time.Now,
	}
}

func (m *LocalManager) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.leases[key]; ok && now.Before(existing.expiresAt) {
		return nil, heldError(key)
	}

	lock := &localLock{manager: m, key: key, expiresAt: now.Add(ttl)}
	m.leases[key] = lock
	return lock, nil
}

func (m *LocalManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leases {
		l.released = true
	}
	m.leases = make(map[string]*localLock)
	return nil
}

func (l *localLock) Key() string {
	return l.key
}

func (l *localLock) Release(ctx context.Context) error {
	m := l.manager
	m.mu.Lock()
	defer m.mu.Unlock()

	l.released = true
	if current, ok := m.leases[l.key]; ok && current == l {
		delete(m.leases, l.key)
	}
	return nil
}

func (l *localLock) IsHeld() bool {
	m := l.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	return !l.released && m.now().Before(l.expiresAt) && m.leases[l.key] == l
}
