package locks

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"

	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/redis"
)

// RedsyncManager implements Manager with the Redlock algorithm. Held leases
// are extended in the background at a third of their ttl until released.
type RedsyncManager struct {
	redsync *redsync.Redsync
	logger  logging.Logger

	mu     sync.Mutex
	leases map[string]*redsyncLock
}

type redsyncLock struct {
	mutex   *redsync.Mutex
	key     string
	ttl     time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	manager *RedsyncManager
	once    sync.Once
}

func NewRedsyncManager(redisClient *redis.Client) (*RedsyncManager, error) {
	if redisClient == nil {
		return nil, errors.ConfigError("redis client is required")
	}

	pool := goredis.NewPool(redisClient.Underlying())
	return &RedsyncManager{
		redsync: redsync.New(pool),
		logger:  logging.GetGlobalLogger(),
		leases:  make(map[string]*redsyncLock),
	}, nil
}

func (rm *RedsyncManager) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	mutex := rm.redsync.NewMutex("lock:"+key, redsync.WithExpiry(ttl), redsync.WithTries(1))

	if err := mutex.TryLockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if stderrors.As(err, &taken) || stderrors.Is(err, redsync.ErrFailed) {
			return nil, heldError(key)
		}
		return nil, errors.ConnectionError("failed to acquire distributed lock", err).WithContext("lock", key)
	}

	lockCtx, cancel := context.WithCancel(context.Background())
	lock := &redsyncLock{
		mutex:   mutex,
		key:     key,
		ttl:     ttl,
		ctx:     lockCtx,
		cancel:  cancel,
		manager: rm,
	}

	rm.mu.Lock()
	rm.leases[key] = lock
	rm.mu.Unlock()

	go rm.renew(lock)
	return lock, nil
}

// renew extends the lease until it is released or lost.
func (rm *RedsyncManager) renew(lock *redsyncLock) {
	interval := lock.ttl / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-lock.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok, err := lock.mutex.ExtendContext(ctx)
			cancel()

			if err != nil || !ok {
				rm.logger.Warn("sync lock lost", logging.String("lock", lock.key), logging.Err(err))
				lock.release()
				return
			}
		}
	}
}

func (rm *RedsyncManager) Close() error {
	rm.mu.Lock()
	leases := make([]*redsyncLock, 0, len(rm.leases))
	for _, l := range rm.leases {
		leases = append(leases, l)
	}
	rm.mu.Unlock()

	for _, l := range leases {
		l.release()
	}
	return nil
}

func (l *redsyncLock) Key() string {
	return l.key
}

func (l *redsyncLock) Release(ctx context.Context) error {
	l.release()
	return nil
}

func (l *redsyncLock) release() {
	l.once.Do(func() {
		l.cancel()

		rm := l.manager
		rm.mu.Lock()
		if current, ok := rm.leases[l.key]; ok && current == l {
			delete(rm.leases, l.key)
		}
		rm.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := l.mutex.UnlockContext(ctx); err != nil {
			rm.logger.Debug("sync lock unlock failed", logging.String("lock", l.key), logging.Err(err))
		}
	})
}

func (l *redsyncLock) IsHeld() bool {
	select {
	case <-l.ctx.Done():
		return false
	default:
		return true
	}
}

var (
	_ Manager = (*LocalManager)(nil)
	_ Manager = (*RedsyncManager)(nil)
)
