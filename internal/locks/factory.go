package locks

import (
	"contact-sync/internal/redis"
)

// NewManager returns a RedsyncManager when a Redis client is configured and
// a LocalManager otherwise.
func NewManager(redisClient *redis.Client) (Manager, error) {
	if redisClient == nil {
		return NewLocalManager(), nil
	}
	return NewRedsyncManager(redisClient)
}
