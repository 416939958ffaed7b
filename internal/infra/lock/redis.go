package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"recap-board/internal/domain"
	"recap-board/internal/infra/metrics"
)

// RedisLock реализует domain.KeyLock через SET NX PX с токеном владельца.
type RedisLock struct {
	client *redis.Client
}

// NewRedis создаёт лок поверх клиента Redis.
func NewRedis(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

var _ domain.KeyLock = (*RedisLock)(nil)

// релиз удаляет ключ только если токен совпал: чужой лок после
// истечения TTL трогать нельзя.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

// Acquire захватывает ключ. Занятый ключ — domain.ErrIngestBusy.
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	start := time.Now()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	metrics.ObserveNetworkRequest("redis", "lock_acquire", key, start, err)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrIngestBusy
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		start := time.Now()
		err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
		metrics.ObserveNetworkRequest("redis", "lock_release", key, start, err)
	}
	return release, nil
}
