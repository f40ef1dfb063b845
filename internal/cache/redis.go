package cache

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/saltoriousSIG/peeples-pins-generator/pkg/logger"
)

const redisKeyPrefix = "badge:image:"

// Redis is an ImageCache backed by a shared redis instance. Keys carry no
// expiry: content ids address immutable bytes.
type Redis struct {
	client *redis.Client
	log    *logger.Logger
}

var _ ImageCache = (*Redis)(nil)

// NewRedis constructs a redis-backed cache.
func NewRedis(addr, password string, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.NewDefault("image-cache")
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		log:    log,
	}
}

func (r *Redis) Get(ctx context.Context, cid string) ([]byte, bool) {
	data, err := r.client.Get(ctx, redisKeyPrefix+cid).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		r.log.WithError(err).Warn("image cache read failed")
		return nil, false
	}
	return data, true
}

func (r *Redis) Set(ctx context.Context, cid string, data []byte) {
	if len(data) == 0 {
		return
	}
	if err := r.client.Set(ctx, redisKeyPrefix+cid, data, 0).Err(); err != nil {
		r.log.WithError(err).Warn("image cache write failed")
	}
}

// Close releases the underlying redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
