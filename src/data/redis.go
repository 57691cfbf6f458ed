package data

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockPrefix   = "guildgov:lock:"
	countPrefix  = "guildgov:members:"
	StreamEvents = "guildgov.events"
)

// NewRedis parses a redis:// URL and returns a client. An empty URL returns
// nil so callers can run without Redis.
func NewRedis(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return redis.NewClient(opt), nil
}

// PublishEvent appends a governance event to the events stream and returns
// the generated event ID.
func PublishEvent(ctx context.Context, rdb *redis.Client, kind, guildID string, payload map[string]interface{}) (string, error) {
	id := uuid.NewString()
	values := map[string]interface{}{
		"id":    id,
		"kind":  kind,
		"guild": guildID,
		"time":  time.Now().UTC().Unix(),
	}
	for k, v := range payload {
		values[k] = v
	}
	_, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamEvents,
		MaxLen: 10000,
		Approx: true,
		Values: values,
	}).Result()
	return id, err
}

// AcquireLock takes a lease on name for ttl. It returns a token for
// ReleaseLock, or ok=false when another holder has it.
func AcquireLock(ctx context.Context, rdb *redis.Client, name string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = rdb.SetNX(ctx, lockPrefix+name, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// ReleaseLock drops the lease if token still owns it.
func ReleaseLock(ctx context.Context, rdb *redis.Client, name, token string) error {
	return releaseScript.Run(ctx, rdb, []string{lockPrefix + name}, token).Err()
}

// CachedMemberCount returns a cached membership count, or ok=false on miss.
func CachedMemberCount(ctx context.Context, rdb *redis.Client, guildID string) (int, bool, error) {
	val, err := rdb.Get(ctx, countPrefix+guildID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// StoreMemberCount caches a membership count for ttl.
func StoreMemberCount(ctx context.Context, rdb *redis.Client, guildID string, count int, ttl time.Duration) error {
	return rdb.Set(ctx, countPrefix+guildID, count, ttl).Err()
}
