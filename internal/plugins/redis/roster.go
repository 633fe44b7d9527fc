package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRoster keeps one ZSET per room, scored by last check-in time.
// Members decay past the online window; the whole key expires when a room
// goes quiet so idle rooms do not leak memory.
type RedisRoster struct {
	rdb    *redis.Client
	window time.Duration
}

func NewRedisRoster(rdb *redis.Client, window time.Duration) *RedisRoster {
	return &RedisRoster{
		rdb:    rdb,
		window: window,
	}
}

func rosterKey(roomID string) string {
	return "roster:" + roomID
}

// SetOnline adds/refreshes the user in the room's ZSET with the current timestamp.
func (p *RedisRoster) SetOnline(ctx context.Context, roomID, userID string, ttl time.Duration) error {
	key := rosterKey(roomID)
	now := time.Now().Unix()
	err := p.rdb.ZAdd(ctx, key, redis.Z{
		Score:  float64(now),
		Member: userID,
	}).Err()
	if err != nil {
		return err
	}
	return p.rdb.Expire(ctx, key, ttl*2).Err()
}

// Online returns users who checked in within the online window.
func (p *RedisRoster) Online(ctx context.Context, roomID string) ([]string, error) {
	key := rosterKey(roomID)
	threshold := time.Now().Add(-p.window).Unix()

	// Drop stale members first (self-cleaning).
	p.rdb.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(threshold, 10))

	return p.rdb.ZRange(ctx, key, 0, -1).Result()
}

func (p *RedisRoster) SetOffline(ctx context.Context, roomID, userID string) error {
	return p.rdb.ZRem(ctx, rosterKey(roomID), userID).Err()
}

func (p *RedisRoster) Clear(ctx context.Context, roomID string) error {
	return p.rdb.Del(ctx, rosterKey(roomID)).Err()
}
