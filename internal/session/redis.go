package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix is the Redis key prefix for all conversation hashes.
const KeyPrefix = "botsession:"

// redisRecord is the hash layout stored per phone. Context is kept as a JSON
// blob inside the hash so a single HGetAll round trip restores everything.
type redisRecord struct {
	Step      string `redis:"step"`
	Context   string `redis:"context"`
	Role      string `redis:"role"`
	UpdatedAt int64  `redis:"updated_at"`
}

// RedisCache stores conversation state in Redis with a sliding TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis at addr and verifies the connection. A
// non-positive ttl falls back to DefaultTTL.
func NewRedisCache(addr string, ttl time.Duration) (*RedisCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, phone string) (State, bool, error) {
	key := KeyPrefix + phone
	var rec redisRecord
	if err := c.client.HGetAll(ctx, key).Scan(&rec); err != nil {
		return State{}, false, fmt.Errorf("session: get %s: %w", phone, err)
	}
	if rec.Step == "" && rec.Role == "" {
		return State{}, false, nil
	}

	st := State{
		Step:      rec.Step,
		Role:      rec.Role,
		UpdatedAt: time.Unix(rec.UpdatedAt, 0),
	}
	if rec.Context != "" {
		if err := json.Unmarshal([]byte(rec.Context), &st.Context); err != nil {
			return State{}, false, fmt.Errorf("session: decode context for %s: %w", phone, err)
		}
	}
	return st, true, nil
}

func (c *RedisCache) Put(ctx context.Context, phone string, state State) error {
	key := KeyPrefix + phone
	contextJSON := "{}"
	if len(state.Context) > 0 {
		buf, err := json.Marshal(state.Context)
		if err != nil {
			return fmt.Errorf("session: encode context for %s: %w", phone, err)
		}
		contextJSON = string(buf)
	}

	fields := map[string]interface{}{
		"step":       state.Step,
		"context":    contextJSON,
		"role":       state.Role,
		"updated_at": time.Now().Unix(),
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: put %s: %w", phone, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, phone string) error {
	return c.client.Del(ctx, KeyPrefix+phone).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
