package store

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/go-redis/redis/v8"

    "github.com/rudilee/OrangeServer/internal/config"
    "github.com/rudilee/OrangeServer/pkg/errors"
    "github.com/rudilee/OrangeServer/pkg/logger"
)

const cacheTTL = 5 * time.Minute

// Cache keeps per-agent skill and group lookups out of the hot login path.
// It is strictly best-effort: with no Redis configured every lookup is a
// miss and nothing fails.
type Cache struct {
    client *redis.Client
    prefix string
}

// NewCache connects to Redis; an empty host yields a disabled cache
func NewCache(cfg config.RedisConfig, prefix string) (*Cache, error) {
    if cfg.Host == "" {
        return &Cache{}, nil
    }

    client := redis.NewClient(&redis.Options{
        Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
        Password:     cfg.Password,
        DB:           cfg.DB,
        PoolSize:     cfg.PoolSize,
        MinIdleConns: cfg.MinIdleConns,
        MaxRetries:   cfg.MaxRetries,
    })

    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    if err := client.Ping(ctx).Err(); err != nil {
        return &Cache{}, errors.Wrap(err, errors.ErrRedis, "failed to connect to Redis")
    }

    logger.Info("Redis cache initialized")
    return &Cache{client: client, prefix: prefix}, nil
}

func (c *Cache) key(k string) string {
    if c.prefix != "" {
        return fmt.Sprintf("%s:%s", c.prefix, k)
    }
    return k
}

// get reports whether dest was populated from the cache
func (c *Cache) get(ctx context.Context, key string, dest interface{}) bool {
    if c == nil || c.client == nil {
        return false
    }

    val, err := c.client.Get(ctx, c.key(key)).Result()
    if err == redis.Nil {
        return false
    }
    if err != nil {
        logger.WithField("key", key).WithError(err).Warn("Cache get failed")
        return false
    }

    if err := json.Unmarshal([]byte(val), dest); err != nil {
        logger.WithField("key", key).WithError(err).Warn("Cache unmarshal failed")
        return false
    }

    return true
}

func (c *Cache) set(ctx context.Context, key string, value interface{}) {
    if c == nil || c.client == nil {
        return
    }

    data, err := json.Marshal(value)
    if err != nil {
        return
    }

    if err := c.client.Set(ctx, c.key(key), data, cacheTTL).Err(); err != nil {
        logger.WithField("key", key).WithError(err).Warn("Cache set failed")
    }
}

func (c *Cache) GetSkills(ctx context.Context, agentID int64, dest interface{}) bool {
    return c.get(ctx, fmt.Sprintf("agent:%d:skills", agentID), dest)
}

func (c *Cache) SetSkills(ctx context.Context, agentID int64, skills interface{}) {
    c.set(ctx, fmt.Sprintf("agent:%d:skills", agentID), skills)
}

func (c *Cache) GetGroups(ctx context.Context, agentID int64, dest interface{}) bool {
    return c.get(ctx, fmt.Sprintf("agent:%d:groups", agentID), dest)
}

func (c *Cache) SetGroups(ctx context.Context, agentID int64, groups interface{}) {
    c.set(ctx, fmt.Sprintf("agent:%d:groups", agentID), groups)
}
