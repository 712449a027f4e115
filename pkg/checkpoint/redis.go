package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"sfextract/pkg/config"
	errs "sfextract/pkg/errors"
	"sfextract/pkg/logger"
)

// redisClient is the subset of *redis.Client the store needs
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisStore keeps the state under a single Redis key. SET replaces the
// value atomically, so a crash never leaves a partial checkpoint.
type RedisStore struct {
	client   redisClient
	key      string
	location string
	logger   logger.Logger
}

// NewRedisStore connects to the configured Redis server
func NewRedisStore(cfg config.CheckpointConfig, log logger.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
	}

	return newRedisStore(client, cfg.RedisKey, fmt.Sprintf("redis://%s/%d#%s", cfg.RedisAddr, cfg.RedisDB, cfg.RedisKey), log), nil
}

func newRedisStore(client redisClient, key, location string, log logger.Logger) *RedisStore {
	return &RedisStore{client: client, key: key, location: location, logger: logger.OrNop(log)}
}

// Location returns the redis URL and key holding the state
func (r *RedisStore) Location() string {
	return r.location
}

// Save stores the state without expiry
func (r *RedisStore) Save(ctx context.Context, state *JobState) error {
	data, err := encode(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return errs.Wrap(errs.ErrorTypeCheckpoint, "save checkpoint to Redis", err)
	}
	return nil
}

// Load reads the state. An unreachable server is an error rather than an
// absent checkpoint, so an outage never restarts a job from scratch.
func (r *RedisStore) Load(ctx context.Context) (*JobState, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeCheckpoint, "load checkpoint from Redis", err)
	}

	state, err := decode(data)
	if err != nil {
		warnMalformed(r.logger, r.location, err)
		return nil, nil
	}

	r.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"location":      r.location,
		"chunk_index":   state.ChunkIndex,
		"total_records": state.TotalRecordsProcessed,
	})
	return state, nil
}

// Clear deletes the key
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return errs.Wrap(errs.ErrorTypeCheckpoint, "delete checkpoint from Redis", err)
	}
	r.logger.DebugWithFields("Checkpoint cleared", map[string]interface{}{
		"location": r.location,
	})
	return nil
}

// Close releases the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
