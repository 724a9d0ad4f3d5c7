package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/timmy/sprintreport/internal/config"
	"github.com/timmy/sprintreport/internal/domain"
)

// RedisJobRepository persists job snapshots as JSON strings in Redis.
// An index set tracks every job ID.
type RedisJobRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisJobRepository connects to Redis and verifies the connection.
// Parameters:
//   - ctx: context for the initial ping.
//   - cfg: Redis connection settings.
//
// Returns:
//   - *RedisJobRepository: connected repository.
//   - error: non-nil if Redis is unreachable.
func NewRedisJobRepository(ctx context.Context, cfg *config.RedisConfig) (*RedisJobRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	return NewRedisJobRepositoryWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisJobRepositoryWithClient wraps an existing client.
func NewRedisJobRepositoryWithClient(client *redis.Client, prefix string) *RedisJobRepository {
	if prefix == "" {
		prefix = "sprintreport:"
	}
	return &RedisJobRepository{client: client, prefix: prefix}
}

func (r *RedisJobRepository) jobKey(id string) string { return r.prefix + "job:" + id }

func (r *RedisJobRepository) indexKey() string { return r.prefix + "jobs" }

// Save writes the job snapshot and adds it to the index.
func (r *RedisJobRepository) Save(ctx context.Context, job *domain.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.jobKey(job.ID), payload, 0)
	pipe.SAdd(ctx, r.indexKey(), job.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// LoadAll returns every indexed job. IDs whose payload has expired are skipped.
func (r *RedisJobRepository) LoadAll(ctx context.Context) ([]*domain.Job, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.jobKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*domain.Job, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var job domain.Job
		if err := json.Unmarshal([]byte(s), &job); err != nil {
			return nil, fmt.Errorf("decode job %s: %w", ids[i], err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// Close releases the Redis connection.
func (r *RedisJobRepository) Close() error {
	return r.client.Close()
}
