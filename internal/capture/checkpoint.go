package capture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// CheckpointStore persists the last processed stream position per source so
// the adapter can resume after a restart.
type CheckpointStore interface {
	// Load returns the saved position for a source, or zero when the
	// source has never been checkpointed.
	Load(ctx context.Context, source string) (int64, error)

	// Save records the position for a source.
	Save(ctx context.Context, source string, position int64) error
}

// RedisCheckpoints stores checkpoints in Redis. Keys carry no TTL; a
// checkpoint outlives any backlog.
type RedisCheckpoints struct {
	client *redis.Client
}

// NewRedisCheckpoints creates a checkpoint store over an existing client.
func NewRedisCheckpoints(client *redis.Client) *RedisCheckpoints {
	return &RedisCheckpoints{client: client}
}

func checkpointKey(source string) string {
	return fmt.Sprintf("capture:checkpoint:%s", source)
}

// Load returns the saved position, or zero when none exists.
func (s *RedisCheckpoints) Load(ctx context.Context, source string) (int64, error) {
	val, err := s.client.Get(ctx, checkpointKey(source)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	position, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt checkpoint for %s: %w", source, err)
	}
	return position, nil
}

// Save records the position for a source.
func (s *RedisCheckpoints) Save(ctx context.Context, source string, position int64) error {
	key := checkpointKey(source)
	if err := s.client.Set(ctx, key, strconv.FormatInt(position, 10), 0).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// MemoryCheckpoints is an in-process checkpoint store for tests and
// single-node runs.
type MemoryCheckpoints struct {
	mu        sync.Mutex
	positions map[string]int64
}

// NewMemoryCheckpoints creates an empty in-memory checkpoint store.
func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{positions: make(map[string]int64)}
}

// Load returns the saved position, or zero when none exists.
func (s *MemoryCheckpoints) Load(_ context.Context, source string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[source], nil
}

// Save records the position for a source.
func (s *MemoryCheckpoints) Save(_ context.Context, source string, position int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[source] = position
	return nil
}
