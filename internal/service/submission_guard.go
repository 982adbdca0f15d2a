package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SubmissionGuard keeps a single run active per submission key. It is a use-level
// policy, not a lock on shared data.
type SubmissionGuard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type memorySubmissionGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewMemorySubmissionGuard constructs a process-local guard.
func NewMemorySubmissionGuard() SubmissionGuard {
	return &memorySubmissionGuard{active: make(map[string]struct{})}
}

func (g *memorySubmissionGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.active[key]; exists {
		return nil, ErrSubmissionInProgress
	}
	g.active[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, key)
			g.mu.Unlock()
		})
	}, nil
}

// releaseScript deletes the lock only when it is still held by the releasing token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisSubmissionGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisSubmissionGuard constructs a guard shared by every API replica. The ttl bounds
// how long a crashed run can hold its key.
func NewRedisSubmissionGuard(client *redis.Client, ttl time.Duration, logger zerolog.Logger) SubmissionGuard {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}

	return &redisSubmissionGuard{
		client: client,
		prefix: "gema:submission:lock:",
		ttl:    ttl,
		logger: logger.With().Str("component", "submission_guard").Logger(),
	}
}

func (g *redisSubmissionGuard) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := g.prefix + strings.TrimSpace(key)
	token := uuid.NewString()

	acquired, err := g.client.SetNX(ctx, lockKey, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire submission lock: %w", err)
	}
	if !acquired {
		return nil, ErrSubmissionInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := releaseScript.Run(context.Background(), g.client, []string{lockKey}, token).Err(); err != nil {
				g.logger.Warn().Err(err).Str("key", lockKey).Msg("failed to release submission lock")
			}
		})
	}, nil
}
