package bridge

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neuroshield/neuroshield/observability"
)

// ScoredMember is one serialized record and its sort score.
type ScoredMember struct {
	Member string
	Score  float64
}

// Queue is the external durable, score-ordered, multi-writer store. Remove
// deletes by exact member value.
type Queue interface {
	Add(ctx context.Context, member string, score float64) error
	List(ctx context.Context) ([]ScoredMember, error)
	Remove(ctx context.Context, member string) error
	Size(ctx context.Context) (int64, error)
}

// RedisQueue implements Queue on a redis sorted set.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue connects to redis and verifies the connection.
func NewRedisQueue(addr, password string, db int, key string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisQueue{client: client, key: key}, nil
}

func (q *RedisQueue) Add(ctx context.Context, member string, score float64) error {
	defer observeLatency(time.Now())
	return q.client.ZAdd(ctx, q.key, redis.Z{Score: score, Member: member}).Err()
}

func (q *RedisQueue) List(ctx context.Context) ([]ScoredMember, error) {
	defer observeLatency(time.Now())
	zs, err := q.client.ZRangeWithScores(ctx, q.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}

func (q *RedisQueue) Remove(ctx context.Context, member string) error {
	defer observeLatency(time.Now())
	return q.client.ZRem(ctx, q.key, member).Err()
}

func (q *RedisQueue) Size(ctx context.Context) (int64, error) {
	defer observeLatency(time.Now())
	return q.client.ZCard(ctx, q.key).Result()
}

// Close releases the redis client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func observeLatency(start time.Time) {
	observability.RedisLatency.Observe(time.Since(start).Seconds())
}

// MemoryQueue is an in-process Queue for tests and redis-less development.
type MemoryQueue struct {
	mu      sync.Mutex
	members map[string]float64
}

// NewMemoryQueue returns an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{members: make(map[string]float64)}
}

func (q *MemoryQueue) Add(ctx context.Context, member string, score float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.members[member] = score
	return nil
}

func (q *MemoryQueue) List(ctx context.Context) ([]ScoredMember, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ScoredMember, 0, len(q.members))
	for m, s := range q.members {
		out = append(out, ScoredMember{Member: m, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out, nil
}

func (q *MemoryQueue) Remove(ctx context.Context, member string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.members, member)
	return nil
}

func (q *MemoryQueue) Size(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.members)), nil
}
