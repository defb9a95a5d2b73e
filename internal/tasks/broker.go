package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ResultTTL is how long a completed task's result survives in the
// backend (spec.md §5 "Results expire from the backend after 14
// days").
const ResultTTL = 14 * 24 * time.Hour

// Task is one unit of work pulled off a Broker.
type Task struct {
	ID      string
	Name    string
	Payload []byte
}

// Broker is the durable queue + results-backend abstraction that
// spec.md §4.H assumes (a Celery-equivalent broker/backend pair). No
// example repository in the retrieved pack vendors one, so this is a
// small interface with two from-scratch implementations: Redis-backed
// for production, in-memory for tests and single-process dev runs.
type Broker interface {
	// Enqueue assigns a fresh task ID and makes the task available to
	// Dequeue.
	Enqueue(ctx context.Context, name string, payload []byte) (string, error)

	// Dequeue blocks until a task is available or ctx is done.
	Dequeue(ctx context.Context) (*Task, error)

	// Ack marks a task as delivered. The at-least-once/acks-late
	// semantics spec.md §5 describes come from the idempotency gates in
	// the engines themselves (server discovery before create, queue
	// scan before create, systemctl is-active before install) rather
	// than from broker-level redelivery bookkeeping, so Ack is a no-op
	// in both implementations (Redis's BLPOP already removed the queue
	// entry on Dequeue).
	Ack(ctx context.Context, taskID string) error

	// SetResult stores a task's encoded ResultEnvelope (or any raw
	// JSON shape, for domain-error passthrough) under taskID.
	SetResult(ctx context.Context, taskID string, raw []byte) error

	// GetResult fetches a stored result. found is false when the task
	// is still pending (spec.md §4.H "state == PENDING and no
	// result").
	GetResult(ctx context.Context, taskID string) (raw []byte, found bool, err error)
}

// MemoryBroker is a process-local Broker backed by a channel and a
// mutex-guarded map, grounded in the same shape as the teacher's
// in-memory state manager (sync.RWMutex-guarded map over a plain Go
// type). Used by tests and by `sloth serve --dev`.
type MemoryBroker struct {
	mu      sync.RWMutex
	results map[string][]byte
	queue   chan *Task
}

// NewMemoryBroker builds a MemoryBroker with the given queue capacity.
func NewMemoryBroker(capacity int) *MemoryBroker {
	return &MemoryBroker{
		results: make(map[string][]byte),
		queue:   make(chan *Task, capacity),
	}
}

func (b *MemoryBroker) Enqueue(ctx context.Context, name string, payload []byte) (string, error) {
	id := uuid.NewString()
	task := &Task{ID: id, Name: name, Payload: payload}
	select {
	case b.queue <- task:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *MemoryBroker) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case t := <-b.queue:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *MemoryBroker) Ack(ctx context.Context, taskID string) error {
	return nil
}

func (b *MemoryBroker) SetResult(ctx context.Context, taskID string, raw []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[taskID] = raw
	return nil
}

func (b *MemoryBroker) GetResult(ctx context.Context, taskID string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	raw, ok := b.results[taskID]
	return raw, ok, nil
}

// RedisBroker is the production Broker, using github.com/redis/go-redis/v9
// as the natural Go analogue of Celery's own default broker/backend —
// named here as an out-of-pack ecosystem dependency, not grounded in
// any example repo (see DESIGN.md). Tasks live on a list (`RPush` +
// blocking `BLPop`); results live as individual keys with a 14-day
// expiry.
type RedisBroker struct {
	client    *redis.Client
	queueKey  string
	keyPrefix string
}

// NewRedisBroker wraps an existing *redis.Client (dial/auth/TLS
// configuration is the caller's concern, read from CELERY_BROKER per
// spec.md §6).
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client, queueKey: "sloth:tasks:queue", keyPrefix: "sloth:tasks:result:"}
}

type queuedTask struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Payload []byte `json:"payload"`
}

func (b *RedisBroker) Enqueue(ctx context.Context, name string, payload []byte) (string, error) {
	id := uuid.NewString()
	entry, err := json.Marshal(queuedTask{ID: id, Name: name, Payload: payload})
	if err != nil {
		return "", fmt.Errorf("failed to encode task for enqueue: %w", err)
	}
	if err := b.client.RPush(ctx, b.queueKey, entry).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return id, nil
}

func (b *RedisBroker) Dequeue(ctx context.Context) (*Task, error) {
	res, err := b.client.BLPop(ctx, 0, b.queueKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}
	if len(res) < 2 {
		return nil, fmt.Errorf("unexpected BLPOP response shape")
	}
	var qt queuedTask
	if err := json.Unmarshal([]byte(res[1]), &qt); err != nil {
		return nil, fmt.Errorf("failed to decode queued task: %w", err)
	}
	return &Task{ID: qt.ID, Name: qt.Name, Payload: qt.Payload}, nil
}

func (b *RedisBroker) Ack(ctx context.Context, taskID string) error {
	return nil
}

func (b *RedisBroker) SetResult(ctx context.Context, taskID string, raw []byte) error {
	key := b.keyPrefix + taskID
	if err := b.client.Set(ctx, key, raw, ResultTTL).Err(); err != nil {
		return fmt.Errorf("failed to store result for task %s: %w", taskID, err)
	}
	return nil
}

func (b *RedisBroker) GetResult(ctx context.Context, taskID string) ([]byte, bool, error) {
	key := b.keyPrefix + taskID
	val, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch result for task %s: %w", taskID, err)
	}
	return val, true, nil
}
