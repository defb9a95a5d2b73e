package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Handler executes one task's real work. It decodes its own payload
// (including the embedded Creds, per spec.md §3 "config objects ...
// are serialized into each enqueued task so worker state is
// stateless") and returns the domain result or a domain error.
type Handler func(ctx context.Context, payload []byte) (result interface{}, creds Creds, meta map[string]interface{}, err error)

// Runner is a small worker pool pulling tasks off a Broker and
// dispatching them to registered handlers by name — "parallel workers
// draw from a durable broker; each task runs in one worker" (spec.md
// §5).
type Runner struct {
	broker      Broker
	concurrency int

	mu       sync.RWMutex
	handlers map[string]Handler

	log *slog.Logger
}

// NewRunner builds a Runner with the given concurrency (number of
// worker goroutines pulling from broker concurrently).
func NewRunner(broker Broker, concurrency int, log *slog.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		broker:      broker,
		concurrency: concurrency,
		handlers:    make(map[string]Handler),
		log:         log,
	}
}

// Register binds a task name to the Handler that performs its work.
// Task names are namespaced ("cluster.create", "nodepool.create",
// "node.create", ...) so ObjectNameForTask can classify them for
// status aggregation without a registry lookup.
func (r *Runner) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Runner) handler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// ObjectNameForTask classifies a task name by its namespace prefix
// (spec.md §4.H envelope "object_name": cluster/nodepool envelopes
// roll up children; everything else is a leaf "common" result).
func ObjectNameForTask(name string) ObjectName {
	switch {
	case strings.HasPrefix(name, "cluster."):
		return ObjectCluster
	case strings.HasPrefix(name, "nodepool."):
		return ObjectNodepool
	default:
		return ObjectCommon
	}
}

// Run starts the worker pool; it blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.loop(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (r *Runner) loop(ctx context.Context, worker int) {
	for {
		task, err := r.broker.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Error("dequeue failed", "worker", worker, "error", err)
			continue
		}
		r.process(ctx, task)
	}
}

func (r *Runner) process(ctx context.Context, task *Task) {
	objectName := ObjectNameForTask(task.Name)

	handler, ok := r.handler(task.Name)
	if !ok {
		msg := fmt.Sprintf("no handler registered for task %q", task.Name)
		env := ResultEnvelope{
			ResultType: EnvelopeResultType,
			ObjectName: objectName,
			TaskName:   task.Name,
			Error:      &msg,
			Meta:       map[string]interface{}{},
		}
		r.store(ctx, task.ID, env)
		return
	}

	var meta map[string]interface{}
	env := Wrap(objectName, task.Name, nil, func() (interface{}, Creds, error) {
		result, creds, m, err := handler(ctx, task.Payload)
		meta = m
		return result, creds, err
	})
	if meta != nil {
		env.Meta = meta
	}

	r.store(ctx, task.ID, env)
}

func (r *Runner) store(ctx context.Context, taskID string, env ResultEnvelope) {
	raw, err := env.ToJSON()
	if err != nil {
		r.log.Error("failed to encode result envelope", "task_id", taskID, "error", err)
		return
	}
	if err := r.broker.SetResult(ctx, taskID, raw); err != nil {
		r.log.Error("failed to store result", "task_id", taskID, "error", err)
		return
	}
	_ = r.broker.Ack(ctx, taskID)
}
