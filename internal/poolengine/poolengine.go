// Package poolengine implements the nodepool-level fan-out: given a
// pool, enqueue one node task per configured node number, special-casing
// the control-plane pool so node #1 is enqueued strictly before the
// rest (spec.md §4.F).
package poolengine

import (
	"context"
	"fmt"

	"github.com/chalkan3/sloth-kubernetes/internal/audit"
	"github.com/chalkan3/sloth-kubernetes/internal/config"
	"github.com/chalkan3/sloth-kubernetes/internal/nodeengine"
	"github.com/chalkan3/sloth-kubernetes/internal/tasks"
)

// Task names a node-task payload is enqueued under; the node engine's
// handlers are registered against these same names (spec.md §4.E/§4.H).
const (
	NodeCreateTaskName = "node.create"
	NodeUpdateTaskName = "node.update"
)

// Engine fans node tasks out onto a Broker. It never calls nodeengine
// directly: "parallelism is obtained by fan-out to child tasks, never
// by in-process threading" (spec.md §5), so a pool task's only job is
// to enqueue and return, leaving aggregation to the status protocol.
type Engine struct {
	Broker tasks.Broker

	// Audit records each pool fan-out's outcome, when set; nil is a
	// valid no-op value.
	Audit *audit.ClusterRecorder
}

// NewEngine builds a poolengine.Engine bound to broker.
func NewEngine(broker tasks.Broker) *Engine {
	return &Engine{Broker: broker}
}

// Result is the pool task's envelope result. Exactly one of the two
// shapes spec.md §4.F describes is populated, depending on whether the
// pool is the control-plane pool.
type Result struct {
	NodepoolName      string   `json:"nodepool_name"`
	FirstNodeTaskID   string   `json:"first_node_task_id,omitempty"`
	OtherNodesTaskIDs []string `json:"other_nodes_task_ids,omitempty"`
	NodesTaskIDs      []string `json:"nodes_task_ids,omitempty"`
}

// NodeTaskPayload is what gets enqueued for each node.{create,update}
// task: the full self-contained config document plus which node it
// targets (spec.md §3 Lifecycle).
type NodeTaskPayload struct {
	ConfigYAML []byte `json:"config_yaml"`
	PoolName   string `json:"pool_name"`
	NodeNumber int    `json:"node_number"`
}

// Create implements spec.md §4.F Create(pool).
func (e *Engine) Create(ctx context.Context, cfg *config.ClusterConfig, poolName string) (Result, []string, error) {
	result, ids, err := e.fanOut(ctx, cfg, poolName, NodeCreateTaskName)
	e.recordPoolOp(cfg, poolName, audit.ActionCreate, err)
	return result, ids, err
}

// Update implements spec.md §4.F Update(pool).
func (e *Engine) Update(ctx context.Context, cfg *config.ClusterConfig, poolName string) (Result, []string, error) {
	result, ids, err := e.fanOut(ctx, cfg, poolName, NodeUpdateTaskName)
	e.recordPoolOp(cfg, poolName, audit.ActionUpdate, err)
	return result, ids, err
}

func (e *Engine) recordPoolOp(cfg *config.ClusterConfig, poolName string, action audit.EventAction, err error) {
	if e.Audit == nil {
		return
	}
	poolID := fmt.Sprintf("%s-%s", cfg.Name, poolName)
	if err != nil {
		e.Audit.LogNodepoolOp(poolID, action, false, map[string]string{"error": err.Error()})
		return
	}
	e.Audit.LogNodepoolOp(poolID, action, true, nil)
}

func (e *Engine) fanOut(ctx context.Context, cfg *config.ClusterConfig, poolName, nodeTaskName string) (Result, []string, error) {
	pool, ok := cfg.Pool(poolName)
	if !ok {
		return Result{}, nil, &nodeengine.NotExistError{Message: fmt.Sprintf("node pool %q does not exist", poolName)}
	}

	numbers := pool.Nodes.Numbers()
	if len(numbers) == 0 {
		return Result{NodepoolName: poolName}, nil, nil
	}

	if !pool.IsControlPlane() {
		ids, err := e.enqueueNodes(ctx, cfg, poolName, numbers, nodeTaskName)
		if err != nil {
			return Result{}, nil, err
		}
		return Result{NodepoolName: poolName, NodesTaskIDs: ids}, ids, nil
	}

	firstID, err := e.enqueueNode(ctx, cfg, poolName, numbers[0], nodeTaskName)
	if err != nil {
		return Result{}, nil, err
	}

	otherIDs, err := e.enqueueNodes(ctx, cfg, poolName, numbers[1:], nodeTaskName)
	if err != nil {
		return Result{}, nil, err
	}

	all := append([]string{firstID}, otherIDs...)
	return Result{NodepoolName: poolName, FirstNodeTaskID: firstID, OtherNodesTaskIDs: otherIDs}, all, nil
}

func (e *Engine) enqueueNodes(ctx context.Context, cfg *config.ClusterConfig, poolName string, numbers []int, nodeTaskName string) ([]string, error) {
	ids := make([]string, 0, len(numbers))
	for _, n := range numbers {
		id, err := e.enqueueNode(ctx, cfg, poolName, n, nodeTaskName)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (e *Engine) enqueueNode(ctx context.Context, cfg *config.ClusterConfig, poolName string, number int, nodeTaskName string) (string, error) {
	yamlDoc, err := config.Export(cfg)
	if err != nil {
		return "", err
	}
	payload := NodeTaskPayload{ConfigYAML: yamlDoc, PoolName: poolName, NodeNumber: number}
	raw, err := encodePayload(payload)
	if err != nil {
		return "", err
	}
	return e.Broker.Enqueue(ctx, nodeTaskName, raw)
}
