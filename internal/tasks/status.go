package tasks

import (
	"context"
	"encoding/json"
	"fmt"
)

// State is one of the three states a status query can report
// (spec.md §4.H status aggregation).
type State string

const (
	StatePending State = "PENDING"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

// StatusResponse is what GetTaskStatus/GetMultiTasksStatus return.
type StatusResponse struct {
	State  State                  `json:"state"`
	Result interface{}            `json:"result,omitempty"`
	Error  *string                `json:"error"`
	Meta   map[string]interface{} `json:"meta"`
}

func pending() StatusResponse {
	return StatusResponse{State: StatePending, Meta: map[string]interface{}{}}
}

func failure(msg string) StatusResponse {
	return StatusResponse{State: StateFailure, Error: &msg, Meta: map[string]interface{}{}}
}

// childTaskIDs is the well-known meta key a cluster/nodepool envelope
// uses to record the task IDs of the work it fanned out to, so
// GetTaskStatus can roll them up without re-parsing the task-specific
// Result shape (spec.md §4.F/§4.G describe that Result shape for API
// fidelity; this is the separate bookkeeping key the rollup itself
// reads).
const childTaskIDsMetaKey = "child_task_ids"

// ChildTaskIDsMeta builds the meta map a nodepool/cluster task handler
// attaches to its envelope so the rollup can find its children.
func ChildTaskIDsMeta(ids []string) map[string]interface{} {
	return map[string]interface{}{childTaskIDsMetaKey: ids}
}

func extractChildIDs(meta map[string]interface{}) []string {
	raw, ok := meta[childTaskIDsMetaKey]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	default:
		return nil
	}
}

// GetTaskStatus fetches a task's raw backend record and classifies it
// per spec.md §4.H. It recurses into GetMultiTasksStatus for
// cluster/nodepool envelopes whose children are still being worked.
func GetTaskStatus(ctx context.Context, broker Broker, taskID string, creds Creds) (StatusResponse, error) {
	raw, found, err := broker.GetResult(ctx, taskID)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("failed to fetch status for task %s: %w", taskID, err)
	}
	if !found {
		return pending(), nil
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		// Not JSON at all: pass through as an opaque success value
		// rather than erroring the status call itself.
		return StatusResponse{State: StateSuccess, Result: string(raw), Meta: map[string]interface{}{}}, nil
	}

	if !IsEnvelope(generic) {
		if msg, ok := generic["error"].(string); ok && msg != "" {
			return failure(msg), nil
		}
		return StatusResponse{State: StateSuccess, Result: generic, Meta: map[string]interface{}{}}, nil
	}

	env, err := EnvelopeFromJSON(raw)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("failed to decode envelope for task %s: %w", taskID, err)
	}

	if !env.Creds.Equal(creds) {
		return failure("invalid result"), nil
	}

	if env.Error != nil {
		return StatusResponse{State: StateFailure, Error: env.Error, Meta: env.Meta}, nil
	}

	switch env.ObjectName {
	case ObjectCluster, ObjectNodepool:
		childIDs := extractChildIDs(env.Meta)
		return GetMultiTasksStatus(ctx, broker, env.TaskName, childIDs, creds)
	default:
		meta := env.Meta
		if meta == nil {
			meta = map[string]interface{}{}
		}
		return StatusResponse{State: StateSuccess, Result: env.Result, Meta: meta}, nil
	}
}

// GetMultiTasksStatus implements the hierarchical rollup of spec.md
// §4.H: fetch each child's status, then:
//   - all SUCCESS (or no children) → SUCCESS, result = child results
//   - none PENDING, any FAILURE → FAILURE, error = "Some sub-tasks failed"
//   - otherwise → PENDING
//
// meta.subtasks always carries the full child status array so callers
// can drill down without another round trip.
func GetMultiTasksStatus(ctx context.Context, broker Broker, name string, childIDs []string, creds Creds) (StatusResponse, error) {
	children := make([]StatusResponse, 0, len(childIDs))
	for _, id := range childIDs {
		status, err := GetTaskStatus(ctx, broker, id, creds)
		if err != nil {
			return StatusResponse{}, fmt.Errorf("failed to fetch child status for %s task, child %s: %w", name, id, err)
		}
		children = append(children, status)
	}

	meta := map[string]interface{}{"subtasks": children}

	allSuccess := true
	anyPending := false
	anyFailure := false
	for _, c := range children {
		switch c.State {
		case StateSuccess:
		case StatePending:
			allSuccess = false
			anyPending = true
		case StateFailure:
			allSuccess = false
			anyFailure = true
		}
	}

	if allSuccess {
		results := make([]interface{}, len(children))
		for i, c := range children {
			results[i] = c.Result
		}
		return StatusResponse{State: StateSuccess, Result: results, Meta: meta}, nil
	}

	if !anyPending && anyFailure {
		msg := "Some sub-tasks failed"
		return StatusResponse{State: StateFailure, Error: &msg, Meta: meta}, nil
	}

	return StatusResponse{State: StatePending, Meta: meta}, nil
}

// GetTaskTree flattens the meta.subtasks rollup recursively into a
// flat list (depth-first, each task before its own subtasks), used by
// the CLI's `status --tree` flag.
// Pure convenience over GetTaskStatus; adds no new semantics.
func GetTaskTree(ctx context.Context, broker Broker, taskID string, creds Creds) ([]StatusResponse, error) {
	root, err := GetTaskStatus(ctx, broker, taskID, creds)
	if err != nil {
		return nil, err
	}
	tree := []StatusResponse{root}

	raw, ok := root.Meta["subtasks"]
	if !ok {
		return tree, nil
	}
	children, ok := raw.([]StatusResponse)
	if !ok {
		return tree, nil
	}
	for _, child := range children {
		tree = append(tree, flattenSubtasks(child)...)
	}
	return tree, nil
}

func flattenSubtasks(s StatusResponse) []StatusResponse {
	out := []StatusResponse{s}
	raw, ok := s.Meta["subtasks"]
	if !ok {
		return out
	}
	children, ok := raw.([]StatusResponse)
	if !ok {
		return out
	}
	for _, child := range children {
		out = append(out, flattenSubtasks(child)...)
	}
	return out
}
