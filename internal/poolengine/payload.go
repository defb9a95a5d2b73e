package poolengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chalkan3/sloth-kubernetes/internal/config"
	"github.com/chalkan3/sloth-kubernetes/internal/tasks"
)

func encodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeNodeTaskPayload parses a node.{create,update} task's payload
// and loads the embedded config document, so a node handler can run
// without consulting anything but its own task (spec.md §3 Lifecycle
// "worker state is stateless").
func DecodeNodeTaskPayload(raw []byte) (cfg *config.ClusterConfig, poolName string, number int, err error) {
	var p NodeTaskPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, "", 0, fmt.Errorf("failed to decode node task payload: %w", err)
	}
	cfg, err = config.Load(string(p.ConfigYAML))
	if err != nil {
		return nil, "", 0, err
	}
	return cfg, p.PoolName, p.NodeNumber, nil
}

// PoolTaskPayload is what gets enqueued for a nodepool.{create,update}
// task.
type PoolTaskPayload struct {
	ConfigYAML []byte `json:"config_yaml"`
	PoolName   string `json:"pool_name"`
}

// EncodePoolTaskPayload serializes a pool task's payload.
func EncodePoolTaskPayload(cfg *config.ClusterConfig, poolName string) ([]byte, error) {
	yamlDoc, err := config.Export(cfg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(PoolTaskPayload{ConfigYAML: yamlDoc, PoolName: poolName})
}

func decodePoolTaskPayload(raw []byte) (*config.ClusterConfig, string, error) {
	var p PoolTaskPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, "", fmt.Errorf("failed to decode nodepool task payload: %w", err)
	}
	cfg, err := config.Load(string(p.ConfigYAML))
	if err != nil {
		return nil, "", err
	}
	return cfg, p.PoolName, nil
}

// CreateHandler adapts Engine.Create to the tasks.Handler signature,
// for registration against clusterengine.PoolCreateTaskName.
func (e *Engine) CreateHandler(ctx context.Context, payload []byte) (interface{}, tasks.Creds, map[string]interface{}, error) {
	return e.runHandler(ctx, payload, e.Create)
}

// UpdateHandler adapts Engine.Update to the tasks.Handler signature.
func (e *Engine) UpdateHandler(ctx context.Context, payload []byte) (interface{}, tasks.Creds, map[string]interface{}, error) {
	return e.runHandler(ctx, payload, e.Update)
}

type poolOp func(ctx context.Context, cfg *config.ClusterConfig, poolName string) (Result, []string, error)

func (e *Engine) runHandler(ctx context.Context, payload []byte, op poolOp) (interface{}, tasks.Creds, map[string]interface{}, error) {
	cfg, poolName, err := decodePoolTaskPayload(payload)
	if err != nil {
		return nil, tasks.Creds{}, nil, err
	}

	result, childIDs, err := op(ctx, cfg, poolName)
	creds := tasks.Creds{AuthClientId: cfg.Credentials.AuthClientId, AuthSecret: cfg.Credentials.AuthSecret}
	if err != nil {
		return nil, creds, nil, err
	}
	return result, creds, tasks.ChildTaskIDsMeta(childIDs), nil
}
