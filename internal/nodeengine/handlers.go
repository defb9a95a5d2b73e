package nodeengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chalkan3/sloth-kubernetes/internal/config"
	"github.com/chalkan3/sloth-kubernetes/internal/tasks"
)

// nodeTaskPayload mirrors poolengine.NodeTaskPayload's wire shape. It
// is redeclared here rather than imported: poolengine already imports
// nodeengine for NotExistError, so importing poolengine back would
// cycle.
type nodeTaskPayload struct {
	ConfigYAML []byte `json:"config_yaml"`
	PoolName   string `json:"pool_name"`
	NodeNumber int    `json:"node_number"`
}

func decodeNodeTaskPayload(raw []byte) (cfg *config.ClusterConfig, poolName string, number int, err error) {
	var p nodeTaskPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, "", 0, fmt.Errorf("failed to decode node task payload: %w", err)
	}
	cfg, err = config.Load(string(p.ConfigYAML))
	if err != nil {
		return nil, "", 0, err
	}
	return cfg, p.PoolName, p.NodeNumber, nil
}

// CreateHandler adapts Engine.Create to the tasks.Handler signature,
// for registration under poolengine.NodeCreateTaskName. It builds a
// fresh SSH executor from the task's own embedded SSH key rather than
// e.SSH, since a worker process handles tasks for many clusters, each
// with its own keypair (spec.md §3 "config objects ... serialized into
// each enqueued task so worker state is stateless"); e.SSH is only
// used directly in tests, which substitute a fake ignoring the key.
func (e *Engine) CreateHandler(ctx context.Context, payload []byte) (interface{}, tasks.Creds, map[string]interface{}, error) {
	return e.runHandler(ctx, payload, true)
}

// UpdateHandler adapts Engine.Update to the tasks.Handler signature,
// for registration under poolengine.NodeUpdateTaskName.
func (e *Engine) UpdateHandler(ctx context.Context, payload []byte) (interface{}, tasks.Creds, map[string]interface{}, error) {
	return e.runHandler(ctx, payload, false)
}

func (e *Engine) runHandler(ctx context.Context, payload []byte, isCreate bool) (interface{}, tasks.Creds, map[string]interface{}, error) {
	cfg, poolName, number, err := decodeNodeTaskPayload(payload)
	if err != nil {
		return nil, tasks.Creds{}, nil, err
	}
	creds := tasks.Creds{AuthClientId: cfg.Credentials.AuthClientId, AuthSecret: cfg.Credentials.AuthSecret}

	scoped, err := e.scopedTo(cfg)
	if err != nil {
		return nil, creds, nil, err
	}

	var result NodeResult
	if isCreate {
		result, err = scoped.Create(ctx, cfg, poolName, number)
	} else {
		result, err = scoped.Update(ctx, cfg, poolName, number)
	}
	if err != nil {
		return nil, creds, nil, err
	}
	// Node tasks are leaves: no child_task_ids meta to set.
	return result, creds, nil, nil
}

// scopedTo builds an Engine sharing e.Cloud but bound to cfg's own SSH
// key, so Create/Update SSH to the right host with the right identity
// regardless of which cluster's task this is.
func (e *Engine) scopedTo(cfg *config.ClusterConfig) (*Engine, error) {
	ssh, err := e.SSHFactory(e.SSHUser, cfg.SSHKey.Private)
	if err != nil {
		return nil, fmt.Errorf("failed to build SSH executor from cluster config: %w", err)
	}
	return &Engine{Cloud: e.Cloud, SSH: ssh, SSHUser: e.SSHUser, SSHFactory: e.SSHFactory, Audit: e.Audit}, nil
}
