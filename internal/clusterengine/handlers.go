package clusterengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chalkan3/sloth-kubernetes/internal/config"
	"github.com/chalkan3/sloth-kubernetes/internal/tasks"
)

func decodeClusterTaskPayload(raw []byte) (*config.ClusterConfig, error) {
	var p ClusterTaskPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode cluster task payload: %w", err)
	}
	return config.Load(string(p.ConfigYAML))
}

type clusterOp func(ctx context.Context, cfg *config.ClusterConfig) (Result, []string, error)

func (e *Engine) runHandler(ctx context.Context, payload []byte, op clusterOp) (interface{}, tasks.Creds, map[string]interface{}, error) {
	cfg, err := decodeClusterTaskPayload(payload)
	if err != nil {
		return nil, tasks.Creds{}, nil, err
	}

	result, childIDs, err := op(ctx, cfg)
	creds := tasks.Creds{AuthClientId: cfg.Credentials.AuthClientId, AuthSecret: cfg.Credentials.AuthSecret}
	if err != nil {
		return nil, creds, nil, err
	}
	return result, creds, tasks.ChildTaskIDsMeta(childIDs), nil
}

// CreateHandler adapts Engine.Create to the tasks.Handler signature.
func (e *Engine) CreateHandler(ctx context.Context, payload []byte) (interface{}, tasks.Creds, map[string]interface{}, error) {
	return e.runHandler(ctx, payload, e.Create)
}

// UpdateHandler adapts Engine.Update to the tasks.Handler signature.
func (e *Engine) UpdateHandler(ctx context.Context, payload []byte) (interface{}, tasks.Creds, map[string]interface{}, error) {
	return e.runHandler(ctx, payload, e.Update)
}

// StatusHandler adapts Engine.GetStatus to the tasks.Handler signature,
// for registration under StatusTaskName (spec.md §6 `POST /k8s/status`).
func (e *Engine) StatusHandler(ctx context.Context, payload []byte) (interface{}, tasks.Creds, map[string]interface{}, error) {
	cfg, err := decodeClusterTaskPayload(payload)
	if err != nil {
		return nil, tasks.Creds{}, nil, err
	}
	creds := tasks.Creds{AuthClientId: cfg.Credentials.AuthClientId, AuthSecret: cfg.Credentials.AuthSecret}

	scoped, err := e.scopedTo(cfg)
	if err != nil {
		return nil, creds, nil, err
	}

	report, err := scoped.GetStatus(ctx, cfg)
	if err != nil {
		return nil, creds, nil, err
	}
	return report, creds, nil, nil
}

// KubeconfigHandler adapts Engine.GetKubeconfig to the tasks.Handler
// signature, for registration under KubeconfigTaskName (spec.md §6
// `POST /k8s/kubeconfig`).
func (e *Engine) KubeconfigHandler(ctx context.Context, payload []byte) (interface{}, tasks.Creds, map[string]interface{}, error) {
	cfg, err := decodeClusterTaskPayload(payload)
	if err != nil {
		return nil, tasks.Creds{}, nil, err
	}
	creds := tasks.Creds{AuthClientId: cfg.Credentials.AuthClientId, AuthSecret: cfg.Credentials.AuthSecret}

	scoped, err := e.scopedTo(cfg)
	if err != nil {
		return nil, creds, nil, err
	}

	kubeconfig, err := scoped.GetKubeconfig(ctx, cfg)
	if err != nil {
		return nil, creds, nil, err
	}
	return kubeconfig, creds, nil, nil
}

// scopedTo builds an Engine sharing e.Broker/e.Cloud but bound to cfg's
// own SSH key.
func (e *Engine) scopedTo(cfg *config.ClusterConfig) (*Engine, error) {
	ssh, err := e.SSHFactory(e.SSHUser, cfg.SSHKey.Private)
	if err != nil {
		return nil, fmt.Errorf("failed to build SSH executor from cluster config: %w", err)
	}
	return &Engine{Broker: e.Broker, Cloud: e.Cloud, SSH: ssh, SSHUser: e.SSHUser, SSHFactory: e.SSHFactory, Audit: e.Audit}, nil
}
