// Package clusterengine implements the top-level orchestration: the
// two-phase cluster create/update plan (control plane, then everything
// else in parallel), cluster status, and kubeconfig retrieval (spec.md
// §4.G).
package clusterengine

import (
	"context"
	"fmt"

	"github.com/chalkan3/sloth-kubernetes/internal/audit"
	"github.com/chalkan3/sloth-kubernetes/internal/cloudapi"
	"github.com/chalkan3/sloth-kubernetes/internal/config"
	"github.com/chalkan3/sloth-kubernetes/internal/nodeengine"
	"github.com/chalkan3/sloth-kubernetes/internal/poolengine"
	"github.com/chalkan3/sloth-kubernetes/internal/sshexec"
	"github.com/chalkan3/sloth-kubernetes/internal/tasks"
)

// Task names a cluster task payload is enqueued under.
const (
	CreateTaskName = "cluster.create"
	UpdateTaskName = "cluster.update"

	PoolCreateTaskName = "nodepool.create"
	PoolUpdateTaskName = "nodepool.update"

	// StatusTaskName and KubeconfigTaskName deliberately avoid the
	// "cluster." prefix: they are leaf lookups, not fan-out tasks, and
	// ObjectNameForTask's prefix classification would otherwise route
	// them through the cluster/nodepool rollup in GetMultiTasksStatus,
	// discarding their actual result in favor of an (empty) child list.
	StatusTaskName     = "status"
	KubeconfigTaskName = "kubeconfig"
)

// Engine drives cluster-level Create/Update/GetStatus/GetKubeconfig. It
// enqueues nodepool tasks through Broker and reaches the cloud/SSH
// directly only for the read paths (GetStatus, GetKubeconfig) that
// spec.md §4.G describes as synchronous lookups, not fanned-out work.
type Engine struct {
	Broker tasks.Broker
	Cloud  *cloudapi.Client
	SSH    sshexec.Executor

	// SSHFactory builds the Executor StatusHandler/KubeconfigHandler use,
	// from that task's own cluster config's SSH key — the same
	// per-task-scoping nodeengine.Engine does, since a worker process
	// answers status/kubeconfig lookups for many clusters, each with its
	// own keypair. Defaults to sshexec.NewSSHExecutor; tests override it.
	SSHFactory func(user, privateKey string) (sshexec.Executor, error)

	// SSHUser is the remote login user StatusHandler/KubeconfigHandler
	// connect as; defaults to "root" (spec.md §4.D).
	SSHUser string

	// Audit records each cluster Create/Update outcome, when set; nil
	// is a valid no-op value.
	Audit *audit.ClusterRecorder
}

// NewEngine builds a clusterengine.Engine.
func NewEngine(broker tasks.Broker, cloud *cloudapi.Client, ssh sshexec.Executor) *Engine {
	return &Engine{Broker: broker, Cloud: cloud, SSH: ssh, SSHUser: "root", SSHFactory: newSSHExecutor}
}

func newSSHExecutor(user, privateKey string) (sshexec.Executor, error) {
	return sshexec.NewSSHExecutor(user, privateKey)
}

// Result is the cluster task's envelope result: the control-plane pool
// task ID and the other pools' task IDs. The child-ID list twoPhase
// returns alongside it orders them leaf group first: the other pools,
// then the control-plane pool.
type Result struct {
	ControlPlaneTaskID string   `json:"controlplane_task_id"`
	OtherPoolTaskIDs    []string `json:"other_pool_task_ids"`
}

// ClusterTaskPayload is what gets enqueued for a cluster.{create,update}
// task.
type ClusterTaskPayload struct {
	ConfigYAML []byte `json:"config_yaml"`
}

// EncodeClusterTaskPayload serializes a cluster task's payload.
func EncodeClusterTaskPayload(cfg *config.ClusterConfig) ([]byte, error) {
	yamlDoc, err := config.Export(cfg)
	if err != nil {
		return nil, err
	}
	return marshalPayload(ClusterTaskPayload{ConfigYAML: yamlDoc})
}

// Create implements spec.md §4.G "Create(cluster)".
func (e *Engine) Create(ctx context.Context, cfg *config.ClusterConfig) (Result, []string, error) {
	result, ids, err := e.twoPhase(ctx, cfg, PoolCreateTaskName)
	e.recordClusterOp(cfg, audit.ActionCreate, err)
	return result, ids, err
}

// Update implements spec.md §4.G "Update(cluster)".
func (e *Engine) Update(ctx context.Context, cfg *config.ClusterConfig) (Result, []string, error) {
	result, ids, err := e.twoPhase(ctx, cfg, PoolUpdateTaskName)
	e.recordClusterOp(cfg, audit.ActionUpdate, err)
	return result, ids, err
}

func (e *Engine) recordClusterOp(cfg *config.ClusterConfig, action audit.EventAction, err error) {
	if e.Audit == nil {
		return
	}
	if err != nil {
		e.Audit.LogClusterOp(cfg.Name, action, false, map[string]string{"error": err.Error()})
		return
	}
	e.Audit.LogClusterOp(cfg.Name, action, true, nil)
}

func (e *Engine) twoPhase(ctx context.Context, cfg *config.ClusterConfig, poolTaskName string) (Result, []string, error) {
	cpID, err := e.enqueuePool(ctx, cfg, config.ControlPlanePoolName, poolTaskName)
	if err != nil {
		return Result{}, nil, err
	}

	var otherIDs []string
	for _, name := range cfg.PoolNames() {
		if name == config.ControlPlanePoolName {
			continue
		}
		id, err := e.enqueuePool(ctx, cfg, name, poolTaskName)
		if err != nil {
			return Result{}, nil, err
		}
		otherIDs = append(otherIDs, id)
	}

	// Child order is the leaf group followed by each parent (spec.md
	// §4.G): other pools first, control plane last, matching the
	// original's celery.chain(...).parent walk.
	all := append(append([]string{}, otherIDs...), cpID)
	return Result{ControlPlaneTaskID: cpID, OtherPoolTaskIDs: otherIDs}, all, nil
}

func (e *Engine) enqueuePool(ctx context.Context, cfg *config.ClusterConfig, poolName, taskName string) (string, error) {
	payload, err := poolengine.EncodePoolTaskPayload(cfg, poolName)
	if err != nil {
		return "", err
	}
	return e.Broker.Enqueue(ctx, taskName, payload)
}

// StatusReport is GetStatus's result shape (spec.md §4.G).
type StatusReport struct {
	ClusterServer          string                               `json:"cluster_server"`
	ControlPlanePublicIP   string                               `json:"controlplane_public_ip"`
	ControlPlanePrivateIP  string                               `json:"controlplane_private_ip"`
	NodePools              map[string]map[int]cloudapi.ServerInfo `json:"node_pools"`
	KubectlVersion         string                               `json:"kubectl_version"`
	KubectlTopNode         string                               `json:"kubectl_top_node"`
}

const kubectlInvocation = "KUBECONFIG=/etc/rancher/rke2/rke2.yaml /var/lib/rancher/rke2/bin/kubectl"

// GetStatus implements spec.md §4.G "GetStatus(cluster)": resolve every
// configured node's server info from the cloud provider, plus run two
// kubectl invocations over SSH on control-plane node 1.
func (e *Engine) GetStatus(ctx context.Context, cfg *config.ClusterConfig) (StatusReport, error) {
	creds := cloudapi.Credentials{AuthClientId: cfg.Credentials.AuthClientId, AuthSecret: cfg.Credentials.AuthSecret}

	cpInfo, err := e.Cloud.GetServerInfo(ctx, creds, controlPlaneServerName(cfg))
	if err != nil {
		return StatusReport{}, err
	}
	if cpInfo == nil {
		return StatusReport{}, &nodeengine.NotExistError{Message: "control-plane node 1 does not exist"}
	}
	publicIP, privateIP, err := cpInfo.IPs()
	if err != nil {
		return StatusReport{}, err
	}

	report := StatusReport{
		ClusterServer:         fmt.Sprintf("https://%s:9345", publicIP),
		ControlPlanePublicIP:  publicIP,
		ControlPlanePrivateIP: privateIP,
		NodePools:             map[string]map[int]cloudapi.ServerInfo{},
	}

	for _, poolName := range cfg.PoolNames() {
		pool, _ := cfg.Pool(poolName)
		nodes := map[int]cloudapi.ServerInfo{}
		for _, n := range pool.Nodes.Numbers() {
			info, err := e.Cloud.GetServerInfo(ctx, creds, serverNamePrefix(cfg.Name, poolName, n))
			if err != nil {
				return StatusReport{}, err
			}
			if info != nil {
				nodes[n] = *info
			}
		}
		report.NodePools[poolName] = nodes
	}

	version, _, err := e.SSH.RunScript(ctx, publicIP, kubectlInvocation+" version")
	if err != nil {
		return StatusReport{}, fmt.Errorf("failed to read kubectl version from control-plane node 1: %w", err)
	}
	report.KubectlVersion = trimTrailingNewline(version)

	topNode, _, err := e.SSH.RunScript(ctx, publicIP, kubectlInvocation+" top node")
	if err != nil {
		return StatusReport{}, fmt.Errorf("failed to read kubectl top node from control-plane node 1: %w", err)
	}
	report.KubectlTopNode = trimTrailingNewline(topNode)

	return report, nil
}

// GetKubeconfig implements spec.md §4.G "GetKubeconfig(cluster)": read
// rke2's generated kubeconfig off control-plane node 1 and rewrite its
// API server URL to the address spec.md §3's kubeconfig-server-ip
// setting selects.
func (e *Engine) GetKubeconfig(ctx context.Context, cfg *config.ClusterConfig) (string, error) {
	creds := cloudapi.Credentials{AuthClientId: cfg.Credentials.AuthClientId, AuthSecret: cfg.Credentials.AuthSecret}

	cpInfo, err := e.Cloud.GetServerInfo(ctx, creds, controlPlaneServerName(cfg))
	if err != nil {
		return "", err
	}
	if cpInfo == nil {
		return "", &nodeengine.NotExistError{Message: "control-plane node 1 does not exist"}
	}
	publicIP, privateIP, err := cpInfo.IPs()
	if err != nil {
		return "", err
	}

	raw, _, err := e.SSH.RunScript(ctx, publicIP, "cat /etc/rancher/rke2/rke2.yaml")
	if err != nil {
		return "", fmt.Errorf("failed to read kubeconfig from control-plane node 1: %w", err)
	}

	serverIP := publicIP
	if cfg.KubeconfigServerIP == config.KubeconfigServerPrivate {
		serverIP = privateIP
	}

	return rewriteKubeconfigServer(raw, fmt.Sprintf("https://%s:6443", serverIP))
}

func serverNamePrefix(clusterName, poolName string, number int) string {
	return fmt.Sprintf("%s-%s-%d", clusterName, poolName, number)
}

// controlPlaneServerName resolves the server name GetStatus/GetKubeconfig
// use for control-plane discovery: cfg.CPServerName when the cluster
// config overrides it (spec.md §3 `cluster.controlplane-server-name`),
// otherwise control-plane node 1's default name.
func controlPlaneServerName(cfg *config.ClusterConfig) string {
	if cfg.CPServerName != "" {
		return cfg.CPServerName
	}
	return serverNamePrefix(cfg.Name, config.ControlPlanePoolName, 1)
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
