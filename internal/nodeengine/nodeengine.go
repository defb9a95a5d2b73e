// Package nodeengine implements the per-node state machine: ensure the
// cloud VM exists, wait for provisioning, then ensure RKE2 is
// installed or reconfigured on it (spec.md §4.E).
package nodeengine

import (
	"context"
	"fmt"

	"github.com/chalkan3/sloth-kubernetes/internal/audit"
	"github.com/chalkan3/sloth-kubernetes/internal/bootstrap"
	"github.com/chalkan3/sloth-kubernetes/internal/cloudapi"
	"github.com/chalkan3/sloth-kubernetes/internal/config"
	"github.com/chalkan3/sloth-kubernetes/internal/sshexec"
)

// NotExistError marks a server expected to exist but isn't found,
// e.g. on Update against a node never created (spec.md §4.E).
type NotExistError struct{ Message string }

func (e *NotExistError) Error() string { return e.Message }
func (e *NotExistError) DomainError()  {}

// Engine drives node Create/Update; it is stateless across calls and
// takes all dependencies explicitly, so a single Engine value is safe
// to share across concurrent worker goroutines.
type Engine struct {
	Cloud   *cloudapi.Client
	SSH     sshexec.Executor
	SSHUser string

	// SSHFactory builds the Executor a task handler uses, from that
	// task's own cluster config's SSH key (spec.md §3 "config objects
	// ... serialized into each enqueued task so worker state is
	// stateless": a worker process handles tasks for many clusters,
	// each with its own keypair, so SSH can't be fixed at Engine
	// construction the way Cloud is). Defaults to sshexec.NewSSHExecutor;
	// tests override it to return a fake regardless of key material.
	SSHFactory func(user, privateKey string) (sshexec.Executor, error)

	// Audit records each Create/Update outcome, when set. Nil is a
	// valid, no-op value (ClusterRecorder's methods tolerate a nil
	// receiver), so tests and callers that don't care about audit
	// trails can leave it unset.
	Audit *audit.ClusterRecorder
}

// NewEngine builds an Engine bound to one cloud client and SSH
// executor. SSHUser defaults to "root", matching spec.md §4.D. ssh is
// used by Create/Update when called directly (e.g. in tests);
// CreateHandler/UpdateHandler instead build a per-task executor via
// SSHFactory.
func NewEngine(cloud *cloudapi.Client, ssh sshexec.Executor, sshUser string) *Engine {
	if sshUser == "" {
		sshUser = "root"
	}
	return &Engine{Cloud: cloud, SSH: ssh, SSHUser: sshUser, SSHFactory: newSSHExecutor}
}

func newSSHExecutor(user, privateKey string) (sshexec.Executor, error) {
	return sshexec.NewSSHExecutor(user, privateKey)
}

// NodeResult is the leaf ("common") task result shape: spec.md §4.E
// steps 7/"Update" both return {nodepool_name, node_number, message}.
type NodeResult struct {
	NodepoolName string `json:"nodepool_name"`
	NodeNumber   int    `json:"node_number"`
	Message      string `json:"message"`
}

func serverNamePrefix(clusterName, poolName string, number int) string {
	return fmt.Sprintf("%s-%s-%d", clusterName, poolName, number)
}

// controlPlaneServerName resolves the server name used for
// control-plane discovery: cfg.CPServerName when the cluster config
// overrides it (spec.md §3 `cluster.controlplane-server-name`),
// otherwise control-plane node 1's default name.
func controlPlaneServerName(cfg *config.ClusterConfig) string {
	if cfg.CPServerName != "" {
		return cfg.CPServerName
	}
	return serverNamePrefix(cfg.Name, config.ControlPlanePoolName, 1)
}

// Create implements spec.md §4.E "Create(node)".
func (e *Engine) Create(ctx context.Context, cfg *config.ClusterConfig, poolName string, number int) (NodeResult, error) {
	result, err := e.create(ctx, cfg, poolName, number)
	e.recordNodeOp(cfg, poolName, number, audit.ActionCreate, err)
	return result, err
}

func (e *Engine) create(ctx context.Context, cfg *config.ClusterConfig, poolName string, number int) (NodeResult, error) {
	pool, ok := cfg.Pool(poolName)
	if !ok {
		return NodeResult{}, &NotExistError{Message: fmt.Sprintf("node pool %q does not exist", poolName)}
	}
	prefix := serverNamePrefix(cfg.Name, poolName, number)
	creds := cloudapi.Credentials{AuthClientId: cfg.Credentials.AuthClientId, AuthSecret: cfg.Credentials.AuthSecret}

	info, err := e.Cloud.GetServerInfo(ctx, creds, prefix)
	if err != nil {
		return NodeResult{}, err
	}

	if info == nil {
		if err := e.ensureCreateCommand(ctx, cfg, pool, prefix, creds); err != nil {
			return NodeResult{}, err
		}

		info, err = e.Cloud.GetServerInfo(ctx, creds, prefix)
		if err != nil {
			return NodeResult{}, err
		}
		if info == nil {
			return NodeResult{}, &NotExistError{Message: fmt.Sprintf("server %q was not found after provisioning", prefix)}
		}
	}

	publicIP, privateIP, err := info.IPs()
	if err != nil {
		return NodeResult{}, err
	}

	if err := e.bootstrapNode(ctx, cfg, poolName, number, publicIP, privateIP, bootstrap.RenderInstallScript); err != nil {
		return NodeResult{}, err
	}

	return NodeResult{NodepoolName: poolName, NodeNumber: number, Message: "Server Created Successfully"}, nil
}

// Update implements spec.md §4.E "Update(node)".
func (e *Engine) Update(ctx context.Context, cfg *config.ClusterConfig, poolName string, number int) (NodeResult, error) {
	result, err := e.update(ctx, cfg, poolName, number)
	e.recordNodeOp(cfg, poolName, number, audit.ActionUpdate, err)
	return result, err
}

func (e *Engine) update(ctx context.Context, cfg *config.ClusterConfig, poolName string, number int) (NodeResult, error) {
	if _, ok := cfg.Pool(poolName); !ok {
		return NodeResult{}, &NotExistError{Message: fmt.Sprintf("node pool %q does not exist", poolName)}
	}
	prefix := serverNamePrefix(cfg.Name, poolName, number)
	creds := cloudapi.Credentials{AuthClientId: cfg.Credentials.AuthClientId, AuthSecret: cfg.Credentials.AuthSecret}

	info, err := e.Cloud.GetServerInfo(ctx, creds, prefix)
	if err != nil {
		return NodeResult{}, err
	}
	if info == nil {
		return NodeResult{}, &NotExistError{Message: "Server does not exist"}
	}

	publicIP, privateIP, err := info.IPs()
	if err != nil {
		return NodeResult{}, err
	}

	if err := e.bootstrapNode(ctx, cfg, poolName, number, publicIP, privateIP, bootstrap.RenderUpdateScript); err != nil {
		return NodeResult{}, err
	}

	return NodeResult{NodepoolName: poolName, NodeNumber: number, Message: "Server Updated Successfully"}, nil
}

func (e *Engine) recordNodeOp(cfg *config.ClusterConfig, poolName string, number int, action audit.EventAction, err error) {
	if e.Audit == nil {
		return
	}
	nodeID := serverNamePrefix(cfg.Name, poolName, number)
	if err != nil {
		e.Audit.LogNodeOp(nodeID, action, false, map[string]string{"error": err.Error()})
		return
	}
	e.Audit.LogNodeOp(nodeID, action, true, nil)
}

// ensureCreateCommand finds an in-flight create command for prefix, or
// issues a new CreateServer call and waits on it (spec.md §4.E steps
// 2-3).
func (e *Engine) ensureCreateCommand(ctx context.Context, cfg *config.ClusterConfig, pool config.NodePoolConfig, prefix string, creds cloudapi.Credentials) error {
	commandID, found, err := e.Cloud.FindServerCommandInQueue(ctx, creds, cloudapi.CommandInfoCreateServer, prefix)
	if err != nil {
		return err
	}

	if !found {
		name, err := cloudapi.GenerateServerName(prefix)
		if err != nil {
			return err
		}
		spec := cloudapi.CreateServerSpec{
			Name:               name,
			SSHKey:             cfg.SSHKey.Public,
			Datacenter:         cfg.Datacenter,
			Image:              pool.NodeConfig.Image,
			CPU:                pool.NodeConfig.CPU,
			RAM:                pool.NodeConfig.RAM,
			DiskGB:             pool.NodeConfig.DiskGB,
			Billing:            pool.NodeConfig.Billing,
			Managed:            pool.NodeConfig.Managed,
			Backup:             pool.NodeConfig.Backup,
			Networks:           []cloudapi.NIC{{Network: "wan", IP: "auto"}, {Network: cfg.Network.Name, IP: "auto"}},
			Quantity:           1,
			PowerOnAfterCreate: "yes",
		}
		commandID, err = e.Cloud.CreateServer(ctx, creds, spec)
		if err != nil {
			return err
		}
	}

	_, err = e.Cloud.WaitCommand(ctx, creds, commandID)
	return err
}

type scriptRenderer func(spec bootstrap.InstallSpec, nodeIP, privateIP string) string

// bootstrapNode resolves the join target (for non-origin nodes),
// renders the appropriate script, and SSHes it to the node.
func (e *Engine) bootstrapNode(ctx context.Context, cfg *config.ClusterConfig, poolName string, number int, publicIP, privateIP string, renderScript scriptRenderer) error {
	pool, _ := cfg.Pool(poolName)

	role := bootstrap.RoleAgent
	isFirstServer := false
	if pool.IsControlPlane() {
		role = bootstrap.RoleServer
		isFirstServer = number == 1
	}

	var firstServerIP string
	token := cfg.Token
	if !isFirstServer {
		var err error
		firstServerIP, token, err = e.discoverCluster(ctx, cfg)
		if err != nil {
			return err
		}
	}

	nodeName := fmt.Sprintf("%s-%s-%d", cfg.Name, poolName, number)
	rke2 := pool.RKE2Config

	spec := bootstrap.InstallSpec{
		Role:          role,
		NodeName:      nodeName,
		Token:         token,
		RKE2:          rke2,
		TLSSan:        []string{"0.0.0.0", privateIP, publicIP},
		FirstServerIP: firstServerIP,
		IsFirstServer: isFirstServer,
	}

	script := renderScript(spec, publicIP, privateIP)
	_, _, err := e.SSH.RunScript(ctx, publicIP, script)
	return err
}

// discoverCluster implements spec.md §4.E "Cluster discovery": when
// cluster.server/token are absent, resolve them from control-plane
// node 1.
func (e *Engine) discoverCluster(ctx context.Context, cfg *config.ClusterConfig) (server, token string, err error) {
	if cfg.Server != "" && cfg.Token != "" {
		return cfg.Server, cfg.Token, nil
	}

	creds := cloudapi.Credentials{AuthClientId: cfg.Credentials.AuthClientId, AuthSecret: cfg.Credentials.AuthSecret}
	info, err := e.Cloud.GetServerInfo(ctx, creds, controlPlaneServerName(cfg))
	if err != nil {
		return "", "", err
	}
	if info == nil {
		return "", "", &NotExistError{Message: "control-plane node 1 does not exist yet"}
	}

	publicIP, _, err := info.IPs()
	if err != nil {
		return "", "", err
	}

	server = fmt.Sprintf("https://%s:9345", publicIP)

	token = cfg.Token
	if token == "" {
		out, _, err := e.SSH.RunScript(ctx, publicIP, "cat /var/lib/rancher/rke2/server/node-token")
		if err != nil {
			return "", "", fmt.Errorf("failed to read cluster token from control-plane node 1: %w", err)
		}
		token = trimNewline(out)
	}

	return server, token, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
