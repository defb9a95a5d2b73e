package config

import (
	"os"
	"strings"
)

// fromRaw normalizes a parsed document into a validated ClusterConfig.
func fromRaw(raw *rawDocument) (*ClusterConfig, error) {
	if raw.Cluster.Name == "" {
		return nil, newConfigError("cluster.name is required")
	}
	if raw.Cluster.Datacenter == "" {
		return nil, newConfigError("cluster.datacenter is required")
	}
	if raw.Cluster.PrivateNetwork.Name == "" {
		return nil, newConfigError("cluster.private-network.name is required")
	}

	sshKey, err := resolveSSHKey(raw.Cluster.SSHKey)
	if err != nil {
		return nil, err
	}

	cfg := &ClusterConfig{
		Name:                    raw.Cluster.Name,
		Datacenter:              raw.Cluster.Datacenter,
		SSHKey:                  sshKey,
		Network:                 raw.Cluster.PrivateNetwork,
		Server:                  raw.Cluster.Server,
		Token:                   raw.Cluster.Token,
		CPServerName:            raw.Cluster.ControlPlaneServerName,
		AllowHighAvailability:   raw.Cluster.AllowHighAvailability,
		DefaultNodeConfig:       raw.DefaultNodeConfig,
		DefaultServerRKE2Config: raw.DefaultServerRKE2Config,
		DefaultAgentRKE2Config:  raw.DefaultAgentRKE2Config,
		NodePools:               make(map[string]NodePoolConfig, len(raw.NodePools)+1),
		KubeconfigServerIP:      KubeconfigServerIP(raw.KubeconfigServerIP),
		Credentials:             raw.Credentials,
	}
	if cfg.KubeconfigServerIP == "" {
		cfg.KubeconfigServerIP = KubeconfigServerPublic
	}

	// The controlplane pool always exists, default to a single node.
	if _, ok := raw.NodePools[ControlPlanePoolName]; !ok {
		if raw.NodePools == nil {
			raw.NodePools = map[string]rawNodePool{}
		}
		raw.NodePools[ControlPlanePoolName] = rawNodePool{Nodes: DefaultControlPlaneNodeCount}
	}

	for name, rp := range raw.NodePools {
		nodes, err := nodeSetFromRaw(rp.Nodes)
		if err != nil {
			return nil, err
		}
		if nodes.Len() == 0 && name == ControlPlanePoolName {
			nodes = NewNodeSetFromCount(DefaultControlPlaneNodeCount)
		}

		nodeDefault := cfg.DefaultNodeConfig
		rke2Default := cfg.DefaultAgentRKE2Config
		if name == ControlPlanePoolName {
			rke2Default = cfg.DefaultServerRKE2Config
		}

		cfg.NodePools[name] = NodePoolConfig{
			Name:       name,
			Nodes:      nodes,
			NodeConfig: rp.NodeConfig.merge(nodeDefault),
			RKE2Config: rp.RKE2Config.merge(rke2Default),
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks a ClusterConfig against the invariants of spec.md §3:
// the control-plane pool has exactly one node unless high availability
// is allowed, node numbers within a pool are distinct positive
// integers (guaranteed by NodeSet's set representation), and
// credentials are present whenever the config will reach a cloud API.
func Validate(c *ClusterConfig) error {
	cp, ok := c.Pool(ControlPlanePoolName)
	if !ok {
		return newConfigError("node-pools.controlplane is required")
	}
	if !c.AllowHighAvailability && cp.Nodes.Len() != 1 {
		return newConfigError("node-pools.controlplane.nodes must be 1 when high availability is disabled")
	}
	for _, n := range cp.Nodes.Numbers() {
		if n <= 0 {
			return newConfigError("node-pools.controlplane.nodes must be positive, got %d", n)
		}
	}
	for name, pool := range c.NodePools {
		for _, n := range pool.Nodes.Numbers() {
			if n <= 0 {
				return newConfigError("node-pools.%s.nodes must be positive, got %d", name, n)
			}
		}
	}
	return nil
}

// resolveSSHKey reads key material from a file path exactly once, or
// passes through inline content unchanged.
func resolveSSHKey(raw SSHKeyConfig) (SSHKeyConfig, error) {
	priv, err := resolveKeyField(raw.Private)
	if err != nil {
		return SSHKeyConfig{}, newConfigError("cluster.ssh-key.private: %s", err)
	}
	pub, err := resolveKeyField(raw.Public)
	if err != nil {
		return SSHKeyConfig{}, newConfigError("cluster.ssh-key.public: %s", err)
	}
	if priv == "" {
		return SSHKeyConfig{}, newConfigError("cluster.ssh-key.private is required")
	}
	if pub == "" {
		return SSHKeyConfig{}, newConfigError("cluster.ssh-key.public is required")
	}
	return SSHKeyConfig{Private: priv, Public: pub}, nil
}

func resolveKeyField(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	// Inline key material always contains a newline or the OpenSSH/PEM
	// header token; a bare path never does.
	if strings.Contains(v, "\n") || strings.Contains(v, "BEGIN ") || strings.HasPrefix(v, "ssh-") {
		return v, nil
	}
	if info, err := os.Stat(v); err == nil && !info.IsDir() {
		data, err := os.ReadFile(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return v, nil
}
