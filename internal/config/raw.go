package config

// rawDocument mirrors the on-wire shape of a cluster configuration
// document (spec.md §3). Field names use the document's own
// dash-case so Export round-trips byte-for-byte with what a caller
// would naturally author.
type rawDocument struct {
	Cluster               rawCluster            `yaml:"cluster"`
	DefaultNodeConfig      NodeConfig            `yaml:"default-node-config"`
	DefaultServerRKE2Config RKE2Config           `yaml:"default-rke2-server-config"`
	DefaultAgentRKE2Config RKE2Config            `yaml:"default-rke2-agent-config"`
	NodePools             map[string]rawNodePool `yaml:"node-pools"`
	KubeconfigServerIP    string                 `yaml:"kubeconfig-server-ip,omitempty"`
	Credentials           Credentials            `yaml:"credentials,omitempty"`
}

type rawCluster struct {
	Name                   string       `yaml:"name"`
	Datacenter             string       `yaml:"datacenter"`
	SSHKey                 SSHKeyConfig `yaml:"ssh-key"`
	PrivateNetwork         PrivateNetworkConfig `yaml:"private-network"`
	Server                 string       `yaml:"server,omitempty"`
	Token                  string       `yaml:"token,omitempty"`
	ControlPlaneServerName string       `yaml:"controlplane-server-name,omitempty"`
	AllowHighAvailability  bool         `yaml:"allow-high-availability,omitempty"`
}

type rawNodePool struct {
	Nodes      interface{} `yaml:"nodes"`
	NodeConfig NodeConfig  `yaml:"node-config,omitempty"`
	RKE2Config RKE2Config  `yaml:"rke2-config,omitempty"`
}

// nodeSetFromRaw normalizes the either-or "nodes" field (spec.md §3,
// §9) into a NodeSet.
func nodeSetFromRaw(v interface{}) (NodeSet, error) {
	switch t := v.(type) {
	case nil:
		return NodeSet{}, nil
	case int:
		return NewNodeSetFromCount(t), nil
	case int64:
		return NewNodeSetFromCount(int(t)), nil
	case float64:
		return NewNodeSetFromCount(int(t)), nil
	case []interface{}:
		nums := make([]int, 0, len(t))
		for _, item := range t {
			n, err := toInt(item)
			if err != nil {
				return NodeSet{}, newConfigError("node-pools.*.nodes: %s", err)
			}
			nums = append(nums, n)
		}
		return NewNodeSetFromList(nums), nil
	default:
		return NodeSet{}, newConfigError("node-pools.*.nodes must be an integer or a list of integers")
	}
}

func toInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	default:
		return 0, newConfigError("expected an integer, got %T", v)
	}
}
