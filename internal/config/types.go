// Package config implements the declarative cluster configuration model:
// parsing, validation and normalization of the document a caller submits
// to describe the RKE2 cluster they want reconciled.
package config

// ControlPlanePoolName is the distinguished nodepool name whose nodes run
// RKE2 as servers. It always exists, even when the caller never mentions it.
const ControlPlanePoolName = "controlplane"

// DefaultControlPlaneNodeCount is the control-plane pool size used when the
// caller doesn't configure one explicitly.
const DefaultControlPlaneNodeCount = 1

// KubeconfigServerIP selects which of the control-plane node's two
// addresses GetKubeconfig rewrites the cluster's API server URL to.
type KubeconfigServerIP string

const (
	// KubeconfigServerPublic rewrites to the node's public (wan) IP, for
	// reachability from outside the private network. This is the default.
	KubeconfigServerPublic KubeconfigServerIP = "public"
	// KubeconfigServerPrivate rewrites to the node's private network IP.
	KubeconfigServerPrivate KubeconfigServerIP = "private"
)

// SSHKeyConfig holds the cluster's SSH keypair used to bootstrap nodes.
// Private/Public accept either inline key material or a filesystem path;
// Load resolves paths to content exactly once.
type SSHKeyConfig struct {
	Private string `yaml:"private" json:"private"`
	Public  string `yaml:"public" json:"public"`
}

// PrivateNetworkConfig names the cloud provider's private network that
// every node's second NIC joins.
type PrivateNetworkConfig struct {
	Name string `yaml:"name" json:"name"`
}

// NodeConfig describes the VM specification for the nodes in a pool:
// image, sizing, billing and backup policy. Pool-level NodeConfig is
// merged over DefaultNodeConfig field-by-field, empty fields inherit.
type NodeConfig struct {
	Image     string `yaml:"image,omitempty" json:"image,omitempty"`
	CPU       int    `yaml:"cpu,omitempty" json:"cpu,omitempty"`
	RAM       int    `yaml:"ram,omitempty" json:"ram,omitempty"`
	DiskGB    int    `yaml:"disk,omitempty" json:"disk,omitempty"`
	Billing   string `yaml:"billing,omitempty" json:"billing,omitempty"`
	Managed   bool   `yaml:"managed,omitempty" json:"managed,omitempty"`
	Backup    bool   `yaml:"backup,omitempty" json:"backup,omitempty"`
	Datacenter string `yaml:"datacenter,omitempty" json:"datacenter,omitempty"`
}

// merge returns a copy of o with zero-valued fields filled in from base.
func (o NodeConfig) merge(base NodeConfig) NodeConfig {
	out := base
	if o.Image != "" {
		out.Image = o.Image
	}
	if o.CPU != 0 {
		out.CPU = o.CPU
	}
	if o.RAM != 0 {
		out.RAM = o.RAM
	}
	if o.DiskGB != 0 {
		out.DiskGB = o.DiskGB
	}
	if o.Billing != "" {
		out.Billing = o.Billing
	}
	if o.Datacenter != "" {
		out.Datacenter = o.Datacenter
	}
	// Managed/Backup are booleans with no "unset" sentinel at this layer,
	// so they are OR-ed: a pool cannot turn either off when the default
	// sets it true.
	out.Managed = out.Managed || o.Managed
	out.Backup = out.Backup || o.Backup
	return out
}

// RKE2Config holds per-pool RKE2 settings, merged the same way as
// NodeConfig over the appropriate default-rke2-{server,agent}-config.
type RKE2Config struct {
	Version string            `yaml:"version,omitempty" json:"version,omitempty"`
	Extra   map[string]string `yaml:"extra,omitempty" json:"extra,omitempty"`
}

func (o RKE2Config) merge(base RKE2Config) RKE2Config {
	out := RKE2Config{Version: base.Version, Extra: map[string]string{}}
	for k, v := range base.Extra {
		out.Extra[k] = v
	}
	if o.Version != "" {
		out.Version = o.Version
	}
	for k, v := range o.Extra {
		out.Extra[k] = v
	}
	return out
}

// NodeSet is the normalized form of a nodepool's "nodes" field, which in
// the source document is either an integer N (meaning {1..N}) or an
// explicit list of integers.
type NodeSet struct {
	numbers map[int]struct{}
}

// NewNodeSetFromCount builds the set {1..n}.
func NewNodeSetFromCount(n int) NodeSet {
	s := NodeSet{numbers: make(map[int]struct{}, n)}
	for i := 1; i <= n; i++ {
		s.numbers[i] = struct{}{}
	}
	return s
}

// NewNodeSetFromList builds the set from an explicit, possibly unordered
// list of node numbers.
func NewNodeSetFromList(nums []int) NodeSet {
	s := NodeSet{numbers: make(map[int]struct{}, len(nums))}
	for _, n := range nums {
		s.numbers[n] = struct{}{}
	}
	return s
}

// Numbers returns the node numbers in ascending order.
func (s NodeSet) Numbers() []int {
	out := make([]int, 0, len(s.numbers))
	for n := range s.numbers {
		out = append(out, n)
	}
	sortInts(out)
	return out
}

// Len returns the number of nodes in the set.
func (s NodeSet) Len() int { return len(s.numbers) }

// Contains reports whether n is a member of the set.
func (s NodeSet) Contains(n int) bool {
	_, ok := s.numbers[n]
	return ok
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// NodePoolConfig is one named group of nodes sharing VM specs and an
// RKE2 role (server for the controlplane pool, agent otherwise).
type NodePoolConfig struct {
	Name       string
	Nodes      NodeSet
	NodeConfig NodeConfig
	RKE2Config RKE2Config
}

// IsControlPlane reports whether this pool's nodes run RKE2 as servers.
func (p NodePoolConfig) IsControlPlane() bool {
	return p.Name == ControlPlanePoolName
}

// ClusterConfig is the fully validated, immutable cluster document. It is
// self-contained (embeds SSH key material and cloud credentials) so a
// worker task can deserialize it without consulting any other source.
type ClusterConfig struct {
	Name        string
	Datacenter  string
	SSHKey      SSHKeyConfig
	Network     PrivateNetworkConfig
	Server      string // pre-known cluster join URL, derived if empty
	Token       string // pre-known cluster token, derived if empty
	CPServerName string // override for control-plane discovery

	AllowHighAvailability bool

	DefaultNodeConfig       NodeConfig
	DefaultServerRKE2Config RKE2Config
	DefaultAgentRKE2Config  RKE2Config

	NodePools map[string]NodePoolConfig

	KubeconfigServerIP KubeconfigServerIP

	Credentials Credentials
}

// Credentials are the cloud provider's authenticated-request headers.
// They are present on every ClusterConfig crossing the task queue
// boundary so a worker never needs a second source of truth (spec.md
// §9: "module-level credential globals ... treated as default fallback
// only").
type Credentials struct {
	AuthClientId string `yaml:"auth_client_id" json:"auth_client_id"`
	AuthSecret   string `yaml:"auth_secret" json:"auth_secret"`
}

// Empty reports whether both credential fields are unset.
func (c Credentials) Empty() bool {
	return c.AuthClientId == "" && c.AuthSecret == ""
}

// Pool returns the named nodepool and whether it exists.
func (c *ClusterConfig) Pool(name string) (NodePoolConfig, bool) {
	p, ok := c.NodePools[name]
	return p, ok
}

// ControlPlane returns the control-plane pool, which always exists after
// Validate has run.
func (c *ClusterConfig) ControlPlane() NodePoolConfig {
	return c.NodePools[ControlPlanePoolName]
}

// PoolNames returns all nodepool names, control plane first, the rest
// sorted for deterministic iteration.
func (c *ClusterConfig) PoolNames() []string {
	names := make([]string, 0, len(c.NodePools))
	for name := range c.NodePools {
		if name != ControlPlanePoolName {
			names = append(names, name)
		}
	}
	sortStrings(names)
	return append([]string{ControlPlanePoolName}, names...)
}

func sortStrings(xs []string) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}
