package config

import "gopkg.in/yaml.v3"

// Export serializes a ClusterConfig back into a self-contained YAML
// document, including embedded credentials, so it can be carried
// inside an enqueued task payload (spec.md §3 Lifecycle) and later
// reloaded with Load. Load(Export(c)) reproduces an equivalent config.
func Export(c *ClusterConfig) ([]byte, error) {
	raw := toRaw(c)
	out, err := yaml.Marshal(raw)
	if err != nil {
		return nil, newConfigError("failed to export configuration: %s", err)
	}
	return out, nil
}

func toRaw(c *ClusterConfig) *rawDocument {
	raw := &rawDocument{
		Cluster: rawCluster{
			Name:                   c.Name,
			Datacenter:             c.Datacenter,
			SSHKey:                 c.SSHKey,
			PrivateNetwork:         c.Network,
			Server:                 c.Server,
			Token:                  c.Token,
			ControlPlaneServerName: c.CPServerName,
			AllowHighAvailability:  c.AllowHighAvailability,
		},
		DefaultNodeConfig:       c.DefaultNodeConfig,
		DefaultServerRKE2Config: c.DefaultServerRKE2Config,
		DefaultAgentRKE2Config:  c.DefaultAgentRKE2Config,
		NodePools:               make(map[string]rawNodePool, len(c.NodePools)),
		KubeconfigServerIP:      string(c.KubeconfigServerIP),
		Credentials:             c.Credentials,
	}
	for name, pool := range c.NodePools {
		nums := make([]interface{}, 0, pool.Nodes.Len())
		for _, n := range pool.Nodes.Numbers() {
			nums = append(nums, n)
		}
		raw.NodePools[name] = rawNodePool{
			Nodes:      nums,
			NodeConfig: pool.NodeConfig,
			RKE2Config: pool.RKE2Config,
		}
	}
	return raw
}
