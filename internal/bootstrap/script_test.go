package bootstrap

import (
	"strings"
	"testing"

	"github.com/chalkan3/sloth-kubernetes/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestRenderConfigYAMLFirstServer(t *testing.T) {
	spec := InstallSpec{
		Role:          RoleServer,
		NodeName:      "controlplane-1",
		Token:         "secret-token",
		IsFirstServer: true,
		TLSSan:        []string{"1.2.3.4"},
	}
	out := RenderConfigYAML(spec, "1.2.3.4", "10.0.0.2")

	assert.Contains(t, out, "token: secret-token\n")
	assert.Contains(t, out, "node-name: controlplane-1\n")
	assert.Contains(t, out, "node-ip: 10.0.0.2\n")
	assert.Contains(t, out, "node-external-ip: 1.2.3.4\n")
	assert.Contains(t, out, "bind-address: 0.0.0.0\n")
	assert.Contains(t, out, "advertise-address: 10.0.0.2\n")
	assert.NotContains(t, out, "server: https://")
}

func TestRenderConfigYAMLAgentJoinsFirstServer(t *testing.T) {
	spec := InstallSpec{
		Role:          RoleAgent,
		NodeName:      "worker1-1",
		Token:         "secret-token",
		FirstServerIP: "10.0.0.2",
	}
	out := RenderConfigYAML(spec, "5.6.7.8", "10.0.0.9")

	assert.Contains(t, out, "server: https://10.0.0.2:9345\n")
	assert.NotContains(t, out, "bind-address:")
	assert.NotContains(t, out, "advertise-address:")
}

func TestRenderConfigYAMLIncludesExtraSorted(t *testing.T) {
	spec := InstallSpec{
		Role:          RoleServer,
		NodeName:      "controlplane-1",
		Token:         "tok",
		IsFirstServer: true,
		RKE2: config.RKE2Config{
			Extra: map[string]string{"write-kubeconfig-mode": "0600", "cni": "canal"},
		},
	}
	out := RenderConfigYAML(spec, "1.2.3.4", "10.0.0.2")

	cniIdx := strings.Index(out, "cni: canal")
	modeIdx := strings.Index(out, "write-kubeconfig-mode: 0600")
	assert.True(t, cniIdx >= 0 && modeIdx >= 0 && cniIdx < modeIdx)
}

func TestRenderInstallScriptIsIdempotent(t *testing.T) {
	spec := InstallSpec{Role: RoleServer, NodeName: "controlplane-1", Token: "t", IsFirstServer: true}
	script := RenderInstallScript(spec, "1.2.3.4", "10.0.0.2")

	assert.Contains(t, script, "systemctl is-active --quiet rke2-server.service")
	assert.Contains(t, script, "INSTALL_RKE2_TYPE=server")
	assert.Contains(t, script, "systemctl enable rke2-server.service")
}

func TestRenderInstallScriptAgentUsesAgentUnit(t *testing.T) {
	spec := InstallSpec{Role: RoleAgent, NodeName: "worker1-1", Token: "t", FirstServerIP: "10.0.0.2"}
	script := RenderInstallScript(spec, "5.6.7.8", "10.0.0.9")

	assert.Contains(t, script, "rke2-agent.service")
	assert.Contains(t, script, "INSTALL_RKE2_TYPE=agent")
}

func TestRenderUpdateScriptReinstallsAndRestarts(t *testing.T) {
	spec := InstallSpec{Role: RoleServer, NodeName: "controlplane-1", Token: "t", IsFirstServer: true}
	script := RenderUpdateScript(spec, "1.2.3.4", "10.0.0.2")

	assert.Contains(t, script, "systemctl restart rke2-server.service")
	assert.Contains(t, script, "curl -sfL https://get.rke2.io | INSTALL_RKE2_TYPE=server")
}
