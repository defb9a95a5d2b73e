// Package bootstrap synthesizes the shell scripts that turn a freshly
// created VM into an RKE2 server or agent node, and the scripts that
// later update an existing node's RKE2 config in place (spec.md §4.C).
package bootstrap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chalkan3/sloth-kubernetes/internal/config"
)

// Role distinguishes a control-plane node from a worker node, since the
// two run different RKE2 binaries (server vs agent).
type Role int

const (
	RoleServer Role = iota
	RoleAgent
)

// InstallSpec carries everything a bootstrap script needs about one
// node: its own identity, its RKE2 config, and (for agents, and
// additional servers) the first control-plane node to join against.
type InstallSpec struct {
	Role             Role
	NodeName         string
	Token            string
	RKE2             config.RKE2Config
	TLSSan           []string
	FirstServerIP    string // empty for the first control-plane node
	IsFirstServer    bool
}

// RenderConfigYAML builds the /etc/rancher/rke2/config.yaml contents
// for a node, in the key-ordering and style the teacher's
// BuildRKE2ServerConfig/BuildRKE2AgentConfig use: plain
// strings.Builder concatenation, not a YAML marshaler, so the output
// matches exactly what RKE2 expects on disk.
func RenderConfigYAML(spec InstallSpec, nodeIP, privateIP string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "token: %s\n", spec.Token)

	if spec.Role == RoleAgent || !spec.IsFirstServer {
		fmt.Fprintf(&b, "server: https://%s:9345\n", spec.FirstServerIP)
	}

	if len(spec.TLSSan) > 0 {
		b.WriteString("tls-san:\n")
		for _, san := range spec.TLSSan {
			fmt.Fprintf(&b, "  - %s\n", san)
		}
	}

	fmt.Fprintf(&b, "node-name: %s\n", spec.NodeName)
	fmt.Fprintf(&b, "node-ip: %s\n", privateIP)
	fmt.Fprintf(&b, "node-external-ip: %s\n", nodeIP)

	if spec.Role == RoleServer {
		b.WriteString("bind-address: 0.0.0.0\n")
		fmt.Fprintf(&b, "advertise-address: %s\n", privateIP)
	}

	for _, key := range sortedExtraKeys(spec.RKE2.Extra) {
		fmt.Fprintf(&b, "%s: %s\n", key, spec.RKE2.Extra[key])
	}

	return b.String()
}

func sortedExtraKeys(extra map[string]string) []string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// installCommand mirrors GetRKE2InstallCommand: a piped curl|sh
// invocation with INSTALL_RKE2_TYPE and an optional pinned version.
func installCommand(spec InstallSpec) string {
	kind := "server"
	if spec.Role == RoleAgent {
		kind = "agent"
	}
	cmd := fmt.Sprintf("curl -sfL https://get.rke2.io | INSTALL_RKE2_TYPE=%s", kind)
	if spec.RKE2.Version != "" {
		cmd += fmt.Sprintf(" INSTALL_RKE2_VERSION=%s", spec.RKE2.Version)
	}
	return cmd + " sh -"
}

func serviceUnit(role Role) string {
	if role == RoleAgent {
		return "rke2-agent.service"
	}
	return "rke2-server.service"
}

// RenderInstallScript builds the full first-boot script for a node:
// kernel prerequisites, the RKE2 config file, the installer, and an
// idempotency gate so re-running install on an already-bootstrapped
// node is a no-op (spec.md §4.C "Update must not destroy existing
// cluster state").
func RenderInstallScript(spec InstallSpec, nodeIP, privateIP string) string {
	configYAML := RenderConfigYAML(spec, nodeIP, privateIP)
	unit := serviceUnit(spec.Role)

	return fmt.Sprintf(`#!/bin/bash
set -e

if systemctl is-active --quiet %[1]s; then
  echo "%[1]s already active, skipping install"
  exit 0
fi

swapoff -a
sed -i '/swap/d' /etc/fstab

cat > /etc/modules-load.d/k8s.conf << 'EOF'
overlay
br_netfilter
EOF
modprobe overlay
modprobe br_netfilter

cat > /etc/sysctl.d/k8s.conf << 'EOF'
net.bridge.bridge-nf-call-iptables  = 1
net.bridge.bridge-nf-call-ip6tables = 1
net.ipv4.ip_forward                 = 1
EOF
sysctl --system

mkdir -p /etc/rancher/rke2

cat > /etc/rancher/rke2/config.yaml << 'RKECONFIG'
%[2]s
RKECONFIG

%[3]s

systemctl enable %[1]s
systemctl start %[1]s
`, unit, configYAML, installCommand(spec))
}

// RenderUpdateScript rewrites the node's config.yaml, re-runs the RKE2
// installer (an in-place upgrade when already installed) and restarts
// the service — used by the update operations in spec.md §4.E
// (node/nodepool/cluster update).
func RenderUpdateScript(spec InstallSpec, nodeIP, privateIP string) string {
	configYAML := RenderConfigYAML(spec, nodeIP, privateIP)
	unit := serviceUnit(spec.Role)

	return fmt.Sprintf(`#!/bin/bash
set -e

cat > /etc/rancher/rke2/config.yaml << 'RKECONFIG'
%s
RKECONFIG

%s

systemctl restart %s
`, configYAML, installCommand(spec), unit)
}
