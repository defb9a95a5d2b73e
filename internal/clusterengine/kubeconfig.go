package clusterengine

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

func marshalPayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// rewriteKubeconfigServer parses a kubeconfig YAML document and rewrites
// clusters[0].cluster.server to newServer, preserving everything else
// byte-for-byte in structure (spec.md §4.G GetKubeconfig).
func rewriteKubeconfigServer(raw string, newServer string) (string, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return "", fmt.Errorf("failed to parse kubeconfig: %w", err)
	}

	clustersRaw, ok := doc["clusters"].([]interface{})
	if !ok || len(clustersRaw) == 0 {
		return "", fmt.Errorf("kubeconfig has no clusters entry")
	}
	entry, ok := clustersRaw[0].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("kubeconfig clusters[0] has an unexpected shape")
	}
	clusterBody, ok := entry["cluster"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("kubeconfig clusters[0].cluster has an unexpected shape")
	}
	clusterBody["server"] = newServer

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to re-encode kubeconfig: %w", err)
	}
	return string(out), nil
}
