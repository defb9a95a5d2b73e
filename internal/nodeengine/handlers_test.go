package nodeengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chalkan3/sloth-kubernetes/internal/cloudapi"
	"github.com/chalkan3/sloth-kubernetes/internal/config"
	"github.com/chalkan3/sloth-kubernetes/internal/sshexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSSHFactory ignores the key material handlers build from the
// decoded config and always returns ssh, so handler tests can assert
// on calls without a real parseable key.
func fixedSSHFactory(ssh sshexec.Executor) func(user, privateKey string) (sshexec.Executor, error) {
	return func(user, privateKey string) (sshexec.Executor, error) {
		return ssh, nil
	}
}

func encodeNodeTaskPayload(t *testing.T, cfg *config.ClusterConfig, poolName string, number int) []byte {
	t.Helper()
	yamlDoc, err := config.Export(cfg)
	require.NoError(t, err)
	raw, err := json.Marshal(nodeTaskPayload{ConfigYAML: yamlDoc, PoolName: poolName, NodeNumber: number})
	require.NoError(t, err)
	return raw
}

func TestCreateHandlerRoundTripsPayload(t *testing.T) {
	srv := fakeCloudServer(t)
	defer srv.Close()

	ssh := &fakeSSH{reply: "node-token-value"}
	eng := NewEngine(cloudapi.NewClient(srv.URL), ssh, "root")
	eng.SSHFactory = fixedSSHFactory(ssh)
	cfg := baseCluster()

	payload := encodeNodeTaskPayload(t, cfg, config.ControlPlanePoolName, 1)
	result, creds, meta, err := eng.CreateHandler(context.Background(), payload)
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Equal(t, "client", creds.AuthClientId)

	nodeResult, ok := result.(NodeResult)
	require.True(t, ok)
	assert.Equal(t, "Server Created Successfully", nodeResult.Message)
	assert.Equal(t, 1, nodeResult.NodeNumber)
}

func TestUpdateHandlerPropagatesNotExistError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/service/server/info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]cloudapi.ServerInfo{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ssh := &fakeSSH{}
	eng := NewEngine(cloudapi.NewClient(srv.URL), ssh, "root")
	eng.SSHFactory = fixedSSHFactory(ssh)
	cfg := baseCluster()

	payload := encodeNodeTaskPayload(t, cfg, "worker1", 1)
	_, _, _, err := eng.UpdateHandler(context.Background(), payload)
	require.Error(t, err)
	var notExist *NotExistError
	require.ErrorAs(t, err, &notExist)
}
