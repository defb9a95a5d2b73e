package cloudapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCreds() Credentials {
	return Credentials{AuthClientId: "client", AuthSecret: "secret"}
}

func TestDoRejectsMissingCredentials(t *testing.T) {
	c := NewClient("http://example.invalid")
	_, err := c.ListServers(context.Background(), Credentials{}, "node")
	require.Error(t, err)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestGetServerInfoNoMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode([]ServerInfo{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	info, err := c.GetServerInfo(context.Background(), testCreds(), "node-1")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestGetServerInfoSingleMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "client", r.Header.Get("AuthClientId"))
		assert.Equal(t, "secret", r.Header.Get("AuthSecret"))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode([]ServerInfo{
			{
				Name: "node-1-ab12c",
				Networks: []NetworkAttachment{
					{Network: "wan-1", IPs: []string{"1.2.3.4"}},
					{Network: "lan-1", IPs: []string{"10.0.0.5"}},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	info, err := c.GetServerInfo(context.Background(), testCreds(), "node-1")
	require.NoError(t, err)
	require.NotNil(t, info)

	pub, priv, err := info.IPs()
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", pub)
	assert.Equal(t, "10.0.0.5", priv)
}

// TestGetServerInfoAmbiguous exercises spec.md §8 scenario 5: two
// servers sharing a name prefix must always fail as ambiguous.
func TestGetServerInfoAmbiguous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode([]ServerInfo{
			{Name: "node-1-aaaaa"},
			{Name: "node-1-bbbbb"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.GetServerInfo(context.Background(), testCreds(), "node-1")
	require.Error(t, err)
	var ambErr *AmbiguityError
	require.ErrorAs(t, err, &ambErr)
	assert.Len(t, ambErr.Matches, 2)
}

func TestListServersNoServersFoundMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "No servers found matching criteria"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	rows, err := c.ListServers(context.Background(), testCreds(), "node-1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestListServersOtherErrorIsHard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "internal error"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ListServers(context.Background(), testCreds(), "node-1")
	require.Error(t, err)
	var apiErr *CloudApiError
	require.ErrorAs(t, err, &apiErr)
}

func TestCreateServerReturnsCommandID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/service/server", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode([]map[string]string{{"commandId": "cmd-123"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	id, err := c.CreateServer(context.Background(), testCreds(), CreateServerSpec{Name: "node-1-ab12c"})
	require.NoError(t, err)
	assert.Equal(t, "cmd-123", id)
}

func TestFindServerCommandInQueueMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode([]QueueEntry{
			{ID: "q-1", CommandInfo: "Create Server", ServiceName: "node-1-ab12c"},
			{ID: "q-2", CommandInfo: "Terminate Server", ServiceName: "node-2-zz999"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	id, found, err := c.FindServerCommandInQueue(context.Background(), testCreds(), CommandInfoCreateServer, "node-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "q-1", id)

	_, found, err = c.FindServerCommandInQueue(context.Background(), testCreds(), CommandInfoCreateServer, "node-3")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWaitCommandReturnsOnTerminalStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		status := CommandStatusComplete
		if calls < 2 {
			status = "running"
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(CommandRecord{ID: "cmd-1", Status: status})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	rec, err := c.WaitCommand(context.Background(), testCreds(), "cmd-1")
	require.NoError(t, err)
	assert.Equal(t, CommandStatusComplete, rec.Status)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestGenerateServerNameIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		name, err := GenerateServerName("node-1")
		require.NoError(t, err)
		assert.False(t, seen[name], "duplicate generated name %q", name)
		seen[name] = true
	}
}
