// Package cloudapi implements the authenticated HTTP client for the
// cloud provider's command-queue API: server creation, discovery, and
// the asynchronous command-queue poll (spec.md §4.B).
package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chalkan3/sloth-kubernetes/internal/retry"
)

// DefaultAPIServer is used when KAMATERA_API_SERVER is unset.
const DefaultAPIServer = "https://cloudcli.cloudwm.com"

// pollInterval and pollTimeout implement spec.md §4.B WaitCommand:
// "poll ... every 2s up to 3600s".
const (
	pollInterval = 2 * time.Second
	pollTimeout  = 3600 * time.Second
)

// Client is the authenticated HTTP client for the cloud provider's API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a Client against baseURL (typically
// os.Getenv("KAMATERA_API_SERVER"), or DefaultAPIServer).
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIServer
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// do issues one HTTP request per spec.md §4.B's request contract:
// AuthClientId/AuthSecret headers, JSON body, JSON (or null) response.
// Transient network failures are retried with backoff; HTTP-level
// status codes are returned to the caller to interpret, since "404" and
// "no servers found" are both legitimate domain outcomes here, not
// transport failures.
func (c *Client) do(ctx context.Context, creds Credentials, method, path string, body interface{}, out interface{}) (int, error) {
	if creds.AuthClientId == "" || creds.AuthSecret == "" {
		return 0, newAuthError("cloud API call to %s requires AuthClientId and AuthSecret", path)
	}

	var bodyReader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, newCloudApiError(0, "failed to encode request body: %s", err)
		}
		bodyReader = bytes.NewReader(buf)
	}

	var status int
	var raw []byte
	err := retry.RetryTransient(func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("AuthClientId", creds.AuthClientId)
		req.Header.Set("AuthSecret", creds.AuthSecret)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return retry.NewRetryableError(err)
		}
		defer resp.Body.Close()

		raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.NewRetryableError(err)
		}
		status = resp.StatusCode
		return nil
	})
	if err != nil {
		return 0, newCloudApiError(0, "request to %s failed: %s", path, err)
	}

	if out != nil && len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			// "response is parsed as JSON or null on parse failure" —
			// a malformed body is not itself an error, the caller's
			// status-code handling decides what it means.
			out = nil
		}
	}
	return status, nil
}

// FindServerCommandInQueue scans the command queue for a pending
// command tagged commandInfo whose serviceName starts with
// serverNamePrefix, returning its id (spec.md §4.B).
func (c *Client) FindServerCommandInQueue(ctx context.Context, creds Credentials, commandInfo, serverNamePrefix string) (string, bool, error) {
	var rows []QueueEntry
	status, err := c.do(ctx, creds, http.MethodGet, "/svc/queue", nil, &rows)
	if err != nil {
		return "", false, err
	}
	if status != http.StatusOK {
		return "", false, newCloudApiError(status, "GET /svc/queue returned status %d", status)
	}
	for _, row := range rows {
		if row.CommandInfo == commandInfo && strings.HasPrefix(row.ServiceName, serverNamePrefix) {
			return row.ID, true, nil
		}
	}
	return "", false, nil
}

// GetServerInfo resolves a server-name prefix to at most one VM
// (spec.md §4.B). Absence is reported as (nil, nil); more than one
// match is a hard AmbiguityError.
func (c *Client) GetServerInfo(ctx context.Context, creds Credentials, namePrefix string) (*ServerInfo, error) {
	rows, err := c.ListServers(ctx, creds, namePrefix)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows) > 1 {
		names := make([]string, len(rows))
		for i, r := range rows {
			names[i] = r.Name
		}
		return nil, &AmbiguityError{Prefix: namePrefix, Matches: names}
	}
	return &rows[0], nil
}

// ListServers returns every server matching the "{prefix}-.*" regex the
// provider API matches server names against. An HTTP status other than
// 200 is only tolerated when the provider's message says "No servers
// found" (spec.md §4.B); any other non-200 is a hard error.
func (c *Client) ListServers(ctx context.Context, creds Credentials, namePrefix string) ([]ServerInfo, error) {
	body := map[string]string{"name": namePrefix + "-.*"}
	var rows []ServerInfo
	var msg struct {
		Message string `json:"message"`
	}

	var raw json.RawMessage
	status, err := c.do(ctx, creds, http.MethodPost, "/service/server/info", body, &raw)
	if err != nil {
		return nil, err
	}
	if status == http.StatusOK {
		_ = json.Unmarshal(raw, &rows)
		return rows, nil
	}

	// Re-parse the same body as an error-message envelope; this path
	// only runs on non-200 responses.
	_ = json.Unmarshal(raw, &msg)
	if strings.Contains(msg.Message, "No servers found") {
		return nil, nil
	}
	return nil, newCloudApiError(status, "POST /service/server/info returned status %d", status)
}

// CreateServer issues a server creation request, returning the command
// id to pass to WaitCommand (spec.md §4.B/§4.E).
func (c *Client) CreateServer(ctx context.Context, creds Credentials, spec CreateServerSpec) (string, error) {
	var results []struct {
		CommandID string `json:"commandId"`
	}
	status, err := c.do(ctx, creds, http.MethodPost, "/service/server", spec, &results)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || len(results) != 1 {
		return "", newCloudApiError(status, "POST /service/server returned status %d with %d results", status, len(results))
	}
	return results[0].CommandID, nil
}

// GetCommandStatus fetches one command-queue record by id. An unknown
// id yields a zero-value record, per spec.md §4.B ("record | {}").
func (c *Client) GetCommandStatus(ctx context.Context, creds Credentials, id string) (CommandRecord, error) {
	var rec CommandRecord
	_, err := c.do(ctx, creds, http.MethodGet, fmt.Sprintf("/service/queue?id=%s", id), nil, &rec)
	if err != nil {
		return CommandRecord{}, err
	}
	return rec, nil
}

// WaitCommand polls GetCommandStatus every 2s for up to 3600s, and
// returns as soon as the command reaches a terminal status. On
// timeout it returns the last observation without error (spec.md §4.B,
// §7: "WaitCommand timeout is not an error — it returns the last
// observation; the caller decides").
func (c *Client) WaitCommand(ctx context.Context, creds Credentials, id string) (CommandRecord, error) {
	deadline := time.Now().Add(pollTimeout)
	var last CommandRecord
	for {
		rec, err := c.GetCommandStatus(ctx, creds, id)
		if err != nil {
			return last, err
		}
		last = rec
		if IsTerminal(rec.Status) {
			return rec, nil
		}
		if time.Now().After(deadline) {
			return last, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
