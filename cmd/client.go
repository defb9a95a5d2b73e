package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

var apiServerFlag string

// apiClient is a thin HTTP client over the /k8s endpoints internal/httpapi
// exposes; it carries nothing the server itself doesn't already enforce
// (credentials travel as headers, config as a form field).
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient() *apiClient {
	base := apiServerFlag
	if base == "" {
		base = os.Getenv("SLOTH_API_SERVER")
	}
	if base == "" {
		base = "http://localhost:8080"
	}
	return &apiClient{baseURL: base, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

func (c *apiClient) postForm(path string, form url.Values, clientID, secret string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if clientID != "" {
		req.Header.Set("AuthClientId", clientID)
	}
	if secret != "" {
		req.Header.Set("AuthSecret", secret)
	}
	return c.httpClient.Do(req)
}

type enqueueResponse struct {
	TaskID string `json:"task_id"`
}

// enqueue posts to one of the create/update endpoints and returns the
// assigned task ID.
func (c *apiClient) enqueue(path string, form url.Values, clientID, secret string) (string, error) {
	resp, err := c.postForm(path, form, clientID, secret)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned HTTP %d", path, resp.StatusCode)
	}

	var out enqueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return out.TaskID, nil
}

// taskStatus fetches one task's status record.
func (c *apiClient) taskStatus(taskID, clientID, secret string) (map[string]interface{}, error) {
	return c.fetchTaskStatus(taskID, clientID, secret, false)
}

// taskTree fetches the full flattened task/subtask status tree (the
// CLI's `--tree` flag).
func (c *apiClient) taskTree(taskID, clientID, secret string) (map[string]interface{}, error) {
	return c.fetchTaskStatus(taskID, clientID, secret, true)
}

func (c *apiClient) fetchTaskStatus(taskID, clientID, secret string, tree bool) (map[string]interface{}, error) {
	form := url.Values{"task_id": {taskID}}
	if tree {
		form.Set("tree", "1")
	}
	resp, err := c.postForm("/k8s/task_status", form, clientID, secret)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode task status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := out["message"].(string)
		return nil, fmt.Errorf("task_status returned HTTP %d: %s", resp.StatusCode, msg)
	}
	return out, nil
}

func formatNodeNumber(n int) string {
	return strconv.Itoa(n)
}
