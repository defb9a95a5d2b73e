package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/chalkan3/sloth-kubernetes/internal/clusterengine"
	"github.com/chalkan3/sloth-kubernetes/internal/config"
	"github.com/chalkan3/sloth-kubernetes/internal/poolengine"
	"github.com/chalkan3/sloth-kubernetes/internal/tasks"
)

// domainError marks the error kinds whose message is safe to return to
// a caller verbatim (config.ConfigError, cloudapi's error family,
// nodeengine.NotExistError); anything else is masked to the spec.md §6
// "opaque" wording.
type domainError interface {
	error
	DomainError()
}

// headerCreds reads the AuthClientId/AuthSecret headers spec.md §6
// describes as carrying provider credentials.
func headerCreds(r *http.Request) tasks.Creds {
	return tasks.Creds{
		AuthClientId: r.Header.Get("AuthClientId"),
		AuthSecret:   r.Header.Get("AuthSecret"),
	}
}

// loadConfigWithHeaderCreds parses the "kconfig" form field and merges
// the request's header credentials into it, per spec.md §6 "Headers
// AuthClientId, AuthSecret carry provider credentials."
func loadConfigWithHeaderCreds(r *http.Request) (*config.ClusterConfig, error) {
	if err := r.ParseForm(); err != nil {
		return nil, &config.ConfigError{Message: "failed to parse form: " + err.Error()}
	}
	kconfig := r.FormValue("kconfig")
	cfg, err := config.Load(kconfig)
	if err != nil {
		return nil, err
	}
	creds := headerCreds(r)
	if creds.AuthClientId != "" {
		cfg.Credentials.AuthClientId = creds.AuthClientId
	}
	if creds.AuthSecret != "" {
		cfg.Credentials.AuthSecret = creds.AuthSecret
	}
	return cfg, nil
}

func (s *Server) enqueueClusterTask(w http.ResponseWriter, r *http.Request, taskName string) {
	cfg, err := loadConfigWithHeaderCreds(r)
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := clusterengine.EncodeClusterTaskPayload(cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	s.enqueueAndRespond(w, r.Context(), taskName, payload)
}

func (s *Server) enqueuePoolTask(w http.ResponseWriter, r *http.Request, taskName string) {
	cfg, err := loadConfigWithHeaderCreds(r)
	if err != nil {
		writeError(w, err)
		return
	}
	poolName := r.FormValue("nodepool_name")
	if poolName == "" {
		writeError(w, &config.ConfigError{Message: "nodepool_name is required"})
		return
	}

	payload, err := poolengine.EncodePoolTaskPayload(cfg, poolName)
	if err != nil {
		writeError(w, err)
		return
	}

	s.enqueueAndRespond(w, r.Context(), taskName, payload)
}

func (s *Server) enqueueNodeTask(w http.ResponseWriter, r *http.Request, taskName string) {
	cfg, err := loadConfigWithHeaderCreds(r)
	if err != nil {
		writeError(w, err)
		return
	}
	poolName := r.FormValue("nodepool_name")
	if poolName == "" {
		writeError(w, &config.ConfigError{Message: "nodepool_name is required"})
		return
	}
	number, err := strconv.Atoi(r.FormValue("node_number"))
	if err != nil {
		writeError(w, &config.ConfigError{Message: "node_number must be an integer"})
		return
	}

	yamlDoc, err := config.Export(cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	payload, err := marshalJSON(poolengine.NodeTaskPayload{ConfigYAML: yamlDoc, PoolName: poolName, NodeNumber: number})
	if err != nil {
		writeError(w, err)
		return
	}

	s.enqueueAndRespond(w, r.Context(), taskName, payload)
}

func (s *Server) enqueueAndRespond(w http.ResponseWriter, ctx context.Context, taskName string, payload []byte) {
	taskID, err := s.Broker.Enqueue(ctx, taskName, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, &config.ConfigError{Message: "failed to parse form: " + err.Error()})
		return
	}
	taskID := r.FormValue("task_id")
	if taskID == "" {
		writeError(w, &config.ConfigError{Message: "task_id is required"})
		return
	}

	if r.FormValue("tree") != "" {
		tree, err := tasks.GetTaskTree(r.Context(), s.Broker, taskID, headerCreds(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"tree": tree})
		return
	}

	status, err := tasks.GetTaskStatus(r.Context(), s.Broker, taskID, headerCreds(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
