// Package httpapi implements the inbound HTTP façade (spec.md §6): the
// `/k8s/*` endpoints that translate form requests into enqueued tasks
// and resolve task IDs into status/result lookups.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chalkan3/sloth-kubernetes/internal/clusterengine"
	"github.com/chalkan3/sloth-kubernetes/internal/poolengine"
	"github.com/chalkan3/sloth-kubernetes/internal/tasks"
)

// Server wires Broker access and the task-name constants the engines
// export into chi handlers. It holds no engine state of its own: every
// engine's actual work runs inside the Runner's worker pool, reached
// only by task name.
type Server struct {
	Broker tasks.Broker
}

// NewServer builds a Server backed by broker.
func NewServer(broker tasks.Broker) *Server {
	return &Server{Broker: broker}
}

// Router builds the chi.Router exposing every spec.md §6 endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/k8s", func(r chi.Router) {
		r.Post("/task_status", s.handleTaskStatus)
		r.Post("/create_cluster", s.handleCreateCluster)
		r.Post("/create_nodepool", s.handleCreateNodepool)
		r.Post("/create_node", s.handleCreateNode)
		r.Post("/update_cluster", s.handleUpdateCluster)
		r.Post("/update_nodepool", s.handleUpdateNodepool)
		r.Post("/update_node", s.handleUpdateNode)
		r.Post("/status", s.handleStatus)
		r.Post("/kubeconfig", s.handleKubeconfig)
	})

	return r
}

func (s *Server) handleCreateCluster(w http.ResponseWriter, r *http.Request) {
	s.enqueueClusterTask(w, r, clusterengine.CreateTaskName)
}

func (s *Server) handleUpdateCluster(w http.ResponseWriter, r *http.Request) {
	s.enqueueClusterTask(w, r, clusterengine.UpdateTaskName)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.enqueueClusterTask(w, r, clusterengine.StatusTaskName)
}

func (s *Server) handleKubeconfig(w http.ResponseWriter, r *http.Request) {
	s.enqueueClusterTask(w, r, clusterengine.KubeconfigTaskName)
}

func (s *Server) handleCreateNodepool(w http.ResponseWriter, r *http.Request) {
	s.enqueuePoolTask(w, r, clusterengine.PoolCreateTaskName)
}

func (s *Server) handleUpdateNodepool(w http.ResponseWriter, r *http.Request) {
	s.enqueuePoolTask(w, r, clusterengine.PoolUpdateTaskName)
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	s.enqueueNodeTask(w, r, poolengine.NodeCreateTaskName)
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	s.enqueueNodeTask(w, r, poolengine.NodeUpdateTaskName)
}
