package audit

// Resource types recorded against audit.Logger for reconciliation
// operations (spec.md §4's cluster/nodepool/node hierarchy).
const (
	ResourceCluster  = "cluster"
	ResourceNodepool = "nodepool"
	ResourceNode     = "node"
)

// ClusterRecorder logs reconciliation operations through a generic
// audit.Logger, keeping task-engine code free of EventType/EventAction
// bookkeeping.
type ClusterRecorder struct {
	Logger Logger
	Actor  string
}

// NewClusterRecorder builds a ClusterRecorder. actor identifies the
// caller recorded on every event (e.g. the API client's auth-client-id).
func NewClusterRecorder(logger Logger, actor string) *ClusterRecorder {
	return &ClusterRecorder{Logger: logger, Actor: actor}
}

// LogNodeOp records a node.{create,update} task outcome.
func (r *ClusterRecorder) LogNodeOp(nodeID string, action EventAction, success bool, metadata map[string]string) {
	r.logOp(ResourceNode, nodeID, action, success, metadata)
}

// LogNodepoolOp records a nodepool.{create,update} task outcome.
func (r *ClusterRecorder) LogNodepoolOp(poolID string, action EventAction, success bool, metadata map[string]string) {
	r.logOp(ResourceNodepool, poolID, action, success, metadata)
}

// LogClusterOp records a cluster.{create,update} task outcome.
func (r *ClusterRecorder) LogClusterOp(clusterID string, action EventAction, success bool, metadata map[string]string) {
	r.logOp(ResourceCluster, clusterID, action, success, metadata)
}

func (r *ClusterRecorder) logOp(resourceType, resourceID string, action EventAction, success bool, metadata map[string]string) {
	if r == nil || r.Logger == nil {
		return
	}
	event, err := r.Logger.LogDeployment(resourceID, r.Actor, resourceType+" "+string(action), action, success, metadata)
	if err != nil {
		return
	}
	event.ResourceType = resourceType
}

// LogTaskError records a task failure against the given resource.
func (r *ClusterRecorder) LogTaskError(resourceID, errMessage string, metadata map[string]string) {
	if r == nil || r.Logger == nil {
		return
	}
	_, _ = r.Logger.LogError(resourceID, r.Actor, errMessage, metadata)
}
