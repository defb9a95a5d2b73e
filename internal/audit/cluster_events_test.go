package audit

import "testing"

func findByResource(events []AuditEvent, resourceType, resourceID string) (AuditEvent, bool) {
	for _, e := range events {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			return e, true
		}
	}
	return AuditEvent{}, false
}

func TestClusterRecorderLogsTypedOps(t *testing.T) {
	logger := NewInMemoryLogger(0)
	r := NewClusterRecorder(logger, "client-1")

	r.LogClusterOp("demo", ActionCreate, true, nil)
	r.LogNodepoolOp("demo-worker1", ActionCreate, true, nil)
	r.LogNodeOp("demo-worker1-1", ActionCreate, false, map[string]string{"error": "boom"})

	events := logger.List()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	cluster, ok := findByResource(events, ResourceCluster, "demo")
	if !ok {
		t.Fatal("expected a cluster event")
	}
	if !cluster.Success {
		t.Error("expected cluster event to be marked successful")
	}
	if cluster.Actor != "client-1" {
		t.Errorf("expected actor client-1, got %q", cluster.Actor)
	}

	node, ok := findByResource(events, ResourceNode, "demo-worker1-1")
	if !ok {
		t.Fatal("expected a node event")
	}
	if node.Success {
		t.Error("expected node event to be marked failed")
	}
	if node.Metadata["error"] != "boom" {
		t.Errorf("expected metadata to carry the error, got %v", node.Metadata)
	}
}

func TestClusterRecorderLogTaskError(t *testing.T) {
	logger := NewInMemoryLogger(0)
	r := NewClusterRecorder(logger, "client-1")

	r.LogTaskError("demo-worker1-2", "ssh dial failed", map[string]string{"phase": "bootstrap"})

	events := logger.List()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != EventTypeError {
		t.Errorf("expected an error event, got %v", events[0].Type)
	}
}

func TestClusterRecorderToleratesNilLogger(t *testing.T) {
	var r *ClusterRecorder
	r.LogClusterOp("demo", ActionCreate, true, nil)

	r2 := NewClusterRecorder(nil, "client-1")
	r2.LogNodeOp("demo-worker1-1", ActionCreate, true, nil)
	r2.LogTaskError("demo-worker1-1", "boom", nil)
}
