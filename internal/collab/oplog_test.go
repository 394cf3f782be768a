package collab

import (
	"fmt"
	"testing"

	"collab-server/internal/models"
)

func TestOperationLogTrimBound(t *testing.T) {
	log := newMemOpLog()
	w := NewOperationLogWriter(log, 100)

	for i := 0; i < 150; i++ {
		w.Write("proj-1", &models.OperationEntry{
			UserID:    "u1",
			Timestamp: int64(i),
			Operation: map[string]interface{}{"seq": fmt.Sprintf("%d", i)},
		})
	}
	w.Close()

	if got := log.count("proj-1"); got != 100 {
		t.Fatalf("expected 100 retained entries, got %d", got)
	}

	entries, err := log.LoadRecentOperations(nil, "proj-1", 100)
	if err != nil {
		t.Fatalf("LoadRecentOperations: %v", err)
	}
	// The survivors must be the most recent 100, oldest truncated first.
	if entries[0].Timestamp != 50 {
		t.Errorf("oldest retained entry has timestamp %d, want 50", entries[0].Timestamp)
	}
	if entries[len(entries)-1].Timestamp != 149 {
		t.Errorf("newest retained entry has timestamp %d, want 149", entries[len(entries)-1].Timestamp)
	}
}

func TestOperationLogIsolatedPerRoom(t *testing.T) {
	log := newMemOpLog()
	w := NewOperationLogWriter(log, 100)

	w.Write("proj-1", &models.OperationEntry{UserID: "u1", Operation: map[string]interface{}{"op": "a"}})
	w.Write("proj-2", &models.OperationEntry{UserID: "u2", Operation: map[string]interface{}{"op": "b"}})
	w.Close()

	if got := log.count("proj-1"); got != 1 {
		t.Errorf("proj-1 expected 1 entry, got %d", got)
	}
	if got := log.count("proj-2"); got != 1 {
		t.Errorf("proj-2 expected 1 entry, got %d", got)
	}
}

func TestOperationLogFailureIsSwallowed(t *testing.T) {
	log := newMemOpLog()
	log.failAppend = true
	w := NewOperationLogWriter(log, 100)

	// Must neither panic nor surface an error to the caller.
	w.Write("proj-1", &models.OperationEntry{UserID: "u1", Operation: map[string]interface{}{"op": "a"}})
	w.Close()

	if got := log.count("proj-1"); got != 0 {
		t.Errorf("expected failed append to store nothing, got %d", got)
	}
}

func TestOperationLogTrimFailureKeepsAppend(t *testing.T) {
	log := newMemOpLog()
	log.failTrim = true
	w := NewOperationLogWriter(log, 1)

	w.Write("proj-1", &models.OperationEntry{UserID: "u1", Operation: map[string]interface{}{"op": "a"}})
	w.Write("proj-1", &models.OperationEntry{UserID: "u1", Operation: map[string]interface{}{"op": "b"}})
	w.Close()

	// Trim failing may leave the log over the bound; appends still landed.
	if got := log.count("proj-1"); got != 2 {
		t.Errorf("expected 2 entries with trim disabled, got %d", got)
	}
}

func TestHubWritesCanvasOperationsToLog(t *testing.T) {
	log := newMemOpLog()
	h := NewHub(log, nil, Options{OplogRetention: 100, SendBufferSize: 64})
	go h.Run()

	a := connect(h, "u1", "u1@example.com")
	join(t, h, a, "proj-1")
	for i := 0; i < 3; i++ {
		emit(t, h, a, models.EventCanvasOperation, map[string]interface{}{"op": "add"})
	}
	barrier(h)
	h.Stop() // drains the log writer

	if got := log.count("proj-1"); got != 3 {
		t.Fatalf("expected 3 logged operations, got %d", got)
	}
	entries, _ := log.LoadRecentOperations(nil, "proj-1", 10)
	for i, entry := range entries {
		if entry.UserID != "u1" {
			t.Errorf("entry %d missing sender, got %q", i, entry.UserID)
		}
		if entry.Timestamp == 0 {
			t.Errorf("entry %d missing timestamp", i)
		}
	}
}
