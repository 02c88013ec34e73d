package ring

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestWriteConvergesAllReplicas(t *testing.T) {
	ids := []ID{10, 100, 200, 250}
	nodes := buildRing(t, ids)

	if _, err := nodes[0].Distribute("doc", []byte("v1"), 3); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	set, err := nodes[0].Locate("doc", 3)
	if err != nil || len(set) != 3 {
		t.Fatalf("locate: %d replicas, err=%v", len(set), err)
	}
	primaryBefore, ok := set.Primary()
	if !ok {
		t.Fatalf("no primary after distribute")
	}

	// First write from a node that does not own the primary: the remote
	// write path.
	var writer *Node
	for _, n := range nodes {
		if n.Me().ID != primaryBefore.Owner.ID {
			writer = n
			break
		}
	}
	if err := writer.Write("doc", []byte("v2"), 3); err != nil {
		t.Fatalf("remote write: %v", err)
	}

	// Second write from the primary's own node: the local path.
	owner := nodeByID(t, nodes, primaryBefore.Owner.ID)
	if err := owner.Write("doc", []byte("v3"), 3); err != nil {
		t.Fatalf("local write: %v", err)
	}

	after, err := nodes[1].Locate("doc", 3)
	if err != nil || len(after) != 3 {
		t.Fatalf("locate after writes: %d replicas, err=%v", len(after), err)
	}
	for _, r := range after {
		if !bytes.Equal(r.Meta.Content, []byte("v3")) {
			t.Errorf("replica %s on %s: content %q, want %q", r.Meta.ReplicaKey, r.Owner.ID, r.Meta.Content, "v3")
		}
		// Writes never move the primary flag.
		if r.Meta.Primary != (r.Meta.ReplicaKey == primaryBefore.Meta.ReplicaKey) {
			t.Errorf("replica %s: primary flag changed by a write", r.Meta.ReplicaKey)
		}
	}
}

func TestWriteWithoutPrimaryAborts(t *testing.T) {
	nodes := buildRing(t, []ID{10, 100, 200, 250})

	if _, err := nodes[0].Distribute("orphan", []byte("v1"), 3); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	set, err := nodes[0].Locate("orphan", 3)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	primary, ok := set.Primary()
	if !ok {
		t.Fatalf("no primary after distribute")
	}

	// Drop the primary replica from its owner, as when the owning node
	// departed and took the copy with it.
	owner := nodeByID(t, nodes, primary.Owner.ID)
	owner.mu.Lock()
	delete(owner.files, primary.Meta.ReplicaKey)
	owner.mu.Unlock()

	err = nodes[0].Write("orphan", []byte("v2"), 3)
	if !errors.Is(err, ErrWriteAborted) {
		t.Fatalf("write without primary: err = %v, want ErrWriteAborted", err)
	}
	if !strings.Contains(err.Error(), "locate") {
		t.Errorf("abort reported in %q, want the locate phase", err)
	}
}

func TestWriteAbortsWhileLockHeld(t *testing.T) {
	nodes := buildRing(t, []ID{10, 100, 200, 250})

	if _, err := nodes[0].Distribute("busy", []byte("v1"), 3); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	set, err := nodes[0].Locate("busy", 3)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	primary, ok := set.Primary()
	if !ok {
		t.Fatalf("no primary after distribute")
	}
	owner := nodeByID(t, nodes, primary.Owner.ID)
	members := set.Members()

	// Occupy the critical section on the primary's node; the next write
	// finds the entry attempt already claimed and aborts.
	if !owner.requestEntry("busy", members) {
		t.Fatalf("could not take the lock for the test setup")
	}

	var writer *Node
	for _, n := range nodes {
		if n.Me().ID != owner.Me().ID {
			writer = n
			break
		}
	}
	err = writer.Write("busy", []byte("v2"), 3)
	if !errors.Is(err, ErrWriteAborted) {
		t.Fatalf("write against held lock: err = %v, want ErrWriteAborted", err)
	}
	if !strings.Contains(err.Error(), "lock") {
		t.Errorf("abort reported in %q, want the lock phase", err)
	}

	owner.release("busy", members)

	if err := writer.Write("busy", []byte("v2"), 3); err != nil {
		t.Fatalf("write after release: %v", err)
	}
	content, _, err := writer.Read("busy", 3)
	if err != nil || !bytes.Equal(content, []byte("v2")) {
		t.Fatalf("read after retried write: %q, err=%v", content, err)
	}
}

func TestWriteBestEffortOnMissingSecondary(t *testing.T) {
	// Quartile ids: hashed replica keys must be able to land on more than
	// one owner, which tiny ids like {10, 100, 200, 250} cannot provide in
	// a 2^32 space (every key would wrap to the lowest id).
	ids := []ID{1 << 29, 1 << 30, 3 << 30, ID(idMask - 5)}
	nodes := buildRing(t, ids)

	// Pick a file whose replica keys land on at least two distinct nodes,
	// so a secondary is guaranteed to live somewhere other than the
	// primary's owner.
	var fname string
	for i := 0; i < 20; i++ {
		candidate := fmt.Sprintf("att-%d", i)
		owners := make(map[ID]struct{})
		for r := 0; r < 3; r++ {
			owners[expectedOwner(ids, ReplicaKey(candidate, r))] = struct{}{}
		}
		if len(owners) >= 2 {
			fname = candidate
			break
		}
	}
	if fname == "" {
		t.Fatalf("no candidate file spreads over two nodes")
	}

	if _, err := nodes[0].Distribute(fname, []byte("v1"), 3); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	set, err := nodes[0].Locate(fname, 3)
	if err != nil || len(set) != 3 {
		t.Fatalf("locate: %d replicas, err=%v", len(set), err)
	}
	primary, ok := set.Primary()
	if !ok {
		t.Fatalf("no primary after distribute")
	}

	// Make one remote secondary disappear between locate and broadcast:
	// its owner still votes, but the update has nothing to apply to.
	var victim ReplicaInfo
	for _, r := range set {
		if r.Owner.ID != primary.Owner.ID {
			victim = r
			break
		}
	}
	if victim.Owner.Empty() {
		t.Fatalf("every replica landed on the primary's node")
	}
	victimNode := nodeByID(t, nodes, victim.Owner.ID)
	victimNode.mu.Lock()
	delete(victimNode.files, victim.Meta.ReplicaKey)
	victimNode.mu.Unlock()

	owner := nodeByID(t, nodes, primary.Owner.ID)
	committed, phase := owner.handleWriteRequest(fname, []byte("v2"), set)
	if !committed {
		t.Fatalf("write aborted in %s phase; a missing secondary must not block the commit", phase)
	}

	// Every surviving replica converged; the vanished one stays gone.
	for _, r := range set {
		holder := nodeByID(t, nodes, r.Owner.ID)
		meta, found := holder.metadata(r.Meta.ReplicaKey)
		if r.Meta.ReplicaKey == victim.Meta.ReplicaKey {
			if found {
				t.Errorf("deleted replica %s reappeared", r.Meta.ReplicaKey)
			}
			continue
		}
		if !found {
			t.Errorf("replica %s vanished from %s", r.Meta.ReplicaKey, r.Owner.ID)
			continue
		}
		if !bytes.Equal(meta.Content, []byte("v2")) {
			t.Errorf("replica %s on %s: content %q, want v2", r.Meta.ReplicaKey, r.Owner.ID, meta.Content)
		}
	}
}

func TestWriteLocateFailureReportsCause(t *testing.T) {
	a := newTestNode(t, 10)
	a.CreateRing()

	err := a.Write("doc", []byte("x"), 0)
	if !errors.Is(err, ErrWriteAborted) {
		t.Fatalf("write with invalid count: err = %v, want ErrWriteAborted", err)
	}
	if !strings.Contains(err.Error(), "locate") {
		t.Errorf("abort reported in %q, want the locate phase", err)
	}
	// The underlying locate failure is part of the message, not swallowed.
	if !strings.Contains(err.Error(), "replica count") {
		t.Errorf("abort %q does not name the locate failure", err)
	}
}

func TestWriteDeadlineScalesWithReplicaCount(t *testing.T) {
	a := newTestNode(t, 10)

	d1 := a.writeDeadline(1)
	d5 := a.writeDeadline(5)
	if d1 <= a.lockTimeout {
		t.Errorf("deadline %v leaves no room beyond the lock timeout %v", d1, a.lockTimeout)
	}
	// Each extra replica adds one sequential update call to the budget.
	if d5-d1 != 4*a.timeoutRPC {
		t.Errorf("deadline grew %v over 4 replicas, want %v", d5-d1, 4*a.timeoutRPC)
	}
}

func TestUpdateUnknownReplicaRejected(t *testing.T) {
	a := newTestNode(t, 10)
	b := newTestNode(t, 20)

	err := a.network.updateReplica(b.Me(), ID(12345), []byte("x"))
	if !errors.Is(err, ErrUnknownReplica) {
		t.Fatalf("update of unknown key: err = %v, want ErrUnknownReplica", err)
	}
}
