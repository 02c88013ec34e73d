package ring

// consistency.go: primary-copy remote write. All writes funnel through
// the replica flagged primary at distribution time: its owner serializes
// writers with the vote protocol, applies the new content, and pushes it
// to every secondary. A secondary never broadcasts in turn, so an update
// traverses the replica set exactly once.
//
// Known limitation: the primary is never re-elected. If its owner leaves
// permanently, Locate yields a set with no primary and writes abort in
// the locate phase.

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Phases a write can abort in. Lock aborts are safe to retry; by the
// apply phase the primary may already hold the new content.
const (
	phaseLocate = "locate"
	phaseLock   = "lock"
	phaseApply  = "apply"
)

// Write updates filename everywhere: locate the replica set, hand the
// write to the primary's owner, and report the outcome. The commit point
// is the primary applying the content; unreachable secondaries are
// skipped, not fatal (best-effort broadcast).
func (n *Node) Write(filename string, content []byte, count int) error {
	set, err := n.Locate(filename, count)
	if err != nil {
		return fmt.Errorf("write %q: %s phase: %v: %w", filename, phaseLocate, err, ErrWriteAborted)
	}
	primary, ok := set.Primary()
	if !ok {
		return fmt.Errorf("write %q: no primary replica: %s phase: %w", filename, phaseLocate, ErrWriteAborted)
	}

	var committed bool
	var phase string
	if primary.Owner.ID == n.me.ID {
		committed, phase = n.handleWriteRequest(filename, content, set)
	} else {
		committed, phase, err = n.network.requestWrite(primary.Owner, filename, content, set, n.writeDeadline(len(set)))
		if err != nil {
			return fmt.Errorf("write %q: primary %s: %w", filename, primary.Owner.Address, err)
		}
	}
	if !committed {
		return fmt.Errorf("write %q: %s phase: %w", filename, phase, ErrWriteAborted)
	}
	return nil
}

// writeDeadline bounds a remote write: the lock acquisition plus one
// sequential update per replica, with one call of slack. An under-sized
// bound would report a committed write as a timeout.
func (n *Node) writeDeadline(replicas int) time.Duration {
	return n.lockTimeout + time.Duration(replicas+1)*n.timeoutRPC
}

// handleWriteRequest runs on the primary's owning node. It is the
// critical section of the protocol: exclusive access across the member
// nodes, apply at the primary, broadcast to secondaries, release.
func (n *Node) handleWriteRequest(filename string, content []byte, set ReplicaSet) (bool, string) {
	primary, ok := set.Primary()
	if !ok || primary.Owner.ID != n.me.ID {
		return false, phaseLocate
	}
	members := set.Members()

	if !n.requestEntry(filename, members) {
		return false, phaseLock
	}
	defer n.release(filename, members)

	if !n.updateContent(primary.Meta.ReplicaKey, content) {
		// The primary key moved off this node since Locate.
		return false, phaseApply
	}

	for _, r := range set {
		if r.Meta.ReplicaKey == primary.Meta.ReplicaKey {
			continue
		}
		if r.Owner.ID == n.me.ID {
			if !n.updateContent(r.Meta.ReplicaKey, content) {
				log.Warnf("write: %q local replica %s missing, skipped", filename, r.Meta.ReplicaKey)
			}
			continue
		}
		if err := n.network.updateReplica(r.Owner, r.Meta.ReplicaKey, content); err != nil {
			// Best-effort: this secondary stays stale until the next
			// successful write. No anti-entropy repair in this design.
			log.Warnf("write: %q secondary %s on %s skipped: %v", filename, r.Meta.ReplicaKey, r.Owner.Address, err)
		}
	}
	return true, ""
}
