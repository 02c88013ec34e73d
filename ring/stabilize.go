package ring

// stabilize.go: background repair of the ring topology. Nodes join and
// fail at any time; these tasks converge the successor/predecessor links
// and the finger table toward the current membership. Failures here are
// steady-state churn noise, logged and absorbed, never propagated.

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Stabilize verifies the successor link: if our successor's predecessor
// has slotted in between us and it, adopt that node as the new successor.
// Either way the (possibly updated) successor is notified of us.
func (n *Node) Stabilize() {
	n.mu.Lock()
	succ := n.successor
	n.mu.Unlock()

	pred, ok, err := n.network.getPredecessor(succ, n.timeoutRPC)
	if err != nil {
		// Successor gone. Fall back to ourselves; the ring re-forms as
		// the remaining nodes notify us again.
		log.Warnf("stabilize: successor %s unreachable, resetting: %v", succ.Address, err)
		n.mu.Lock()
		n.successor = n.me
		n.mu.Unlock()
		return
	}
	n.mu.Lock()
	if ok && Between(n.me.ID, pred.ID, n.successor.ID) {
		n.successor = pred
	}
	succ = n.successor
	n.mu.Unlock()

	if succ.ID == n.me.ID {
		return
	}
	if err := n.network.notify(succ); err != nil {
		log.Debugf("stabilize: notify %s failed: %v", succ.Address, err)
	}
}

// handleNotify runs when some node announces itself as our possible
// predecessor.
func (n *Node) handleNotify(candidate Contact) {
	if candidate.ID == n.me.ID {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.predecessor.Empty() || Between(n.predecessor.ID, candidate.ID, n.me.ID) {
		n.predecessor = candidate
	}
}

// CheckPredecessor probes the predecessor; if the probe fails the link is
// cleared and this node is temporarily responsible for the vacated range.
func (n *Node) CheckPredecessor() {
	n.mu.Lock()
	pred := n.predecessor
	n.mu.Unlock()
	if pred.Empty() {
		return
	}
	if err := n.network.ping(pred, n.timeoutRPC); err != nil {
		log.Warnf("check-predecessor: %s unreachable, clearing: %v", pred.Address, err)
		n.mu.Lock()
		if n.predecessor.ID == pred.ID {
			n.predecessor = Contact{}
		}
		n.mu.Unlock()
	}
}

// FixFingers recomputes every finger table entry: slot i points at the
// successor of me+2^i.
func (n *Node) FixFingers() {
	for i := 0; i < M; i++ {
		start := FingerStart(n.me.ID, i)
		succ, err := n.Resolve(start)
		if err != nil {
			log.Debugf("fix-fingers: slot %d (%s): %v", i, start, err)
			continue
		}
		n.mu.Lock()
		n.fingers[i] = succ
		n.mu.Unlock()
	}
}

// Start launches the periodic maintenance tasks. Each runs on its own
// ticker and tolerates interleaved progress; Close stops them all.
func (n *Node) Start(interval time.Duration) {
	go n.runEvery(interval, n.Stabilize)
	go n.runEvery(interval, n.FixFingers)
	go n.runEvery(interval, n.CheckPredecessor)
}

func (n *Node) runEvery(d time.Duration, task func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			task()
		case <-n.stopCh:
			return
		}
	}
}
