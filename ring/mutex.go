package ring

// mutex.go: Ricart-Agrawala voting scoped to one logical file's replica
// set. A writer stamps its request with (lamport clock, node id), collects
// an acknowledgement from every member, and holds the critical section
// until release. Competing requests are ordered by RequestLess; the loser
// is deferred and acked when the winner releases.

import (
	"time"

	log "github.com/sirupsen/logrus"
)

type deferredVote struct {
	requester Contact
	clock     uint64
}

// voteState is this node's mutex bookkeeping for one file. Guarded by the
// node mutex; reset on each write attempt, cleared on release.
type voteState struct {
	wants    bool
	busy     bool
	reqClock uint64
	pending  map[ID]struct{}
	granted  chan struct{}
	deferred []deferredVote
}

func (n *Node) voteStateFor(filename string) *voteState {
	st, ok := n.votes[filename]
	if !ok {
		st = &voteState{}
		n.votes[filename] = st
	}
	return st
}

// requestEntry solicits acknowledgement from every member before entering
// the critical section. The request to self is short-circuited locally
// (our own stamped request trivially acks itself). Returns false if any
// member stays silent past the lock timeout; the want-flag is reset so a
// later attempt starts clean.
func (n *Node) requestEntry(filename string, members []Contact) bool {
	n.mu.Lock()
	st := n.voteStateFor(filename)
	if st.wants || st.busy {
		// One writer per file per node at a time.
		n.mu.Unlock()
		log.Warnf("mutex: %q entry already in progress on this node", filename)
		return false
	}
	n.clock++
	st.wants = true
	st.reqClock = n.clock
	st.pending = make(map[ID]struct{})
	for _, m := range members {
		if m.ID != n.me.ID {
			st.pending[m.ID] = struct{}{}
		}
	}
	if len(st.pending) == 0 {
		st.busy = true
		n.mu.Unlock()
		return true
	}
	granted := make(chan struct{})
	st.granted = granted
	reqClock := st.reqClock
	n.mu.Unlock()

	for _, m := range members {
		if m.ID == n.me.ID {
			continue
		}
		if err := n.network.voteRequest(m, filename, reqClock); err != nil {
			log.Debugf("mutex: vote request to %s failed: %v", m.Address, err)
		}
	}

	select {
	case <-granted:
		return true
	case <-time.After(n.lockTimeout):
		n.mu.Lock()
		if st.busy {
			// The final ack beat the timeout to the lock: the section is
			// ours, and only a release can clear busy again.
			n.mu.Unlock()
			return true
		}
		st.wants = false
		st.pending = nil
		st.granted = nil
		n.mu.Unlock()
		log.Warnf("mutex: %q entry timed out after %v", filename, n.lockTimeout)
		return false
	}
}

// handleVoteRequest decides a peer's request: ack it now, or defer it
// until our own critical section ends. Receiving the stamp also advances
// the local lamport clock.
func (n *Node) handleVoteRequest(filename string, reqClock uint64, requester Contact) {
	n.mu.Lock()
	if reqClock > n.clock {
		n.clock = reqClock
	}
	n.clock++
	st := n.voteStateFor(filename)
	deferIt := st.busy ||
		(st.wants && RequestLess(st.reqClock, n.me.ID, reqClock, requester.ID))
	if deferIt {
		st.deferred = append(st.deferred, deferredVote{requester: requester, clock: reqClock})
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()
	if err := n.network.voteAck(requester, filename, reqClock); err != nil {
		log.Debugf("mutex: ack to %s failed: %v", requester.Address, err)
	}
}

// handleVoteAck records one member's acknowledgement; the last one grants
// entry. Acks echo the clock of the request they answer: one left over
// from an abandoned attempt must not count toward the current one.
func (n *Node) handleVoteAck(filename string, reqClock uint64, from Contact) {
	n.mu.Lock()
	defer n.mu.Unlock()
	st := n.votes[filename]
	if st == nil || st.granted == nil || reqClock != st.reqClock {
		return // stale ack from an abandoned attempt
	}
	delete(st.pending, from.ID)
	if len(st.pending) == 0 {
		st.busy = true
		close(st.granted)
		st.granted = nil
	}
}

// release leaves the critical section: clear the local flags, tell every
// member to clear its view of us, then send the acknowledgements queued
// while we held the section.
func (n *Node) release(filename string, members []Contact) {
	n.mu.Lock()
	st := n.voteStateFor(filename)
	st.busy = false
	st.wants = false
	st.pending = nil
	st.granted = nil
	queued := st.deferred
	st.deferred = nil
	n.mu.Unlock()

	for _, m := range members {
		if m.ID == n.me.ID {
			continue
		}
		if err := n.network.releaseNotice(m, filename); err != nil {
			log.Debugf("mutex: release notice to %s failed: %v", m.Address, err)
		}
	}
	for _, d := range queued {
		if err := n.network.voteAck(d.requester, filename, d.clock); err != nil {
			log.Debugf("mutex: deferred ack to %s failed: %v", d.requester.Address, err)
		}
	}
}

// handleRelease clears the remote holder's busy mark on this member and
// drains anything this member itself had queued, unless it is competing
// for entry (then its own release will drain).
func (n *Node) handleRelease(filename string) {
	n.mu.Lock()
	st := n.votes[filename]
	if st == nil {
		n.mu.Unlock()
		return
	}
	st.busy = false
	var queued []deferredVote
	if !st.wants {
		queued = st.deferred
		st.deferred = nil
	}
	n.mu.Unlock()
	for _, d := range queued {
		if err := n.network.voteAck(d.requester, filename, d.clock); err != nil {
			log.Debugf("mutex: deferred ack to %s failed: %v", d.requester.Address, err)
		}
	}
}
