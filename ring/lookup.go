package ring

// lookup.go: find_successor as a bounded hop loop. Each hop either answers
// the lookup or names the next node to ask; the loop never recurses and
// never visits a hop it has already seen fail.

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// maxHops bounds a lookup. A correct ring resolves in O(log N) hops; the
// bound only matters while finger tables are stale.
const maxHops = M

// Resolve returns the node responsible for key: the first node whose
// identifier is >= key, circularly.
func (n *Node) Resolve(key ID) (Contact, error) {
	n.mu.Lock()
	succ := n.successor
	n.mu.Unlock()
	if BetweenRightIncl(n.me.ID, key, succ.ID) {
		return succ, nil
	}
	hop := n.closestPrecedingFinger(key, nil)
	if hop.ID == n.me.ID {
		hop = succ
	}
	return n.chase(hop, key)
}

// chase drives the remote half of a lookup starting at hop. On an
// unreachable hop it falls back to the next-best finger, then the direct
// successor; it fails once no untried path advances.
func (n *Node) chase(hop Contact, key ID) (Contact, error) {
	dead := make(map[ID]struct{})
	for steps := 0; steps < maxHops; steps++ {
		found, next, err := n.network.findSuccessor(hop, key, n.timeoutRPC)
		if err != nil {
			log.Debugf("lookup: hop %s unreachable: %v", hop.Address, err)
			dead[hop.ID] = struct{}{}
			fallback := n.closestPrecedingFinger(key, dead)
			if fallback.ID == n.me.ID || fallback.ID == hop.ID {
				fallback = n.Successor()
			}
			if _, gone := dead[fallback.ID]; gone || fallback.ID == n.me.ID {
				return Contact{}, fmt.Errorf("lookup %s: no reachable path: %w", key, ErrUnreachable)
			}
			hop = fallback
			continue
		}
		if found {
			return next, nil
		}
		if next.ID == hop.ID {
			return Contact{}, fmt.Errorf("lookup %s: stuck at %s: %w", key, hop.Address, ErrUnreachable)
		}
		hop = next
	}
	return Contact{}, fmt.Errorf("lookup %s: unresolved after %d hops: %w", key, maxHops, ErrUnreachable)
}

// closestPrecedingFinger scans the finger table from the longest jump to
// the shortest and returns the first entry strictly between this node and
// key, skipping anything in the exclude set. Falls back to self.
func (n *Node) closestPrecedingFinger(key ID, exclude map[ID]struct{}) Contact {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := M - 1; i >= 0; i-- {
		f := n.fingers[i]
		if f.Empty() {
			continue
		}
		if _, gone := exclude[f.ID]; gone {
			continue
		}
		if Between(n.me.ID, f.ID, key) {
			return f
		}
	}
	return n.me
}

// handleFindSuccessor answers one lookup hop on behalf of a remote caller:
// either the key falls to our successor (found) or we name the best next
// hop we know of.
func (n *Node) handleFindSuccessor(key ID) (bool, Contact) {
	n.mu.Lock()
	succ := n.successor
	n.mu.Unlock()
	if BetweenRightIncl(n.me.ID, key, succ.ID) {
		return true, succ
	}
	next := n.closestPrecedingFinger(key, nil)
	if next.ID == n.me.ID {
		return false, succ
	}
	return false, next
}
