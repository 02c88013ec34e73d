package ring

// node.go: per-node state and lifecycle (create, join, close).

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ReplicaMetadata is what a node stores for each replica it owns.
type ReplicaMetadata struct {
	ReplicaKey ID
	Filename   string
	Primary    bool
	Content    []byte
}

// ReplicaInfo pairs a replica's metadata with the node that holds it.
type ReplicaInfo struct {
	Owner Contact
	Meta  ReplicaMetadata
}

// ReplicaSet is the group of replicas of one logical file, as discovered
// by Locate. Recomputed on demand, never cached.
type ReplicaSet []ReplicaInfo

// Primary returns the replica flagged as primary, if the set has one.
func (set ReplicaSet) Primary() (ReplicaInfo, bool) {
	for _, r := range set {
		if r.Meta.Primary {
			return r, true
		}
	}
	return ReplicaInfo{}, false
}

// Members returns the distinct nodes holding replicas. A node owning
// several replica keys appears once; mutex votes are per node.
func (set ReplicaSet) Members() []Contact {
	seen := make(map[ID]struct{}, len(set))
	members := make([]Contact, 0, len(set))
	for _, r := range set {
		if _, ok := seen[r.Owner.ID]; ok {
			continue
		}
		seen[r.Owner.ID] = struct{}{}
		members = append(members, r.Owner)
	}
	return members
}

// Node is one member of the ring. All mutable state (topology, owned
// replicas, vote bookkeeping) is guarded by mu; remote-call handlers and
// the background maintenance tasks race on it concurrently.
type Node struct {
	me Contact

	mu          sync.Mutex
	successor   Contact
	predecessor Contact
	fingers     [M]Contact
	keys        map[ID]struct{}
	files       map[ID]*ReplicaMetadata

	// Ricart-Agrawala bookkeeping, one state per logical file.
	clock uint64
	votes map[string]*voteState

	network *Network

	timeoutRPC  time.Duration
	lockTimeout time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewNode binds a node to ip:port and starts its transport read loop.
// The caller controls the identity: me.ID is taken as-is (normally
// Hash(address), but tests inject fixed positions).
func NewNode(me Contact, ip string, port int) (*Node, error) {
	n := &Node{
		me:          me,
		successor:   me,
		keys:        make(map[ID]struct{}),
		files:       make(map[ID]*ReplicaMetadata),
		votes:       make(map[string]*voteState),
		timeoutRPC:  800 * time.Millisecond,
		lockTimeout: 3 * time.Second,
		stopCh:      make(chan struct{}),
	}
	netw, err := NewNetwork(n, ip, port)
	if err != nil {
		return nil, err
	}
	n.network = netw
	return n, nil
}

// Close stops the maintenance loops and the transport.
func (n *Node) Close() error {
	n.stopOnce.Do(func() { close(n.stopCh) })
	if n.network != nil {
		return n.network.Close()
	}
	return nil
}

// Me returns this node's own contact.
func (n *Node) Me() Contact { return n.me }

// Successor returns the current successor link.
func (n *Node) Successor() Contact {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.successor
}

// Predecessor returns the current predecessor link, if set.
func (n *Node) Predecessor() (Contact, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.predecessor, !n.predecessor.Empty()
}

// Fingers returns a snapshot of the finger table.
func (n *Node) Fingers() [M]Contact {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fingers
}

// CreateRing makes this node the sole member of a fresh ring.
func (n *Node) CreateRing() {
	n.mu.Lock()
	n.successor = n.me
	n.predecessor = Contact{}
	n.mu.Unlock()
	log.Infof("ring: created, id=%s addr=%s", n.me.ID, n.me.Address)
}

// Join attaches this node to the ring the bootstrap node belongs to:
// resolve our own identifier's successor starting at the bootstrap, adopt
// it, and notify it of our existence. Stabilization completes the links.
func (n *Node) Join(bootstrap Contact) error {
	succ, err := n.chase(bootstrap, n.me.ID)
	if err != nil {
		return fmt.Errorf("join via %s: %w", bootstrap.Address, err)
	}
	n.mu.Lock()
	n.successor = succ
	n.mu.Unlock()
	if err := n.network.notify(succ); err != nil {
		return fmt.Errorf("join: notify %s: %w", succ.Address, err)
	}
	log.Infof("ring: joined via %s, successor=%s", bootstrap.Address, succ)
	return nil
}

// ---- replica store (owned exclusively by this node; mutated only
// through its own handlers, per the single-writer discipline) ----

func (n *Node) storeMetadata(key ID, filename string, content []byte, primary bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keys[key] = struct{}{}
	n.files[key] = &ReplicaMetadata{
		ReplicaKey: key,
		Filename:   filename,
		Primary:    primary,
		Content:    append([]byte(nil), content...),
	}
}

// metadata copies out the replica stored under key, if any.
func (n *Node) metadata(key ID) (ReplicaMetadata, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	meta, ok := n.files[key]
	if !ok {
		return ReplicaMetadata{}, false
	}
	out := *meta
	out.Content = append([]byte(nil), meta.Content...)
	return out, true
}

// updateContent overwrites the content of an already-stored replica.
// The primary flag is assigned at distribution time and never touched here.
func (n *Node) updateContent(key ID, content []byte) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	meta, ok := n.files[key]
	if !ok {
		return false
	}
	meta.Content = append([]byte(nil), content...)
	return true
}

// Replicas returns a snapshot of every replica this node holds.
func (n *Node) Replicas() []ReplicaMetadata {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]ReplicaMetadata, 0, len(n.files))
	for _, meta := range n.files {
		m := *meta
		m.Content = append([]byte(nil), meta.Content...)
		out = append(out, m)
	}
	return out
}
