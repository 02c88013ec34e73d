package ring

import (
	"flag"
	"math/rand"
	"testing"
)

// Tunable via: go test -run Scale -ring.nodes 16 -ring.seed 42
var (
	scaleNodes = flag.Int("ring.nodes", 8, "nodes in the scale test ring")
	scaleSeed  = flag.Int64("ring.seed", 1337, "seed for scale test identifiers and keys")
)

func TestScaleOwnership(t *testing.T) {
	if testing.Short() {
		t.Skip("scale test skipped in short mode")
	}
	rng := rand.New(rand.NewSource(*scaleSeed))

	taken := make(map[ID]struct{})
	ids := make([]ID, 0, *scaleNodes)
	for len(ids) < *scaleNodes {
		id := ID(rng.Uint64() & idMask)
		if _, dup := taken[id]; dup {
			continue
		}
		taken[id] = struct{}{}
		ids = append(ids, id)
	}

	nodes := buildRing(t, ids)

	// Random keys resolve to the same owner from random starting points,
	// and that owner matches the reference rule.
	for i := 0; i < 32; i++ {
		key := ID(rng.Uint64() & idMask)
		start := nodes[rng.Intn(len(nodes))]
		owner, err := start.Resolve(key)
		if err != nil {
			t.Fatalf("resolve %s from node %s: %v", key, start.Me().ID, err)
		}
		if want := expectedOwner(ids, key); owner.ID != want {
			t.Errorf("resolve %s from node %s = %s, want %s", key, start.Me().ID, owner.ID, want)
		}
	}

	// On a converged ring every finger points at the true owner of its
	// interval start.
	probe := nodes[0]
	fingers := probe.Fingers()
	for i := 0; i < M; i++ {
		want := expectedOwner(ids, FingerStart(probe.Me().ID, i))
		if fingers[i].Empty() {
			t.Errorf("finger %d unset after convergence", i)
			continue
		}
		if fingers[i].ID != want {
			t.Errorf("finger %d = %s, want %s", i, fingers[i].ID, want)
		}
	}

	// A distributed file is readable from every node.
	if _, err := nodes[0].Distribute("scale-doc", []byte("payload"), 3); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	for _, n := range nodes {
		if _, _, err := n.Read("scale-doc", 3); err != nil {
			t.Errorf("read from node %s: %v", n.Me().ID, err)
		}
	}
}
