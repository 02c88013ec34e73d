package ring

// replicate.go: placement of a logical file onto the ring. Replica i of
// file f lives at Hash(f+i); the owner of that point stores the content
// plus metadata. Exactly one replica, chosen at random at distribution
// time, is the primary — the consistency protocol funnels writes through
// it and never reassigns it.

import (
	"fmt"
	"math/rand"

	log "github.com/sirupsen/logrus"
)

// Distribute stores count replicas of filename across the ring and
// returns how many were stored. Owners that cannot be resolved or
// reached are skipped and logged; callers may retry the missing indices.
func (n *Node) Distribute(filename string, content []byte, count int) (int, error) {
	if count < 1 {
		return 0, fmt.Errorf("distribute %q: replica count %d", filename, count)
	}
	primaryIdx := rand.Intn(count)
	stored := 0
	for i := 0; i < count; i++ {
		key := ReplicaKey(filename, i)
		owner, err := n.Resolve(key)
		if err != nil {
			log.Warnf("distribute: %q replica %d (%s): %v", filename, i, key, err)
			continue
		}
		primary := i == primaryIdx
		if owner.ID == n.me.ID {
			n.storeMetadata(key, filename, content, primary)
		} else if err := n.network.storeMetadata(owner, key, filename, content, primary); err != nil {
			log.Warnf("distribute: %q replica %d to %s: %v", filename, i, owner.Address, err)
			continue
		}
		stored++
	}
	log.Infof("distribute: %q stored %d/%d replicas", filename, stored, count)
	return stored, nil
}

// Locate resolves the current replica set of filename. Owners without
// metadata for their key are omitted: their replica is absent, typically
// because the topology changed since distribution.
func (n *Node) Locate(filename string, count int) (ReplicaSet, error) {
	if count < 1 {
		return nil, fmt.Errorf("locate %q: replica count %d", filename, count)
	}
	set := make(ReplicaSet, 0, count)
	for i := 0; i < count; i++ {
		key := ReplicaKey(filename, i)
		owner, err := n.Resolve(key)
		if err != nil {
			log.Warnf("locate: %q replica %d (%s): %v", filename, i, key, err)
			continue
		}
		var meta ReplicaMetadata
		var ok bool
		if owner.ID == n.me.ID {
			meta, ok = n.metadata(key)
		} else {
			meta, ok, err = n.network.getMetadata(owner, key)
			if err != nil {
				log.Warnf("locate: %q replica %d on %s: %v", filename, i, owner.Address, err)
				continue
			}
		}
		if !ok {
			continue
		}
		set = append(set, ReplicaInfo{Owner: owner, Meta: meta})
	}
	return set, nil
}

// Read returns the current content of filename, preferring the primary
// copy and falling back to any replica.
func (n *Node) Read(filename string, count int) ([]byte, Contact, error) {
	set, err := n.Locate(filename, count)
	if err != nil {
		return nil, Contact{}, err
	}
	if len(set) == 0 {
		return nil, Contact{}, fmt.Errorf("read %q: no replicas located: %w", filename, ErrUnknownReplica)
	}
	if primary, ok := set.Primary(); ok {
		return primary.Meta.Content, primary.Owner, nil
	}
	return set[0].Meta.Content, set[0].Owner, nil
}
