// Package ring is a peer-to-peer replicated storage substrate. Equal-role
// nodes organize into a ring by consistent hashing, locate the owner of
// any key in O(log N) hops through finger tables, replicate each stored
// file across several owners, and serialize concurrent writers with a
// Ricart-Agrawala vote over the replica set.
//
// Layout
// ------
//
//	id.go           identifier space: hashing, circular intervals,
//	                finger starts, the request total order
//	contact.go      node reference (id + address)
//	node.go         per-node state, lifecycle, replica store
//	lookup.go       find-successor as a bounded hop loop
//	stabilize.go    successor/predecessor repair, finger refresh,
//	                periodic runners
//	network.go      UDP request/response transport
//	wire.go         envelope types and marshaling
//	replicate.go    Distribute / Locate / Read
//	consistency.go  primary-copy Write with broadcast to secondaries
//	mutex.go        lamport-clocked voting, deferral, release
//	cli.go          command layer over a running node
//	cmd/cli         node binary
//
// Running two nodes by hand
// -------------------------
//
//	Terminal A:
//	  go run ./ring/cmd/cli --addr 127.0.0.1:9001
//
//	Terminal B (joins A's ring):
//	  go run ./ring/cmd/cli --addr 127.0.0.1:9002 --join 127.0.0.1:9001
//
//	In either terminal:
//	  store notes hello world
//	  write notes hello again
//	  read notes
//	  state
//	  exit
//
// Design notes tied to code
// -------------------------
//   - A node's topology links, owned replicas and vote bookkeeping live
//     behind one mutex; request handlers and the maintenance loops race
//     on them concurrently, and nothing mutates another node's state
//     except through that node's own handlers.
//   - Lookups never recurse across the network: Resolve drives a hop
//     loop bounded by M and falls back past unreachable fingers.
//   - The primary replica is fixed at distribution time. Writes through
//     a departed primary abort; there is no re-election.
//   - Vote acknowledgements are one-way messages, not call responses: a
//     busy peer holds an ack back until it releases the section.
package ring
