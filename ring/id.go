package ring

// id.go: the circular identifier space and its pure predicates.

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// M is the number of bits in the identifier space. Node and replica
// identifiers live in [0, 2^M); the finger table has M entries.
const M = 32

const idMask = (uint64(1) << M) - 1

// ID is a position on the ring. Fixed-width so comparisons stay cheap and
// total; all circular reasoning goes through Between/BetweenRightIncl.
type ID uint64

// Hash maps a name (node address, replica name) onto the ring. Stable
// across processes: the same name hashes to the same ID everywhere.
func Hash(name string) ID {
	return ID(xxhash.Sum64String(name) & idMask)
}

// ReplicaKey derives the ring position of replica index i of a logical file.
func ReplicaKey(filename string, i int) ID {
	return Hash(filename + strconv.Itoa(i))
}

// Between reports whether x lies in the open circular interval (lo, hi).
// lo >= hi means the interval crosses zero; lo == hi spans the whole ring
// minus the endpoint.
func Between(lo, x, hi ID) bool {
	if lo < hi {
		return lo < x && x < hi
	}
	return lo < x || x < hi
}

// BetweenRightIncl reports whether x lies in (lo, hi]. This is the
// ownership predicate: the successor of lo owns everything up to and
// including its own identifier.
func BetweenRightIncl(lo, x, hi ID) bool {
	return Between(lo, x, hi) || x == hi
}

// FingerStart returns (id + 2^i) mod 2^M, the point whose successor
// belongs in finger slot i.
func FingerStart(id ID, i int) ID {
	return ID((uint64(id) + uint64(1)<<uint(i)) & idMask)
}

// RequestLess is the total order over mutex requests: lower clock first,
// ties broken by node identifier. Clocks increase monotonically per node
// and identifiers are unique, so this orders any two distinct requests.
func RequestLess(clockA uint64, idA ID, clockB uint64, idB ID) bool {
	if clockA != clockB {
		return clockA < clockB
	}
	return idA < idB
}

func (id ID) String() string {
	return fmt.Sprintf("%08x", uint64(id))
}
