package ring

import "errors"

// Error taxonomy. Callers match with errors.Is; messages add the context.
var (
	// ErrUnreachable: a remote call could not complete and no alternative
	// path advanced.
	ErrUnreachable = errors.New("node unreachable")
	// ErrTimeout: a remote call or a mutex wait exceeded its bound.
	ErrTimeout = errors.New("timed out")
	// ErrWriteAborted: a write did not commit; the message names the phase
	// ("locate", "lock", "apply") so callers know whether retry is safe.
	ErrWriteAborted = errors.New("write aborted")
	// ErrUnknownReplica: a metadata operation named a key this node does
	// not hold.
	ErrUnknownReplica = errors.New("unknown replica")
)
