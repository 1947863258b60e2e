package status

// Status is the canonical build state shared by every provider. Adapters
// map provider-specific vocabularies onto it; unmapped values become
// UNKNOWN, never an error.
type Status string

const (
	PENDING  = Status("pending")
	RUNNING  = Status("running")
	SUCCESS  = Status("success")
	FAILURE  = Status("failure")
	CANCELED = Status("canceled")
	SKIPPED  = Status("skipped")
	UNKNOWN  = Status("unknown")
)

// IsTerminal reports whether the status ends a build's lifecycle.
// A terminal status must never regress to a non-terminal one on an
// out-of-order webhook; only an explicit retry starts a new build.
func IsTerminal(status Status) bool {
	return status == SUCCESS ||
		status == FAILURE ||
		status == CANCELED
}
