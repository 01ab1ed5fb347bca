package reconciler

// State is the per-host reconciliation state machine. Blocked is terminal
// until the next configuration or relation event re-enters Validating.
type State int

const (
	StateUnconfigured State = iota
	StateValidating
	StateBlocked
	StateReconciling
	StateTLSSynced
	StateContextReady
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateValidating:
		return "validating"
	case StateBlocked:
		return "blocked"
	case StateReconciling:
		return "reconciling"
	case StateTLSSynced:
		return "tls-synced"
	case StateContextReady:
		return "context-ready"
	default:
		return "unknown"
	}
}
