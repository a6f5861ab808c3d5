package call

// State is the lifecycle phase of a [Session].
//
// The machine moves ready → connecting → connected → closed, with error
// reachable from connecting and connected. Permission and activation
// failures during connect return to ready so the user can retry, they do
// not strand the session in error.
type State int

const (
	// StateReady means no call is in progress and one can be started.
	StateReady State = iota

	// StateConnecting covers the whole connect flow: audio activation,
	// microphone acquisition, and the socket dial up to the hello message.
	StateConnecting

	// StateConnected means live audio is flowing in both directions.
	StateConnected

	// StateClosed is the terminal state after a deliberate hang-up or a
	// clean closure by the server.
	StateClosed

	// StateError is the terminal state after a connection failure. A new
	// call is started by constructing a fresh session.
	StateError
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is one lifecycle notification: the state entered and an optional
// user-facing message explaining it.
type Status struct {
	State   State
	Message string
}
