package languageserver

// State is the lifecycle state of a language server process.
type State int32

const (
	// StateNotStarted is the initial state. No child process exists.
	StateNotStarted State = iota
	// StateStarting covers the spawn and the initialize handshake.
	StateStarting
	// StateRunning accepts requests.
	StateRunning
	// StateShuttingDown covers the shutdown request, exit notification and the kill escalation.
	StateShuttingDown
	// StateTerminated is final.
	StateTerminated
	// StateCrashed is entered when the child dies or its connection breaks outside of a shutdown.
	StateCrashed
)

var _stateNames = [...]string{
	StateNotStarted:   "NotStarted",
	StateStarting:     "Starting",
	StateRunning:      "Running",
	StateShuttingDown: "ShuttingDown",
	StateTerminated:   "Terminated",
	StateCrashed:      "Crashed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(_stateNames) {
		return _stateNames[s]
	}
	return "Unknown"
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
