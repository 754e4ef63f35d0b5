package resolver

// State is where a Resolver is in its discovery/load cycle.
type State int

const (
	Uninitialized State = iota
	Discovering
	WaitingForLock
	WaitingForValidConfig
	Loading
	Ready
	Failed
)

var stateNames = [...]string{
	Uninitialized:         "uninitialized",
	Discovering:           "discovering",
	WaitingForLock:        "waiting_for_lock",
	WaitingForValidConfig: "waiting_for_valid_config",
	Loading:               "loading",
	Ready:                 "ready",
	Failed:                "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// States lists every state in declaration order.
func States() []State {
	return []State{Uninitialized, Discovering, WaitingForLock, WaitingForValidConfig, Loading, Ready, Failed}
}

// MarshalText renders the state by name in JSON stats.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
