package bridge

import "strconv"

// State is the lifecycle state of the bridge's engine session.
type State int32

const (
	StateUninitialized State = iota
	StateBootstrapping
	StateReady
	StateStopping
	StateFaulted
	StateTerminated
)

var stateNames = [...]string{
	StateUninitialized: "uninitialized",
	StateBootstrapping: "bootstrapping",
	StateReady:         "ready",
	StateStopping:      "stopping",
	StateFaulted:       "faulted",
	StateTerminated:    "terminated",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}
