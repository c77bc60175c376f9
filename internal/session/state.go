package session

import "encoding/json"

type State int

const (
	Idle State = iota
	Connecting
	Connected
	Stopping
	Disconnected
	Failed
)

var stateNames = map[State]string{
	Idle:         "idle",
	Connecting:   "connecting",
	Connected:    "connected",
	Stopping:     "stopping",
	Disconnected: "disconnected",
	Failed:       "failed",
}

var stateFromName = map[string]State{
	"idle":         Idle,
	"connecting":   Connecting,
	"connected":    Connected,
	"stopping":     Stopping,
	"disconnected": Disconnected,
	"failed":       Failed,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Active reports whether a connection is being attempted or held.
func (s State) Active() bool {
	return s == Connecting || s == Connected
}

// Busy reports whether a worker may still own a connection, in which case
// the session config must not be edited.
func (s State) Busy() bool {
	return s.Active() || s == Stopping
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := stateFromName[n]; ok {
		*s = v
	}
	return nil
}
