package assistant

// State describes the connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateSubscribed   State = "subscribed"
	StateReconnecting State = "reconnecting"
)

var transitions = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnecting, StateOpen, StateReconnecting, StateDisconnected},
	StateOpen:         {StateConnecting, StateSubscribed, StateReconnecting, StateDisconnected},
	StateSubscribed:   {StateConnecting, StateReconnecting, StateDisconnected},
	StateReconnecting: {StateConnecting, StateDisconnected},
}

// CanTransition reports whether the lifecycle allows moving from one state to
// another.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Connected reports whether the state holds a live socket.
func (s State) Connected() bool {
	return s == StateOpen || s == StateSubscribed
}

// setStateLocked moves the client to state. Callers hold c.mu.
func (c *Client) setStateLocked(state State) (State, bool) {
	from := c.state
	if from == state {
		return from, false
	}
	if !CanTransition(from, state) {
		c.logger.Warn("assistant invalid state transition",
			zapState("from", from),
			zapState("to", state),
		)
		return from, false
	}
	c.state = state
	return from, true
}

func (c *Client) notifyState(from, to State) {
	c.logger.Info("assistant state changed", zapState("from", from), zapState("to", to))
	if c.callbacks.OnStateChange != nil {
		c.callbacks.OnStateChange(from, to)
	}
}
