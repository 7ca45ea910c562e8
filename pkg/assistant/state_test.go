package assistant

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from State
		to   State
		want bool
	}{
		{from: StateDisconnected, to: StateConnecting, want: true},
		{from: StateDisconnected, to: StateOpen, want: false},
		{from: StateConnecting, to: StateOpen, want: true},
		{from: StateConnecting, to: StateSubscribed, want: false},
		{from: StateOpen, to: StateSubscribed, want: true},
		{from: StateSubscribed, to: StateReconnecting, want: true},
		{from: StateSubscribed, to: StateOpen, want: false},
		{from: StateReconnecting, to: StateConnecting, want: true},
		{from: StateReconnecting, to: StateSubscribed, want: false},
		{from: StateReconnecting, to: StateDisconnected, want: true},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("CanTransition(%s, %s)=%v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStateConnected(t *testing.T) {
	for _, s := range []State{StateOpen, StateSubscribed} {
		if !s.Connected() {
			t.Fatalf("%s.Connected()=false, want true", s)
		}
	}
	for _, s := range []State{StateDisconnected, StateConnecting, StateReconnecting} {
		if s.Connected() {
			t.Fatalf("%s.Connected()=true, want false", s)
		}
	}
}

func TestSetStateLockedRejectsInvalid(t *testing.T) {
	c := New(Config{URL: "ws://unused"}, nil, Callbacks{}, nil)
	c.mu.Lock()
	from, changed := c.setStateLocked(StateSubscribed)
	state := c.state
	c.mu.Unlock()
	if changed {
		t.Fatal("setStateLocked(subscribed) from disconnected changed=true, want false")
	}
	if from != StateDisconnected || state != StateDisconnected {
		t.Fatalf("state=%s, want %s", state, StateDisconnected)
	}
}
