package assistant

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/longregen/alicia-sub010/pkg/protocol"
)

var errFakeClosed = errors.New("fake socket closed")

type fakeSocket struct {
	mu        sync.Mutex
	frames    [][]byte
	closeCode int
	gate      chan struct{}
	entered   chan struct{}

	incoming  chan []byte
	readErr   chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		incoming: make(chan []byte, 64),
		readErr:  make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (s *fakeSocket) WriteMessage(data []byte) error {
	s.mu.Lock()
	gate, entered := s.gate, s.entered
	s.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-s.closed:
		}
	}

	select {
	case <-s.closed:
		return errFakeClosed
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, append([]byte(nil), data...))
	return nil
}

func (s *fakeSocket) ReadMessage() ([]byte, error) {
	select {
	case data := <-s.incoming:
		return data, nil
	case err := <-s.readErr:
		return nil, err
	case <-s.closed:
		return nil, errFakeClosed
	}
}

func (s *fakeSocket) Close(code int, _ string) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeCode = code
		s.mu.Unlock()
		close(s.closed)
	})
	return nil
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSocket) code() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode
}

// holdWrites parks every following write until the returned release is
// called. Each parked write signals entered first.
func (s *fakeSocket) holdWrites() (entered <-chan struct{}, release func()) {
	gate := make(chan struct{})
	in := make(chan struct{}, 16)
	s.mu.Lock()
	s.gate, s.entered = gate, in
	s.mu.Unlock()
	var once sync.Once
	return in, func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate, s.entered = nil, nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// fail makes the pending ReadMessage return err, as a dropped connection would.
func (s *fakeSocket) fail(err error) {
	s.readErr <- err
}

func (s *fakeSocket) push(t *testing.T, conversationID string, msgType protocol.MessageType, body protocol.Value) {
	t.Helper()
	data, err := protocol.Encode(protocol.NewEnvelope(conversationID, msgType, body))
	require.NoError(t, err)
	s.incoming <- data
}

func (s *fakeSocket) envelopes(t *testing.T) []protocol.Envelope {
	t.Helper()
	s.mu.Lock()
	frames := append([][]byte(nil), s.frames...)
	s.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(frames))
	for _, f := range frames {
		env, err := protocol.Decode(f)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func (s *fakeSocket) ofType(t *testing.T, msgType protocol.MessageType) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for _, env := range s.envelopes(t) {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	headers []http.Header
	err     error
}

func (d *fakeDialer) Dial(_ context.Context, _ string, header http.Header) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.headers = append(d.headers, header.Clone())
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeSocket()
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.headers)
}

func (d *fakeDialer) last() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

type mapRegistry map[string]ToolExecutor

func (r mapRegistry) Lookup(name string) (ToolExecutor, bool) {
	exec, ok := r[name]
	return exec, ok
}

func (r mapRegistry) Descriptors() []protocol.ToolDescriptor {
	out := make([]protocol.ToolDescriptor, 0, len(r))
	for name := range r {
		out = append(out, protocol.ToolDescriptor{Name: name})
	}
	return out
}

func echoTool() ToolExecutor {
	return ToolFunc(func(_ context.Context, args protocol.Map) (protocol.Value, error) {
		return args, nil
	})
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(_, to State) {
	r.mu.Lock()
	r.states = append(r.states, to)
	r.mu.Unlock()
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}
