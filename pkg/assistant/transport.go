package assistant

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout     = 10 * time.Second
	closeGracePeriod = time.Second
)

// Socket is one live binary message connection. WriteMessage and Close are
// safe for concurrent use; ReadMessage has a single caller.
type Socket interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close(code int, reason string) error
}

// Dialer opens sockets.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

// NewWebsocketDialer returns a Dialer backed by gorilla/websocket. Inbound
// frames over maxFrameBytes fail the read; zero or less means no limit.
func NewWebsocketDialer(handshakeTimeout time.Duration, maxFrameBytes int64) Dialer {
	return &wsDialer{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		readLimit: maxFrameBytes,
	}
}

type wsDialer struct {
	dialer    websocket.Dialer
	readLimit int64
}

func (d *wsDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	if d.readLimit > 0 {
		conn.SetReadLimit(d.readLimit)
	}
	s := &wsSocket{conn: conn}
	conn.SetPingHandler(func(appData string) error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})
	return s, nil
}

type wsSocket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *wsSocket) WriteMessage(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		// Only binary frames carry envelopes.
		if msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (s *wsSocket) Close(code int, reason string) error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(closeGracePeriod))
	s.writeMu.Unlock()
	return s.conn.Close()
}
