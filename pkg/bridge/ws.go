package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriteTimeout bounds a single websocket write. A guest or host that
// cannot drain its socket within this window is treated as gone.
const wsWriteTimeout = 10 * time.Second

// wsTransport adapts a websocket connection to the Transport interface.
// Gorilla connections support one concurrent writer, so sends serialize
// through a mutex; reads happen on a single pump goroutine that feeds the
// Receive channel.
type wsTransport struct {
	conn *websocket.Conn
	in   chan *Envelope

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// NewWebsocketTransport wraps an established websocket connection.
// The caller owns nothing afterwards: closing the transport closes the
// connection.
func NewWebsocketTransport(conn *websocket.Conn) Transport {
	t := &wsTransport{
		conn: conn,
		in:   make(chan *Envelope, pipeBuffer),
	}
	go t.readPump()
	return t
}

// DialWebsocket connects a guest to a host bridge endpoint.
func DialWebsocket(ctx context.Context, url string) (Transport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial bridge endpoint %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return NewWebsocketTransport(conn), nil
}

// UpgradeWebsocket upgrades an inbound HTTP request to a bridge transport.
// Used by the host's bridge endpoint handler.
func UpgradeWebsocket(w http.ResponseWriter, r *http.Request) (Transport, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade bridge connection: %w", err)
	}
	return NewWebsocketTransport(conn), nil
}

// readPump decodes inbound frames onto the Receive channel. Frames that are
// not valid JSON envelopes are dropped without comment: the socket is the
// protocol's untrusted boundary and stray frames are expected, not errors.
func (t *wsTransport) readPump() {
	defer close(t.in)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		t.in <- &env
	}
}

func (t *wsTransport) Send(env *Envelope) error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return fmt.Errorf("transport closed")
	}
	t.closeMu.Unlock()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}
	return nil
}

func (t *wsTransport) Receive() <-chan *Envelope {
	return t.in
}

func (t *wsTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
