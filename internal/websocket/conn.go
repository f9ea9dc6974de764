// Package websocket provides the persistent subscribe/publish transport:
// connection authentication and lifecycle, subscription gating, and
// per-user message delivery over gorilla/websocket.
package websocket

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/real-rm/chatrelay/internal/auth"
	"github.com/real-rm/chatrelay/internal/constants"
	"github.com/real-rm/chatrelay/internal/frame"
	"github.com/real-rm/chatrelay/internal/metrics"
)

// connState tracks the auth lifecycle of one connection.
type connState int32

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateClosed
)

// Conn represents one active WebSocket connection. The transport assigns it
// an opaque connection id at upgrade time; the authenticated principal is
// bound on the connect frame.
type Conn struct {
	conn *websocket.Conn

	// ID is the opaque transport-assigned connection id
	ID string

	// send is a buffered channel for outbound frames
	send chan []byte

	// closing indicates the connection is being torn down.
	// Set before closing the send channel to prevent send-on-closed-channel panics.
	closing atomic.Bool

	state atomic.Int32

	// writeMu serializes writes to the socket. gorilla/websocket allows one
	// concurrent writer; the pump, the terminal control path and the
	// shutdown close message must not interleave.
	writeMu sync.Mutex

	// mu protects the fields below
	mu sync.RWMutex

	// info is the authenticated principal; nil until the connect frame
	// has been verified
	info *auth.Info

	// handshakeCred is the credential captured at connection setup,
	// before any verification. The connect frame may fall back to it.
	handshakeCred string

	// subscriptions maps destination to client subscription id
	subscriptions map[string]string

	// acceptedAt is when the transport accepted the connection
	acceptedAt time.Time
}

func newConn(ws *websocket.Conn, id, handshakeCred string) *Conn {
	return &Conn{
		conn:          ws,
		ID:            id,
		send:          make(chan []byte, constants.SendBufferSize),
		handshakeCred: handshakeCred,
		subscriptions: make(map[string]string),
		acceptedAt:    time.Now(),
	}
}

// AuthInfo returns a copy of the connection's principal, if authenticated.
func (c *Conn) AuthInfo() (auth.Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.info == nil {
		return auth.Info{}, false
	}
	return *c.info, true
}

// setAuthInfo binds or overwrites the connection's principal.
func (c *Conn) setAuthInfo(info auth.Info) {
	c.mu.Lock()
	c.info = &info
	c.mu.Unlock()
	c.state.Store(int32(stateAuthenticated))
}

// authenticated reports whether the connect handshake has completed.
func (c *Conn) authenticated() bool {
	return connState(c.state.Load()) == stateAuthenticated
}

// takeHandshakeCred returns and clears the credential captured at setup.
func (c *Conn) takeHandshakeCred() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cred := c.handshakeCred
	c.handshakeCred = ""
	return cred
}

// addSubscription records a destination subscription. Returns false when the
// destination was already subscribed on this connection.
func (c *Conn) addSubscription(destination, subscriptionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.subscriptions[destination]; exists {
		return false
	}
	c.subscriptions[destination] = subscriptionID
	return true
}

// subscribedTo reports whether the connection subscribed to the destination
// and returns the client's subscription id.
func (c *Conn) subscribedTo(destination string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.subscriptions[destination]
	return id, ok
}

// SafeSend attempts to enqueue an encoded frame for the write pump.
// Returns false if the connection is closing or the buffer is full.
func (c *Conn) SafeSend(data []byte) bool {
	if c.closing.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// sendFrame encodes and enqueues a frame. Encoding errors and full buffers
// both report failure; the caller decides whether that is fatal.
func (c *Conn) sendFrame(f *frame.Frame) bool {
	data, err := f.Encode()
	if err != nil {
		return false
	}
	return c.SafeSend(data)
}

// SetClosing marks the connection as closing. After this call SafeSend
// returns false.
func (c *Conn) SetClosing() {
	c.closing.Store(true)
	c.state.Store(int32(stateClosed))
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// writeControl writes a frame directly with a deadline, bypassing the send
// buffer. Used for the terminal error path where the buffer may already be
// congested or the write pump gone.
func (c *Conn) writeControl(f *frame.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	if c.conn == nil {
		return websocket.ErrCloseSent
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ownerOfUserTopic extracts the {id} segment of a user-owned destination.
// Returns false when the destination is not under the gated prefix.
func ownerOfUserTopic(destination string) (string, bool) {
	if !strings.HasPrefix(destination, constants.UserTopicPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(destination, constants.UserTopicPrefix)
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[:idx]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

// writePump writes frames to the WebSocket connection. It owns all writes
// except the terminal control path and sends transport pings on the
// heartbeat interval.
func (c *Conn) writePump() {
	ticker := time.NewTicker(constants.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))

			// No else needed: channel closed handling (sends close and returns)
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.writeMu.Unlock()
				return
			}

			err := c.conn.WriteMessage(websocket.TextMessage, data)
			c.writeMu.Unlock()
			if err != nil {
				metrics.SendFailures.WithLabelValues("websocket").Inc()
				return
			}

		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
