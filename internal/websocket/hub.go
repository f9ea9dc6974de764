package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/real-rm/chatrelay/internal/auth"
	"github.com/real-rm/chatrelay/internal/constants"
	chaterrors "github.com/real-rm/chatrelay/internal/errors"
	"github.com/real-rm/chatrelay/internal/frame"
	"github.com/real-rm/chatrelay/internal/handler"
	"github.com/real-rm/chatrelay/internal/metrics"
	"github.com/real-rm/chatrelay/internal/ratelimit"
	"github.com/real-rm/chatrelay/internal/relay"
	"github.com/real-rm/chatrelay/internal/session"
	"github.com/real-rm/chatrelay/internal/util"
)

// upgrader configures the WebSocket upgrade.
// SECURITY: In production, this service MUST be deployed behind a reverse
// proxy that terminates TLS, ensuring all WebSocket connections use WSS.
// The CheckOrigin function is configured per-hub instance.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin is set per-hub instance
}

// Hub manages WebSocket connections: the auth gate, the subscription gate,
// per-user delivery, and both wire-level error paths.
type Hub struct {
	verifier     auth.TokenVerifier
	registry     *session.Registry
	handlers     *handler.Registry
	relay        relay.Relay
	logger       *zap.Logger
	connLimiter  *ratelimit.ConnectionLimiter
	frameLimiter *ratelimit.FrameLimiter
	maxFrameSize int64

	allowedOrigins map[string]bool

	// conns indexes live connections by connection id; userConns by
	// authenticated user id for per-user delivery
	conns     map[string]*Conn
	userConns map[string]map[string]*Conn
	mu        sync.RWMutex
}

var (
	_ session.Terminator = (*Hub)(nil)
	_ handler.Sender     = (*Hub)(nil)
)

// NewHub creates a WebSocket hub. rateLimit is the number of inbound send
// frames allowed per user per rate window.
func NewHub(verifier auth.TokenVerifier, registry *session.Registry, handlers *handler.Registry, rel relay.Relay, maxFrameSize int64, maxConnsPerUser, rateLimit int, logger *zap.Logger) *Hub {
	frameLimiter := ratelimit.NewFrameLimiter(constants.DefaultRateWindow, rateLimit)
	frameLimiter.StartCleanup()

	return &Hub{
		verifier:       verifier,
		registry:       registry,
		handlers:       handlers,
		relay:          rel,
		logger:         logger.Named("ws"),
		connLimiter:    ratelimit.NewConnectionLimiter(maxConnsPerUser),
		frameLimiter:   frameLimiter,
		maxFrameSize:   maxFrameSize,
		allowedOrigins: make(map[string]bool),
		conns:          make(map[string]*Conn),
		userConns:      make(map[string]map[string]*Conn),
	}
}

// RegisterHandlers wires the hub's own callbacks into the handler registry
// and installs the relay receiver. Called once during startup wiring, before
// the registry is frozen.
func (h *Hub) RegisterHandlers() error {
	// A gated subscribe to the private messages topic registers relay
	// interest for that user on this instance.
	err := h.handlers.RegisterSubscribe(constants.UserMessagesTopic, func(info auth.Info, vars map[string]string) {
		ctx, cancel := util.NewTimeoutContext(constants.DefaultContextTimeout)
		defer cancel()
		if err := h.relay.SubscribeUser(ctx, vars["userId"]); err != nil {
			util.LogError(h.logger, "ws", "subscribe user channel", err,
				zap.String("user_id", vars["userId"]))
		}
	})
	if err != nil {
		return err
	}

	// The relay reference is released in teardown, which knows whether the
	// closing connection actually subscribed. A registry-level disconnect
	// handler cannot tell, and unsubscribing for every disconnect would let
	// a bare connect/disconnect drop a reference another connection of the
	// same user still depends on.
	h.handlers.RegisterDisconnect(func(info auth.Info) {
		h.logger.Debug("Session disconnected",
			zap.String("user_id", info.UserID),
			zap.String("session_id", info.SessionID))
	})

	h.handlers.RegisterSend(constants.RefreshDestination, h.handleRefresh)

	// Application-level liveness echo; the reply decorator sends the
	// handler's return value to the per-connection pong queue.
	h.handlers.RegisterSend(constants.PingDestination, handler.WithReply(h, constants.PongQueueTemplate,
		func(info auth.Info, connID string, f *frame.Frame) (interface{}, error) {
			return map[string]string{"pong": time.Now().UTC().Format(time.RFC3339)}, nil
		}))

	h.relay.SetReceiver(h.deliverToUser)
	return nil
}

// SetAllowedOrigins configures the allowed origins for WebSocket connections.
// If no origins are set, all origins are allowed (development mode).
func (h *Hub) SetAllowedOrigins(origins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.allowedOrigins = make(map[string]bool)
	for _, origin := range origins {
		h.allowedOrigins[origin] = true
	}

	h.logger.Info("Configured allowed origins",
		zap.Int("count", len(origins)),
		zap.Strings("origins", origins))
}

// checkOrigin validates the origin of a WebSocket upgrade request.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	h.mu.RLock()
	defer h.mu.RUnlock()

	// If no origins configured, allow all (development mode)
	if len(h.allowedOrigins) == 0 {
		return true
	}
	if h.allowedOrigins[origin] {
		return true
	}

	h.logger.Warn("Origin not allowed", zap.String("origin", origin))
	return false
}

// HandleWebSocket upgrades the HTTP connection and starts the frame pumps.
// No authentication happens here: a credential present on the setup request
// (query parameter or header) is only captured for the connect frame to fall
// back on. Admission is decided by the connect frame.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	localUpgrader := upgrader
	localUpgrader.CheckOrigin = h.checkOrigin

	ws, err := localUpgrader.Upgrade(w, r, nil)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(h.logger, "ws", "upgrade connection", err)
		return
	}

	ws.SetReadLimit(h.maxFrameSize)

	conn := newConn(ws, util.NewID(), auth.CredentialFromRequest(r))

	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()
	metrics.WebSocketConnections.Inc()

	h.logger.Info("WebSocket connection accepted",
		zap.String("connection_id", conn.ID),
		zap.String("component", "ws"))

	util.SafeGo(h.logger, "readPump", func() { h.readPump(conn) })
	util.SafeGo(h.logger, "writePump", func() { conn.writePump() })
}

// readPump reads frames from the connection and routes them through the
// gates. The deferred teardown synchronously unregisters the session and
// fires disconnect handlers before the goroutine exits.
func (h *Hub) readPump(c *Conn) {
	defer h.teardown(c)

	c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		// No else needed: error handling with break (exits loop)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				util.LogError(h.logger, "ws", "handle unexpected close", err,
					zap.String("connection_id", c.ID))
			} else {
				h.logger.Info("WebSocket connection closing",
					zap.String("connection_id", c.ID),
					zap.String("component", "ws"))
			}
			break
		}

		metrics.FramesReceived.Inc()

		f, err := frame.Decode(raw)
		// No else needed: error handling with continue (skips to next iteration)
		if err != nil {
			h.sendException(c, chaterrors.ErrInvalidFrame("malformed JSON", err), frame.Correlation{
				ConnectionID: c.ID,
			})
			continue
		}

		h.routeFrame(c, f)
	}
}

// routeFrame applies the connection's auth state machine and dispatches one
// inbound frame.
func (h *Hub) routeFrame(c *Conn, f *frame.Frame) {
	// The first frame of every connection must be connect; anything else
	// before authentication aborts the handshake.
	if !c.authenticated() {
		if f.Type != frame.TypeConnect {
			h.rejectConnect(c, chaterrors.ErrUnauthorized(constants.ErrMsgMissingCredential, nil), f)
			return
		}
		h.handleConnect(c, f)
		return
	}

	switch f.Type {
	case frame.TypeConnect:
		// Duplicate connect on an admitted connection is a client bug,
		// not grounds to drop the session.
		h.sendException(c, chaterrors.ErrInvalidFrame("connection already authenticated", nil), frame.Correlation{
			ConnectionID: c.ID,
			ReceiptID:    f.Receipt,
		})
	case frame.TypeSubscribe:
		h.handleSubscribe(c, f)
	case frame.TypeSend:
		h.handleSend(c, f)
	default:
		h.sendException(c, chaterrors.ErrInvalidFrame(fmt.Sprintf("unsupported frame type %q", f.Type), nil), frame.Correlation{
			ConnectionID: c.ID,
			ReceiptID:    f.Receipt,
		})
	}
}

// credentialFromFrame reads the Authorization header of a frame, accepting
// both "Bearer <token>" and a bare token value.
func credentialFromFrame(f *frame.Frame) string {
	header := f.Header(constants.HeaderAuthorization)
	if header == "" {
		return ""
	}
	if token, err := util.ExtractBearerToken(header); err == nil {
		return token
	}
	return header
}

// handleConnect runs the auth gate: verify the frame credential (or the
// value captured at setup), bind the principal, and admit the connection.
func (h *Hub) handleConnect(c *Conn, f *frame.Frame) {
	credential := credentialFromFrame(f)
	if credential == "" {
		credential = c.takeHandshakeCred()
	}
	if credential == "" {
		h.rejectConnect(c, chaterrors.ErrUnauthorized(constants.ErrMsgMissingCredential, nil), f)
		return
	}

	info, err := h.verifier.Verify(credential)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		h.logger.Warn("Connect verification failed",
			zap.String("connection_id", c.ID),
			zap.Error(err))
		h.rejectConnect(c, chaterrors.ErrUnauthorized(constants.ErrMsgInvalidToken, err), f)
		return
	}

	// No else needed: early return pattern (guard clause)
	if !h.connLimiter.Allow(info.UserID) {
		h.logger.Warn("Connection limit exceeded",
			zap.String("user_id", info.UserID),
			zap.String("component", "ws"))
		h.rejectConnect(c, chaterrors.ErrConnectionLimitExceeded(), f)
		return
	}

	c.setAuthInfo(*info)
	h.registry.Register(c.ID, *info)

	h.mu.Lock()
	if h.userConns[info.UserID] == nil {
		h.userConns[info.UserID] = make(map[string]*Conn)
	}
	h.userConns[info.UserID][c.ID] = c
	h.mu.Unlock()

	c.sendFrame(&frame.Frame{
		Type:    frame.TypeConnected,
		Receipt: f.Receipt,
		Headers: map[string]string{
			"connectionId": c.ID,
			"userId":       info.UserID,
			"heartbeat":    constants.HeartbeatInterval.String(),
		},
	})

	h.logger.Info("Connection authenticated",
		zap.String("connection_id", c.ID),
		zap.String("user_id", info.UserID),
		zap.String("session_id", info.SessionID))
}

// rejectConnect aborts the connect handshake with a terminal error frame.
// The connection is not admitted and no registry entry exists.
func (h *Hub) rejectConnect(c *Conn, err error, f *frame.Frame) {
	metrics.RejectedConnects.Inc()
	corr := frame.Correlation{ConnectionID: c.ID}
	if f != nil {
		corr.ReceiptID = f.Receipt
	}
	env := frame.FrameError(err, corr)
	if ef, ferr := frame.NewErrorFrame(env); ferr == nil {
		if werr := c.writeControl(ef); werr != nil {
			h.logger.Debug("Failed to write terminal error frame",
				zap.String("connection_id", c.ID),
				zap.Error(werr))
		}
	}
	c.SetClosing()
	c.Close()
}

// handleRefresh repeats verification with a new credential and, on success,
// overwrites the connection-local principal and the registry entry in place,
// without tearing down the connection. A failed refresh is reported on the
// exception queue and leaves the prior session alive; the expiry sweep reaps
// it if the old credential lapses first.
func (h *Hub) handleRefresh(info auth.Info, connID string, f *frame.Frame) error {
	credential := credentialFromFrame(f)
	if credential == "" && len(f.Body) > 0 {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(f.Body, &body); err == nil {
			credential = body.Token
		}
	}
	if credential == "" {
		return chaterrors.ErrUnauthorized(constants.ErrMsgMissingCredential, nil)
	}

	fresh, err := h.verifier.Verify(credential)
	if err != nil {
		return chaterrors.ErrUnauthorized(constants.ErrMsgInvalidToken, err)
	}

	// A refresh cannot change the connection's identity; a credential for
	// another user is rejected outright.
	if fresh.UserID != info.UserID {
		return chaterrors.ErrUnauthorized(constants.ErrMsgInvalidToken, nil).
			WithDetail("reason", "credential user mismatch")
	}

	c := h.connByID(connID)
	if c == nil {
		return chaterrors.ErrInternal(fmt.Errorf("refresh for unknown connection %s", connID))
	}

	c.setAuthInfo(*fresh)
	h.registry.Register(connID, *fresh)

	h.logger.Info("Session refreshed",
		zap.String("connection_id", connID),
		zap.String("user_id", fresh.UserID),
		zap.Time("expires_at", fresh.ExpiresAt))
	return nil
}

// handleSubscribe runs the subscription gate. Destinations under the
// user-owned prefix must embed the connection's own user id; a mismatch is
// dropped silently, with no frame in reply, so other users' topics are not
// disclosed. Owned matches invoke every registered subscribe handler.
func (h *Hub) handleSubscribe(c *Conn, f *frame.Frame) {
	info, ok := c.AuthInfo()
	if !ok {
		return
	}
	if f.Destination == "" {
		h.sendException(c, chaterrors.ErrMissingField("destination"), frame.Correlation{
			ConnectionID: c.ID,
			ReceiptID:    f.Receipt,
		})
		return
	}

	if owner, gated := ownerOfUserTopic(f.Destination); gated {
		if owner != info.UserID {
			h.logger.Debug("Dropping subscribe to foreign user topic",
				zap.String("connection_id", c.ID),
				zap.String("user_id", info.UserID),
				zap.String("destination", f.Destination))
			return
		}
		// A repeated subscribe to the same destination is idempotent;
		// handlers (and the relay reference count) fire once per
		// connection and destination.
		if c.addSubscription(f.Destination, f.Subscription) {
			h.handlers.DispatchSubscribe(info, f.Destination)
		}
	} else {
		// Room-scoped and reply destinations are gated at the
		// application layer, not here.
		c.addSubscription(f.Destination, f.Subscription)
	}

	if f.Receipt != "" {
		c.sendFrame(&frame.Frame{Type: frame.TypeReceipt, Receipt: f.Receipt})
	}
}

// handleSend routes an application destination frame. Handler failures are
// recovered locally and reported on the exception queue; the connection is
// never closed over them.
func (h *Hub) handleSend(c *Conn, f *frame.Frame) {
	info, ok := c.AuthInfo()
	if !ok {
		return
	}

	corr := frame.Correlation{
		ConnectionID: c.ID,
		ReceiptID:    f.Receipt,
		Destination:  f.Destination,
	}

	if !h.frameLimiter.Allow(info.UserID) {
		h.sendException(c, chaterrors.ErrTooManyRequests(), corr)
		return
	}

	handled, err := h.handlers.DispatchSend(info, c.ID, f)
	if err != nil {
		metrics.HandlerFailures.Inc()
		util.LogError(h.logger, "ws", "handle send frame", err,
			zap.String("connection_id", c.ID),
			zap.String("destination", f.Destination))
		h.sendException(c, err, corr)
		return
	}
	if !handled {
		h.sendException(c, chaterrors.ErrInvalidFrame(fmt.Sprintf("no handler for destination %q", f.Destination), nil), corr)
		return
	}

	if f.Receipt != "" {
		c.sendFrame(&frame.Frame{Type: frame.TypeReceipt, Receipt: f.Receipt})
	}
}

// sendException delivers a non-terminal error envelope on the connection's
// private exception queue. The connection stays open.
func (h *Hub) sendException(c *Conn, err error, corr frame.Correlation) {
	env := frame.FrameError(err, corr)
	destination, terr := frame.ResolveTemplate(constants.ExceptionQueueTemplate, map[string]string{
		"connectionId": c.ID,
	})
	if terr != nil {
		util.LogError(h.logger, "ws", "resolve exception destination", terr,
			zap.String("connection_id", c.ID))
		return
	}
	mf, merr := frame.NewMessageFrame(destination, env)
	if merr != nil {
		util.LogError(h.logger, "ws", "encode exception envelope", merr,
			zap.String("connection_id", c.ID))
		return
	}
	if !c.sendFrame(mf) {
		metrics.SendFailures.WithLabelValues("websocket").Inc()
	}
}

// deliverToUser is the relay receiver: it maps the event to a per-recipient
// payload and pushes it to every local connection of that user subscribed to
// its private messages topic.
func (h *Hub) deliverToUser(userID string, env *frame.MessageEnvelope) {
	destination, err := frame.ResolveTemplate(constants.UserMessagesTopic, map[string]string{
		"userId": userID,
	})
	if err != nil {
		util.LogError(h.logger, "ws", "resolve delivery topic", err,
			zap.String("user_id", userID))
		return
	}

	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.userConns[userID]))
	for _, c := range h.userConns[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	payload := env.ForRecipient(userID)
	for _, c := range conns {
		subID, subscribed := c.subscribedTo(destination)
		if !subscribed {
			continue
		}
		mf, merr := frame.NewMessageFrame(destination, payload)
		if merr != nil {
			util.LogError(h.logger, "ws", "encode delivery frame", merr,
				zap.String("user_id", userID))
			return
		}
		mf.Subscription = subID
		if c.sendFrame(mf) {
			metrics.Deliveries.WithLabelValues("websocket").Inc()
		} else {
			metrics.SendFailures.WithLabelValues("websocket").Inc()
			h.logger.Warn("Failed to deliver message frame, buffer full or closing",
				zap.String("connection_id", c.ID),
				zap.String("user_id", userID))
		}
	}
}

// SendToConnection implements handler.Sender: push a payload to one
// connection's destination.
func (h *Hub) SendToConnection(connID, destination string, body interface{}) error {
	c := h.connByID(connID)
	if c == nil {
		return chaterrors.NewTransportError(fmt.Sprintf("unknown connection %s", connID), nil)
	}
	mf, err := frame.NewMessageFrame(destination, body)
	if err != nil {
		return chaterrors.NewTransportError("failed to encode payload", err)
	}
	if !c.sendFrame(mf) {
		metrics.SendFailures.WithLabelValues("websocket").Inc()
		return chaterrors.NewTransportError("send buffer full or connection closing", nil)
	}
	return nil
}

// Terminate implements session.Terminator: best-effort terminal error frame,
// then close. Used by the expiry sweep; the caller owns the registry entry.
func (h *Hub) Terminate(connID string, env *frame.ErrorEnvelope) error {
	c := h.connByID(connID)
	if c == nil {
		return fmt.Errorf("unknown connection %s", connID)
	}

	ef, err := frame.NewErrorFrame(env)
	if err != nil {
		return err
	}
	werr := c.writeControl(ef)

	c.SetClosing()
	c.Close()
	return werr
}

// connByID looks up a live connection.
func (h *Hub) connByID(connID string) *Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[connID]
}

// ConnCount returns the number of live connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// teardown runs the synchronous close path: deindex the connection,
// unregister the session (idempotent against the expiry sweep), release the
// limiter slot and fire disconnect handlers — all before the connection id
// can be reused.
func (h *Hub) teardown(c *Conn) {
	info, authenticated := c.AuthInfo()

	h.mu.Lock()
	_, present := h.conns[c.ID]
	delete(h.conns, c.ID)
	if authenticated {
		if userConns, ok := h.userConns[info.UserID]; ok {
			delete(userConns, c.ID)
			if len(userConns) == 0 {
				delete(h.userConns, info.UserID)
			}
		}
	}
	h.mu.Unlock()

	// No else needed: teardown may race the shutdown path (idempotent)
	if present {
		metrics.WebSocketConnections.Dec()
	}

	c.SetClosing()
	close(c.send)
	c.Close()

	if authenticated {
		h.registry.Unregister(c.ID)
		h.connLimiter.Release(info.UserID)
		h.releaseRelayRef(c, info.UserID)
		h.handlers.DispatchDisconnect(info)
	}

	h.logger.Info("WebSocket connection closed",
		zap.String("connection_id", c.ID),
		zap.Duration("duration", time.Since(c.acceptedAt)),
		zap.String("component", "ws"))
}

// releaseRelayRef drops the relay reference the connection took when it
// subscribed to its private messages topic. Connections that never subscribed
// hold no reference and must not decrement another connection's. A refresh
// cannot change the connection's user id, so the topic resolved here is the
// one the subscribe gated on.
func (h *Hub) releaseRelayRef(c *Conn, userID string) {
	destination, err := frame.ResolveTemplate(constants.UserMessagesTopic, map[string]string{
		"userId": userID,
	})
	if err != nil {
		return
	}
	if _, subscribed := c.subscribedTo(destination); !subscribed {
		return
	}

	ctx, cancel := util.NewTimeoutContext(constants.DefaultContextTimeout)
	defer cancel()
	if err := h.relay.UnsubscribeUser(ctx, userID); err != nil {
		util.LogError(h.logger, "ws", "unsubscribe user channel", err,
			zap.String("user_id", userID))
	}
}

// ShutdownWithContext gracefully closes all active WebSocket connections.
// It respects the context deadline and will force shutdown if exceeded.
func (h *Hub) ShutdownWithContext(ctx context.Context) error {
	h.logger.Info("Shutting down WebSocket hub, closing all connections")

	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()

			if c.conn != nil {
				c.writeMu.Lock()
				c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down"))
				c.writeMu.Unlock()
			}

			c.Close()
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("All WebSocket connections closed gracefully")
		return nil
	case <-ctx.Done():
		h.logger.Warn("Shutdown deadline exceeded, forcing closure",
			zap.Int("remaining_connections", len(conns)))
		return ctx.Err()
	}
}

// StopLimiters stops background limiter goroutines. Called on shutdown.
func (h *Hub) StopLimiters() {
	h.frameLimiter.StopCleanup()
}
