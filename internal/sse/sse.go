// Package sse serves the room-scoped server-push event stream, a fallback
// transport for clients that do not hold a persistent subscribe/publish
// connection. Subscribers are tracked per room; delivery is same-instance
// only and does not depend on the relay bus.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/real-rm/chatrelay/internal/constants"
	"github.com/real-rm/chatrelay/internal/frame"
	"github.com/real-rm/chatrelay/internal/httperrors"
	"github.com/real-rm/chatrelay/internal/metrics"
	"github.com/real-rm/chatrelay/internal/util"
)

// subscriber is one pending event stream. Its lifecycle: created on
// subscribe, removed on completion, timeout, client disconnect or send
// failure — every exit path converges on removal from the room's set.
type subscriber struct {
	id     string
	roomID string
	events chan *frame.MessageEnvelope
}

// Hub tracks the live SSE subscriber set per chat room.
type Hub struct {
	rooms          map[string]map[string]*subscriber
	mu             sync.RWMutex
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// NewHub creates an SSE hub with the given default stream lifetime.
func NewHub(defaultTimeout time.Duration, logger *zap.Logger) *Hub {
	return &Hub{
		rooms:          make(map[string]map[string]*subscriber),
		defaultTimeout: defaultTimeout,
		logger:         logger.Named("sse"),
	}
}

// subscribe registers a new stream handle under the room id.
func (h *Hub) subscribe(roomID string) *subscriber {
	sub := &subscriber{
		id:     util.NewID(),
		roomID: roomID,
		events: make(chan *frame.MessageEnvelope, constants.SSEEventBuffer),
	}

	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*subscriber)
	}
	h.rooms[roomID][sub.id] = sub
	h.mu.Unlock()

	metrics.SSESubscribers.Inc()
	return sub
}

// remove drops a handle from its room's set. Removing twice is a no-op.
func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	subs, ok := h.rooms[sub.roomID]
	if ok {
		if _, exists := subs[sub.id]; exists {
			delete(subs, sub.id)
			metrics.SSESubscribers.Dec()
		}
		if len(subs) == 0 {
			delete(h.rooms, sub.roomID)
		}
	}
	h.mu.Unlock()
}

// Broadcast pushes the event to every live subscriber of the room. A handle
// whose buffer is full is dropped without affecting the others.
func (h *Hub) Broadcast(roomID string, env *frame.MessageEnvelope) {
	h.mu.RLock()
	subs := h.rooms[roomID]
	snapshot := make([]*subscriber, 0, len(subs))
	for _, sub := range subs {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	for _, sub := range snapshot {
		select {
		case sub.events <- env:
			metrics.Deliveries.WithLabelValues("sse").Inc()
		default:
			metrics.SendFailures.WithLabelValues("sse").Inc()
			h.logger.Warn("SSE subscriber buffer full, dropping handle",
				zap.String("chat_room_id", roomID),
				zap.String("handle_id", sub.id))
			h.remove(sub)
		}
	}
}

// SubscriberCount returns the number of live handles for a room.
func (h *Hub) SubscriberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// HandleStream serves GET /sse/chat-rooms/:chatRoomId/messages. The stream
// opens with a "connected" event and then carries one "message" event per
// delivered envelope until the timeout elapses or the client goes away.
func (h *Hub) HandleStream(c *gin.Context) {
	roomID := c.Param("chatRoomId")
	if roomID == "" {
		httperrors.RespondBadRequest(c, constants.ErrMsgRoomIDRequired)
		return
	}

	timeout, err := util.ParseTimeout(c.Query(constants.QueryTimeout), h.defaultTimeout)
	if err != nil {
		httperrors.RespondBadRequest(c, constants.ErrMsgInvalidTimeout)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		httperrors.RespondInternalError(c)
		return
	}

	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "private, no-cache, no-store, must-revalidate, max-age=0")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sub := h.subscribe(roomID)
	defer h.remove(sub)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"handleId\":%q}\n\n", sub.id)
	flusher.Flush()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case env := <-sub.events:
			data, err := util.MarshalJSON(env)
			if err != nil {
				util.LogError(h.logger, "sse", "encode event", err,
					zap.String("chat_room_id", roomID))
				continue
			}
			if _, err := fmt.Fprintf(c.Writer, "event: message\ndata: %s\n\n", data); err != nil {
				metrics.SendFailures.WithLabelValues("sse").Inc()
				return
			}
			flusher.Flush()
		case <-timer.C:
			// Stream lifetime reached; end without error. The client
			// reconnects for a fresh stream.
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
