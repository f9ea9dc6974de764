// Package longpoll serves the room-scoped held-request transport. A poll is
// held until a message arrives for the room or the timeout elapses; timeout
// resolves with an empty list, signaling "no new message yet, poll again"
// rather than failure. Each held request is one-shot: once resolved it is
// gone and a new poll must be issued.
package longpoll

import (
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

// waiter is one held request. The channel has capacity one and receives at
// most one resolution; dispatch owns the send side after popping the waiter
// from the room set.
type waiter struct {
	id     string
	roomID string
	result chan []*frame.MessageEnvelope
}

// Hub tracks the held-request set per chat room.
type Hub struct {
	rooms          map[string]map[string]*waiter
	mu             sync.Mutex
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// NewHub creates a long-poll hub with the given default hold timeout.
func NewHub(defaultTimeout time.Duration, logger *zap.Logger) *Hub {
	return &Hub{
		rooms:          make(map[string]map[string]*waiter),
		defaultTimeout: defaultTimeout,
		logger:         logger.Named("longpoll"),
	}
}

// register adds a new held request under the room id.
func (h *Hub) register(roomID string) *waiter {
	w := &waiter{
		id:     util.NewID(),
		roomID: roomID,
		result: make(chan []*frame.MessageEnvelope, 1),
	}

	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*waiter)
	}
	h.rooms[roomID][w.id] = w
	h.mu.Unlock()

	metrics.LongPollWaiters.Inc()
	return w
}

// remove drops a waiter that was resolved locally (timeout or client gone).
// Removing a waiter already popped by Resolve is a no-op.
func (h *Hub) remove(w *waiter) {
	h.mu.Lock()
	waiters, ok := h.rooms[w.roomID]
	if ok {
		if _, exists := waiters[w.id]; exists {
			delete(waiters, w.id)
			metrics.LongPollWaiters.Dec()
		}
		if len(waiters) == 0 {
			delete(h.rooms, w.roomID)
		}
	}
	h.mu.Unlock()
}

// Resolve pops every waiter held on the room and resolves each with a
// single-element list containing the message. The set is cleared; polls
// issued after this call register fresh waiters and block again.
func (h *Hub) Resolve(roomID string, env *frame.MessageEnvelope) int {
	h.mu.Lock()
	waiters := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()

	for _, w := range waiters {
		w.result <- []*frame.MessageEnvelope{env}
		metrics.LongPollWaiters.Dec()
		metrics.Deliveries.WithLabelValues("long_poll").Inc()
	}
	return len(waiters)
}

// WaiterCount returns the number of requests currently held for a room.
func (h *Hub) WaiterCount(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}

// HandlePoll serves GET /long-polling/chat-rooms/:chatRoomId/messages.
// Responds with a JSON array: one element on delivery, empty on timeout.
func (h *Hub) HandlePoll(c *gin.Context) {
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

	w := h.register(roomID)
	defer h.remove(w)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case envs := <-w.result:
		c.JSON(http.StatusOK, envs)
	case <-timer.C:
		// No new message within the hold window; this is not an error.
		c.JSON(http.StatusOK, []*frame.MessageEnvelope{})
	case <-c.Request.Context().Done():
		// Client went away; the deferred remove keeps the next dispatch
		// from touching a dead handle.
		h.logger.Debug("Long-poll client disconnected",
			zap.String("chat_room_id", roomID),
			zap.String("handle_id", w.id))
	}
}
