package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/real-rm/chatrelay/internal/errors"
	"github.com/real-rm/chatrelay/internal/frame"
	"github.com/real-rm/chatrelay/internal/metrics"
)

// Terminator sends a terminal error frame to a connection and closes it.
// Implemented by the WebSocket hub.
type Terminator interface {
	Terminate(connID string, env *frame.ErrorEnvelope) error
}

// ExpiryMonitor periodically sweeps the registry and evicts sessions whose
// credential has lapsed. The sweep is the authoritative enforcement of token
// expiry: the protocol has no forced-timeout primitive, so expiry is
// advisory until the next tick. With the period equal to the transport
// heartbeat interval, no session outlives its expiry by more than one
// heartbeat.
type ExpiryMonitor struct {
	registry   *Registry
	terminator Terminator
	period     time.Duration
	logger     *zap.Logger
	now        func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewExpiryMonitor creates a monitor sweeping the registry on the given period.
func NewExpiryMonitor(registry *Registry, terminator Terminator, period time.Duration, logger *zap.Logger) *ExpiryMonitor {
	return &ExpiryMonitor{
		registry:   registry,
		terminator: terminator,
		period:     period,
		logger:     logger.Named("expiry"),
		now:        time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (m *ExpiryMonitor) Start() {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.period)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (m *ExpiryMonitor) Stop() {
	close(m.stop)
	<-m.done
}

// Sweep evicts every expired session: build the expiry error envelope,
// attempt a terminal error frame (best-effort; a failure to send, e.g.
// because the socket is already gone, is logged and swallowed), then
// unregister. Exposed for tests and for an eager sweep on demand.
func (m *ExpiryMonitor) Sweep() int {
	now := m.now()
	evicted := 0

	for connID, info := range m.registry.Snapshot() {
		if !info.Expired(now) {
			continue
		}

		env := frame.FrameError(errors.ErrSessionExpired(info.SessionID), frame.Correlation{
			ConnectionID: connID,
		})
		if err := m.terminator.Terminate(connID, env); err != nil {
			m.logger.Warn("Failed to deliver terminal expiry frame",
				zap.String("connection_id", connID),
				zap.String("user_id", info.UserID),
				zap.Error(err))
		}

		m.registry.Unregister(connID)
		metrics.SessionsExpired.Inc()
		evicted++

		m.logger.Info("Session expired",
			zap.String("connection_id", connID),
			zap.String("user_id", info.UserID),
			zap.Time("expired_at", info.ExpiresAt))
	}

	return evicted
}
