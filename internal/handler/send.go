package handler

import (
	"github.com/real-rm/chatrelay/internal/auth"
	"github.com/real-rm/chatrelay/internal/frame"
)

// SendFunc handles a send frame addressed to an application destination.
// A returned error is reported to the client on its exception queue; it
// never closes the connection.
type SendFunc func(info auth.Info, connID string, f *frame.Frame) error

// ReplyFunc is a send handler that produces a payload for the client.
type ReplyFunc func(info auth.Info, connID string, f *frame.Frame) (interface{}, error)

// Sender delivers a payload to one connection's destination. Implemented by
// the WebSocket hub.
type Sender interface {
	SendToConnection(connID, destination string, body interface{}) error
}

// WithReply wraps a reply-producing handler so that its return value is
// serialized and sent to the template-resolved destination. Composition
// happens at registration time; the template may reference {connectionId}
// and {userId}.
func WithReply(sender Sender, template string, fn ReplyFunc) SendFunc {
	return func(info auth.Info, connID string, f *frame.Frame) error {
		payload, err := fn(info, connID, f)
		if err != nil {
			return err
		}
		if payload == nil {
			return nil
		}
		destination, err := frame.ResolveTemplate(template, map[string]string{
			"connectionId": connID,
			"userId":       info.UserID,
		})
		if err != nil {
			return err
		}
		return sender.SendToConnection(connID, destination, payload)
	}
}

// RegisterSend binds an exact application destination, e.g. "/app/ping",
// to a send handler. Panics after Freeze.
func (r *Registry) RegisterSend(destination string, fn SendFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("handler: RegisterSend after Freeze")
	}
	if r.sends == nil {
		r.sends = make(map[string]SendFunc)
	}
	r.sends[destination] = fn
}

// DispatchSend routes a send frame to its application destination handler.
// The boolean reports whether a handler was bound to the destination.
func (r *Registry) DispatchSend(info auth.Info, connID string, f *frame.Frame) (bool, error) {
	fn, ok := r.sends[f.Destination]
	if !ok {
		return false, nil
	}
	return true, fn(info, connID, f)
}
