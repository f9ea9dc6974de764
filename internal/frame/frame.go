// Package frame defines the JSON wire protocol spoken over the persistent
// transport, the message envelopes relayed to recipients, and the conversion
// of internal failures into structured outbound error envelopes.
package frame

import (
	"encoding/json"
	"time"
)

// Type identifies a protocol frame.
type Type string

const (
	// Client-to-server frames
	TypeConnect   Type = "connect"
	TypeSubscribe Type = "subscribe"
	TypeSend      Type = "send"

	// Server-to-client frames
	TypeConnected Type = "connected"
	TypeMessage   Type = "message"
	TypeReceipt   Type = "receipt"

	// TypeError is terminal: the client's protocol library treats it as
	// connection-ending. Non-terminal failures ride in a TypeMessage frame
	// on the per-connection exception queue instead.
	TypeError Type = "error"
)

// Frame is one protocol frame. Headers carry frame-scoped metadata such as
// the Authorization credential on connect and refresh frames.
type Frame struct {
	Type         Type              `json:"type"`
	Destination  string            `json:"destination,omitempty"`
	Subscription string            `json:"subscription,omitempty"`
	Receipt      string            `json:"receipt,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         json.RawMessage   `json:"body,omitempty"`
}

// Header returns the named header or the empty string.
func (f *Frame) Header(name string) string {
	if f.Headers == nil {
		return ""
	}
	return f.Headers[name]
}

// Decode parses a raw inbound frame.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Encode serializes a frame for the wire.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// NewMessageFrame builds a server push frame for a destination.
func NewMessageFrame(destination string, body interface{}) (*Frame, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Type:        TypeMessage,
		Destination: destination,
		Body:        data,
	}, nil
}

// NewErrorFrame builds a terminal error frame carrying the envelope.
func NewErrorFrame(env *ErrorEnvelope) (*Frame, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Type: TypeError,
		Body: data,
	}, nil
}

// MessageEnvelope is the payload relayed to recipients. It is immutable and
// derived from the message-created domain event of the persistence layer.
type MessageEnvelope struct {
	ID         string    `json:"id"`
	ChatRoomID string    `json:"chatRoomId"`
	SenderID   string    `json:"senderId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Validate checks the fields the delivery subsystem depends on.
func (m *MessageEnvelope) Validate() error {
	if m.ID == "" {
		return errMissingEnvelopeField("id")
	}
	if m.ChatRoomID == "" {
		return errMissingEnvelopeField("chatRoomId")
	}
	if m.SenderID == "" {
		return errMissingEnvelopeField("senderId")
	}
	return nil
}

// UserMessageEnvelope is the per-recipient delivery payload: the same content,
// with the recipient stamped per delivery.
type UserMessageEnvelope struct {
	MessageEnvelope
	RecipientUserID string `json:"recipientUserId"`
}

// ForRecipient derives the per-recipient payload.
func (m *MessageEnvelope) ForRecipient(userID string) *UserMessageEnvelope {
	return &UserMessageEnvelope{
		MessageEnvelope: *m,
		RecipientUserID: userID,
	}
}

// ErrorEnvelope is the structured outbound error, correlated to the
// triggering request where known. Constructed fresh per failure, never persisted.
type ErrorEnvelope struct {
	Code               string            `json:"code"`
	Message            string            `json:"message"`
	Details            map[string]string `json:"details,omitempty"`
	OccurredAt         time.Time         `json:"occurredAt"`
	ConnectionID       string            `json:"connectionId,omitempty"`
	ReceiptID          string            `json:"receiptId,omitempty"`
	RequestDestination string            `json:"requestDestination,omitempty"`
}
