package frame

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/real-rm/chatrelay/internal/errors"
)

func TestDecode_ValidFrame(t *testing.T) {
	raw := []byte(`{"type":"subscribe","destination":"/topic/user/u1/messages","subscription":"sub-0","receipt":"r1"}`)

	f, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeSubscribe, f.Type)
	assert.Equal(t, "/topic/user/u1/messages", f.Destination)
	assert.Equal(t, "sub-0", f.Subscription)
	assert.Equal(t, "r1", f.Receipt)
}

func TestDecode_MalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestEncode_RoundTrip(t *testing.T) {
	f := &Frame{
		Type:        TypeConnect,
		Headers:     map[string]string{"Authorization": "Bearer tok"},
		Destination: "",
	}

	data, err := f.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeConnect, decoded.Type)
	assert.Equal(t, "Bearer tok", decoded.Header("Authorization"))
}

func TestFrame_Header(t *testing.T) {
	f := &Frame{Headers: map[string]string{"Authorization": "Bearer x"}}
	assert.Equal(t, "Bearer x", f.Header("Authorization"))
	assert.Equal(t, "", f.Header("missing"))

	var nilHeaders Frame
	assert.Equal(t, "", nilHeaders.Header("Authorization"))
}

func TestNewMessageFrame(t *testing.T) {
	env := &MessageEnvelope{
		ID:         "m1",
		ChatRoomID: "room-1",
		SenderID:   "u2",
		Content:    "hi",
		CreatedAt:  time.Now().UTC(),
	}

	f, err := NewMessageFrame("/topic/user/u1/messages", env)
	require.NoError(t, err)
	assert.Equal(t, TypeMessage, f.Type)
	assert.Equal(t, "/topic/user/u1/messages", f.Destination)

	var decoded MessageEnvelope
	require.NoError(t, json.Unmarshal(f.Body, &decoded))
	assert.Equal(t, "m1", decoded.ID)
	assert.Equal(t, "hi", decoded.Content)
}

func TestNewErrorFrame(t *testing.T) {
	env := &ErrorEnvelope{
		Code:       "UNAUTHORIZED",
		Message:    "token expired",
		OccurredAt: time.Now().UTC(),
	}

	f, err := NewErrorFrame(env)
	require.NoError(t, err)
	assert.Equal(t, TypeError, f.Type)

	var decoded ErrorEnvelope
	require.NoError(t, json.Unmarshal(f.Body, &decoded))
	assert.Equal(t, "UNAUTHORIZED", decoded.Code)
	assert.Equal(t, "token expired", decoded.Message)
}

func TestMessageEnvelope_Validate(t *testing.T) {
	valid := MessageEnvelope{ID: "m1", ChatRoomID: "room-1", SenderID: "u1", Content: "hi"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name  string
		env   MessageEnvelope
		field string
	}{
		{"missing id", MessageEnvelope{ChatRoomID: "r", SenderID: "u"}, "envelope.id"},
		{"missing chatRoomId", MessageEnvelope{ID: "m", SenderID: "u"}, "envelope.chatRoomId"},
		{"missing senderId", MessageEnvelope{ID: "m", ChatRoomID: "r"}, "envelope.senderId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			require.Error(t, err)

			var de *errors.DeliveryError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, errors.CategoryValidation, de.Category)
			assert.Contains(t, de.Message, tt.field)
		})
	}
}

func TestMessageEnvelope_ForRecipient(t *testing.T) {
	env := &MessageEnvelope{ID: "m1", ChatRoomID: "room-1", SenderID: "u2", Content: "hi"}

	payload := env.ForRecipient("u1")
	assert.Equal(t, "u1", payload.RecipientUserID)
	assert.Equal(t, "m1", payload.ID)
	assert.Equal(t, "u2", payload.SenderID)

	// The source envelope must not be mutated
	other := env.ForRecipient("u3")
	assert.Equal(t, "u3", other.RecipientUserID)
	assert.Equal(t, "u1", payload.RecipientUserID)
}

func TestFrameError_DomainError(t *testing.T) {
	err := errors.ErrInvalidFrame("unsupported frame type", nil)
	corr := Correlation{ConnectionID: "c1", ReceiptID: "r1", Destination: "/app/chat"}

	env := FrameError(err, corr)
	assert.Equal(t, string(errors.ErrCodeInvalidFrame), env.Code)
	assert.Equal(t, "c1", env.ConnectionID)
	assert.Equal(t, "r1", env.ReceiptID)
	assert.Equal(t, "/app/chat", env.RequestDestination)
	assert.False(t, env.OccurredAt.IsZero())
}

func TestFrameError_CopiesDetails(t *testing.T) {
	err := errors.ErrInvalidFrame("bad", nil).WithDetail("line", "3")

	env := FrameError(err, Correlation{})
	require.Equal(t, "3", env.Details["line"])

	// Mutating the envelope copy must not leak back into the error
	env.Details["line"] = "changed"
	assert.Equal(t, "3", err.Details["line"])
}

func TestFrameError_UnknownErrorSynthesizesInternal(t *testing.T) {
	env := FrameError(assert.AnError, Correlation{ConnectionID: "c1"})

	assert.Equal(t, string(errors.ErrCodeInternalError), env.Code)
	assert.Equal(t, "Internal server error", env.Message)
	assert.NotContains(t, env.Message, assert.AnError.Error())
}

func TestResolveTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
		wantErr  bool
	}{
		{
			name:     "single placeholder",
			template: "/queue/session/{connectionId}/exception",
			vars:     map[string]string{"connectionId": "c1"},
			want:     "/queue/session/c1/exception",
		},
		{
			name:     "multiple placeholders",
			template: "/topic/{kind}/{id}/messages",
			vars:     map[string]string{"kind": "user", "id": "u1"},
			want:     "/topic/user/u1/messages",
		},
		{
			name:     "no placeholders",
			template: "/app/ping",
			vars:     nil,
			want:     "/app/ping",
		},
		{
			name:     "missing value",
			template: "/topic/user/{userId}/messages",
			vars:     map[string]string{},
			wantErr:  true,
		},
		{
			name:     "unterminated placeholder",
			template: "/topic/user/{userId",
			vars:     map[string]string{"userId": "u1"},
			wantErr:  true,
		},
		{
			name:     "empty placeholder",
			template: "/topic/{}/messages",
			vars:     map[string]string{},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveTemplate(tt.template, tt.vars)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
