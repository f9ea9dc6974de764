package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/real-rm/chatrelay/internal/constants"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid", "Bearer abc123", "abc123", nil},
		{"empty header", "", "", ErrMissingAuthHeader},
		{"wrong scheme", "Basic abc123", "", ErrInvalidAuthHeader},
		{"prefix only", "Bearer ", "", ErrInvalidAuthHeader},
		{"lowercase scheme", "bearer abc123", "", ErrInvalidAuthHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearerToken(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContainsWeakPattern(t *testing.T) {
	patterns := []string{"secret", "password"}

	found, pattern := ContainsWeakPattern("MY-SECRET-value", patterns)
	assert.True(t, found)
	assert.Equal(t, "secret", pattern)

	found, _ = ContainsWeakPattern("x7#kQ9!mZ2&vB5", patterns)
	assert.False(t, found)
}

func TestNewTimeoutContext(t *testing.T) {
	ctx, cancel := NewTimeoutContext(time.Minute)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, time.Second)
}

func TestNewID_UniqueAndHex(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.Len(t, id, 32)
		assert.False(t, seen[id], "ids must be unique")
		seen[id] = true
	}
}

func TestMarshalUnmarshalJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	data, err := MarshalJSON(payload{Name: "x"})
	require.NoError(t, err)

	var out payload
	require.NoError(t, UnmarshalJSON(data, &out))
	assert.Equal(t, "x", out.Name)

	assert.Error(t, UnmarshalJSON([]byte("{bad"), &out))

	_, err = MarshalJSON(make(chan int))
	assert.Error(t, err)
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"empty uses fallback", "", 30 * time.Second, false},
		{"milliseconds", "1500", 1500 * time.Millisecond, false},
		{"capped at maximum", "99999999", constants.MaxHoldTimeout, false},
		{"zero rejected", "0", 0, true},
		{"negative rejected", "-100", 0, true},
		{"non-numeric rejected", "soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeout(tt.raw, 30*time.Second)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTimeout)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSafeGo_RecoversPanic(t *testing.T) {
	done := make(chan struct{})
	SafeGo(zaptest.NewLogger(t), "panicky", func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
	// Recovery happens after the deferred close; give it a beat so the
	// test logger is still alive when the panic is logged.
	time.Sleep(10 * time.Millisecond)
}

func TestSafeGo_RunsFunction(t *testing.T) {
	ran := make(chan struct{})
	SafeGo(zaptest.NewLogger(t), "worker", func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}
