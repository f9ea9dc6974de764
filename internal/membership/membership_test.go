package membership

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticResolver_Recipients(t *testing.T) {
	r := NewStaticResolver(map[string][]string{
		"room-1": {"u1", "u2"},
	})

	members, err := r.Recipients(context.Background(), "room-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, members)
}

func TestStaticResolver_UnknownRoom(t *testing.T) {
	r := NewStaticResolver(nil)

	members, err := r.Recipients(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestStaticResolver_EmptyRoomID(t *testing.T) {
	r := NewStaticResolver(nil)

	_, err := r.Recipients(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidRoomID)
}

func TestStaticResolver_CopiesInputMap(t *testing.T) {
	source := map[string][]string{"room-1": {"u1"}}
	r := NewStaticResolver(source)

	source["room-1"] = append(source["room-1"], "intruder")
	source["room-2"] = []string{"u9"}

	members, err := r.Recipients(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, members)

	members, err = r.Recipients(context.Background(), "room-2")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestStaticResolver_ResultIsACopy(t *testing.T) {
	r := NewStaticResolver(map[string][]string{"room-1": {"u1", "u2"}})

	first, err := r.Recipients(context.Background(), "room-1")
	require.NoError(t, err)
	first[0] = "mutated"

	second, err := r.Recipients(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, second)
}

func TestStaticResolver_SetRoom(t *testing.T) {
	r := NewStaticResolver(map[string][]string{"room-1": {"u1"}})

	r.SetRoom("room-1", []string{"u1", "u2", "u3"})

	members, err := r.Recipients(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Len(t, members, 3)
}
