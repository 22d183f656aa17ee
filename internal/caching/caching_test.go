package caching

import (
	"testing"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomStateCache(t *testing.T) {
	caches, err := NewRistrettoCache(1*MB, CacheNoMaxAge, false)
	require.NoError(t, err)
	partition := caches.RoomStates.(*RistrettoCachePartition[string, RoomState])

	stateKey := ""
	state := RoomState{{
		Type:     "m.room.create",
		StateKey: &stateKey,
		Sender:   "@alice:test",
		Content:  spec.RawJSON(`{"creator":"@alice:test"}`),
	}}
	assert.Greater(t, state.CacheCost(), int64(len(state[0].Content)))

	var c RoomStateCache = caches
	_, ok := c.GetRoomState("!a:test")
	assert.False(t, ok)

	c.StoreRoomState("!a:test", state)
	partition.cache.Wait()
	got, ok := c.GetRoomState("!a:test")
	require.True(t, ok)
	assert.Equal(t, state, got)

	c.InvalidateRoomState("!a:test")
	_, ok = c.GetRoomState("!a:test")
	assert.False(t, ok)
}
