package caching

import (
	"unsafe"

	"github.com/circles-chat/circles/session/api"
)

// RoomState is the full current state of a room as last fetched from the
// homeserver.
type RoomState []api.ClientEvent

func (s RoomState) CacheCost() int64 {
	cost := int64(unsafe.Sizeof(s))
	for i := range s {
		ev := &s[i]
		cost += int64(unsafe.Sizeof(*ev)) + int64(len(ev.Content)+len(ev.Unsigned)+len(ev.EventID)+len(ev.Sender)+len(ev.Type))
		if ev.StateKey != nil {
			cost += int64(len(*ev.StateKey))
		}
	}
	return cost
}

// RoomStateCache contains the subset of functions needed for
// a room state cache.
type RoomStateCache interface {
	GetRoomState(roomID string) (RoomState, bool)
	StoreRoomState(roomID string, state RoomState)
	InvalidateRoomState(roomID string)
}

func (c Caches) GetRoomState(roomID string) (RoomState, bool) {
	return c.RoomStates.Get(roomID)
}

func (c Caches) StoreRoomState(roomID string, state RoomState) {
	c.RoomStates.Set(roomID, state)
}

func (c Caches) InvalidateRoomState(roomID string) {
	c.RoomStates.Unset(roomID)
}
