package api

import "context"

// RoomUpdate is one joined room's slice of a /sync response.
type RoomUpdate struct {
	// State is the state before the timeline, when the server sends it.
	State []ClientEvent
	// Timeline is oldest first and may include state events.
	Timeline []ClientEvent
	// Limited means the server left out events between the previous sync
	// and this timeline.
	Limited   bool
	PrevBatch string
}

// SyncHandler receives the output of the sync loop, one room at a time and
// in the order the server sent it.
type SyncHandler interface {
	OnRoomUpdate(ctx context.Context, roomID string, update *RoomUpdate) error
	OnLeaveRoom(ctx context.Context, roomID string) error
}
