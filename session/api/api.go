// Copyright 2026 The Circles Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api defines the Matrix session the circles core is built on. The
// session owns everything protocol-shaped (HTTP, sync, encryption); the core
// only ever talks to it through these interfaces.
package api

import (
	"context"
	"errors"
)

// ErrRoomNotFound is returned by a session when it has no state for a room.
var ErrRoomNotFound = errors.New("room not found")

const (
	// RoomTypeSpace is the m.room.create `type` of a space.
	RoomTypeSpace = "m.space"
	// RoomTypeTimeline marks a room holding a single person's posts.
	RoomTypeTimeline = "org.futo.social.timeline"
)

// Paginator fetches older history for a room.
type Paginator interface {
	// Messages requests up to limit events before the from token, newest first.
	// An empty from token starts at the end of the room.
	Messages(ctx context.Context, roomID, from string, limit int) (*MessagesResponse, error)
}

// Session is the Matrix client session. All methods may block on network I/O.
type Session interface {
	Paginator

	// UserID returns the local user's Matrix ID.
	UserID() string

	// GetRoomStateEvents returns the full current state of a room.
	GetRoomStateEvents(ctx context.Context, roomID string) ([]ClientEvent, error)

	// CreateRoom creates a new room and returns its ID.
	CreateRoom(ctx context.Context, req *CreateRoomRequest) (string, error)

	// SetRoomAvatar uploads the avatar and points the room's m.room.avatar at it.
	SetRoomAvatar(ctx context.Context, roomID string, avatar *Avatar) error

	// AddSpaceChild writes an m.space.child relation from parentID to childID.
	AddSpaceChild(ctx context.Context, childID, parentID string) error

	// RemoveSpaceChild empties the m.space.child relation from parentID to childID.
	RemoveSpaceChild(ctx context.Context, childID, parentID string) error

	// Leave leaves the room.
	Leave(ctx context.Context, roomID string) error

	// IgnoredUsers returns the local user's ignore list.
	IgnoredUsers(ctx context.Context) (map[string]struct{}, error)
}

type CreateRoomRequest struct {
	Name string
	// Type is the m.room.create `type`, e.g. RoomTypeSpace. Empty for plain rooms.
	Type      string
	Encrypted bool
	Topic     string
}

type Avatar struct {
	ContentType string
	Data        []byte
}

type MessagesResponse struct {
	Start string        `json:"start"`
	End   string        `json:"end,omitempty"`
	Chunk []ClientEvent `json:"chunk"`
	State []ClientEvent `json:"state,omitempty"`
}
