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

package consumers

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/circles-chat/circles/rooms"
	"github.com/circles-chat/circles/session/api"
	"github.com/circles-chat/circles/spaces"
)

// RoomEventConsumer applies the sync stream to the loaded rooms and spaces.
// Rooms nobody has loaded yet are skipped; the local store already holds
// their history for when they are.
type RoomEventConsumer struct {
	registry *rooms.Registry

	mu     sync.RWMutex
	stream *spaces.SocialStream
}

var _ api.SyncHandler = (*RoomEventConsumer)(nil)

func NewRoomEventConsumer(registry *rooms.Registry) *RoomEventConsumer {
	return &RoomEventConsumer{
		registry: registry,
	}
}

// SetStream sets the social stream whose spaces receive state events.
func (c *RoomEventConsumer) SetStream(stream *spaces.SocialStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stream = stream
}

func (c *RoomEventConsumer) OnRoomUpdate(ctx context.Context, roomID string, update *api.RoomUpdate) error {
	room, ok := c.registry.Get(roomID)
	if !ok {
		return nil
	}
	for i := range update.State {
		room.OnStateEvent(&update.State[i])
	}
	// Either the server skipped events since the last sync, or this is the
	// first time we see the room: both mean older history is available.
	if update.PrevBatch != "" && (update.Limited || len(room.Messages()) == 0) {
		room.SetPrevBatch(update.PrevBatch)
	}
	room.AddTimelineEvents(update.Timeline)

	if container := c.container(roomID); container != nil {
		for i := range update.State {
			container.OnStateEvent(ctx, &update.State[i])
		}
		for i := range update.Timeline {
			if update.Timeline[i].IsState() {
				container.OnStateEvent(ctx, &update.Timeline[i])
			}
		}
	}
	logrus.WithFields(logrus.Fields{
		"room_id":  roomID,
		"timeline": len(update.Timeline),
		"limited":  update.Limited,
	}).Trace("Applied room update")
	return nil
}

func (c *RoomEventConsumer) OnLeaveRoom(ctx context.Context, roomID string) error {
	c.registry.Remove(roomID)
	return nil
}

type stateReceiver interface {
	OnStateEvent(ctx context.Context, ev *api.ClientEvent)
}

func (c *RoomEventConsumer) container(roomID string) stateReceiver {
	c.mu.RLock()
	stream := c.stream
	c.mu.RUnlock()
	if stream == nil {
		return nil
	}
	if stream.RoomID() == roomID {
		return stream
	}
	if circle, ok := stream.Circle(roomID); ok {
		return circle
	}
	return nil
}
