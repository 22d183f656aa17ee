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

package spaces

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/circles-chat/circles/rooms"
	"github.com/circles-chat/circles/session/api"
	"github.com/circles-chat/circles/timeline"
)

// SocialStream is the user's top-level circles space. Its children are the
// circles, and the unified feed is built from every room in every circle.
type SocialStream struct {
	*ContainerRoom[*CircleSpace]
	// MaxFutureSkew defaults to timeline.DefaultMaxFutureSkew when zero.
	MaxFutureSkew time.Duration
	// SweepConcurrency defaults to DefaultSweepConcurrency when zero.
	SweepConcurrency int
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewSocialStream(ctx context.Context, room *rooms.Room, session api.Session, registry *rooms.Registry) *SocialStream {
	newCircle := func(ctx context.Context, roomID string, state []api.ClientEvent) (*CircleSpace, error) {
		room, err := registry.Load(ctx, roomID, state)
		if err != nil {
			return nil, err
		}
		return NewCircleSpace(ctx, room, session, registry), nil
	}
	return &SocialStream{
		ContainerRoom: NewContainerRoom(ctx, room, session, newCircle),
	}
}

// LoadSocialStream fetches the root space's state, registers it and loads
// every circle below it.
func LoadSocialStream(ctx context.Context, session api.Session, registry *rooms.Registry, spaceID string) (*SocialStream, error) {
	state, err := session.GetRoomStateEvents(ctx, spaceID)
	if err != nil {
		return nil, fmt.Errorf("session.GetRoomStateEvents: %w", err)
	}
	room, err := registry.Load(ctx, spaceID, state)
	if err != nil {
		return nil, fmt.Errorf("registry.Load: %w", err)
	}
	return NewSocialStream(ctx, room, session, registry), nil
}

func (s *SocialStream) Circles() []*CircleSpace {
	return s.Children()
}

// Circle returns the circle with the given space ID.
func (s *SocialStream) Circle(spaceID string) (*CircleSpace, bool) {
	return s.Child(spaceID)
}

// Rooms returns the rooms of all circles. A room in several circles is
// listed once, at its first position.
func (s *SocialStream) Rooms() []*rooms.Room {
	seen := make(map[string]struct{})
	var out []*rooms.Room
	for _, circle := range s.Circles() {
		for _, room := range circle.Children() {
			if _, ok := seen[room.RoomID()]; ok {
				continue
			}
			seen[room.RoomID()] = struct{}{}
			out = append(out, room)
		}
	}
	return out
}

// Feed returns the unified feed from since onwards, oldest first: top-level
// posts by each room's owner, minus ignored users and posts dated too far in
// the future.
func (s *SocialStream) Feed(ctx context.Context, since time.Time) []*rooms.Message {
	ignored, err := s.session.IgnoredUsers(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Failed to fetch ignored users, feed will not be filtered by them")
	}
	filter := timeline.FeedFilter{
		Ignored:       ignored,
		MaxFutureSkew: s.MaxFutureSkew,
		Now:           s.Now,
	}.Filter()
	msgs := timeline.Collate(s.Rooms(), since, filter)
	collatedTimelineSize.Observe(float64(len(msgs)))
	return msgs
}

func (s *SocialStream) CanPaginateRooms() bool {
	return canPaginateAny(s.Rooms())
}

func (s *SocialStream) LastFirstRoom() (*rooms.Room, bool) {
	return timeline.LastFirstRoom(s.Rooms())
}

func (s *SocialStream) PaginateRooms(ctx context.Context, limit int) error {
	return paginateLastFirst(ctx, s.Rooms(), limit)
}

func (s *SocialStream) PaginateEmptyTimelines(ctx context.Context, limit int) error {
	return paginateEmpty(ctx, s.Rooms(), limit, s.SweepConcurrency)
}

// UnreadCount returns the number of unread posts across all circles' rooms.
func (s *SocialStream) UnreadCount() int {
	self := s.session.UserID()
	n := 0
	for _, room := range s.Rooms() {
		n += room.UnreadCount(self)
	}
	return n
}
