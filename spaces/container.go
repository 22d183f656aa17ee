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

// Package spaces projects Matrix spaces onto the social model: circles of
// people whose timeline rooms are children of a space, and the stream of all
// circles the feed is built from.
package spaces

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/Arceliar/phony"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"maunium.net/go/mautrix/event"

	"github.com/circles-chat/circles/rooms"
	"github.com/circles-chat/circles/session/api"
)

// ChildFactory builds a child handle from the child room's full current state.
type ChildFactory[T rooms.RoomLike] func(ctx context.Context, roomID string, state []api.ClientEvent) (T, error)

// ChildrenUpdateKind says how a container's children changed.
type ChildrenUpdateKind int

const (
	ChildAdded ChildrenUpdateKind = iota
	// ChildReplaced means an existing child's state was refreshed in place.
	ChildReplaced
	ChildRemoved
)

func (k ChildrenUpdateKind) String() string {
	switch k {
	case ChildAdded:
		return "added"
	case ChildReplaced:
		return "replaced"
	case ChildRemoved:
		return "removed"
	}
	return fmt.Sprintf("ChildrenUpdateKind(%d)", int(k))
}

// ChildrenUpdate is published to subscribers whenever a container's children
// change.
type ChildrenUpdate struct {
	SpaceID string
	RoomID  string
	Kind    ChildrenUpdateKind
}

// CreateChildRequest describes a room to create as a child of a space.
type CreateChildRequest struct {
	Name      string
	Type      string
	Encrypted bool
	Topic     string
	Avatar    *api.Avatar // optional
}

// ContainerRoom keeps the children of a space in sync with the space's
// m.space.child state. It is an actor: every change to the children runs on
// its inbox, one at a time, in the order events arrived.
//
// The children slice is copy-on-write: writers always build a new one and
// swap it in.
type ContainerRoom[T rooms.RoomLike] struct {
	phony.Inbox
	room     *rooms.Room
	session  api.Session
	newChild ChildFactory[T]

	mu       sync.RWMutex
	children []T

	subsMu sync.Mutex
	subs   map[int]chan ChildrenUpdate
	nextID int
}

// NewContainerRoom loads the children listed in the space's current state.
// Children that can't be fetched or built are skipped.
func NewContainerRoom[T rooms.RoomLike](ctx context.Context, room *rooms.Room, session api.Session, newChild ChildFactory[T]) *ContainerRoom[T] {
	c := &ContainerRoom[T]{
		room:     room,
		session:  session,
		newChild: newChild,
		subs:     make(map[int]chan ChildrenUpdate),
	}
	var children []T
	for _, ev := range room.StateEventsOfType(event.StateSpaceChild.Type) {
		if !hasVia(&ev) {
			continue
		}
		child, err := c.loadChild(ctx, *ev.StateKey)
		if err != nil {
			c.logger().WithError(err).WithField("child_id", *ev.StateKey).Warn("Skipping space child")
			continue
		}
		children = append(children, child)
	}
	c.children = children
	spaceChildren.With(prometheus.Labels{"space_id": room.RoomID()}).Set(float64(len(children)))
	return c
}

func (c *ContainerRoom[T]) RoomID() string {
	return c.room.RoomID()
}

// Room returns the space's own room.
func (c *ContainerRoom[T]) Room() *rooms.Room {
	return c.room
}

func (c *ContainerRoom[T]) Name() string {
	return c.room.Name()
}

// Creator returns the creator of the space room itself.
func (c *ContainerRoom[T]) Creator() string {
	return c.room.Creator()
}

// ReplaceState refreshes the space room's own state. The children are left
// alone; they follow the space's m.space.child events.
func (c *ContainerRoom[T]) ReplaceState(state []api.ClientEvent) error {
	return c.room.ReplaceState(state)
}

// Children returns a copy of the current children. Later changes are not
// reflected in it.
func (c *ContainerRoom[T]) Children() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.children)
}

// Child returns the child with the given room ID.
func (c *ContainerRoom[T]) Child(roomID string) (T, bool) {
	for _, child := range c.Children() {
		if child.RoomID() == roomID {
			return child, true
		}
	}
	var zero T
	return zero, false
}

// OnStateEvent applies a state event from the space room. For m.space.child
// events with a via list a new child is loaded from its current state and
// appended, while a known child keeps its identity and only has its state
// refreshed. Without a via list the child is removed. Returns once the event
// has been applied.
func (c *ContainerRoom[T]) OnStateEvent(ctx context.Context, ev *api.ClientEvent) {
	phony.Block(c, func() {
		c.room.OnStateEvent(ev)
		if ev.Type != event.StateSpaceChild.Type || ev.StateKey == nil {
			return
		}
		childID := *ev.StateKey
		if !hasVia(ev) {
			c.removeChild(childID)
			return
		}
		if existing, ok := c.Child(childID); ok {
			if err := c.refreshChild(ctx, existing); err != nil {
				c.logger().WithError(err).WithField("child_id", childID).Warn("Failed to refresh space child")
			}
			return
		}
		child, err := c.loadChild(ctx, childID)
		if err != nil {
			c.logger().WithError(err).WithField("child_id", childID).Warn("Failed to load new space child")
			return
		}
		c.upsertChild(child)
	})
}

// AddChildRoom asks the server to make childID a child of this space. The
// children only change once the resulting state event comes back via sync.
func (c *ContainerRoom[T]) AddChildRoom(ctx context.Context, childID string) error {
	if err := c.session.AddSpaceChild(ctx, childID, c.RoomID()); err != nil {
		return fmt.Errorf("c.session.AddSpaceChild: %w", err)
	}
	return nil
}

// RemoveChildRoom asks the server to drop childID from this space.
func (c *ContainerRoom[T]) RemoveChildRoom(ctx context.Context, childID string) error {
	if err := c.session.RemoveSpaceChild(ctx, childID, c.RoomID()); err != nil {
		return fmt.Errorf("c.session.RemoveSpaceChild: %w", err)
	}
	return nil
}

// LeaveChildRoom drops childID from this space and leaves it.
func (c *ContainerRoom[T]) LeaveChildRoom(ctx context.Context, childID string) error {
	if err := c.RemoveChildRoom(ctx, childID); err != nil {
		return err
	}
	if err := c.session.Leave(ctx, childID); err != nil {
		return fmt.Errorf("c.session.Leave: %w", err)
	}
	return nil
}

// CreateChildRoom creates a new room, sets its avatar if one was given and
// adds it to this space. If a step after creation fails the new room's ID is
// returned along with the error; the room is not cleaned up.
func (c *ContainerRoom[T]) CreateChildRoom(ctx context.Context, req *CreateChildRequest) (string, error) {
	roomID, err := c.session.CreateRoom(ctx, &api.CreateRoomRequest{
		Name:      req.Name,
		Type:      req.Type,
		Encrypted: req.Encrypted,
		Topic:     req.Topic,
	})
	if err != nil {
		return "", fmt.Errorf("c.session.CreateRoom: %w", err)
	}
	if req.Avatar != nil {
		if err = c.session.SetRoomAvatar(ctx, roomID, req.Avatar); err != nil {
			return roomID, fmt.Errorf("c.session.SetRoomAvatar: %w", err)
		}
	}
	if err = c.AddChildRoom(ctx, roomID); err != nil {
		return roomID, err
	}
	return roomID, nil
}

// Subscribe returns a channel of changes to the children and a function to
// stop the subscription. Updates are dropped for subscribers that aren't
// keeping up.
func (c *ContainerRoom[T]) Subscribe() (<-chan ChildrenUpdate, func()) {
	ch := make(chan ChildrenUpdate, 16)
	c.subsMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.subsMu.Unlock()
	return ch, func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

func (c *ContainerRoom[T]) loadChild(ctx context.Context, roomID string) (T, error) {
	var zero T
	state, err := c.session.GetRoomStateEvents(ctx, roomID)
	if err != nil {
		return zero, fmt.Errorf("c.session.GetRoomStateEvents: %w", err)
	}
	child, err := c.newChild(ctx, roomID, state)
	if err != nil {
		return zero, err
	}
	return child, nil
}

// stateReplacer is implemented by children that can take a fresh copy of
// their room state without being rebuilt.
type stateReplacer interface {
	ReplaceState(state []api.ClientEvent) error
}

// refreshChild must be called from the actor. Children that can't refresh in
// place are rebuilt and swapped in.
func (c *ContainerRoom[T]) refreshChild(ctx context.Context, child T) error {
	replacer, ok := any(child).(stateReplacer)
	if !ok {
		fresh, err := c.loadChild(ctx, child.RoomID())
		if err != nil {
			return err
		}
		c.upsertChild(fresh)
		return nil
	}
	state, err := c.session.GetRoomStateEvents(ctx, child.RoomID())
	if err != nil {
		return fmt.Errorf("c.session.GetRoomStateEvents: %w", err)
	}
	if err = replacer.ReplaceState(state); err != nil {
		return fmt.Errorf("replacer.ReplaceState: %w", err)
	}
	c.mu.RLock()
	count := len(c.children)
	c.mu.RUnlock()
	c.childrenChanged(child.RoomID(), ChildReplaced, count)
	return nil
}

// upsertChild must be called from the actor.
func (c *ContainerRoom[T]) upsertChild(child T) {
	c.mu.Lock()
	next := make([]T, 0, len(c.children)+1)
	kind := ChildAdded
	for _, existing := range c.children {
		if existing.RoomID() == child.RoomID() {
			next = append(next, child)
			kind = ChildReplaced
			continue
		}
		next = append(next, existing)
	}
	if kind == ChildAdded {
		next = append(next, child)
	}
	c.children = next
	c.mu.Unlock()
	c.childrenChanged(child.RoomID(), kind, len(next))
}

// removeChild must be called from the actor.
func (c *ContainerRoom[T]) removeChild(roomID string) {
	c.mu.Lock()
	next := make([]T, 0, len(c.children))
	for _, existing := range c.children {
		if existing.RoomID() != roomID {
			next = append(next, existing)
		}
	}
	removed := len(next) != len(c.children)
	if removed {
		c.children = next
	}
	c.mu.Unlock()
	if removed {
		c.childrenChanged(roomID, ChildRemoved, len(next))
	}
}

func (c *ContainerRoom[T]) childrenChanged(roomID string, kind ChildrenUpdateKind, count int) {
	c.logger().WithFields(logrus.Fields{
		"child_id": roomID,
		"change":   kind.String(),
		"children": count,
	}).Debug("Space children changed")
	spaceChildren.With(prometheus.Labels{"space_id": c.RoomID()}).Set(float64(count))

	update := ChildrenUpdate{SpaceID: c.RoomID(), RoomID: roomID, Kind: kind}
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- update:
		default:
		}
	}
}

func (c *ContainerRoom[T]) logger() *logrus.Entry {
	return logrus.WithField("space_id", c.RoomID())
}

// hasVia reports whether an m.space.child event is a live relation. An empty
// or missing via list means the child was removed.
func hasVia(ev *api.ClientEvent) bool {
	var content event.SpaceChildEventContent
	if err := json.Unmarshal(ev.Content, &content); err != nil {
		return false
	}
	return len(content.Via) > 0
}
