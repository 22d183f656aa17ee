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

// Package rooms holds the local view of remote Matrix rooms: their current
// state and the part of their timeline loaded so far.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"maunium.net/go/mautrix/event"

	"github.com/circles-chat/circles/session/api"
)

var ErrNoCreateEvent = errors.New("room state has no m.room.create event")

// RoomLike is what the space and timeline code needs from a room. Both plain
// rooms and spaces (whose timeline is the merge of their children) satisfy it.
type RoomLike interface {
	RoomID() string
	// Creator returns the user who created the room, or "" if unknown.
	Creator() string
	// CanPaginate reports whether older history may still be fetched.
	CanPaginate() bool
	// Paginate fetches up to limit older events.
	Paginate(ctx context.Context, limit int) error
	// Messages returns the loaded timeline, oldest first.
	Messages() []*Message
}

// Room is a handle onto a remote room.
type Room struct {
	roomID    string
	paginator api.Paginator

	mu          sync.RWMutex
	state       map[string]map[string]*api.ClientEvent // event type -> state key -> event
	timeline    *Timeline
	prevBatch   string
	canPaginate bool
	readMarker  string

	paginateMu sync.Mutex // only one pagination request in flight per room
	paginating atomic.Bool
}

// New builds a room from its current state and, optionally, the most recent
// part of its timeline (oldest first). The state must contain the room's
// m.room.create event.
func New(roomID string, paginator api.Paginator, initialState, initialTimeline []api.ClientEvent) (*Room, error) {
	if _, err := spec.NewRoomID(roomID); err != nil {
		return nil, fmt.Errorf("invalid room ID %q: %w", roomID, err)
	}
	r := &Room{
		roomID:      roomID,
		paginator:   paginator,
		state:       make(map[string]map[string]*api.ClientEvent),
		timeline:    NewTimeline(),
		canPaginate: true,
	}
	for i := range initialState {
		r.setState(&initialState[i])
	}
	if r.stateEvent(event.StateCreate.Type, "") == nil {
		return nil, ErrNoCreateEvent
	}
	r.appendTimeline(initialTimeline)
	return r, nil
}

func (r *Room) RoomID() string {
	return r.roomID
}

// Creator returns the sender of the m.room.create event. Older room versions
// also carry it in the `creator` content field, which takes priority.
func (r *Room) Creator() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	create := r.stateEvent(event.StateCreate.Type, "")
	if create == nil {
		return ""
	}
	if creator := create.ContentField("creator").Str; creator != "" {
		return creator
	}
	return create.Sender
}

// Type returns the m.room.create `type`, e.g. "m.space".
func (r *Room) Type() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if create := r.stateEvent(event.StateCreate.Type, ""); create != nil {
		return create.ContentField("type").Str
	}
	return ""
}

func (r *Room) IsSpace() bool {
	return r.Type() == api.RoomTypeSpace
}

func (r *Room) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ev := r.stateEvent(event.StateRoomName.Type, ""); ev != nil {
		return ev.ContentField("name").Str
	}
	return ""
}

// JoinedMembers returns the IDs of all joined members, sorted.
func (r *Room) JoinedMembers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var members []string
	for userID, ev := range r.state[event.StateMember.Type] {
		if ev.ContentField("membership").Str == string(event.MembershipJoin) {
			members = append(members, userID)
		}
	}
	sort.Strings(members)
	return members
}

// PowerLevel returns the user's power level from m.room.power_levels, falling
// back to users_default. Without a power levels event the creator has 100.
func (r *Room) PowerLevel(userID string) int64 {
	r.mu.RLock()
	pl := r.stateEvent(event.StatePowerLevels.Type, "")
	r.mu.RUnlock()
	if pl == nil {
		if userID == r.Creator() {
			return 100
		}
		return 0
	}
	if level := pl.ContentField("users." + escapeGJSON(userID)); level.Exists() {
		return level.Int()
	}
	return pl.ContentField("users_default").Int()
}

// StateEvent returns a copy of the current state event for the tuple, or nil.
func (r *Room) StateEvent(eventType, stateKey string) *api.ClientEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev := r.stateEvent(eventType, stateKey)
	if ev == nil {
		return nil
	}
	evCopy := *ev
	return &evCopy
}

// StateEventsOfType returns all current state events of the given type.
func (r *Room) StateEventsOfType(eventType string) []api.ClientEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.state[eventType]))
	for stateKey := range r.state[eventType] {
		keys = append(keys, stateKey)
	}
	sort.Strings(keys)
	evs := make([]api.ClientEvent, 0, len(keys))
	for _, stateKey := range keys {
		evs = append(evs, *r.state[eventType][stateKey])
	}
	return evs
}

// OnStateEvent replaces the current state for the event's (type, state key).
func (r *Room) OnStateEvent(ev *api.ClientEvent) {
	if !ev.IsState() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setState(ev)
}

// ReplaceState swaps the whole current state for a freshly fetched copy.
// State without an m.room.create event is rejected.
func (r *Room) ReplaceState(state []api.ClientEvent) error {
	fresh := make(map[string]map[string]*api.ClientEvent)
	for i := range state {
		ev := state[i]
		if ev.StateKey == nil {
			continue
		}
		if fresh[ev.Type] == nil {
			fresh[ev.Type] = make(map[string]*api.ClientEvent)
		}
		fresh[ev.Type][*ev.StateKey] = &ev
	}
	if fresh[event.StateCreate.Type][""] == nil {
		return ErrNoCreateEvent
	}
	r.mu.Lock()
	r.state = fresh
	r.mu.Unlock()
	return nil
}

// AddTimelineEvents appends new events delivered by sync, oldest first.
// State events among them also update the current state.
func (r *Room) AddTimelineEvents(evs []api.ClientEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range evs {
		if evs[i].IsState() {
			r.setState(&evs[i])
		}
	}
	r.appendTimeline(evs)
}

// SetPrevBatch sets the token to paginate backwards from. Sync hands one out
// whenever it truncates a room's timeline.
func (r *Room) SetPrevBatch(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prevBatch = token
	r.canPaginate = true
}

func (r *Room) PrevBatch() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prevBatch
}

func (r *Room) CanPaginate() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canPaginate
}

// Paginating reports whether a pagination request is in flight.
func (r *Room) Paginating() bool {
	return r.paginating.Load()
}

// Paginate fetches up to limit older events and prepends them to the
// timeline. Once the server reports no more history, CanPaginate turns false
// and further calls do nothing.
func (r *Room) Paginate(ctx context.Context, limit int) error {
	r.paginateMu.Lock()
	defer r.paginateMu.Unlock()
	r.paginating.Store(true)
	defer r.paginating.Store(false)

	r.mu.RLock()
	from, can := r.prevBatch, r.canPaginate
	r.mu.RUnlock()
	if !can {
		return nil
	}

	res, err := r.paginator.Messages(ctx, r.roomID, from, limit)
	if err != nil {
		return fmt.Errorf("r.paginator.Messages: %w", err)
	}

	// The chunk comes back newest first.
	older := make([]*Message, 0, len(res.Chunk))
	for i := len(res.Chunk) - 1; i >= 0; i-- {
		ev := &res.Chunk[i]
		if ev.IsState() {
			continue
		}
		if ev.RoomID == "" {
			ev.RoomID = r.roomID
		}
		msg, err := NewMessage(ev)
		if err != nil {
			logrus.WithError(err).WithField("room_id", r.roomID).Debug("Dropping paginated event")
			continue
		}
		older = append(older, msg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeline.Prepend(older)
	r.prevBatch = res.End
	r.canPaginate = res.End != "" && len(res.Chunk) > 0
	return nil
}

// Messages returns the loaded timeline, oldest first.
func (r *Room) Messages() []*Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timeline.Messages()
}

// ContentCount returns how many posts have been loaded.
func (r *Room) ContentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timeline.ContentCount()
}

// MarkRead moves the local read marker to the given event.
func (r *Room) MarkRead(eventID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readMarker = eventID
}

// UnreadCount returns the number of posts after the read marker that were
// not sent by self.
func (r *Room) UnreadCount(self string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.timeline.After(r.readMarker) {
		if m.IsContent() && m.Sender != self {
			n++
		}
	}
	return n
}

func (r *Room) stateEvent(eventType, stateKey string) *api.ClientEvent {
	return r.state[eventType][stateKey]
}

func (r *Room) setState(ev *api.ClientEvent) {
	if ev.StateKey == nil {
		return
	}
	evCopy := *ev
	if r.state[ev.Type] == nil {
		r.state[ev.Type] = make(map[string]*api.ClientEvent)
	}
	r.state[ev.Type][*ev.StateKey] = &evCopy
}

func (r *Room) appendTimeline(evs []api.ClientEvent) {
	for i := range evs {
		ev := evs[i]
		if ev.IsState() {
			continue
		}
		if ev.RoomID == "" {
			ev.RoomID = r.roomID
		}
		msg, err := NewMessage(&ev)
		if err != nil {
			continue
		}
		r.timeline.Append(msg)
	}
}

// escapeGJSON escapes the characters gjson treats as path syntax, which
// Matrix IDs are full of.
func escapeGJSON(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '|', '#', '@', '!', ':', '\\':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}
