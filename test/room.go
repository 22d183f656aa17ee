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

package test

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"

	"github.com/circles-chat/circles/session/api"
)

var (
	roomIDCounter  = int64(0)
	eventIDCounter = int64(0)
)

// Room is a fake remote room. Events are kept in the order they were
// inserted, which is also the order sync would deliver them in.
type Room struct {
	ID       string
	Creator  *User
	roomType string
	name     string

	mu           sync.Mutex
	currentState map[string]api.ClientEvent
	events       []api.ClientEvent
}

// Create a new test room. Automatically creates the initial create events.
func NewRoom(t *testing.T, creator *User, modifiers ...roomModifier) *Room {
	t.Helper()
	counter := atomic.AddInt64(&roomIDCounter, 1)
	if creator.srvName == "" {
		t.Fatalf("NewRoom: creator doesn't belong to a server: %+v", *creator)
	}
	r := &Room{
		ID:           fmt.Sprintf("!%d:%s", counter, creator.srvName),
		Creator:      creator,
		currentState: make(map[string]api.ClientEvent),
	}
	for _, m := range modifiers {
		m(t, r)
	}
	r.insertCreateEvents(t)
	return r
}

func (r *Room) insertCreateEvents(t *testing.T) {
	t.Helper()
	createContent := map[string]interface{}{
		"creator":      r.Creator.ID,
		"room_version": "10",
	}
	if r.roomType != "" {
		createContent["type"] = r.roomType
	}
	r.CreateAndInsert(t, r.Creator, "m.room.create", createContent, WithStateKey(""))
	r.CreateAndInsert(t, r.Creator, "m.room.member", map[string]interface{}{
		"membership": "join",
	}, WithStateKey(r.Creator.ID))
	r.CreateAndInsert(t, r.Creator, "m.room.power_levels", map[string]interface{}{
		"users":         map[string]interface{}{r.Creator.ID: 100},
		"users_default": 0,
	}, WithStateKey(""))
	if r.name != "" {
		r.CreateAndInsert(t, r.Creator, "m.room.name", map[string]interface{}{
			"name": r.name,
		}, WithStateKey(""))
	}
}

// Create an event in this room but do not insert it.
func (r *Room) CreateEvent(t *testing.T, sender *User, eventType string, content interface{}, mods ...eventModifier) api.ClientEvent {
	t.Helper()
	mod := &eventMods{}
	for _, m := range mods {
		m(mod)
	}
	if mod.originServerTS.IsZero() {
		mod.originServerTS = time.Now()
	}

	contentJSON, err := json.Marshal(content)
	if err != nil {
		t.Fatalf("CreateEvent[%s]: failed to marshal content: %s", eventType, err)
	}
	if mod.relatesTo != nil {
		var c map[string]interface{}
		if err = json.Unmarshal(contentJSON, &c); err != nil {
			t.Fatalf("CreateEvent[%s]: content is not an object: %s", eventType, err)
		}
		c["m.relates_to"] = mod.relatesTo
		if contentJSON, err = json.Marshal(c); err != nil {
			t.Fatalf("CreateEvent[%s]: failed to marshal content: %s", eventType, err)
		}
	}
	var unsigned spec.RawJSON
	if mod.unsigned != nil {
		unsigned, err = json.Marshal(mod.unsigned)
		if err != nil {
			t.Fatalf("CreateEvent[%s]: failed to marshal unsigned field: %s", eventType, err)
		}
	}

	counter := atomic.AddInt64(&eventIDCounter, 1)
	return api.ClientEvent{
		Content:        contentJSON,
		EventID:        fmt.Sprintf("$%d:%s", counter, sender.srvName),
		OriginServerTS: spec.AsTimestamp(mod.originServerTS),
		RoomID:         r.ID,
		Sender:         sender.ID,
		StateKey:       mod.stateKey,
		Type:           eventType,
		Unsigned:       unsigned,
	}
}

// Add a new event to this room.
func (r *Room) InsertEvent(t *testing.T, ev api.ClientEvent) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if ev.StateKey != nil {
		r.currentState[ev.Type+" "+*ev.StateKey] = ev
	}
}

func (r *Room) CreateAndInsert(t *testing.T, sender *User, eventType string, content interface{}, mods ...eventModifier) api.ClientEvent {
	t.Helper()
	ev := r.CreateEvent(t, sender, eventType, content, mods...)
	r.InsertEvent(t, ev)
	return ev
}

// Post sends a plain text message.
func (r *Room) Post(t *testing.T, sender *User, body string, mods ...eventModifier) api.ClientEvent {
	t.Helper()
	return r.CreateAndInsert(t, sender, "m.room.message", map[string]interface{}{
		"msgtype": "m.text",
		"body":    body,
	}, mods...)
}

// Join adds user as a joined member.
func (r *Room) Join(t *testing.T, user *User) api.ClientEvent {
	t.Helper()
	return r.CreateAndInsert(t, user, "m.room.member", map[string]interface{}{
		"membership": "join",
	}, WithStateKey(user.ID))
}

// AddChild writes an m.space.child pointing at child.
func (r *Room) AddChild(t *testing.T, sender *User, childID string) api.ClientEvent {
	t.Helper()
	return r.CreateAndInsert(t, sender, "m.space.child", map[string]interface{}{
		"via": []string{string(sender.srvName)},
	}, WithStateKey(childID))
}

// RemoveChild empties the m.space.child pointing at child.
func (r *Room) RemoveChild(t *testing.T, sender *User, childID string) api.ClientEvent {
	t.Helper()
	return r.CreateAndInsert(t, sender, "m.space.child", map[string]interface{}{}, WithStateKey(childID))
}

func (r *Room) Events() []api.ClientEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.ClientEvent(nil), r.events...)
}

// Timeline returns the non-state events, oldest first.
func (r *Room) Timeline() []api.ClientEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var evs []api.ClientEvent
	for _, ev := range r.events {
		if ev.StateKey == nil {
			evs = append(evs, ev)
		}
	}
	return evs
}

// CurrentState returns the current state sorted by (type, state key).
func (r *Room) CurrentState() []api.ClientEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.currentState))
	for k := range r.currentState {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	events := make([]api.ClientEvent, len(keys))
	for i, k := range keys {
		events[i] = r.currentState[k]
	}
	return events
}

// All room modifiers are below

type roomModifier func(t *testing.T, r *Room)

// RoomType sets the m.room.create `type`.
func RoomType(roomType string) roomModifier {
	return func(t *testing.T, r *Room) {
		r.roomType = roomType
	}
}

func RoomName(name string) roomModifier {
	return func(t *testing.T, r *Room) {
		r.name = name
	}
}
