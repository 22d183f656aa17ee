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
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/circles-chat/circles/session/api"
)

// Session is an in-memory api.Session over a set of test rooms. Writes land
// in the rooms straight away; nothing is delivered to the caller until the
// test feeds the resulting events back, the way sync would.
type Session struct {
	User *User
	t    *testing.T

	mu            sync.Mutex
	rooms         map[string]*Room
	ignored       map[string]struct{}
	errs          map[string]error
	calls         []string
	messagesCalls map[string]int
}

var _ api.Session = &Session{}

func NewSession(t *testing.T, user *User, rooms ...*Room) *Session {
	s := &Session{
		User:          user,
		t:             t,
		rooms:         make(map[string]*Room),
		ignored:       make(map[string]struct{}),
		errs:          make(map[string]error),
		messagesCalls: make(map[string]int),
	}
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	return s
}

func (s *Session) AddRoom(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r
}

func (s *Session) Room(roomID string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[roomID]
}

func (s *Session) Ignore(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignored[userID] = struct{}{}
}

// FailWith makes the named method fail with err. A non-empty roomID limits
// the failure to calls about that room.
func (s *Session) FailWith(method, roomID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[method+" "+roomID] = err
}

// Calls returns the state-changing calls made so far, in order.
func (s *Session) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// MessagesCalls returns how many times the room was paginated.
func (s *Session) MessagesCalls(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesCalls[roomID]
}

func (s *Session) fail(method, roomID string) error {
	if err, ok := s.errs[method+" "+roomID]; ok {
		return err
	}
	return s.errs[method+" "]
}

func (s *Session) UserID() string {
	return s.User.ID
}

func (s *Session) GetRoomStateEvents(ctx context.Context, roomID string) ([]api.ClientEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetRoomStateEvents", roomID); err != nil {
		return nil, err
	}
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, api.ErrRoomNotFound
	}
	return r.CurrentState(), nil
}

func (s *Session) CreateRoom(ctx context.Context, req *api.CreateRoomRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "CreateRoom")
	if err := s.fail("CreateRoom", ""); err != nil {
		return "", err
	}
	var mods []roomModifier
	if req.Type != "" {
		mods = append(mods, RoomType(req.Type))
	}
	if req.Name != "" {
		mods = append(mods, RoomName(req.Name))
	}
	r := NewRoom(s.t, s.User, mods...)
	if req.Encrypted {
		r.CreateAndInsert(s.t, s.User, "m.room.encryption", map[string]interface{}{
			"algorithm": "m.megolm.v1.aes-sha2",
		}, WithStateKey(""))
	}
	if req.Topic != "" {
		r.CreateAndInsert(s.t, s.User, "m.room.topic", map[string]interface{}{
			"topic": req.Topic,
		}, WithStateKey(""))
	}
	s.rooms[r.ID] = r
	return r.ID, nil
}

func (s *Session) SetRoomAvatar(ctx context.Context, roomID string, avatar *api.Avatar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "SetRoomAvatar "+roomID)
	if err := s.fail("SetRoomAvatar", roomID); err != nil {
		return err
	}
	r, ok := s.rooms[roomID]
	if !ok {
		return api.ErrRoomNotFound
	}
	r.CreateAndInsert(s.t, s.User, "m.room.avatar", map[string]interface{}{
		"url":  fmt.Sprintf("mxc://%s/%d", s.User.srvName, len(avatar.Data)),
		"info": map[string]interface{}{"mimetype": avatar.ContentType, "size": len(avatar.Data)},
	}, WithStateKey(""))
	return nil
}

func (s *Session) AddSpaceChild(ctx context.Context, childID, parentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "AddSpaceChild "+childID+" "+parentID)
	if err := s.fail("AddSpaceChild", parentID); err != nil {
		return err
	}
	parent, ok := s.rooms[parentID]
	if !ok {
		return api.ErrRoomNotFound
	}
	parent.AddChild(s.t, s.User, childID)
	return nil
}

func (s *Session) RemoveSpaceChild(ctx context.Context, childID, parentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "RemoveSpaceChild "+childID+" "+parentID)
	if err := s.fail("RemoveSpaceChild", parentID); err != nil {
		return err
	}
	parent, ok := s.rooms[parentID]
	if !ok {
		return api.ErrRoomNotFound
	}
	parent.RemoveChild(s.t, s.User, childID)
	return nil
}

func (s *Session) Leave(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "Leave "+roomID)
	if err := s.fail("Leave", roomID); err != nil {
		return err
	}
	r, ok := s.rooms[roomID]
	if !ok {
		return api.ErrRoomNotFound
	}
	r.CreateAndInsert(s.t, s.User, "m.room.member", map[string]interface{}{
		"membership": "leave",
	}, WithStateKey(s.User.ID))
	return nil
}

// Messages pages backwards through the room's non-state events. Tokens are
// indexes into the timeline; the empty token means the end of the room.
func (s *Session) Messages(ctx context.Context, roomID, from string, limit int) (*api.MessagesResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messagesCalls[roomID]++
	if err := s.fail("Messages", roomID); err != nil {
		return nil, err
	}
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, api.ErrRoomNotFound
	}
	timeline := r.Timeline()
	hi := len(timeline)
	if from != "" {
		var err error
		if hi, err = strconv.Atoi(from); err != nil || hi < 0 || hi > len(timeline) {
			return nil, fmt.Errorf("invalid from token %q", from)
		}
	}
	lo := hi - limit
	if lo < 0 {
		lo = 0
	}
	res := &api.MessagesResponse{
		Start: from,
		Chunk: Reversed(timeline[lo:hi]),
	}
	if lo > 0 {
		res.End = strconv.Itoa(lo)
	}
	return res, nil
}

func (s *Session) IgnoredUsers(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("IgnoredUsers", ""); err != nil {
		return nil, err
	}
	ignored := make(map[string]struct{}, len(s.ignored))
	for userID := range s.ignored {
		ignored[userID] = struct{}{}
	}
	return ignored, nil
}
