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

package storage

import (
	"context"
	"encoding/json"

	"github.com/matrix-org/gomatrix"
	"github.com/sirupsen/logrus"

	"github.com/circles-chat/circles/session/api"
)

// Storer adapts a Database to gomatrix.Storer so the gomatrix sync loop
// resumes from the persisted next_batch. gomatrix gives the store no way to
// report errors, so they are logged.
type Storer struct {
	ctx context.Context
	db  Database
}

var _ gomatrix.Storer = (*Storer)(nil)

func NewStorer(ctx context.Context, db Database) *Storer {
	return &Storer{ctx: ctx, db: db}
}

func (s *Storer) SaveFilterID(userID, filterID string) {
	if err := s.db.StoreFilterID(s.ctx, userID, filterID); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to store filter ID")
	}
}

func (s *Storer) LoadFilterID(userID string) string {
	filterID, err := s.db.FilterID(s.ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to load filter ID")
	}
	return filterID
}

func (s *Storer) SaveNextBatch(userID, nextBatchToken string) {
	if err := s.db.StoreNextBatch(s.ctx, userID, nextBatchToken); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to store next batch")
	}
}

func (s *Storer) LoadNextBatch(userID string) string {
	nextBatch, err := s.db.NextBatch(s.ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to load next batch")
	}
	return nextBatch
}

func (s *Storer) SaveRoom(room *gomatrix.Room) {
	var state []api.ClientEvent
	for _, byKey := range room.State {
		for _, ev := range byKey {
			cev, err := ClientEventFromGomatrix(ev)
			if err != nil {
				logrus.WithError(err).WithField("room_id", room.ID).Warn("Skipping unconvertible state event")
				continue
			}
			state = append(state, cev)
		}
	}
	if err := s.db.StoreStateEvents(s.ctx, room.ID, state); err != nil {
		logrus.WithError(err).WithField("room_id", room.ID).Error("Failed to store room state")
	}
}

func (s *Storer) LoadRoom(roomID string) *gomatrix.Room {
	state, err := s.db.RoomState(s.ctx, roomID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to load room state")
		return nil
	}
	if len(state) == 0 {
		return nil
	}
	room := gomatrix.NewRoom(roomID)
	for i := range state {
		ev, err := clientEventToGomatrix(&state[i])
		if err != nil {
			continue
		}
		room.UpdateState(ev)
	}
	return room
}

// ClientEventFromGomatrix converts an event decoded by gomatrix. Both share
// the client-server JSON shape.
func ClientEventFromGomatrix(ev *gomatrix.Event) (api.ClientEvent, error) {
	var cev api.ClientEvent
	raw, err := json.Marshal(ev)
	if err != nil {
		return cev, err
	}
	err = json.Unmarshal(raw, &cev)
	return cev, err
}

func clientEventToGomatrix(cev *api.ClientEvent) (*gomatrix.Event, error) {
	raw, err := json.Marshal(cev)
	if err != nil {
		return nil, err
	}
	var ev gomatrix.Event
	if err = json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
