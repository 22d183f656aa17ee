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

package matrix

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/matrix-org/gomatrix"
	"github.com/sirupsen/logrus"

	"github.com/circles-chat/circles/session/api"
	"github.com/circles-chat/circles/session/storage"
)

const syncFilter = `{"room":{"timeline":{"limit":50},"state":{"lazy_load_members":true}},"presence":{"types":[]}}`

// Syncer is a gomatrix.Syncer that records each /sync response in the local
// store and then hands it to a SyncHandler.
type Syncer struct {
	ctx     context.Context
	client  *Client
	handler api.SyncHandler
	backoff time.Duration
}

var _ gomatrix.Syncer = (*Syncer)(nil)

func NewSyncer(ctx context.Context, client *Client, handler api.SyncHandler, backoff time.Duration) *Syncer {
	return &Syncer{
		ctx:     ctx,
		client:  client,
		handler: handler,
		backoff: backoff,
	}
}

func (s *Syncer) ProcessResponse(res *gomatrix.RespSync, since string) error {
	syncResponses.Inc()
	for i := range res.AccountData.Events {
		ev := &res.AccountData.Events[i]
		if ev.Type != "m.ignored_user_list" {
			continue
		}
		var list ignoredUserList
		if raw, err := json.Marshal(ev.Content); err == nil && json.Unmarshal(raw, &list) == nil {
			s.client.setIgnoredUsers(&list)
		}
	}

	joined := make([]string, 0, len(res.Rooms.Join))
	for roomID := range res.Rooms.Join {
		joined = append(joined, roomID)
	}
	sort.Strings(joined)
	for _, roomID := range joined {
		room := res.Rooms.Join[roomID]
		update := &api.RoomUpdate{
			State:     convertEvents(roomID, room.State.Events),
			Timeline:  convertEvents(roomID, room.Timeline.Events),
			Limited:   room.Timeline.Limited,
			PrevBatch: room.Timeline.PrevBatch,
		}
		s.storeRoomUpdate(roomID, update)
		syncRoomUpdates.WithLabelValues("join").Inc()
		if err := s.handler.OnRoomUpdate(s.ctx, roomID, update); err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Error("Failed to handle room update")
		}
	}

	left := make([]string, 0, len(res.Rooms.Leave))
	for roomID := range res.Rooms.Leave {
		left = append(left, roomID)
	}
	sort.Strings(left)
	for _, roomID := range left {
		s.client.stateCache.InvalidateRoomState(roomID)
		if err := s.client.db.ForgetRoom(s.ctx, roomID); err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Error("Failed to forget left room")
		}
		syncRoomUpdates.WithLabelValues("leave").Inc()
		if err := s.handler.OnLeaveRoom(s.ctx, roomID); err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Error("Failed to handle leaving room")
		}
	}
	return nil
}

func (s *Syncer) storeRoomUpdate(roomID string, update *api.RoomUpdate) {
	logger := logrus.WithField("room_id", roomID)
	state := make([]api.ClientEvent, 0, len(update.State)+len(update.Timeline))
	state = append(state, update.State...)
	for _, ev := range update.Timeline {
		if ev.IsState() {
			state = append(state, ev)
		}
	}
	if len(state) > 0 {
		s.client.stateCache.InvalidateRoomState(roomID)
		if err := s.client.db.StoreStateEvents(s.ctx, roomID, state); err != nil {
			logger.WithError(err).Error("Failed to store room state")
		}
	}
	if err := s.client.db.AppendTimelineEvents(s.ctx, roomID, update.Timeline); err != nil {
		logger.WithError(err).Error("Failed to store timeline events")
	}
	if update.PrevBatch != "" {
		if err := s.client.db.StorePrevBatchIfMissing(s.ctx, roomID, update.PrevBatch); err != nil {
			logger.WithError(err).Error("Failed to store prev_batch")
		}
	}
}

// OnFailedSync keeps retrying after the configured backoff, except when the
// access token was rejected or the process is shutting down.
func (s *Syncer) OnFailedSync(res *gomatrix.RespSync, err error) (time.Duration, error) {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		syncFailures.WithLabelValues("false").Inc()
		return 0, ctxErr
	}
	if isHTTPStatus(err, http.StatusUnauthorized) {
		syncFailures.WithLabelValues("false").Inc()
		return 0, err
	}
	syncFailures.WithLabelValues("true").Inc()
	logrus.WithError(err).WithField("backoff", s.backoff).Warn("Sync failed, retrying")
	return s.backoff, nil
}

func (s *Syncer) GetFilterJSON(userID string) json.RawMessage {
	return json.RawMessage(syncFilter)
}

// Sync runs the sync loop until the context is done or sync fails for good.
func (c *Client) Sync(ctx context.Context, handler api.SyncHandler, backoff time.Duration) error {
	c.cli.Syncer = NewSyncer(ctx, c, handler, backoff)
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			c.cli.StopSync()
		case <-stopped:
		}
	}()
	err := c.cli.Sync()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func convertEvents(roomID string, evs []gomatrix.Event) []api.ClientEvent {
	out := make([]api.ClientEvent, 0, len(evs))
	for i := range evs {
		cev, err := storage.ClientEventFromGomatrix(&evs[i])
		if err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Warn("Dropping malformed sync event")
			continue
		}
		if cev.RoomID == "" {
			cev.RoomID = roomID
		}
		out = append(out, cev)
	}
	return out
}
