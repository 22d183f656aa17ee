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

package routing

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matrix-org/util"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// The API only listens locally, so any origin may connect.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// childrenUpdateMessage is sent for every change to a space's children.
type childrenUpdateMessage struct {
	SpaceID string `json:"space_id"`
	RoomID  string `json:"room_id"`
	Change  string `json:"change"`
}

// StreamChildrenUpdates implements GET /spaces/{spaceID}/events. It upgrades
// to a websocket and writes a message per children change until either side
// goes away.
func StreamChildrenUpdates(w http.ResponseWriter, req *http.Request, s space) {
	logger := util.GetLogger(req.Context()).WithField("space_id", s.RoomID())
	// Subscribe before upgrading so nothing is missed once the client sees
	// the handshake complete.
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close() // nolint: errcheck

	// The client never sends anything meaningful, but reading is how close
	// frames and pongs get processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-req.Context().Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(childrenUpdateMessage{
				SpaceID: update.SpaceID,
				RoomID:  update.RoomID,
				Change:  update.Kind.String(),
			}); err != nil {
				logger.WithError(err).Debug("Failed to write children update")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
