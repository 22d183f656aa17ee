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

package tables

import (
	"context"
	"database/sql"

	"github.com/matrix-org/gomatrixserverlib/spec"

	"github.com/circles-chat/circles/session/api"
)

// SyncTokens holds the /sync resume point and filter ID per local user.
type SyncTokens interface {
	UpsertNextBatch(ctx context.Context, txn *sql.Tx, userID, nextBatch string) error
	UpsertFilterID(ctx context.Context, txn *sql.Tx, userID, filterID string) error
	// SelectNextBatch returns "" if nothing was stored for the user.
	SelectNextBatch(ctx context.Context, txn *sql.Tx, userID string) (string, error)
	SelectFilterID(ctx context.Context, txn *sql.Tx, userID string) (string, error)
}

// RoomState holds the latest known state event per (room, type, state key).
type RoomState interface {
	UpsertStateEvent(ctx context.Context, txn *sql.Tx, roomID, eventType, stateKey string, eventJSON []byte) error
	SelectRoomState(ctx context.Context, txn *sql.Tx, roomID string) ([]api.ClientEvent, error)
	// BulkSelectRoomState returns the state of each given room that has any.
	BulkSelectRoomState(ctx context.Context, txn *sql.Tx, roomIDs []string) (map[string][]api.ClientEvent, error)
	SelectRoomIDs(ctx context.Context, txn *sql.Tx) ([]string, error)
	DeleteRoomState(ctx context.Context, txn *sql.Tx, roomID string) error
}

// Timeline holds the loaded timeline of each room. Positions order events
// within a room: sync appends above the current maximum, pagination
// prepends below the current minimum.
type Timeline interface {
	InsertEvent(ctx context.Context, txn *sql.Tx, roomID, eventID string, pos int64, ts spec.Timestamp, eventJSON []byte) error
	// SelectPositionBounds returns 0, 0 for a room without events.
	SelectPositionBounds(ctx context.Context, txn *sql.Tx, roomID string) (min, max int64, err error)
	// SelectEvents returns the room's events in position order.
	SelectEvents(ctx context.Context, txn *sql.Tx, roomID string) ([]api.ClientEvent, error)
	DeleteEvents(ctx context.Context, txn *sql.Tx, roomID string) error
}

// Pagination holds the token to paginate backwards from, per room.
type Pagination interface {
	UpsertPrevBatch(ctx context.Context, txn *sql.Tx, roomID, prevBatch string) error
	SelectPrevBatch(ctx context.Context, txn *sql.Tx, roomID string) (string, error)
	DeletePrevBatch(ctx context.Context, txn *sql.Tx, roomID string) error
}
