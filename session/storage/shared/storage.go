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

package shared

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/circles-chat/circles/internal/sqlutil"
	"github.com/circles-chat/circles/session/api"
	"github.com/circles-chat/circles/session/storage/tables"
)

type Database struct {
	DB         *sql.DB
	Writer     sqlutil.Writer
	SyncTokens tables.SyncTokens
	RoomStates tables.RoomState
	Timelines  tables.Timeline
	Pagination tables.Pagination
}

func (d *Database) StoreNextBatch(ctx context.Context, userID, nextBatch string) error {
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		return d.SyncTokens.UpsertNextBatch(ctx, txn, userID, nextBatch)
	})
}

func (d *Database) NextBatch(ctx context.Context, userID string) (string, error) {
	return d.SyncTokens.SelectNextBatch(ctx, nil, userID)
}

func (d *Database) StoreFilterID(ctx context.Context, userID, filterID string) error {
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		return d.SyncTokens.UpsertFilterID(ctx, txn, userID, filterID)
	})
}

func (d *Database) FilterID(ctx context.Context, userID string) (string, error) {
	return d.SyncTokens.SelectFilterID(ctx, nil, userID)
}

func (d *Database) StoreStateEvents(ctx context.Context, roomID string, evs []api.ClientEvent) error {
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		for i := range evs {
			ev := evs[i]
			if !ev.IsState() {
				continue
			}
			// State is always served as belonging to the room it was stored under.
			ev.RoomID = roomID
			eventJSON, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("json.Marshal: %w", err)
			}
			if err = d.RoomStates.UpsertStateEvent(ctx, txn, roomID, ev.Type, *ev.StateKey, eventJSON); err != nil {
				return fmt.Errorf("d.RoomStates.UpsertStateEvent: %w", err)
			}
		}
		return nil
	})
}

func (d *Database) RoomState(ctx context.Context, roomID string) ([]api.ClientEvent, error) {
	return d.RoomStates.SelectRoomState(ctx, nil, roomID)
}

func (d *Database) BulkRoomState(ctx context.Context, roomIDs []string) (map[string][]api.ClientEvent, error) {
	return d.RoomStates.BulkSelectRoomState(ctx, nil, roomIDs)
}

func (d *Database) RoomIDs(ctx context.Context) ([]string, error) {
	return d.RoomStates.SelectRoomIDs(ctx, nil)
}

func (d *Database) AppendTimelineEvents(ctx context.Context, roomID string, evs []api.ClientEvent) error {
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		_, max, err := d.Timelines.SelectPositionBounds(ctx, txn, roomID)
		if err != nil {
			return fmt.Errorf("d.Timelines.SelectPositionBounds: %w", err)
		}
		pos := max
		for i := range evs {
			if evs[i].IsState() {
				continue
			}
			pos++
			if err = d.insertEvent(ctx, txn, roomID, &evs[i], pos); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Database) PrependTimelineEvents(ctx context.Context, roomID string, evs []api.ClientEvent, prevBatch string) error {
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		min, _, err := d.Timelines.SelectPositionBounds(ctx, txn, roomID)
		if err != nil {
			return fmt.Errorf("d.Timelines.SelectPositionBounds: %w", err)
		}
		pos := min
		// Walk newest to oldest so that positions keep decreasing.
		for i := len(evs) - 1; i >= 0; i-- {
			if evs[i].IsState() {
				continue
			}
			pos--
			if err = d.insertEvent(ctx, txn, roomID, &evs[i], pos); err != nil {
				return err
			}
		}
		if err = d.Pagination.UpsertPrevBatch(ctx, txn, roomID, prevBatch); err != nil {
			return fmt.Errorf("d.Pagination.UpsertPrevBatch: %w", err)
		}
		return nil
	})
}

func (d *Database) insertEvent(ctx context.Context, txn *sql.Tx, roomID string, ev *api.ClientEvent, pos int64) error {
	evCopy := *ev
	if evCopy.RoomID == "" {
		evCopy.RoomID = roomID
	}
	eventJSON, err := json.Marshal(evCopy)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}
	if err = d.Timelines.InsertEvent(ctx, txn, roomID, evCopy.EventID, pos, evCopy.OriginServerTS, eventJSON); err != nil {
		return fmt.Errorf("d.Timelines.InsertEvent: %w", err)
	}
	return nil
}

func (d *Database) StorePrevBatchIfMissing(ctx context.Context, roomID, prevBatch string) error {
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		existing, err := d.Pagination.SelectPrevBatch(ctx, txn, roomID)
		if err != nil {
			return fmt.Errorf("d.Pagination.SelectPrevBatch: %w", err)
		}
		if existing != "" {
			return nil
		}
		return d.Pagination.UpsertPrevBatch(ctx, txn, roomID, prevBatch)
	})
}

func (d *Database) LoadTimeline(ctx context.Context, roomID string) (events []api.ClientEvent, prevBatch string, err error) {
	err = sqlutil.WithTransaction(d.DB, func(txn *sql.Tx) error {
		if events, err = d.Timelines.SelectEvents(ctx, txn, roomID); err != nil {
			return fmt.Errorf("d.Timelines.SelectEvents: %w", err)
		}
		if prevBatch, err = d.Pagination.SelectPrevBatch(ctx, txn, roomID); err != nil {
			return fmt.Errorf("d.Pagination.SelectPrevBatch: %w", err)
		}
		return nil
	})
	return
}

func (d *Database) ForgetRoom(ctx context.Context, roomID string) error {
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		if err := d.RoomStates.DeleteRoomState(ctx, txn, roomID); err != nil {
			return fmt.Errorf("d.RoomStates.DeleteRoomState: %w", err)
		}
		if err := d.Timelines.DeleteEvents(ctx, txn, roomID); err != nil {
			return fmt.Errorf("d.Timelines.DeleteEvents: %w", err)
		}
		if err := d.Pagination.DeletePrevBatch(ctx, txn, roomID); err != nil {
			return fmt.Errorf("d.Pagination.DeletePrevBatch: %w", err)
		}
		return nil
	})
}

func (d *Database) Ping() error {
	return d.DB.Ping()
}
