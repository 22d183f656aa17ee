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

package sqlite3

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/circles-chat/circles/internal"
	"github.com/circles-chat/circles/internal/sqlutil"
	"github.com/circles-chat/circles/session/api"
	"github.com/circles-chat/circles/session/storage/tables"
)

const roomStateSchema = `
-- The latest state event seen for each (room, type, state key).
CREATE TABLE IF NOT EXISTS circles_room_state (
	room_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	state_key TEXT NOT NULL,
	event_json TEXT NOT NULL,
	PRIMARY KEY (room_id, event_type, state_key)
);
`

const upsertStateEventSQL = "" +
	"INSERT INTO circles_room_state (room_id, event_type, state_key, event_json)" +
	" VALUES ($1, $2, $3, $4)" +
	" ON CONFLICT (room_id, event_type, state_key) DO UPDATE SET event_json = $4"

const selectRoomStateSQL = "" +
	"SELECT event_json FROM circles_room_state WHERE room_id = $1" +
	" ORDER BY event_type, state_key"

// The ($1) is expanded to as many placeholders as there are room IDs.
const bulkSelectRoomStateSQL = "" +
	"SELECT room_id, event_json FROM circles_room_state WHERE room_id IN ($1)" +
	" ORDER BY room_id, event_type, state_key"

const selectRoomIDsSQL = "" +
	"SELECT DISTINCT room_id FROM circles_room_state ORDER BY room_id"

const deleteRoomStateSQL = "" +
	"DELETE FROM circles_room_state WHERE room_id = $1"

type roomStateStatements struct {
	db                   *sql.DB
	upsertStateEventStmt *sql.Stmt
	selectRoomStateStmt  *sql.Stmt
	selectRoomIDsStmt    *sql.Stmt
	deleteRoomStateStmt  *sql.Stmt
}

func NewSQLiteRoomStateTable(db *sql.DB) (tables.RoomState, error) {
	s := &roomStateStatements{db: db}
	_, err := db.Exec(roomStateSchema)
	if err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.upsertStateEventStmt, upsertStateEventSQL},
		{&s.selectRoomStateStmt, selectRoomStateSQL},
		{&s.selectRoomIDsStmt, selectRoomIDsSQL},
		{&s.deleteRoomStateStmt, deleteRoomStateSQL},
	}.Prepare(db)
}

func (s *roomStateStatements) UpsertStateEvent(
	ctx context.Context, txn *sql.Tx, roomID, eventType, stateKey string, eventJSON []byte,
) error {
	_, err := sqlutil.TxStmt(txn, s.upsertStateEventStmt).ExecContext(ctx, roomID, eventType, stateKey, string(eventJSON))
	return err
}

func (s *roomStateStatements) SelectRoomState(ctx context.Context, txn *sql.Tx, roomID string) ([]api.ClientEvent, error) {
	rows, err := sqlutil.TxStmt(txn, s.selectRoomStateStmt).QueryContext(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer internal.CloseAndLogIfError(ctx, rows, "SelectRoomState: rows.close() failed")
	return scanEvents(rows)
}

func (s *roomStateStatements) BulkSelectRoomState(
	ctx context.Context, txn *sql.Tx, roomIDs []string,
) (map[string][]api.ClientEvent, error) {
	var qp sqlutil.QueryProvider = s.db
	if txn != nil {
		qp = txn
	}
	params := make([]interface{}, len(roomIDs))
	for i, roomID := range roomIDs {
		params[i] = roomID
	}
	result := make(map[string][]api.ClientEvent, len(roomIDs))
	err := sqlutil.RunLimitedVariablesQuery(
		ctx, bulkSelectRoomStateSQL, qp, params, sqlutil.SQLite3MaxVariables,
		func(rows *sql.Rows) error {
			return scanRoomEvents(rows, result)
		},
	)
	return result, err
}

func (s *roomStateStatements) SelectRoomIDs(ctx context.Context, txn *sql.Tx) ([]string, error) {
	rows, err := sqlutil.TxStmt(txn, s.selectRoomIDsStmt).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer internal.CloseAndLogIfError(ctx, rows, "SelectRoomIDs: rows.close() failed")
	var roomIDs []string
	for rows.Next() {
		var roomID string
		if err = rows.Scan(&roomID); err != nil {
			return nil, err
		}
		roomIDs = append(roomIDs, roomID)
	}
	return roomIDs, rows.Err()
}

func (s *roomStateStatements) DeleteRoomState(ctx context.Context, txn *sql.Tx, roomID string) error {
	_, err := sqlutil.TxStmt(txn, s.deleteRoomStateStmt).ExecContext(ctx, roomID)
	return err
}

func scanEvents(rows *sql.Rows) ([]api.ClientEvent, error) {
	var evs []api.ClientEvent
	for rows.Next() {
		var eventJSON []byte
		if err := rows.Scan(&eventJSON); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		var ev api.ClientEvent
		if err := json.Unmarshal(eventJSON, &ev); err != nil {
			return nil, fmt.Errorf("json.Unmarshal: %w", err)
		}
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}

func scanRoomEvents(rows *sql.Rows, into map[string][]api.ClientEvent) error {
	for rows.Next() {
		var roomID string
		var eventJSON []byte
		if err := rows.Scan(&roomID, &eventJSON); err != nil {
			return fmt.Errorf("rows.Scan: %w", err)
		}
		var ev api.ClientEvent
		if err := json.Unmarshal(eventJSON, &ev); err != nil {
			return fmt.Errorf("json.Unmarshal: %w", err)
		}
		into[roomID] = append(into[roomID], ev)
	}
	return rows.Err()
}
