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

package postgres

import (
	"context"
	"database/sql"

	"github.com/matrix-org/gomatrixserverlib/spec"

	"github.com/circles-chat/circles/internal"
	"github.com/circles-chat/circles/internal/sqlutil"
	"github.com/circles-chat/circles/session/api"
	"github.com/circles-chat/circles/session/storage/tables"
)

const timelineSchema = `
-- The part of each room's timeline loaded so far.
CREATE TABLE IF NOT EXISTS circles_timeline (
	event_nid BIGSERIAL PRIMARY KEY,
	room_id TEXT NOT NULL,
	event_id TEXT NOT NULL UNIQUE,
	-- Order within the room. Pagination inserts below zero.
	position BIGINT NOT NULL,
	origin_server_ts BIGINT NOT NULL,
	event_json TEXT NOT NULL
);
`

const insertTimelineEventSQL = "" +
	"INSERT INTO circles_timeline (room_id, event_id, position, origin_server_ts, event_json)" +
	" VALUES ($1, $2, $3, $4, $5)" +
	" ON CONFLICT (event_id) DO NOTHING"

const selectPositionBoundsSQL = "" +
	"SELECT COALESCE(MIN(position), 0), COALESCE(MAX(position), 0) FROM circles_timeline WHERE room_id = $1"

const selectTimelineEventsSQL = "" +
	"SELECT event_json FROM circles_timeline WHERE room_id = $1 ORDER BY position ASC"

const deleteTimelineEventsSQL = "" +
	"DELETE FROM circles_timeline WHERE room_id = $1"

type timelineStatements struct {
	insertEventStmt          *sql.Stmt
	selectPositionBoundsStmt *sql.Stmt
	selectEventsStmt         *sql.Stmt
	deleteEventsStmt         *sql.Stmt
}

func NewPostgresTimelineTable(db *sql.DB) (tables.Timeline, error) {
	s := &timelineStatements{}
	_, err := db.Exec(timelineSchema)
	if err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.insertEventStmt, insertTimelineEventSQL},
		{&s.selectPositionBoundsStmt, selectPositionBoundsSQL},
		{&s.selectEventsStmt, selectTimelineEventsSQL},
		{&s.deleteEventsStmt, deleteTimelineEventsSQL},
	}.Prepare(db)
}

func (s *timelineStatements) InsertEvent(
	ctx context.Context, txn *sql.Tx, roomID, eventID string, pos int64, ts spec.Timestamp, eventJSON []byte,
) error {
	_, err := sqlutil.TxStmt(txn, s.insertEventStmt).ExecContext(ctx, roomID, eventID, pos, int64(ts), string(eventJSON))
	return err
}

func (s *timelineStatements) SelectPositionBounds(ctx context.Context, txn *sql.Tx, roomID string) (min, max int64, err error) {
	err = sqlutil.TxStmt(txn, s.selectPositionBoundsStmt).QueryRowContext(ctx, roomID).Scan(&min, &max)
	return
}

func (s *timelineStatements) SelectEvents(ctx context.Context, txn *sql.Tx, roomID string) ([]api.ClientEvent, error) {
	rows, err := sqlutil.TxStmt(txn, s.selectEventsStmt).QueryContext(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer internal.CloseAndLogIfError(ctx, rows, "SelectEvents: rows.close() failed")
	return scanEvents(rows)
}

func (s *timelineStatements) DeleteEvents(ctx context.Context, txn *sql.Tx, roomID string) error {
	_, err := sqlutil.TxStmt(txn, s.deleteEventsStmt).ExecContext(ctx, roomID)
	return err
}
