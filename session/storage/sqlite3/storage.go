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

	"github.com/circles-chat/circles/internal/sqlutil"
	"github.com/circles-chat/circles/session/storage/shared"
	"github.com/circles-chat/circles/setup/config"
)

// Database is the SQLite-backed local store.
type Database struct {
	shared.Database
	db     *sql.DB
	writer sqlutil.Writer
}

// NewDatabase opens a new database
func NewDatabase(ctx context.Context, dbProperties *config.DatabaseOptions) (*Database, error) {
	var d Database
	var err error
	d.writer = sqlutil.NewExclusiveWriter()
	if d.db, err = sqlutil.Open(dbProperties, d.writer); err != nil {
		return nil, err
	}
	syncTokens, err := NewSQLiteSyncTokensTable(d.db)
	if err != nil {
		return nil, err
	}
	roomState, err := NewSQLiteRoomStateTable(d.db)
	if err != nil {
		return nil, err
	}
	timeline, err := NewSQLiteTimelineTable(d.db)
	if err != nil {
		return nil, err
	}
	pagination, err := NewSQLitePaginationTable(d.db)
	if err != nil {
		return nil, err
	}
	m := sqlutil.NewMigrator(d.db)
	m.AddMigrations(sqlutil.Migration{
		Version: "circles: index circles_timeline by room and position",
		Up:      UpAddTimelinePositionIndex,
	})
	if err = m.Up(ctx); err != nil {
		return nil, err
	}
	d.Database = shared.Database{
		DB:         d.db,
		Writer:     d.writer,
		SyncTokens: syncTokens,
		RoomStates: roomState,
		Timelines:  timeline,
		Pagination: pagination,
	}
	return &d, nil
}

// Close closes the underlying database handle.
func (d *Database) Close() error {
	return d.db.Close()
}

func UpAddTimelinePositionIndex(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS circles_timeline_room_position_idx
		ON circles_timeline (room_id, position);`)
	return err
}
