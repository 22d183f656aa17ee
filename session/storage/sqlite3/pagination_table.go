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
	"errors"

	"github.com/circles-chat/circles/internal/sqlutil"
	"github.com/circles-chat/circles/session/storage/tables"
)

const paginationSchema = `
-- The token to paginate each room backwards from.
CREATE TABLE IF NOT EXISTS circles_pagination (
	room_id TEXT NOT NULL PRIMARY KEY,
	prev_batch TEXT NOT NULL
);
`

const upsertPrevBatchSQL = "" +
	"INSERT INTO circles_pagination (room_id, prev_batch) VALUES ($1, $2)" +
	" ON CONFLICT (room_id) DO UPDATE SET prev_batch = $2"

const selectPrevBatchSQL = "" +
	"SELECT prev_batch FROM circles_pagination WHERE room_id = $1"

const deletePrevBatchSQL = "" +
	"DELETE FROM circles_pagination WHERE room_id = $1"

type paginationStatements struct {
	upsertPrevBatchStmt *sql.Stmt
	selectPrevBatchStmt *sql.Stmt
	deletePrevBatchStmt *sql.Stmt
}

func NewSQLitePaginationTable(db *sql.DB) (tables.Pagination, error) {
	s := &paginationStatements{}
	_, err := db.Exec(paginationSchema)
	if err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.upsertPrevBatchStmt, upsertPrevBatchSQL},
		{&s.selectPrevBatchStmt, selectPrevBatchSQL},
		{&s.deletePrevBatchStmt, deletePrevBatchSQL},
	}.Prepare(db)
}

func (s *paginationStatements) UpsertPrevBatch(ctx context.Context, txn *sql.Tx, roomID, prevBatch string) error {
	_, err := sqlutil.TxStmt(txn, s.upsertPrevBatchStmt).ExecContext(ctx, roomID, prevBatch)
	return err
}

func (s *paginationStatements) SelectPrevBatch(ctx context.Context, txn *sql.Tx, roomID string) (prevBatch string, err error) {
	err = sqlutil.TxStmt(txn, s.selectPrevBatchStmt).QueryRowContext(ctx, roomID).Scan(&prevBatch)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return
}

func (s *paginationStatements) DeletePrevBatch(ctx context.Context, txn *sql.Tx, roomID string) error {
	_, err := sqlutil.TxStmt(txn, s.deletePrevBatchStmt).ExecContext(ctx, roomID)
	return err
}
