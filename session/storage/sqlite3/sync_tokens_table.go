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

const syncTokensSchema = `
-- Where /sync resumes from for each local user.
CREATE TABLE IF NOT EXISTS circles_sync_tokens (
	user_id TEXT NOT NULL PRIMARY KEY,
	next_batch TEXT NOT NULL DEFAULT '',
	filter_id TEXT NOT NULL DEFAULT ''
);
`

const upsertNextBatchSQL = "" +
	"INSERT INTO circles_sync_tokens (user_id, next_batch) VALUES ($1, $2)" +
	" ON CONFLICT (user_id) DO UPDATE SET next_batch = $2"

const upsertFilterIDSQL = "" +
	"INSERT INTO circles_sync_tokens (user_id, filter_id) VALUES ($1, $2)" +
	" ON CONFLICT (user_id) DO UPDATE SET filter_id = $2"

const selectNextBatchSQL = "" +
	"SELECT next_batch FROM circles_sync_tokens WHERE user_id = $1"

const selectFilterIDSQL = "" +
	"SELECT filter_id FROM circles_sync_tokens WHERE user_id = $1"

type syncTokensStatements struct {
	upsertNextBatchStmt *sql.Stmt
	upsertFilterIDStmt  *sql.Stmt
	selectNextBatchStmt *sql.Stmt
	selectFilterIDStmt  *sql.Stmt
}

func NewSQLiteSyncTokensTable(db *sql.DB) (tables.SyncTokens, error) {
	s := &syncTokensStatements{}
	_, err := db.Exec(syncTokensSchema)
	if err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.upsertNextBatchStmt, upsertNextBatchSQL},
		{&s.upsertFilterIDStmt, upsertFilterIDSQL},
		{&s.selectNextBatchStmt, selectNextBatchSQL},
		{&s.selectFilterIDStmt, selectFilterIDSQL},
	}.Prepare(db)
}

func (s *syncTokensStatements) UpsertNextBatch(ctx context.Context, txn *sql.Tx, userID, nextBatch string) error {
	_, err := sqlutil.TxStmt(txn, s.upsertNextBatchStmt).ExecContext(ctx, userID, nextBatch)
	return err
}

func (s *syncTokensStatements) UpsertFilterID(ctx context.Context, txn *sql.Tx, userID, filterID string) error {
	_, err := sqlutil.TxStmt(txn, s.upsertFilterIDStmt).ExecContext(ctx, userID, filterID)
	return err
}

func (s *syncTokensStatements) SelectNextBatch(ctx context.Context, txn *sql.Tx, userID string) (nextBatch string, err error) {
	err = sqlutil.TxStmt(txn, s.selectNextBatchStmt).QueryRowContext(ctx, userID).Scan(&nextBatch)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return
}

func (s *syncTokensStatements) SelectFilterID(ctx context.Context, txn *sql.Tx, userID string) (filterID string, err error) {
	err = sqlutil.TxStmt(txn, s.selectFilterIDStmt).QueryRowContext(ctx, userID).Scan(&filterID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return
}
