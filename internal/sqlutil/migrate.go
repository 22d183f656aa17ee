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

package sqlutil

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/circles-chat/circles/internal"
)

const createDBMigrationsSQL = "" +
	"CREATE TABLE IF NOT EXISTS circles_migrations (" +
	" version TEXT PRIMARY KEY NOT NULL," +
	" time TEXT NOT NULL," +
	" circles_version TEXT NOT NULL" +
	");"

const insertVersionSQL = "" +
	"INSERT INTO circles_migrations (version, time, circles_version)" +
	" VALUES ($1, $2, $3)"

const selectDBMigrationsSQL = "SELECT version FROM circles_migrations"

// Migration defines a migration to be run.
type Migration struct {
	// Version is a simple description/name of this migration.
	Version string
	// Up defines the function to execute for an upgrade.
	Up func(ctx context.Context, txn *sql.Tx) error
}

// Migrator runs schema migrations that haven't been run yet, in the order
// they were added, and records each one.
type Migrator struct {
	db         *sql.DB
	migrations []Migration
	known      map[string]struct{}
}

func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{
		db:    db,
		known: make(map[string]struct{}),
	}
}

// AddMigrations appends migrations, skipping versions already added.
func (m *Migrator) AddMigrations(migrations ...Migration) {
	for _, mig := range migrations {
		if _, ok := m.known[mig.Version]; !ok {
			m.migrations = append(m.migrations, mig)
			m.known[mig.Version] = struct{}{}
		}
	}
}

// Up executes all pending migrations in a single transaction.
func (m *Migrator) Up(ctx context.Context) error {
	executed, err := m.ExecutedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("unable to create/get migrations: %w", err)
	}
	return WithTransaction(m.db, func(txn *sql.Tx) error {
		for _, migration := range m.migrations {
			if _, ok := executed[migration.Version]; ok {
				continue
			}
			logrus.Debugf("Executing database migration '%s'", migration.Version)
			if err = migration.Up(ctx, txn); err != nil {
				return fmt.Errorf("unable to execute migration '%s': %w", migration.Version, err)
			}
			_, err = txn.ExecContext(ctx, insertVersionSQL,
				migration.Version,
				time.Now().Format(time.RFC3339),
				internal.VersionString(),
			)
			if err != nil {
				return fmt.Errorf("unable to insert executed migrations: %w", err)
			}
		}
		return nil
	})
}

// ExecutedMigrations returns the migrations already run, creating the
// migrations table if needed.
func (m *Migrator) ExecutedMigrations(ctx context.Context) (map[string]struct{}, error) {
	result := make(map[string]struct{})
	if _, err := m.db.ExecContext(ctx, createDBMigrationsSQL); err != nil {
		return nil, fmt.Errorf("unable to create circles_migrations: %w", err)
	}
	rows, err := m.db.QueryContext(ctx, selectDBMigrationsSQL)
	if err != nil {
		return nil, fmt.Errorf("unable to query circles_migrations: %w", err)
	}
	defer internal.CloseAndLogIfError(ctx, rows, "ExecutedMigrations: rows.close() failed")
	var version string
	for rows.Next() {
		if err = rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("unable to scan version: %w", err)
		}
		result[version] = struct{}{}
	}
	return result, rows.Err()
}
