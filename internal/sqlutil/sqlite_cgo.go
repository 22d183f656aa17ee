//go:build cgo
// +build cgo

package sqlutil

import (
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const SQLITE_DRIVER_NAME = "sqlite3"

func sqliteDSNExtension(dsn string) string {
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	return dsn + "_busy_timeout=10000&_foreign_keys=on"
}
