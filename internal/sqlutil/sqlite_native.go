//go:build !cgo
// +build !cgo

package sqlutil

import (
	"strings"

	_ "modernc.org/sqlite"
)

const SQLITE_DRIVER_NAME = "sqlite"

func sqliteDSNExtension(dsn string) string {
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	// wait before erroring if the db is locked
	dsn += "_pragma=busy_timeout%3d10000&_pragma=foreign_keys(1)"
	return dsn
}
