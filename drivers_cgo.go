//go:build cgo

package babble

// sqlite3 is the CGo SQLite driver; "sqlite" is always available.
import _ "github.com/mattn/go-sqlite3"
