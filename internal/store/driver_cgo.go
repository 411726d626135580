//go:build sqlite_vec

package store

// Built with the sqlite_vec tag: mattn/go-sqlite3 with the sqlite-vec
// extension loaded, enabling the vec0 virtual table for native KNN search.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_vec sqlite_fts5" ./...

import (
	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

const (
	driverName = "sqlite3"

	// vectorIndexAvailable reports whether the vec0 virtual table can be
	// created and queried in this build.
	vectorIndexAvailable = true
)

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
}

func serializeVector(v []float32) ([]byte, error) {
	return sqlite_vec.SerializeFloat32(v)
}
