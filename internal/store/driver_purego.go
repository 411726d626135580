//go:build !sqlite_vec

package store

// Default build: modernc.org/sqlite, a pure Go driver with FTS5 compiled in.
// No C toolchain is needed, but the vec0 extension is unavailable, so
// retrieval runs on the lexical channel only and embeddings are not stored.
// Build with -tags sqlite_vec for the full hybrid store.

import (
	"errors"

	_ "modernc.org/sqlite"
)

const (
	driverName = "sqlite"

	// vectorIndexAvailable reports whether the vec0 virtual table can be
	// created and queried in this build.
	vectorIndexAvailable = false
)

func dsn(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
}

func serializeVector([]float32) ([]byte, error) {
	return nil, errors.New("vector index requires the sqlite_vec build")
}
