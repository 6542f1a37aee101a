// Package store owns all durable state: raw service events, daily slot
// aggregates, the two slot metric tables and the job ledger, backed by SQLite.
package store

import (
	"database/sql"
	"time"
)

type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(db *sql.DB, loc *time.Location) *Store {
	return &Store{db: db, loc: loc}
}

// Location returns the operating timezone the store was opened with.
func (s *Store) Location() *time.Location {
	return s.loc
}
