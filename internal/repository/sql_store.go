package repository

import (
	"database/sql"
)

// SQLStore is the MySQL implementation of Store. Each embedded repo
// owns one table; cross-table work (completion award, admin
// registration) runs inside a single transaction in the repo that
// starts it.
type SQLStore struct {
	*UserRepo
	*AdminCodeRepo
	*ReportRepo
	*TokenRepo
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore builds a Store over db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return NewSQLStoreWithClock(db, UTCNow)
}

// NewSQLStoreWithClock is NewSQLStore with an explicit clock.
func NewSQLStoreWithClock(db *sql.DB, now Clock) *SQLStore {
	return &SQLStore{
		UserRepo:      &UserRepo{db: db, now: now},
		AdminCodeRepo: &AdminCodeRepo{db: db, now: now},
		ReportRepo:    &ReportRepo{db: db, now: now},
		TokenRepo:     &TokenRepo{db: db, now: now},
	}
}
