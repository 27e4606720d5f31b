package store

import (
	_ "github.com/mattn/go-sqlite3"

	"wallet-ticket-service/internal/config"
)

type SQLiteStore struct {
	SQLStore
}

func NewSQLiteStore(cfg *config.Storage) (*SQLiteStore, error) {
	base, err := NewSQLStore("sqlite3", cfg.SQLite.Path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{SQLStore: *base}, nil
}
