package store

import (
	"context"
	"fmt"
	"log/slog"

	"wallet-ticket-service/internal/config"
)

// NewStore selects a backend from configuration. Exactly one backend is
// expected to be configured; firestore wins over sqlite if both are set.
func NewStore(ctx context.Context, cfg *config.Storage) (Store, error) {
	switch {
	case cfg.Firestore != nil:
		return NewFirestoreStore(ctx, cfg.Firestore)

	case cfg.SQLite != nil:
		s, err := NewSQLiteStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.runMigrations("sqlite3"); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			return nil, err
		}
		return s, nil

	case cfg.Memory:
		return NewMemoryStore(), nil
	}

	slog.Error("Unsupported storage configuration", "config", cfg)
	return nil, fmt.Errorf("unsupported storage configuration")
}
