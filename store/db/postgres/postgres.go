package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/lily/internal/profile"
	"github.com/hrygo/lily/store"
)

// Pool limits for the archive; it is written once per exchange.
const (
	maxOpenConns    = 5
	maxIdleConns    = 2
	connMaxLifetime = 2 * time.Hour
	connMaxIdleTime = 15 * time.Minute
	pingTimeout     = 5 * time.Second
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the archive database named by profile.DSN and checks that it is reachable.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		slog.Error("archive database unreachable", slog.String("driver", "postgres"), slog.String("error", err.Error()))
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const isInitializedQuery = `
SELECT EXISTS (
	SELECT 1 FROM information_schema.tables
	WHERE table_catalog = current_database() AND table_name = 'chat_exchange' AND table_type = 'BASE TABLE'
)`

// IsInitialized reports whether the chat_exchange table exists.
func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	if err := d.db.QueryRowContext(ctx, isInitializedQuery).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}
