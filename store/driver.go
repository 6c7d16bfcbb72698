package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// ChatExchange model related methods.
	CreateChatExchange(ctx context.Context, create *ChatExchange) (*ChatExchange, error)
	ListChatExchanges(ctx context.Context, find *FindChatExchange) ([]*ChatExchange, error)
	CountChatExchanges(ctx context.Context) (int64, error)
}
