package store

import (
	"context"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/lily/internal/profile"
)

// Store provides database access to the exchange archive.
type Store struct {
	profile *profile.Profile
	driver  Driver

	now func() time.Time
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
		now:     time.Now,
	}
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// CreateChatExchange archives an exchange. UID and CreatedTs are filled in when unset.
func (s *Store) CreateChatExchange(ctx context.Context, create *ChatExchange) (*ChatExchange, error) {
	if create.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	if create.UID == "" {
		create.UID = shortuuid.New()
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = s.now().Unix()
	}

	exchange, err := s.driver.CreateChatExchange(ctx, create)
	if err != nil {
		return nil, errors.Wrap(err, "failed to archive chat exchange")
	}
	return exchange, nil
}

func (s *Store) ListChatExchanges(ctx context.Context, find *FindChatExchange) ([]*ChatExchange, error) {
	if find == nil {
		find = &FindChatExchange{}
	}
	return s.driver.ListChatExchanges(ctx, find)
}

func (s *Store) CountChatExchanges(ctx context.Context) (int64, error) {
	return s.driver.CountChatExchanges(ctx)
}
