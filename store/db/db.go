package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/lily/internal/profile"
	"github.com/hrygo/lily/store"
	"github.com/hrygo/lily/store/db/postgres"
	"github.com/hrygo/lily/store/db/sqlite"
)

// NewDBDriver creates the exchange archive driver named by the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	if !profile.IsArchiveEnabled() {
		return nil, errors.New("no archive driver configured")
	}

	var (
		driver store.Driver
		err    error
	)
	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'postgres' and 'sqlite' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s archive", profile.Driver)
	}
	return driver, nil
}
