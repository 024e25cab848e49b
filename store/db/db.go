// Package db selects the concrete store driver based on the profile.
//
// PostgreSQL is the production database. SQLite is supported for
// development and testing.
package db

import (
	"github.com/pkg/errors"

	"github.com/hearthfire/cookforge/internal/profile"
	"github.com/hearthfire/cookforge/store"
	"github.com/hearthfire/cookforge/store/db/postgres"
	"github.com/hearthfire/cookforge/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'postgres' and 'sqlite' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
