package store

import (
	"context"
	"time"

	"github.com/hearthfire/cookforge/internal/profile"
	"github.com/hearthfire/cookforge/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	customerCache *cache.Cache // cache for customers by email
	orderCache    *cache.Cache // cache for orders by uid
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:        driver,
		profile:       profile,
		customerCache: cache.New(1000, 10*time.Minute),
		orderCache:    cache.New(1000, 10*time.Minute),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Migrate bootstraps the schema.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}
