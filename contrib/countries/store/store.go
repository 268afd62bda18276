// Package store defines what a country catalogue backend provides.
//
// Backends:
//   - [github.com/surrealdb/migrator/contrib/countries/store/postgres.Store]: the
//     relational source, through GORM on the pgx driver
//   - [github.com/surrealdb/migrator/contrib/countries/store/sqlite.Store]: an
//     embedded relational store for local runs and tests
//   - [github.com/surrealdb/migrator/contrib/countries/store/surrealdb.Store]: the
//     migration destination
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/surrealdb/migrator/contrib/countries/models"
)

// ErrNotFound is returned when no country has the requested identifier.
var ErrNotFound = errors.New("country not found")

// NotFound wraps ErrNotFound with the identifier that was looked up.
func NotFound(id int64) error {
	return fmt.Errorf("%w: %d", ErrNotFound, id)
}

// Store is a country catalogue backend.
type Store interface {
	GetCountry(ctx context.Context, id int64) (*models.Country, error)
	// ListCountries returns every country. The order is backend-specific.
	ListCountries(ctx context.Context) ([]models.Country, error)
	// CreateCountry stores c. Backends that generate identifiers set c.ID;
	// the others require the caller to set it.
	CreateCountry(ctx context.Context, c *models.Country) (*models.Country, error)
	UpdateCountry(ctx context.Context, id int64, p models.Patch) (*models.Country, error)
	DeleteCountry(ctx context.Context, id int64) error

	Migrate(ctx context.Context) error
	Close() error
}
