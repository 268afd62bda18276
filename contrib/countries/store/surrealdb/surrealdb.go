// Package surrealdb is the country store on SurrealDB, the migration
// destination.
//
// SurrealDB does not generate the numeric identifiers the catalogue uses:
// every country is stored under the record ID countries:<id> and the caller
// supplies id, normally the one the source store generated for the same call.
package surrealdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	surrealdb "github.com/surrealdb/surrealdb.go"
	sdkmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/surrealdb/migrator/contrib/countries/models"
	"github.com/surrealdb/migrator/contrib/countries/store"
)

// ErrMissingID is returned by CreateCountry for a country without an ID.
var ErrMissingID = errors.New("surrealdb: country id must be set")

// Config says where and as whom to connect.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Store implements store.Store on SurrealDB.
type Store struct {
	db  *surrealdb.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// record is the stored shape of a country. The numeric ID lives in the record
// ID, not in a field.
type record struct {
	ID         *sdkmodels.RecordID      `json:"id,omitempty"`
	Code       string                   `json:"code"`
	Name       string                   `json:"name"`
	Region     string                   `json:"region,omitempty"`
	Population int64                    `json:"population,omitempty"`
	UpdatedAt  sdkmodels.CustomDateTime `json:"updated_at"`
}

func toRecord(c *models.Country, now time.Time) record {
	return record{
		Code:       c.Code,
		Name:       c.Name,
		Region:     c.Region,
		Population: c.Population,
		UpdatedAt:  sdkmodels.CustomDateTime{Time: now},
	}
}

func (r *record) country() (*models.Country, error) {
	c := &models.Country{
		Code:       r.Code,
		Name:       r.Name,
		Region:     r.Region,
		Population: r.Population,
		UpdatedAt:  r.UpdatedAt.Time,
	}
	if r.ID != nil {
		id, err := numericID(r.ID.ID)
		if err != nil {
			return nil, err
		}
		c.ID = id
	}
	return c, nil
}

func numericID(v any) (int64, error) {
	switch id := v.(type) {
	case int64:
		return id, nil
	case uint64:
		return int64(id), nil
	case int:
		return int64(id), nil
	case float64:
		return int64(id), nil
	default:
		return 0, fmt.Errorf("surrealdb: record id %v (%T) is not numeric", v, v)
	}
}

func recordID(id int64) sdkmodels.RecordID {
	return sdkmodels.NewRecordID(models.Table, id)
}

// Open connects, signs in when credentials are given and selects the
// namespace and database.
func Open(ctx context.Context, conf Config) (*Store, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, conf.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}
	if conf.Username != "" && conf.Password != "" {
		if _, err := db.SignIn(ctx, surrealdb.Auth{
			Username: conf.Username,
			Password: conf.Password,
		}); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}
	if err := db.Use(ctx, conf.Namespace, conf.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}
	return New(db), nil
}

// New wraps an established connection.
func New(db *surrealdb.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate defines the table and the unique index on the country code.
func (s *Store) Migrate(ctx context.Context) error {
	const ddl = `DEFINE TABLE IF NOT EXISTS countries SCHEMALESS;
DEFINE INDEX IF NOT EXISTS countries_code ON countries FIELDS code UNIQUE;`
	if _, err := surrealdb.Query[any](ctx, s.db, ddl, nil); err != nil {
		return fmt.Errorf("failed to define countries table: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close(context.Background())
}

// isNotFound recognizes the errors the SDK reports for a selection that
// matched nothing.
func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Expected a single or multiple results but got 0") ||
		strings.Contains(msg, "cannot unmarshal array into Go value")
}

func (s *Store) GetCountry(ctx context.Context, id int64) (*models.Country, error) {
	r, err := surrealdb.Select[record](ctx, s.db, recordID(id))
	if err != nil {
		if isNotFound(err) {
			return nil, store.NotFound(id)
		}
		return nil, fmt.Errorf("failed to get country: %w", err)
	}
	if r == nil || r.ID == nil {
		return nil, store.NotFound(id)
	}
	return r.country()
}

func (s *Store) ListCountries(ctx context.Context) ([]models.Country, error) {
	res, err := surrealdb.Query[[]record](ctx, s.db, "SELECT * FROM countries ORDER BY id", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list countries: %w", err)
	}
	if res == nil || len(*res) == 0 {
		return nil, nil
	}
	rows := (*res)[0].Result
	list := make([]models.Country, 0, len(rows))
	for i := range rows {
		c, err := rows[i].country()
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, nil
}

func (s *Store) CreateCountry(ctx context.Context, c *models.Country) (*models.Country, error) {
	if c.ID == 0 {
		return nil, ErrMissingID
	}
	now := s.now().UTC()
	r, err := surrealdb.Create[record](ctx, s.db, recordID(c.ID), toRecord(c, now))
	if err != nil {
		return nil, fmt.Errorf("failed to create country: %w", err)
	}
	created, err := r.country()
	if err != nil {
		return nil, err
	}
	if created.ID == 0 {
		created.ID = c.ID
	}
	return created, nil
}

func (s *Store) UpdateCountry(ctx context.Context, id int64, p models.Patch) (*models.Country, error) {
	patch := map[string]any{"updated_at": sdkmodels.CustomDateTime{Time: s.now().UTC()}}
	if p.Name != nil {
		patch["name"] = *p.Name
	}
	if p.Region != nil {
		patch["region"] = *p.Region
	}
	if p.Population != nil {
		patch["population"] = *p.Population
	}

	res, err := surrealdb.Query[[]record](ctx, s.db, "UPDATE $rid MERGE $patch RETURN AFTER", map[string]any{
		"rid":   recordID(id),
		"patch": patch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update country: %w", err)
	}
	if res == nil || len(*res) == 0 || len((*res)[0].Result) == 0 {
		return nil, store.NotFound(id)
	}
	return (*res)[0].Result[0].country()
}

func (s *Store) DeleteCountry(ctx context.Context, id int64) error {
	res, err := surrealdb.Query[[]record](ctx, s.db, "DELETE $rid RETURN BEFORE", map[string]any{
		"rid": recordID(id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete country: %w", err)
	}
	if res == nil || len(*res) == 0 || len((*res)[0].Result) == 0 {
		return store.NotFound(id)
	}
	return nil
}
