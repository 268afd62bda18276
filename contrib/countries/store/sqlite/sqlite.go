// Package sqlite is an embedded country store on the pure Go SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/surrealdb/migrator/contrib/countries/models"
	"github.com/surrealdb/migrator/contrib/countries/store"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const schema = `CREATE TABLE IF NOT EXISTS countries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	region TEXT NOT NULL DEFAULT '',
	population INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL DEFAULT 0
)`

const columns = `id, code, name, region, population, updated_at`

// Store implements store.Store on a SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "countries.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; SQLite would answer SQLITE_BUSY otherwise.
	db.SetMaxOpenConns(1)
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create countries table: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*models.Country, error) {
	var (
		c       models.Country
		updated int64
	)
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Region, &c.Population, &updated); err != nil {
		return nil, err
	}
	if updated != 0 {
		c.UpdatedAt = time.Unix(0, updated).UTC()
	}
	return &c, nil
}

func (s *Store) GetCountry(ctx context.Context, id int64) (*models.Country, error) {
	c, err := scan(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM countries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("select country: %w", err)
	}
	return c, nil
}

func (s *Store) ListCountries(ctx context.Context) ([]models.Country, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM countries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select countries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []models.Country
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

func (s *Store) CreateCountry(ctx context.Context, c *models.Country) (*models.Country, error) {
	c.UpdatedAt = s.now().UTC()

	cols := []string{"code", "name", "region", "population", "updated_at"}
	args := []any{c.Code, c.Name, c.Region, c.Population, c.UpdatedAt.UnixNano()}
	if c.ID != 0 {
		cols = append(cols, "id")
		args = append(args, c.ID)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO countries (`+strings.Join(cols, ", ")+`) VALUES (`+marks+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("insert country: %w", err)
	}
	if c.ID == 0 {
		if c.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("insert country: %w", err)
		}
	}
	return c, nil
}

func (s *Store) UpdateCountry(ctx context.Context, id int64, p models.Patch) (retC *models.Country, retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	c, err := scan(tx.QueryRowContext(ctx, `SELECT `+columns+` FROM countries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("select country: %w", err)
	}
	p.Apply(c)
	c.UpdatedAt = s.now().UTC()

	if _, err := tx.ExecContext(ctx,
		`UPDATE countries SET name = ?, region = ?, population = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Region, c.Population, c.UpdatedAt.UnixNano(), id); err != nil {
		return nil, fmt.Errorf("update country: %w", err)
	}
	return c, tx.Commit()
}

func (s *Store) DeleteCountry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM countries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete country: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.NotFound(id)
	}
	return nil
}
