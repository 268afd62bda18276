// Package postgres is the relational country store, through GORM on the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/surrealdb/migrator/contrib/countries/models"
	"github.com/surrealdb/migrator/contrib/countries/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Config tunes the connection pool. Zero values keep the driver defaults.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to dsn and pings the server.
func Open(ctx context.Context, dsn string, conf Config) (*Store, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if conf.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(conf.MaxOpenConns)
	}
	if conf.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(conf.MaxIdleConns)
	}
	if conf.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(conf.ConnMaxLifetime)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate creates the countries table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&models.Country{})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) GetCountry(ctx context.Context, id int64) (*models.Country, error) {
	var c models.Country
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.NotFound(id)
		}
		return nil, fmt.Errorf("failed to get country: %w", err)
	}
	return &c, nil
}

func (s *Store) ListCountries(ctx context.Context) ([]models.Country, error) {
	var list []models.Country
	if err := s.db.WithContext(ctx).Order("id").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list countries: %w", err)
	}
	return list, nil
}

func (s *Store) CreateCountry(ctx context.Context, c *models.Country) (*models.Country, error) {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("failed to create country: %w", err)
	}
	return c, nil
}

func (s *Store) UpdateCountry(ctx context.Context, id int64, p models.Patch) (*models.Country, error) {
	var c models.Country
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, id).Error; err != nil {
			return err
		}
		p.Apply(&c)
		return tx.Save(&c).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update country: %w", err)
	}
	return &c, nil
}

func (s *Store) DeleteCountry(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&models.Country{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete country: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.NotFound(id)
	}
	return nil
}

// Truncate removes every country and resets the ID sequence.
func (s *Store) Truncate(ctx context.Context) error {
	return s.db.WithContext(ctx).Exec("TRUNCATE TABLE countries RESTART IDENTITY").Error
}
