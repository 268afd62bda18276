package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/migrator/contrib/countries/models"
	"github.com/surrealdb/migrator/contrib/countries/store/sqlite"
	"github.com/surrealdb/migrator/contrib/countries/store/storetest"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "countries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, newStore(t), true)
}

func TestUpdatedAtRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	before := time.Now().UTC()
	c, err := s.CreateCountry(ctx, &models.Country{Code: "PL", Name: "Poland"})
	require.NoError(t, err)

	got, err := s.GetCountry(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(c.UpdatedAt))
	assert.False(t, got.UpdatedAt.Before(before))
}

func TestDuplicateCode(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.CreateCountry(ctx, &models.Country{Code: "PL", Name: "Poland"})
	require.NoError(t, err)
	_, err = s.CreateCountry(ctx, &models.Country{Code: "PL", Name: "Poland again"})
	assert.Error(t, err)
}
