// Package storetest checks that a country store behaves like the others, so
// the facade's comparisons only see real divergences.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/migrator/contrib/countries/models"
	"github.com/surrealdb/migrator/contrib/countries/store"
)

// Run exercises s, which must be empty and migrated. generatesIDs says
// whether s assigns IDs to countries created without one.
func Run(t *testing.T, s store.Store, generatesIDs bool) {
	ctx := context.Background()

	t.Run("create with id", func(t *testing.T) {
		c, err := s.CreateCountry(ctx, &models.Country{ID: 48, Code: "PL", Name: "Poland", Region: "Europe"})
		require.NoError(t, err)
		assert.Equal(t, int64(48), c.ID)

		got, err := s.GetCountry(ctx, 48)
		require.NoError(t, err)
		assert.Equal(t, "PL", got.Code)
		assert.Equal(t, "Poland", got.Name)
		assert.Equal(t, "Europe", got.Region)
	})

	t.Run("create without id", func(t *testing.T) {
		c, err := s.CreateCountry(ctx, &models.Country{Code: "DE", Name: "Germany"})
		if !generatesIDs {
			assert.Error(t, err)
			return
		}
		require.NoError(t, err)
		assert.NotZero(t, c.ID)
		require.NoError(t, s.DeleteCountry(ctx, c.ID))
	})

	t.Run("update", func(t *testing.T) {
		name := "Republic of Poland"
		population := int64(36_800_000)
		c, err := s.UpdateCountry(ctx, 48, models.Patch{Name: &name, Population: &population})
		require.NoError(t, err)
		assert.Equal(t, name, c.Name)
		assert.Equal(t, population, c.Population)
		assert.Equal(t, "Europe", c.Region)
	})

	t.Run("list", func(t *testing.T) {
		_, err := s.CreateCountry(ctx, &models.Country{ID: 33, Code: "FR", Name: "France"})
		require.NoError(t, err)

		list, err := s.ListCountries(ctx)
		require.NoError(t, err)
		codes := make([]string, 0, len(list))
		for _, c := range list {
			codes = append(codes, c.Code)
		}
		assert.ElementsMatch(t, []string{"PL", "FR"}, codes)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.DeleteCountry(ctx, 33))
		_, err := s.GetCountry(ctx, 33)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := s.GetCountry(ctx, 7)
		assert.ErrorIs(t, err, store.ErrNotFound)

		name := "Atlantis"
		_, err = s.UpdateCountry(ctx, 7, models.Patch{Name: &name})
		assert.ErrorIs(t, err, store.ErrNotFound)

		assert.ErrorIs(t, s.DeleteCountry(ctx, 7), store.ErrNotFound)
	})
}
