package surrealdb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/migrator/contrib/countries/models"
	"github.com/surrealdb/migrator/contrib/countries/store/storetest"
	"github.com/surrealdb/migrator/contrib/countries/store/surrealdb"
	"github.com/surrealdb/migrator/contrib/testenv"
)

func TestStore(t *testing.T) {
	db := testenv.SurrealDB(t, "countries")
	s := surrealdb.New(db)
	require.NoError(t, s.Migrate(context.Background()))

	storetest.Run(t, s, false)
}

func TestCreateRequiresID(t *testing.T) {
	s := surrealdb.New(nil)
	_, err := s.CreateCountry(context.Background(), &models.Country{Code: "PL"})
	assert.ErrorIs(t, err, surrealdb.ErrMissingID)
}
