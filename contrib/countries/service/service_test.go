package service_test

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/migrator"
	"github.com/surrealdb/migrator/contrib/countries/models"
	"github.com/surrealdb/migrator/contrib/countries/service"
	"github.com/surrealdb/migrator/contrib/countries/store"
	"github.com/surrealdb/migrator/contrib/countries/store/memory"
	"github.com/surrealdb/migrator/contrib/countries/store/sqlite"
	"github.com/surrealdb/migrator/pkg/decision"
	"github.com/surrealdb/migrator/pkg/events"
	"github.com/surrealdb/migrator/pkg/idstore"
	"github.com/surrealdb/migrator/pkg/logger"
)

type fixture struct {
	svc   *service.Service
	src   *sqlite.Store
	dst   *memory.Store
	phase *decision.PhaseProvider
	rec   *events.Recorder
}

func newFixture(t *testing.T, phase decision.Phase, dst store.Store) *fixture {
	t.Helper()
	src, err := sqlite.Open(filepath.Join(t.TempDir(), "source.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	require.NoError(t, src.Migrate(context.Background()))

	mem := memory.New()
	if dst == nil {
		dst = mem
	}

	provider, err := decision.NewPhaseProvider(phase)
	require.NoError(t, err)
	rec := events.NewRecorder()
	f, err := migrator.New(service.Component,
		migrator.WithDecisionProvider(provider),
		migrator.WithSink(rec),
		migrator.WithLogger(logger.Nop()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close(context.Background()) })

	svc, err := service.New(f, src, dst)
	require.NoError(t, err)
	return &fixture{svc: svc, src: src, dst: mem, phase: provider, rec: rec}
}

func TestCreateHandsSourceIDToDestination(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, decision.PhaseDualWrite, nil)

	created, err := fx.svc.Create(ctx, models.Country{Code: "PL", Name: "Poland"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	mirrored, err := fx.dst.GetCountry(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "PL", mirrored.Code)
	assert.Empty(t, fx.rec.Inconsistencies())
	assert.Empty(t, fx.rec.SwallowedErrors())
}

func TestConcurrentCreatesKeepTheirOwnIDs(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, decision.PhaseDualWrite, nil)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := fmt.Sprintf("%c%c", 'A'+i/26, 'A'+i%26)
			_, err := fx.svc.Create(ctx, models.Country{Code: code, Name: "Country " + code})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	srcList, err := fx.src.ListCountries(ctx)
	require.NoError(t, err)
	require.Len(t, srcList, n)
	for _, c := range srcList {
		mirrored, err := fx.dst.GetCountry(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.Code, mirrored.Code, "id %d", c.ID)
	}
	assert.Empty(t, fx.rec.SwallowedErrors())
}

func TestStaleTokenOfReusedOwnerIsIgnored(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, decision.PhaseDualWrite, nil)

	stale := fx.svc.Facade().IDs().Bind(ctx, "worker-1")
	require.NoError(t, idstore.Push(stale, int64(999)))

	created, err := fx.svc.Create(idstore.WithOwner(ctx, "worker-1"), models.Country{Code: "PL", Name: "Poland"})
	require.NoError(t, err)

	_, err = fx.dst.GetCountry(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = fx.dst.GetCountry(ctx, created.ID)
	assert.NoError(t, err)
}

func TestReadDivergenceServesSource(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, decision.PhaseDualRead, nil)

	pl, err := fx.src.CreateCountry(ctx, &models.Country{Code: "PL", Name: "Poland"})
	require.NoError(t, err)
	_, err = fx.dst.CreateCountry(ctx, &models.Country{ID: pl.ID, Code: "PL", Name: "Polska"})
	require.NoError(t, err)

	got, err := fx.svc.Get(ctx, pl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Poland", got.Name)

	inconsistent := fx.rec.Inconsistencies()
	require.Len(t, inconsistent, 1)
	assert.Equal(t, service.GetCountry, inconsistent[0].Operation)
	assert.Equal(t, "name", inconsistent[0].Result.Differences[0].Path)
}

func TestReadMissingInDestinationServesSource(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, decision.PhaseDualRead, nil)

	pl, err := fx.src.CreateCountry(ctx, &models.Country{Code: "PL", Name: "Poland"})
	require.NoError(t, err)

	got, err := fx.svc.Get(ctx, pl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Poland", got.Name)

	swallowed := fx.rec.SwallowedErrors()
	require.Len(t, swallowed, 1)
	assert.ErrorIs(t, swallowed[0].Err, store.ErrNotFound)
}

// reversed lists countries in descending ID order.
type reversed struct {
	*memory.Store
}

func (r reversed) ListCountries(ctx context.Context) ([]models.Country, error) {
	list, err := r.Store.ListCountries(ctx)
	slices.Reverse(list)
	return list, err
}

func TestListIgnoresOrder(t *testing.T) {
	ctx := context.Background()
	dst := memory.New()
	fx := newFixture(t, decision.PhaseDualRead, reversed{dst})

	for _, code := range []string{"PL", "DE", "FR"} {
		c, err := fx.src.CreateCountry(ctx, &models.Country{Code: code, Name: code})
		require.NoError(t, err)
		_, err = dst.CreateCountry(ctx, &models.Country{ID: c.ID, Code: code, Name: code})
		require.NoError(t, err)
	}

	list, err := fx.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "FR", list[0].Code, "the destination result is served")
	assert.Empty(t, fx.rec.Inconsistencies())
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, decision.PhaseDualWrite, nil)

	created, err := fx.svc.Create(ctx, models.Country{Code: "PL", Name: "Poland"})
	require.NoError(t, err)

	// Population differs between the stores but is not compared.
	_, err = fx.dst.UpdateCountry(ctx, created.ID, models.Patch{Population: ptr(int64(1))})
	require.NoError(t, err)

	updated, err := fx.svc.Update(ctx, created.ID, models.Patch{Region: ptr("Europe")})
	require.NoError(t, err)
	assert.Equal(t, "Europe", updated.Region)
	assert.Empty(t, fx.rec.Inconsistencies())

	require.NoError(t, fx.svc.Delete(ctx, created.ID))
	_, err = fx.src.GetCountry(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, fx.dst.Len())
}

func TestSourceOnlyLeavesDestinationUntouched(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, decision.PhaseSourceOnly, nil)

	_, err := fx.svc.Create(ctx, models.Country{Code: "PL", Name: "Poland"})
	require.NoError(t, err)
	assert.Zero(t, fx.dst.Len())
}

func TestDestinationOnlyCreateNeedsAnID(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, decision.PhaseDestinationOnly, nil)

	_, err := fx.svc.Create(ctx, models.Country{Code: "PL", Name: "Poland"})
	var missing *idstore.MissingTokenError
	assert.ErrorAs(t, err, &missing)
	assert.Zero(t, fx.dst.Len())
}

func ptr[T any](v T) *T {
	return &v
}
