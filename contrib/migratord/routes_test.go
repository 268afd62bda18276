package migratord

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/migrator/contrib/countries/models"
	"github.com/surrealdb/migrator/contrib/countries/store/memory"
	"github.com/surrealdb/migrator/pkg/logger"
	"github.com/surrealdb/migrator/pkg/properties"
)

type fixture struct {
	app    *App
	server *httptest.Server
	source *memory.Store
	dest   *memory.Store
}

func newFixture(t *testing.T, conf Config) *fixture {
	t.Helper()
	fx := &fixture{
		source: memory.New(memory.WithGeneratedIDs()),
		dest:   memory.New(),
	}
	app, err := NewWithStores(conf, logger.Nop(), fx.source, fx.dest)
	require.NoError(t, err)
	fx.app = app
	fx.server = httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		fx.server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		assert.NoError(t, app.Close(ctx))
	})
	return fx
}

func phaseConfig(phase string) Config {
	conf := DefaultConfig()
	conf.Phase = phase
	return conf
}

func (fx *fixture) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, fx.server.URL+path, r)
	require.NoError(t, err)
	resp, err := fx.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v))
	return v
}

func TestCountryLifecycle(t *testing.T) {
	fx := newFixture(t, phaseConfig("dual_write"))

	status, body := fx.do(t, http.MethodPost, "/api/countries", models.Country{Code: "PL", Name: "Poland", Region: "Europe"})
	require.Equal(t, http.StatusCreated, status, string(body))
	created := decode[models.Country](t, body)
	assert.Equal(t, int64(1), created.ID)

	// The destination received the identifier the source generated.
	mirrored, err := fx.dest.GetCountry(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Poland", mirrored.Name)

	status, body = fx.do(t, http.MethodGet, "/api/countries/1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "PL", decode[models.Country](t, body).Code)

	status, body = fx.do(t, http.MethodPatch, "/api/countries/1", map[string]string{"name": "Republic of Poland"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "Republic of Poland", decode[models.Country](t, body).Name)
	mirrored, err = fx.dest.GetCountry(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Republic of Poland", mirrored.Name)

	status, body = fx.do(t, http.MethodGet, "/api/countries", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Country](t, body), 1)

	status, _ = fx.do(t, http.MethodDelete, "/api/countries/1", nil)
	require.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, 0, fx.dest.Len())

	status, body = fx.do(t, http.MethodGet, "/api/countries/1", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "country not found")
}

func TestCreateValidation(t *testing.T) {
	fx := newFixture(t, phaseConfig("source_only"))

	status, _ := fx.do(t, http.MethodPost, "/api/countries", map[string]string{"code": "PL"})
	assert.Equal(t, http.StatusBadRequest, status)

	req, err := http.NewRequest(http.MethodPost, fx.server.URL+"/api/countries", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp, err := fx.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEmptyListIsAnArray(t *testing.T) {
	fx := newFixture(t, phaseConfig("source_only"))

	status, body := fx.do(t, http.MethodGet, "/api/countries", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestDivergenceIsCountedAndSourceServed(t *testing.T) {
	fx := newFixture(t, phaseConfig("dual_read"))
	ctx := context.Background()

	_, err := fx.source.CreateCountry(ctx, &models.Country{Code: "DE", Name: "Germany"})
	require.NoError(t, err)
	_, err = fx.dest.CreateCountry(ctx, &models.Country{ID: 1, Code: "DE", Name: "Deutschland"})
	require.NoError(t, err)

	status, body := fx.do(t, http.MethodGet, "/api/countries/1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Germany", decode[models.Country](t, body).Name)

	status, body = fx.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "migrator_facade_inconsistencies_total{")
	assert.Contains(t, string(body), `operation="GetCountry"`)
}

func TestPhaseAdmin(t *testing.T) {
	fx := newFixture(t, phaseConfig("dual_write"))

	status, body := fx.do(t, http.MethodGet, "/api/admin/phase", nil)
	require.Equal(t, http.StatusOK, status)
	resp := decode[phaseResponse](t, body)
	assert.Equal(t, "dual_write", resp.Phase)
	assert.Len(t, resp.Phases, 5)

	status, _ = fx.do(t, http.MethodPost, "/api/admin/phase", phaseRequest{Phase: "destination_only"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = fx.do(t, http.MethodPost, "/api/admin/phase", phaseRequest{Phase: "sideways"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = fx.do(t, http.MethodPost, "/api/admin/phase", phaseRequest{Phase: "destination_read"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "destination_read", decode[phaseResponse](t, body).Phase)
	assert.Equal(t, "destination_read", string(fx.app.Phase().Phase()))

	// Rolling back may skip phases.
	status, _ = fx.do(t, http.MethodPost, "/api/admin/phase", phaseRequest{Phase: "source_only"})
	assert.Equal(t, http.StatusOK, status)
}

func TestPhaseAdminWithFlags(t *testing.T) {
	conf := DefaultConfig()
	conf.Decision = DecideFlags
	conf.Properties = properties.FromMap(map[string]string{
		"flags.CountryFacade.write.source":      "true",
		"flags.CountryFacade.write.destination": "true",
	})
	fx := newFixture(t, conf)
	assert.Nil(t, fx.app.Phase())

	status, _ := fx.do(t, http.MethodGet, "/api/admin/phase", nil)
	assert.Equal(t, http.StatusConflict, status)
	status, _ = fx.do(t, http.MethodPost, "/api/admin/phase", phaseRequest{Phase: "dual_read"})
	assert.Equal(t, http.StatusConflict, status)

	// Writes go to both stores, reads stay on the source.
	status, _ = fx.do(t, http.MethodPost, "/api/countries", models.Country{Code: "FR", Name: "France"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 1, fx.dest.Len())
}

func TestOperations(t *testing.T) {
	fx := newFixture(t, phaseConfig("source_only"))

	status, body := fx.do(t, http.MethodGet, "/api/admin/operations", nil)
	require.Equal(t, http.StatusOK, status)
	ops := decode[[]operationView](t, body)
	require.Len(t, ops, 5)

	byName := make(map[string]operationView)
	for _, op := range ops {
		byName[op.Name] = op
	}
	assert.Equal(t, "WRITE", byName["CreateCountry"].Kind)
	assert.Equal(t, "parallel", byName["CreateCountry"].Mode)
	assert.Equal(t, "serial", byName["UpdateCountry"].Mode)
	assert.Equal(t, []string{"population"}, byName["UpdateCountry"].Exclude)
	assert.True(t, byName["ListCountries"].UnorderedArrays)
}

func TestHealth(t *testing.T) {
	fx := newFixture(t, phaseConfig("dual_read"))

	status, body := fx.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	health := decode[map[string]any](t, body)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "CountryFacade", health["component"])
	assert.Equal(t, "dual_read", health["phase"])
}
