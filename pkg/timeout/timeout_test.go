package timeout_test

import (
	"bytes"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/migrator/pkg/logger"
	"github.com/surrealdb/migrator/pkg/operation"
	"github.com/surrealdb/migrator/pkg/properties"
	"github.com/surrealdb/migrator/pkg/timeout"
)

type countingSource struct {
	props   *properties.Properties
	lookups atomic.Int64
}

func (s *countingSource) Lookup(key string) (string, bool) {
	s.lookups.Add(1)
	return s.props.Lookup(key)
}

func TestResolveLookupOrder(t *testing.T) {
	props := properties.FromMap(map[string]string{
		"migrator.timeout.CountryFacade.GetCountry": "100",
		"migrator.timeout.CountryFacade.WRITE":      "300",
		"migrator.timeout.CountryFacade":            "400",
	})
	p := timeout.New("CountryFacade", props)

	testCases := []struct {
		name string
		op   string
		kind operation.Kind
		want time.Duration
	}{
		{name: "operation entry wins", op: "GetCountry", kind: operation.Read, want: 100 * time.Millisecond},
		{name: "kind entry", op: "CreateCountry", kind: operation.Write, want: 300 * time.Millisecond},
		{name: "component entry", op: "ListCountries", kind: operation.Read, want: 400 * time.Millisecond},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.Resolve(tc.op, tc.kind, timeout.Timeout))
		})
	}
}

func TestResolveDefaults(t *testing.T) {
	p := timeout.New("CountryFacade", properties.Empty())

	spec := p.SpecFor("GetCountry", operation.Read)
	assert.Equal(t, 2000*time.Millisecond, spec.Timeout)
	assert.Equal(t, 4000*time.Millisecond, spec.SlowWarning)
	assert.False(t, spec.InterruptOnTimeout)
	assert.False(t, spec.Unbounded())
}

func TestSlowWarningDefaultsToTwiceResolvedTimeout(t *testing.T) {
	p := timeout.New("CountryFacade", properties.FromMap(map[string]string{
		"migrator.timeout.CountryFacade.GetCountry": "250",
	}))

	assert.Equal(t, 500*time.Millisecond, p.Resolve("GetCountry", operation.Read, timeout.SlowWarning))
}

func TestExplicitSlowWarning(t *testing.T) {
	p := timeout.New("CountryFacade", properties.FromMap(map[string]string{
		"migrator.slowwarning.CountryFacade.READ": "50",
	}))

	assert.Equal(t, 50*time.Millisecond, p.Resolve("GetCountry", operation.Read, timeout.SlowWarning))
	assert.Equal(t, 4000*time.Millisecond, p.Resolve("CreateCountry", operation.Write, timeout.SlowWarning))
}

func TestNonPositiveTimeoutIsUnbounded(t *testing.T) {
	p := timeout.New("CountryFacade", properties.FromMap(map[string]string{
		"migrator.timeout.CountryFacade": "0",
	}))

	spec := p.SpecFor("GetCountry", operation.Read)
	assert.True(t, spec.Unbounded())
	assert.Equal(t, 4000*time.Millisecond, spec.SlowWarning)
}

func TestInterruptOnTimeoutIsGlobal(t *testing.T) {
	p := timeout.New("CountryFacade", properties.FromMap(map[string]string{
		"custom.interruptOnTimeout":    "true",
		"custom.timeout.CountryFacade": "1s",
	}), timeout.WithPrefix("custom"))

	assert.True(t, p.InterruptOnTimeout())
	spec := p.SpecFor("AnyOperation", operation.Write)
	assert.True(t, spec.InterruptOnTimeout)
	assert.Equal(t, time.Second, spec.Timeout)
}

func TestResolveIsMemoized(t *testing.T) {
	src := &countingSource{props: properties.FromMap(map[string]string{
		"migrator.timeout.CountryFacade": "400",
	})}
	p := timeout.New("CountryFacade", src)
	afterConstruction := src.lookups.Load()

	first := p.Resolve("GetCountry", operation.Read, timeout.Timeout)
	afterFirst := src.lookups.Load()
	require.Greater(t, afterFirst, afterConstruction)

	for i := 0; i < 10; i++ {
		assert.Equal(t, first, p.Resolve("GetCountry", operation.Read, timeout.Timeout))
	}
	assert.Equal(t, afterFirst, src.lookups.Load())
}

func TestMalformedValueFallsThrough(t *testing.T) {
	buf := &bytes.Buffer{}
	p := timeout.New("CountryFacade", properties.FromMap(map[string]string{
		"migrator.timeout.CountryFacade.GetCountry": "soon",
		"migrator.timeout.CountryFacade":            "700",
	}), timeout.WithLogger(logger.New(slog.NewTextHandler(buf, nil))))

	assert.Equal(t, 700*time.Millisecond, p.Resolve("GetCountry", operation.Read, timeout.Timeout))
	assert.Contains(t, buf.String(), "malformed timeout property")
}

func TestWithDefaultTimeout(t *testing.T) {
	p := timeout.New("CountryFacade", nil, timeout.WithDefaultTimeout(50*time.Millisecond))

	assert.Equal(t, 50*time.Millisecond, p.Resolve("GetCountry", operation.Read, timeout.Timeout))
	assert.Equal(t, 100*time.Millisecond, p.Resolve("GetCountry", operation.Read, timeout.SlowWarning))
}
