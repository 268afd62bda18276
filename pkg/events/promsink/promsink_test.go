package promsink_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/migrator/pkg/events"
	"github.com/surrealdb/migrator/pkg/events/promsink"
	"github.com/surrealdb/migrator/pkg/operation"
)

func TestSinkCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := promsink.New(reg, "migrator")
	require.NoError(t, err)

	ctx := context.Background()
	call := events.Call{Component: "CountryFacade", Operation: "GetCountry", Kind: operation.Read}

	sink.Inconsistent(ctx, events.InconsistencyEvent{Call: call})
	sink.Inconsistent(ctx, events.InconsistencyEvent{Call: call})
	sink.SlowCall(ctx, events.SlowCallEvent{Call: call, Elapsed: 3 * time.Second})
	sink.Timeout(ctx, events.TimeoutEvent{Call: call, Interrupted: true})
	sink.Swallowed(ctx, events.SwallowedEvent{Call: call, Err: errors.New("boom")})

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	expected := `
# HELP migrator_facade_inconsistencies_total Calls whose source and destination results differed.
# TYPE migrator_facade_inconsistencies_total counter
migrator_facade_inconsistencies_total{component="CountryFacade",kind="READ",operation="GetCountry"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "migrator_facade_inconsistencies_total"))
}

func TestSinkRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := promsink.New(reg, "migrator")
	require.NoError(t, err)

	_, err = promsink.New(reg, "migrator")
	assert.Error(t, err)
}
