package decision_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/migrator/pkg/constants"
	"github.com/surrealdb/migrator/pkg/decision"
	"github.com/surrealdb/migrator/pkg/operation"
	"github.com/surrealdb/migrator/pkg/properties"
)

func TestPhaseDecisions(t *testing.T) {
	testCases := []struct {
		phase decision.Phase
		read  decision.Decision
		write decision.Decision
	}{
		{
			phase: decision.PhaseSourceOnly,
			read:  decision.Decision{CallSource: true},
			write: decision.Decision{CallSource: true},
		},
		{
			phase: decision.PhaseDualRead,
			read:  decision.Decision{CallSource: true, CallDestination: true, VerifyConsistency: true},
			write: decision.Decision{CallSource: true},
		},
		{
			phase: decision.PhaseDualWrite,
			read:  decision.Decision{CallSource: true, CallDestination: true, VerifyConsistency: true},
			write: decision.Decision{CallSource: true, CallDestination: true, VerifyConsistency: true},
		},
		{
			phase: decision.PhaseDestinationRead,
			read:  decision.Decision{CallSource: true, CallDestination: true},
			write: decision.Decision{CallSource: true, CallDestination: true, VerifyConsistency: true},
		},
		{
			phase: decision.PhaseDestinationOnly,
			read:  decision.Decision{CallDestination: true, DestinationOnly: true},
			write: decision.Decision{CallDestination: true, DestinationOnly: true},
		},
	}
	for _, tc := range testCases {
		t.Run(string(tc.phase), func(t *testing.T) {
			p, err := decision.NewPhaseProvider(tc.phase)
			require.NoError(t, err)

			tc.read.Phase = tc.phase
			tc.write.Phase = tc.phase
			assert.Equal(t, tc.read, p.Decide(context.Background(), "CountryFacade", operation.Read))
			assert.Equal(t, tc.write, p.Decide(context.Background(), "CountryFacade", operation.Write))
		})
	}
}

func TestPhaseTransitions(t *testing.T) {
	p, err := decision.NewPhaseProvider(decision.PhaseSourceOnly)
	require.NoError(t, err)

	var seen [][2]decision.Phase
	p.Observe(func(from, to decision.Phase) {
		seen = append(seen, [2]decision.Phase{from, to})
	})

	require.NoError(t, p.SetPhase(decision.PhaseDualRead))
	require.NoError(t, p.SetPhase(decision.PhaseDualWrite))

	err = p.SetPhase(decision.PhaseDestinationOnly)
	require.ErrorIs(t, err, constants.ErrInvalidPhaseTransition)
	assert.Equal(t, decision.PhaseDualWrite, p.Phase())

	// Rolling back may skip phases.
	require.NoError(t, p.SetPhase(decision.PhaseSourceOnly))
	require.NoError(t, p.SetPhase(decision.PhaseSourceOnly))

	assert.Equal(t, [][2]decision.Phase{
		{decision.PhaseSourceOnly, decision.PhaseDualRead},
		{decision.PhaseDualRead, decision.PhaseDualWrite},
		{decision.PhaseDualWrite, decision.PhaseSourceOnly},
	}, seen)

	assert.ErrorIs(t, p.SetPhase("bogus"), constants.ErrInvalidPhase)
}

func TestNewPhaseProviderRejectsUnknownPhase(t *testing.T) {
	_, err := decision.NewPhaseProvider("halfway")
	assert.ErrorIs(t, err, constants.ErrInvalidPhase)
}

func TestParsePhase(t *testing.T) {
	p, err := decision.ParsePhase(" Dual_Write ")
	require.NoError(t, err)
	assert.Equal(t, decision.PhaseDualWrite, p)
	assert.True(t, decision.PhaseDualRead.Before(decision.PhaseDestinationOnly))
	assert.Len(t, decision.Phases(), 5)

	_, err = decision.ParsePhase("later")
	assert.ErrorIs(t, err, constants.ErrInvalidPhase)
}

func TestFlagProvider(t *testing.T) {
	flags := decision.PropertyFlags(properties.FromMap(map[string]string{
		"flags.CountryFacade.read.source":       "true",
		"flags.CountryFacade.read.destination":  "true",
		"flags.CountryFacade.read.verify":       "true",
		"flags.CountryFacade.write.destination": "true",
		"flags.OtherFacade.read.source":         "maybe",
	}), "flags")
	p := decision.NewFlagProvider(flags)
	ctx := context.Background()

	assert.Equal(t,
		decision.Decision{CallSource: true, CallDestination: true, VerifyConsistency: true},
		p.Decide(ctx, "CountryFacade", operation.Read))
	assert.Equal(t,
		decision.Decision{CallDestination: true, DestinationOnly: true},
		p.Decide(ctx, "CountryFacade", operation.Write))
	assert.Equal(t,
		decision.Decision{CallSource: true},
		p.Decide(ctx, "OtherFacade", operation.Read))
}

func TestFlagProviderIsNotCached(t *testing.T) {
	enabled := false
	p := decision.NewFlagProvider(decision.FlagsFunc(func(_ context.Context, key string) bool {
		return enabled && key == "C.read.destination"
	}))

	assert.False(t, p.Decide(context.Background(), "C", operation.Read).CallDestination)
	enabled = true
	assert.True(t, p.Decide(context.Background(), "C", operation.Read).CallDestination)
}
