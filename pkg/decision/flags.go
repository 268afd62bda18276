package decision

import (
	"context"
	"strconv"
	"strings"

	"github.com/surrealdb/migrator/pkg/operation"
	"github.com/surrealdb/migrator/pkg/properties"
)

// Flags is the feature-flag backend a FlagProvider reads from.
type Flags interface {
	Enabled(ctx context.Context, key string) bool
}

type FlagsFunc func(ctx context.Context, key string) bool

func (f FlagsFunc) Enabled(ctx context.Context, key string) bool {
	return f(ctx, key)
}

// FlagProvider asks a flag backend three questions per call:
//
//	<component>.<read|write>.source
//	<component>.<read|write>.destination
//	<component>.<read|write>.verify
//
// With neither store enabled the source is used.
type FlagProvider struct {
	flags Flags
}

func NewFlagProvider(flags Flags) *FlagProvider {
	return &FlagProvider{flags: flags}
}

func (p *FlagProvider) Decide(ctx context.Context, component string, kind operation.Kind) Decision {
	prefix := component + "." + strings.ToLower(string(kind)) + "."

	src := p.flags.Enabled(ctx, prefix+"source")
	dst := p.flags.Enabled(ctx, prefix+"destination")
	if !src && !dst {
		src = true
	}
	return Decision{
		CallSource:        src,
		CallDestination:   dst,
		VerifyConsistency: src && dst && p.flags.Enabled(ctx, prefix+"verify"),
		DestinationOnly:   dst && !src,
	}
}

// PropertyFlags serves flags from a property source, under prefix when it is
// not empty. Missing or malformed values are disabled.
func PropertyFlags(source properties.Source, prefix string) Flags {
	return FlagsFunc(func(_ context.Context, key string) bool {
		if prefix != "" {
			key = prefix + "." + key
		}
		raw, ok := source.Lookup(key)
		if !ok {
			return false
		}
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		return err == nil && b
	})
}
