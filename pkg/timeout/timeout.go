// Package timeout resolves how long the facade waits for a destination call and
// when a call is slow enough to be worth a warning.
//
// Values come from a flat property set, most specific key first:
//
//	<prefix>.<policy>.<component>.<operation>
//	<prefix>.<policy>.<component>.<READ|WRITE>
//	<prefix>.<policy>.<component>
//
// and otherwise from the process default. Values are integer milliseconds
// (a Go duration string such as "1.5s" is also accepted). A timeout of zero or
// less means the facade waits for the destination indefinitely.
package timeout

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/surrealdb/migrator/pkg/constants"
	"github.com/surrealdb/migrator/pkg/logger"
	"github.com/surrealdb/migrator/pkg/operation"
	"github.com/surrealdb/migrator/pkg/properties"
)

// PolicyType selects which of the two durations is resolved.
type PolicyType string

const (
	Timeout     PolicyType = "timeout"
	SlowWarning PolicyType = "slowwarning"
)

// Spec is what the facade needs to bound one destination call.
type Spec struct {
	Timeout            time.Duration
	SlowWarning        time.Duration
	InterruptOnTimeout bool
}

// Unbounded reports whether the call must be awaited without a deadline.
func (s Spec) Unbounded() bool {
	return s.Timeout <= 0
}

type cacheKey struct {
	policyType PolicyType
	operation  string
}

// Policy resolves timeout specs for the operations of one component.
// It is safe for concurrent use.
type Policy struct {
	component      string
	prefix         string
	source         properties.Source
	defaultTimeout time.Duration
	interrupt      bool
	logger         logger.Logger

	mu    sync.Mutex
	cache map[cacheKey]time.Duration
}

type Option func(*Policy)

func WithPrefix(prefix string) Option {
	return func(p *Policy) {
		p.prefix = prefix
	}
}

// WithDefaultTimeout replaces the process-wide default of 2000ms.
func WithDefaultTimeout(d time.Duration) Option {
	return func(p *Policy) {
		p.defaultTimeout = d
	}
}

func WithLogger(l logger.Logger) Option {
	return func(p *Policy) {
		p.logger = l
	}
}

// New builds the policy for component. The interrupt flag is read once here.
func New(component string, source properties.Source, opts ...Option) *Policy {
	if source == nil {
		source = properties.Empty()
	}
	p := &Policy{
		component:      component,
		prefix:         constants.DefaultPropertyPrefix,
		source:         source,
		defaultTimeout: constants.DefaultTimeoutMillis * time.Millisecond,
		logger:         logger.Nop(),
		cache:          make(map[cacheKey]time.Duration),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.interrupt = p.lookupBool(p.prefix + ".interruptOnTimeout")
	return p
}

func (p *Policy) Component() string {
	return p.component
}

// InterruptOnTimeout is global to the policy, not per operation.
func (p *Policy) InterruptOnTimeout() bool {
	return p.interrupt
}

// SpecFor resolves both durations for an operation.
func (p *Policy) SpecFor(op string, kind operation.Kind) Spec {
	return Spec{
		Timeout:            p.Resolve(op, kind, Timeout),
		SlowWarning:        p.Resolve(op, kind, SlowWarning),
		InterruptOnTimeout: p.interrupt,
	}
}

// Resolve walks the lookup chain for policyType. Answers are memoized per
// (policyType, operation) as configuration is not reloaded.
func (p *Policy) Resolve(op string, kind operation.Kind, policyType PolicyType) time.Duration {
	key := cacheKey{policyType: policyType, operation: op}

	p.mu.Lock()
	d, ok := p.cache[key]
	p.mu.Unlock()
	if ok {
		return d
	}

	d = p.resolve(op, kind, policyType)

	p.mu.Lock()
	p.cache[key] = d
	p.mu.Unlock()
	return d
}

func (p *Policy) resolve(op string, kind operation.Kind, policyType PolicyType) time.Duration {
	for _, key := range p.keys(op, kind, policyType) {
		if d, ok := p.lookupDuration(key); ok {
			return d
		}
	}

	if policyType == SlowWarning {
		base := p.Resolve(op, kind, Timeout)
		if base <= 0 {
			base = p.defaultTimeout
		}
		return 2 * base
	}
	return p.defaultTimeout
}

func (p *Policy) keys(op string, kind operation.Kind, policyType PolicyType) []string {
	base := fmt.Sprintf("%s.%s.%s", p.prefix, policyType, p.component)
	keys := make([]string, 0, 3)
	if op != "" {
		keys = append(keys, base+"."+op)
	}
	if kind != "" {
		keys = append(keys, base+"."+string(kind))
	}
	return append(keys, base)
}

func (p *Policy) lookupDuration(key string) (time.Duration, bool) {
	raw, ok := p.source.Lookup(key)
	if !ok {
		return 0, false
	}
	raw = strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, true
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, true
	}
	p.logger.Warn("ignoring malformed timeout property", "key", key, "value", raw)
	return 0, false
}

func (p *Policy) lookupBool(key string) bool {
	raw, ok := p.source.Lookup(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		p.logger.Warn("ignoring malformed boolean property", "key", key, "value", raw)
		return false
	}
	return b
}
