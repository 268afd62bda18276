package migrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/surrealdb/migrator/internal/pool"
	"github.com/surrealdb/migrator/pkg/consistency"
	"github.com/surrealdb/migrator/pkg/decision"
	"github.com/surrealdb/migrator/pkg/events"
	"github.com/surrealdb/migrator/pkg/idstore"
	"github.com/surrealdb/migrator/pkg/logger"
	"github.com/surrealdb/migrator/pkg/properties"
	"github.com/surrealdb/migrator/pkg/timeout"
)

// Side names one of the two stores.
type Side int

const (
	Source Side = iota
	Destination
)

func (s Side) String() string {
	if s == Destination {
		return "destination"
	}
	return "source"
}

// TieBreak picks the result returned when both results were compared and
// differ.
type TieBreak func(d decision.Decision) Side

// SourceWins is the default tie-break: the source stays authoritative in
// every phase.
func SourceWins(decision.Decision) Side {
	return Source
}

// DestinationWinsFrom trusts the destination once the migration has reached
// phase. Decisions that carry no phase keep the source.
func DestinationWinsFrom(phase decision.Phase) TieBreak {
	return func(d decision.Decision) Side {
		if d.Phase.Valid() && !d.Phase.Before(phase) {
			return Destination
		}
		return Source
	}
}

// Facade dispatches registered operations to a source and a destination
// store. It is safe for concurrent use.
type Facade struct {
	component string
	provider  decision.Provider
	policy    *timeout.Policy
	ids       *idstore.Store
	evaluator *consistency.Evaluator
	sink      events.Sink
	pool      *pool.Pool
	clock     clock.Clock
	tieBreak  TieBreak
	logger    logger.Logger

	mu     sync.RWMutex
	ops    map[string]invoker
	closed atomic.Bool
}

type config struct {
	provider       decision.Provider
	props          properties.Source
	policy         *timeout.Policy
	defaultTimeout time.Duration
	evaluator      *consistency.Evaluator
	sink           events.Sink
	listeners      []events.Sink
	poolSize       int
	clock          clock.Clock
	tieBreak       TieBreak
	logger         logger.Logger
}

type Option func(*config)

// WithDecisionProvider sets who decides which stores a call uses. The default
// keeps every call on the source.
func WithDecisionProvider(p decision.Provider) Option {
	return func(c *config) {
		c.provider = p
	}
}

// WithProperties sets the configuration the timeout policy reads.
func WithProperties(src properties.Source) Option {
	return func(c *config) {
		c.props = src
	}
}

// WithTimeoutPolicy replaces the policy built from WithProperties.
func WithTimeoutPolicy(p *timeout.Policy) Option {
	return func(c *config) {
		c.policy = p
	}
}

// WithDefaultTimeout replaces the 2000ms applied when no property matches.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *config) {
		c.defaultTimeout = d
	}
}

func WithEvaluator(e *consistency.Evaluator) Option {
	return func(c *config) {
		c.evaluator = e
	}
}

// WithSink replaces the default logging sink.
func WithSink(s events.Sink) Option {
	return func(c *config) {
		c.sink = s
	}
}

// WithListener adds a listener told about every swallowed destination failure.
func WithListener(l events.Listener) Option {
	return func(c *config) {
		c.listeners = append(c.listeners, events.ListenerSink(l))
	}
}

// WithPoolSize bounds the number of concurrent destination calls. Calls
// beyond the bound queue. Zero, the default, means unbounded.
func WithPoolSize(n int) Option {
	return func(c *config) {
		c.poolSize = n
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *config) {
		c.clock = clk
	}
}

func WithTieBreak(t TieBreak) Option {
	return func(c *config) {
		c.tieBreak = t
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// New creates the facade of component. The component name keys the timeout
// properties and the flags of a FlagProvider.
func New(component string, opts ...Option) (*Facade, error) {
	if component == "" {
		return nil, errors.New("migrator: component name is required")
	}

	c := &config{
		clock:    clock.WallClock,
		tieBreak: SourceWins,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logger.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if c.provider == nil {
		p, err := decision.NewPhaseProvider(decision.PhaseSourceOnly)
		if err != nil {
			return nil, err
		}
		c.provider = p
	}
	if c.policy == nil {
		policyOpts := []timeout.Option{timeout.WithLogger(c.logger)}
		if c.defaultTimeout != 0 {
			policyOpts = append(policyOpts, timeout.WithDefaultTimeout(c.defaultTimeout))
		}
		c.policy = timeout.New(component, c.props, policyOpts...)
	}
	if c.evaluator == nil {
		c.evaluator = consistency.New()
	}
	if c.sink == nil {
		c.sink = events.NewLogSink(c.logger)
	}

	return &Facade{
		component: component,
		provider:  c.provider,
		policy:    c.policy,
		ids:       idstore.New(),
		evaluator: c.evaluator,
		sink:      events.Multi(append([]events.Sink{c.sink}, c.listeners...)...),
		pool:      pool.New(c.poolSize),
		clock:     c.clock,
		tieBreak:  c.tieBreak,
		logger:    c.logger,
		ops:       make(map[string]invoker),
	}, nil
}

func (f *Facade) Component() string {
	return f.component
}

// IDs returns the shared identifier store of the facade.
func (f *Facade) IDs() *idstore.Store {
	return f.ids
}

// Operations returns the registered operation names, sorted.
func (f *Facade) Operations() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.ops))
	for name := range f.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Spec returns how operation name was registered.
func (f *Facade) Spec(name string) (OperationSpec, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	op, ok := f.ops[name]
	if !ok {
		return OperationSpec{}, false
	}
	return op.operationSpec(), true
}

// Close rejects new calls and waits for running destination calls until ctx
// ends.
func (f *Facade) Close(ctx context.Context) error {
	f.closed.Store(true)
	return f.pool.Close(ctx)
}
