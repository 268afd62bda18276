package migrator

import (
	"context"
	"reflect"
	"time"

	"github.com/surrealdb/migrator/internal/pool"
	"github.com/surrealdb/migrator/pkg/constants"
	"github.com/surrealdb/migrator/pkg/decision"
	"github.com/surrealdb/migrator/pkg/events"
	"github.com/surrealdb/migrator/pkg/idstore"
	"github.com/surrealdb/migrator/pkg/operation"
	"github.com/surrealdb/migrator/pkg/timeout"
)

// Invoke calls operation name with args on the stores the current decision
// selects and returns the authoritative result.
//
// Errors returned by the source handler are returned unchanged. Destination
// failures and timeouts are masked by the source result when there is one,
// unless the decision is destination only, and otherwise returned as they
// are, or as a *TimeoutError.
func Invoke[A, R any](ctx context.Context, f *Facade, name string, args A) (R, error) {
	var zero R
	c, err := newCall[A, R](f, name, args)
	if err != nil {
		return zero, err
	}
	return c.run(ctx)
}

func newCall[A, R any](f *Facade, name string, args A) (*call[A, R], error) {
	reg, err := lookup[A, R](f, name)
	if err != nil {
		return nil, err
	}
	if f.closed.Load() {
		return nil, &OperationError{Component: f.component, Operation: name, Err: constants.ErrClosed}
	}
	return &call[A, R]{
		f:   f,
		reg: reg,
		desc: operation.Descriptor{
			Component:  f.component,
			Name:       name,
			Kind:       reg.spec.Kind,
			Args:       []any{args},
			ResultType: reflect.TypeFor[R](),
		},
		args: args,
	}, nil
}

// call is the state of one Invoke.
type call[A, R any] struct {
	f    *Facade
	reg  *registration[A, R]
	desc operation.Descriptor
	args A

	decision decision.Decision
	spec     timeout.Spec

	future    *pool.Future[R]
	dstCtx    context.Context
	cancelDst context.CancelCauseFunc
	dstStart  time.Time
}

func (c *call[A, R]) event() events.Call {
	return events.Call{Component: c.desc.Component, Operation: c.desc.Name, Kind: c.desc.Kind}
}

func (c *call[A, R]) run(ctx context.Context) (R, error) {
	var zero R
	f := c.f

	c.decision = pin(f.provider.Decide(ctx, f.component, c.desc.Kind), c.reg.spec.Target)
	c.spec = f.policy.SpecFor(c.desc.Name, c.desc.Kind)
	f.logger.Debug("facade call",
		"operation", c.desc.String(),
		"source", c.decision.CallSource,
		"destination", c.decision.CallDestination,
		"verify", c.decision.VerifyConsistency,
	)

	owner, hostOwned := idstore.OwnerFrom(ctx)
	if !hostOwned {
		owner = idstore.NewOwner()
		defer f.ids.Release(owner)
	}
	// Tokens left behind by an earlier call with the same owner are dropped.
	f.ids.Clear(owner)
	callCtx := f.ids.Bind(ctx, owner)
	defer idstore.Seal(callCtx)

	parallel := c.reg.spec.Mode == operation.Parallel
	if !c.decision.CallSource {
		// Nothing will be pushed: pops must fail instead of waiting.
		idstore.Seal(callCtx)
	}
	if c.decision.CallDestination && parallel {
		c.submit(ctx, callCtx)
	}
	defer c.release()

	var (
		srcResult  R
		haveSource bool
		srcElapsed time.Duration
	)
	// fallback reports whether the source result may stand in for a failed
	// or late destination.
	fallback := func() bool {
		return haveSource && !c.decision.DestinationOnly
	}
	if c.decision.CallSource {
		start := f.clock.Now()
		res, err := c.reg.source(callCtx, c.args)
		srcElapsed = f.clock.Now().Sub(start)
		idstore.Seal(callCtx)
		if err != nil {
			if c.future != nil && c.desc.Kind == operation.Read {
				c.cancelDst(err)
			}
			return zero, err
		}
		srcResult, haveSource = res, true
	}

	if !c.decision.CallDestination {
		return srcResult, nil
	}
	if c.future == nil {
		c.submit(ctx, callCtx)
	}

	wait := c.spec.Timeout
	if haveSource && srcElapsed > wait {
		wait = srcElapsed
	}
	dstResult, timedOut, dstErr := c.await(ctx, wait)

	if timedOut {
		interrupted := c.spec.InterruptOnTimeout && c.desc.Kind == operation.Read
		if interrupted {
			c.cancelDst(constants.ErrInterrupted)
		}
		f.sink.Timeout(ctx, events.TimeoutEvent{
			Call:        c.event(),
			Wait:        wait,
			Interrupted: interrupted,
			FellBack:    fallback(),
		})
		terr := &TimeoutError{Component: c.desc.Component, Operation: c.desc.Name, Wait: wait}
		if !fallback() {
			return zero, terr
		}
		f.sink.Swallowed(ctx, events.SwallowedEvent{Call: c.event(), Err: terr})
		return srcResult, nil
	}

	if dstErr != nil {
		if !fallback() {
			return zero, dstErr
		}
		f.sink.Swallowed(ctx, events.SwallowedEvent{Call: c.event(), Err: dstErr})
		return srcResult, nil
	}

	if !haveSource {
		return dstResult, nil
	}
	if !c.decision.VerifyConsistency {
		return dstResult, nil
	}

	res := f.evaluator.Compare(c.desc.Name, c.reg.spec.rules(), srcResult, dstResult)
	if res.Passed {
		return dstResult, nil
	}
	f.sink.Inconsistent(ctx, events.InconsistencyEvent{Call: c.event(), Result: res})
	if f.tieBreak(c.decision) == Destination {
		return dstResult, nil
	}
	return srcResult, nil
}

// submit schedules the destination handler. Writes run detached from the
// caller's cancellation so they are never cut off mid-flight.
func (c *call[A, R]) submit(ctx, callCtx context.Context) {
	base := ctx
	if c.desc.Kind == operation.Write {
		base = context.WithoutCancel(ctx)
	}
	dctx, cancel := context.WithCancelCause(base)
	dctx = idstore.CopyFrom(dctx, callCtx)

	c.dstCtx = dctx
	c.cancelDst = cancel
	c.dstStart = c.f.clock.Now()
	c.future = pool.Submit(c.f.pool, dctx, func(ctx context.Context) (R, error) {
		defer cancel(context.Canceled)
		return c.reg.destination(ctx, c.args)
	})
}

// release cancels the destination context once the future has finished.
// A task that is still running cancels it itself; a task the pool never ran
// would otherwise leave it open.
func (c *call[A, R]) release() {
	if c.future == nil {
		return
	}
	select {
	case <-c.future.Done():
		c.cancelDst(context.Canceled)
	default:
	}
}

// await waits for the destination result. A non-positive timeout waits
// without bound; the caller's context still ends the wait.
func (c *call[A, R]) await(ctx context.Context, wait time.Duration) (R, bool, error) {
	var zero R
	var expired <-chan time.Time
	if !c.spec.Unbounded() {
		timer := c.f.clock.NewTimer(wait)
		defer timer.Stop()
		expired = timer.Chan()
	}

	select {
	case <-c.future.Done():
		res, err := c.future.Result()
		if err == nil {
			c.checkSlow(ctx)
		}
		return res, false, err
	case <-expired:
		return zero, true, nil
	case <-ctx.Done():
		if c.desc.Kind == operation.Read {
			c.cancelDst(context.Cause(ctx))
		}
		return zero, false, context.Cause(ctx)
	}
}

func (c *call[A, R]) checkSlow(ctx context.Context) {
	elapsed := c.f.clock.Now().Sub(c.dstStart)
	if c.spec.SlowWarning > 0 && elapsed > c.spec.SlowWarning {
		c.f.sink.SlowCall(ctx, events.SlowCallEvent{
			Call:      c.event(),
			Elapsed:   elapsed,
			Threshold: c.spec.SlowWarning,
		})
	}
}

// pin applies an operation's fixed target to the phase decision.
func pin(d decision.Decision, target operation.Target) decision.Decision {
	switch target {
	case operation.TargetSourceOnly:
		d.CallSource = true
		d.CallDestination = false
		d.VerifyConsistency = false
		d.DestinationOnly = false
	case operation.TargetDestinationOnly:
		d.CallSource = false
		d.CallDestination = true
		d.VerifyConsistency = false
		d.DestinationOnly = true
	}
	if !d.CallSource && !d.CallDestination {
		d.CallSource = true
	}
	return d
}
