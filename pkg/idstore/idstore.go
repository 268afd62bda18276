// Package idstore hands identifiers generated by the source call over to the
// destination call of the same facade invocation.
//
// The typical user is a create operation: the source store generates a key,
// the source handler pushes it, and the destination handler pops it so both
// stores end up with the same key.
//
//	// source handler
//	id, err := legacy.Insert(ctx, country)
//	if err != nil {
//		return nil, err
//	}
//	idstore.Push(ctx, id)
//
//	// destination handler
//	id, err := idstore.PopAs[int64](ctx)
//	if err != nil {
//		return nil, err
//	}
//	return next.InsertWithID(ctx, id, country)
//
// Slots are keyed by an [Owner], the per-call identity carried in the context.
// The facade clears the owner's slot when a top-level call starts, so tokens
// abandoned by a failed earlier call that reused the same owner are never
// consumed. From the destination's point of view a slot goes through
// WAITING_FOR_COPY, TOKENS_AVAILABLE and DONE; a pop that finds nothing after
// the source call has finished fails with [*MissingTokenError] and is not retried.
package idstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/surrealdb/migrator/internal/rand"
	"github.com/surrealdb/migrator/pkg/constants"
)

// Owner identifies the top-level call a slot belongs to.
type Owner string

// NewOwner returns a random owner for a call that did not bring its own.
func NewOwner() Owner {
	return Owner(rand.NewCallID(rand.CallIDLength))
}

// MissingTokenError is returned by Pop when the producer finished without
// pushing the token the consumer expected.
type MissingTokenError struct {
	Owner Owner
}

func (e *MissingTokenError) Error() string {
	return fmt.Sprintf("no identifier was shared for call %s: the source call finished without pushing one", e.Owner)
}

func (e *MissingTokenError) Unwrap() error {
	return constants.ErrNoToken
}

// NotBoundError is returned when Push or Pop is used outside a facade call.
type NotBoundError struct{}

func (NotBoundError) Error() string {
	return "context is not bound to a shared identifier slot"
}

type slot struct {
	mu     sync.Mutex
	tokens []any
	sealed bool
	notify chan struct{}
}

func newSlot() *slot {
	return &slot{notify: make(chan struct{})}
}

// wake must be called with mu held.
func (sl *slot) wake() {
	close(sl.notify)
	sl.notify = make(chan struct{})
}

func (sl *slot) push(token any) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.tokens = append(sl.tokens, token)
	sl.wake()
}

func (sl *slot) seal() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.sealed {
		return
	}
	sl.sealed = true
	sl.wake()
}

func (sl *slot) pop(ctx context.Context, owner Owner) (any, error) {
	for {
		sl.mu.Lock()
		if len(sl.tokens) > 0 {
			token := sl.tokens[0]
			sl.tokens = sl.tokens[1:]
			sl.mu.Unlock()
			return token, nil
		}
		if sl.sealed {
			sl.mu.Unlock()
			return nil, &MissingTokenError{Owner: owner}
		}
		ch := sl.notify
		sl.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	}
}

func (sl *slot) len() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.tokens)
}

// Store holds one slot per owner. One Store is shared by the source and
// destination handlers of a facade.
type Store struct {
	mu    sync.Mutex
	slots map[Owner]*slot
}

func New() *Store {
	return &Store{slots: make(map[Owner]*slot)}
}

func (s *Store) get(owner Owner) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[owner]
	if !ok {
		sl = newSlot()
		s.slots[owner] = sl
	}
	return sl
}

// Clear drops whatever the owner's slot holds. Handlers still holding the old
// slot keep it; new bindings get a fresh one.
func (s *Store) Clear(owner Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, owner)
}

// Release is Clear under the name used when a call ends.
func (s *Store) Release(owner Owner) {
	s.Clear(owner)
}

// Bind returns a context whose Push and Pop calls use the owner's slot.
func (s *Store) Bind(ctx context.Context, owner Owner) context.Context {
	return context.WithValue(ctx, bindingKey{}, &binding{owner: owner, slot: s.get(owner)})
}

// Len reports how many tokens the owner's slot holds.
func (s *Store) Len(owner Owner) int {
	s.mu.Lock()
	sl, ok := s.slots[owner]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return sl.len()
}

// Owners returns how many slots are live, for leak checks.
func (s *Store) Owners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

type bindingKey struct{}

type binding struct {
	owner Owner
	slot  *slot
}

func bindingFrom(ctx context.Context) (*binding, error) {
	b, ok := ctx.Value(bindingKey{}).(*binding)
	if !ok {
		return nil, NotBoundError{}
	}
	return b, nil
}

// CopyFrom binds ctx to the slot src is bound to, by reference: tokens pushed
// through src later are visible through the returned context. The destination
// worker calls it with the context of the call it belongs to. If src is not
// bound, ctx is returned unchanged.
func CopyFrom(ctx, src context.Context) context.Context {
	b, err := bindingFrom(src)
	if err != nil {
		return ctx
	}
	return context.WithValue(ctx, bindingKey{}, b)
}

// Push appends token to the slot ctx is bound to.
func Push(ctx context.Context, token any) error {
	b, err := bindingFrom(ctx)
	if err != nil {
		return err
	}
	b.slot.push(token)
	return nil
}

// Pop removes the oldest token from the slot ctx is bound to. While the
// producer is still running Pop waits for it; once it finished an empty slot
// is a *MissingTokenError.
func Pop(ctx context.Context) (any, error) {
	b, err := bindingFrom(ctx)
	if err != nil {
		return nil, err
	}
	return b.slot.pop(ctx, b.owner)
}

// Seal marks the producer of the slot ctx is bound to as finished: pops on
// an empty slot fail instead of waiting. Sealing twice is a no-op.
func Seal(ctx context.Context) {
	if b, err := bindingFrom(ctx); err == nil {
		b.slot.seal()
	}
}

// PopAs pops and asserts the token type.
func PopAs[T any](ctx context.Context) (T, error) {
	var zero T
	token, err := Pop(ctx)
	if err != nil {
		return zero, err
	}
	v, ok := token.(T)
	if !ok {
		return zero, fmt.Errorf("shared identifier has type %T, want %T", token, zero)
	}
	return v, nil
}

type ownerKey struct{}

// WithOwner makes ctx carry a caller-chosen owner. Hosts that map calls onto a
// fixed set of identities (worker ids, connection ids) use it; the facade
// otherwise generates a fresh owner per call.
func WithOwner(ctx context.Context, owner Owner) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the owner set by WithOwner.
func OwnerFrom(ctx context.Context) (Owner, bool) {
	owner, ok := ctx.Value(ownerKey{}).(Owner)
	return owner, ok
}

// BoundOwner returns the owner of the slot ctx is bound to.
func BoundOwner(ctx context.Context) (Owner, bool) {
	b, err := bindingFrom(ctx)
	if err != nil {
		return "", false
	}
	return b.owner, true
}
