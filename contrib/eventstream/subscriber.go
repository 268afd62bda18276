package eventstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"
	"github.com/juju/clock"

	"github.com/surrealdb/migrator/internal/retry"
	"github.com/surrealdb/migrator/pkg/logger"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateClosed:
		return "Closed"
	default:
		return "InvalidState"
	}
}

// Subscriber follows a hub from another process. A lost connection is
// dialled again according to its retry strategy.
type Subscriber struct {
	url    string
	dialer *gorilla.Dialer
	retry  retry.Strategy
	clock  clock.Clock
	logger logger.Logger

	mu    sync.Mutex
	state State
}

type SubscriberOption func(*Subscriber)

// WithRetry replaces the default strategy, which gives up after eight
// failed dials in a row.
func WithRetry(s retry.Strategy) SubscriberOption {
	return func(sub *Subscriber) {
		sub.retry = s
	}
}

func WithSubscriberClock(clk clock.Clock) SubscriberOption {
	return func(sub *Subscriber) {
		sub.clock = clk
	}
}

func WithSubscriberLogger(l logger.Logger) SubscriberOption {
	return func(sub *Subscriber) {
		sub.logger = l
	}
}

// NewSubscriber creates a subscriber for the hub served at url (ws:// or
// wss://).
func NewSubscriber(url string, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		url: url,
		dialer: &gorilla.Dialer{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: true,
		},
		retry:  retry.NewBackoff(),
		clock:  clock.WallClock,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Subscriber) setState(state State) {
	s.mu.Lock()
	from := s.state
	s.state = state
	s.mu.Unlock()
	if from != state {
		s.logger.Debug("eventstream subscriber state changed", "from", from, "to", state)
	}
}

type handlerError struct {
	err error
}

func (e *handlerError) Error() string {
	return e.err.Error()
}

// Run passes every message to fn until ctx ends, fn returns an error or the
// retry strategy gives up. The end of ctx is not an error; an error from fn
// is returned as it is.
func (s *Subscriber) Run(ctx context.Context, fn func(Message) error) error {
	defer s.setState(StateClosed)

	for attempt := 0; ; {
		s.setState(StateConnecting)
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err == nil {
			attempt = 0
			s.setState(StateConnected)
			err = s.read(ctx, conn, fn)
		}
		s.setState(StateDisconnected)

		if ctx.Err() != nil {
			return nil
		}
		var herr *handlerError
		if errors.As(err, &herr) {
			return herr.err
		}

		delay, ok := s.retry.NextDelay(attempt, err)
		attempt++
		if !ok {
			return fmt.Errorf("eventstream: giving up after %d attempts: %w", attempt, err)
		}
		s.logger.Warn("eventstream connection lost, redialling", "url", s.url, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-s.clock.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Subscriber) read(ctx context.Context, conn *gorilla.Conn, fn func(Message) error) error {
	stop := make(chan struct{})
	defer close(stop)
	defer conn.Close()

	go func() {
		select {
		case <-ctx.Done():
			msg := gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")
			_ = conn.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(writeTimeout))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var m Message
		if err := gojson.Unmarshal(data, &m); err != nil {
			s.logger.Warn("skipping malformed eventstream message", "error", err)
			continue
		}
		if err := fn(m); err != nil {
			return &handlerError{err: err}
		}
	}
}
