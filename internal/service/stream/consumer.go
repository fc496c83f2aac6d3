// Package stream consumes one answer over a websocket channel addressed by
// a single-use attach token. Fragments arrive with no boundary semantics;
// only the accumulator, never a single fragment, is observable.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State enumerates the consumer's life cycle. Transitions only ever move
// forward: Idle -> Connecting -> Streaming -> Closed.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateClosedSuccess
	StateClosedError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosedSuccess:
		return "closed(success)"
	case StateClosedError:
		return "closed(error)"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrConsumerSpent means Run was called twice on one consumer. Each flow
// owns a fresh consumer; a spent one never reconnects.
var ErrConsumerSpent = errors.New("stream consumer already ran")

// ChannelError wraps a streaming-transport failure. The partial accumulator
// is never persisted after one of these.
type ChannelError struct {
	Err error
}

func (e *ChannelError) Error() string {
	return "stream channel failed: " + e.Err.Error()
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// Consumer drives a single streaming session.
type Consumer struct {
	dialer *websocket.Dialer

	mu    sync.Mutex
	state State
	buf   strings.Builder
	spent bool
}

// NewConsumer builds an idle consumer.
func NewConsumer() *Consumer {
	return &Consumer{
		dialer: &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
	}
}

// State returns the current state machine position.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Accumulated returns the fragments received so far, in delivery order.
func (c *Consumer) Accumulated() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// Run dials url and consumes fragments until the channel closes. A graceful
// close yields the final accumulator; any transport failure yields the
// partial text alongside a ChannelError so the caller can show it as a
// failure indicator without ever persisting it. onFragment, when non-nil,
// observes the accumulator after each fragment. Cancelling ctx closes the
// channel on the teardown path.
func (c *Consumer) Run(ctx context.Context, url string, onFragment func(accum string)) (string, error) {
	c.mu.Lock()
	if c.spent {
		c.mu.Unlock()
		return "", ErrConsumerSpent
	}
	c.spent = true
	c.state = StateConnecting
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.setState(StateClosedError)
		return "", &ChannelError{Err: err}
	}

	// Release the listener binding on every exit path, including panics
	// in onFragment.
	defer conn.Close()

	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watcherDone:
		}
	}()

	for {
		_, data, readErr := conn.ReadMessage()
		if readErr != nil {
			if ctx.Err() == nil && websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.setState(StateClosedSuccess)
				return c.Accumulated(), nil
			}
			c.setState(StateClosedError)
			if ctx.Err() != nil {
				return c.Accumulated(), &ChannelError{Err: ctx.Err()}
			}
			return c.Accumulated(), &ChannelError{Err: readErr}
		}

		c.mu.Lock()
		c.buf.Write(data)
		c.state = StateStreaming
		accum := c.buf.String()
		c.mu.Unlock()

		if onFragment != nil {
			onFragment(accum)
		}
	}
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
