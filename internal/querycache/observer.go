package querycache

import (
	"context"
	"sync"
	"time"

	"github.com/pitabwire/storedesk/internal/querykey"
)

// Status is the lifecycle state of an observed read.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

// String returns the lower-case status name.
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// State is what a view renders: the data, the lifecycle status and the
// last error. While a new key loads, Data keeps the previous response.
type State[T any] struct {
	Key       querykey.Key
	Data      T
	Status    Status
	Err       error
	UpdatedAt time.Time
}

// IsLoading reports whether a request for Key is outstanding.
func (s State[T]) IsLoading() bool { return s.Status == StatusLoading }

// IsError reports whether the last request for Key failed.
func (s State[T]) IsError() bool { return s.Status == StatusError }

// Observer follows one read on behalf of a view. Each Observe call tags its
// request; a response for a request that is no longer the latest, or that
// arrives after Close, is discarded.
type Observer[T any] struct {
	client   *Client
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	seq      uint64
	state    State[T]
	closed   bool
	onChange func(State[T])
	wg       sync.WaitGroup
}

// NewObserver returns an idle observer. onChange, if set, runs after every
// state transition the observer accepts.
func NewObserver[T any](ctx context.Context, c *Client, onChange func(State[T])) *Observer[T] {
	ctx, cancel := context.WithCancel(ctx)
	return &Observer[T]{
		client:   c,
		ctx:      ctx,
		cancel:   cancel,
		onChange: onChange,
	}
}

// Observe switches the observer to key and starts loading it.
func (o *Observer[T]) Observe(key querykey.Key, fetch func(context.Context) (T, error)) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.seq++
	seq := o.seq
	o.state.Key = key
	o.state.Status = StatusLoading
	o.state.Err = nil
	snapshot := o.state
	o.mu.Unlock()
	o.notify(snapshot)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		data, err := Fetch(o.ctx, o.client, key, fetch)
		o.settle(seq, data, err)
	}()
}

func (o *Observer[T]) settle(seq uint64, data T, err error) {
	o.mu.Lock()
	if o.closed || seq != o.seq {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.state.Status = StatusError
		o.state.Err = err
	} else {
		o.state.Status = StatusSuccess
		o.state.Data = data
	}
	o.state.UpdatedAt = time.Now()
	snapshot := o.state
	o.mu.Unlock()
	o.notify(snapshot)
}

func (o *Observer[T]) notify(s State[T]) {
	if o.onChange != nil {
		o.onChange(s)
	}
}

// State returns the current state.
func (o *Observer[T]) State() State[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Wait blocks until every request started by Observe has settled.
func (o *Observer[T]) Wait() {
	o.wg.Wait()
}

// Close detaches the observer. Outstanding responses are discarded; shared
// fetches keep running for their other callers.
func (o *Observer[T]) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
}
