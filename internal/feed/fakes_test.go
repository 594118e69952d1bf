package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/pricefeed/internal/model"
	"github.com/rickgao/pricefeed/internal/stream"
)

// fakeClient is an in-memory stream.Client.
type fakeClient struct {
	messages chan stream.TimestampedMessage
	errors   chan error
	done     chan struct{}

	closeOnce sync.Once
	closes    atomic.Int32

	mu   sync.Mutex
	sent [][]byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages: make(chan stream.TimestampedMessage, 16),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

func (c *fakeClient) Connect(context.Context) error { return nil }

func (c *fakeClient) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeClient) Send(data []byte) error {
	select {
	case <-c.done:
		return stream.ErrNotConnected
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, data)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (c *fakeClient) Messages() <-chan stream.TimestampedMessage { return c.messages }
func (c *fakeClient) Errors() <-chan error                       { return c.errors }
func (c *fakeClient) Done() <-chan struct{}                      { return c.done }

func (c *fakeClient) IsConnected() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// push delivers a server frame.
func (c *fakeClient) push(frame string) {
	c.messages <- stream.TimestampedMessage{Data: []byte(frame), ReceivedAt: time.Now()}
}

// drop simulates the socket going away.
func (c *fakeClient) drop(err error) {
	c.errors <- err
}

func (c *fakeClient) sentFrames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, b := range c.sent {
		out[i] = string(b)
	}
	return out
}

// fakeDialer hands out fakeClients. Queued errors are returned first.
type fakeDialer struct {
	mu       sync.Mutex
	failures []error
	failAll  bool
	clients  []*fakeClient
	dials    int
}

var errDialRefused = errors.New("connection refused")

func (d *fakeDialer) Dial(ctx context.Context) (stream.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.failAll {
		return nil, errDialRefused
	}
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		return nil, err
	}

	c := newFakeClient()
	d.clients = append(d.clients, c)
	return c, nil
}

func (d *fakeDialer) setFailAll(v bool) {
	d.mu.Lock()
	d.failAll = v
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// client returns the i-th successfully dialed client, or nil.
func (d *fakeDialer) client(i int) *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < len(d.clients) {
		return d.clients[i]
	}
	return nil
}

// fakeScheduler records timers; tests fire them by hand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d time.Duration
	f func()

	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fire runs the callback unless the timer was stopped.
func (t *fakeTimer) fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	t.f()
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) timer(i int) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < len(s.timers) {
		return s.timers[i]
	}
	return nil
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.timers))
	for i, t := range s.timers {
		out[i] = t.d
	}
	return out
}

// fakeFetcher blocks until released or cancelled.
type fakeFetcher struct {
	snap    model.Snapshot
	err     error
	release chan struct{}

	calls   atomic.Int32
	aborted atomic.Bool
}

func newFakeFetcher(snap model.Snapshot, err error) *fakeFetcher {
	return &fakeFetcher{snap: snap, err: err, release: make(chan struct{})}
}

func (f *fakeFetcher) FetchSnapshot(ctx context.Context, symbol string) (model.Snapshot, error) {
	f.calls.Add(1)
	select {
	case <-f.release:
		return f.snap, f.err
	case <-ctx.Done():
		f.aborted.Store(true)
		return model.Snapshot{}, ctx.Err()
	}
}

// recObserver records every published update.
type recObserver struct {
	mu      sync.Mutex
	updates []model.Update
}

func (o *recObserver) OnUpdate(u model.Update) {
	o.mu.Lock()
	o.updates = append(o.updates, u)
	o.mu.Unlock()
}

func (o *recObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.updates)
}

func (o *recObserver) last() (model.Update, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.updates) == 0 {
		return model.Update{}, false
	}
	return o.updates[len(o.updates)-1], true
}

func (o *recObserver) all() []model.Update {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.Update(nil), o.updates...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func points(pairs ...any) model.History {
	h := make(model.History, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		h = append(h, model.NewPricePoint(int64(pairs[i].(int)), decimal.RequireFromString(pairs[i+1].(string))))
	}
	return h
}
