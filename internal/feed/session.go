package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/pricefeed/internal/cache"
	"github.com/rickgao/pricefeed/internal/model"
	"github.com/rickgao/pricefeed/internal/stream"
)

// Errors
var (
	ErrSessionClosed  = errors.New("session closed")
	ErrAlreadyStarted = errors.New("session already started")
)

// SnapshotFetcher performs the one-shot history fetch.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, symbol string) (model.Snapshot, error)
}

// Dependencies are the collaborators of a session. Any of Fetcher, Cache and
// Observer may be nil; Dialer is required.
type Dependencies struct {
	Fetcher  SnapshotFetcher
	Dialer   stream.Dialer
	Cache    *cache.HistoryCache
	Observer Observer
}

// SessionConfig tunes a session.
type SessionConfig struct {
	Backoff      Backoff
	CacheTimeout time.Duration // bound on each cache read/write
	Scheduler    Scheduler     // nil = RealScheduler
}

// DefaultSessionConfig returns the production settings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Backoff:      DefaultBackoff(),
		CacheTimeout: 2 * time.Second,
		Scheduler:    RealScheduler,
	}
}

// Status is a point-in-time view of a session, safe to read from any goroutine.
type Status struct {
	SessionID         string    `json:"session_id"`
	Symbol            string    `json:"symbol"`
	State             ConnState `json:"state"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	LatestPrice       string    `json:"latest_price,omitempty"`
	LatestTimestamp   int64     `json:"latest_timestamp,omitempty"`
	HistoryLen        int       `json:"history_len"`
	Dials             int       `json:"dials"`
}

// sessionState is owned by the event loop.
type sessionState struct {
	latestPrice decimal.NullDecimal
	latestTS    int64
	history     model.History
	conn        ConnState
	attempts    int
}

// Events posted to the loop. gen/seq tie an event to the socket or timer
// that produced it so late events from superseded ones are dropped.
type (
	fetchDone struct {
		snap model.Snapshot
		err  error
	}
	dialDone struct {
		gen    uint64
		client stream.Client
		err    error
	}
	frameIn struct {
		gen uint64
		msg stream.TimestampedMessage
	}
	connLost struct {
		gen uint64
		err error
	}
	reconnectDue struct {
		seq uint64
	}
)

// Session is one live subscription to one symbol.
type Session struct {
	id     string
	symbol string
	cfg    SessionConfig
	deps   Dependencies
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan any
	done   chan struct{}

	lifeMu  sync.Mutex
	started bool
	closed  bool

	// Loop-owned
	st          sessionState
	client      stream.Client
	gen         uint64
	timer       Timer
	timerSeq    uint64
	fetchCancel context.CancelFunc
	dials       int

	statusMu sync.RWMutex
	status   Status
	last     model.Update
}

// NewSession creates an idle session for symbol.
func NewSession(symbol string, cfg SessionConfig, deps Dependencies, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.CacheTimeout == 0 {
		cfg.CacheTimeout = DefaultSessionConfig().CacheTimeout
	}

	id := uuid.NewString()
	s := &Session{
		id:     id,
		symbol: symbol,
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("symbol", symbol, "session_id", id),
		events: make(chan any, 64),
		done:   make(chan struct{}),
		st: sessionState{
			history: model.History{},
			conn:    StateIdle,
		},
	}
	s.status = Status{SessionID: id, Symbol: symbol, State: StateIdle}
	s.last = model.Update{Symbol: symbol, History: model.History{}}
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Symbol returns the subscribed symbol.
func (s *Session) Symbol() string { return s.symbol }

// Start activates the session. Cached history, if any, is published before
// Start returns; the snapshot fetch and the stream run in the background.
// Cancelling ctx has the same effect as Close.
func (s *Session) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.lifeMu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.lifeMu.Unlock()

	s.warmStart()

	go s.run()
	return nil
}

// Close deactivates the session. It does not wait for teardown; use Wait for
// that. Calling Close more than once is a no-op.
func (s *Session) Close() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if !s.started {
		// Nothing was ever opened.
		s.st.conn = StateClosed
		s.setStatus(func(st *Status) { st.State = StateClosed })
		close(s.done)
		return
	}
	s.cancel()
}

// Done is closed once teardown has finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until teardown finished or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the latest status view.
func (s *Session) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Latest returns the most recently published update.
func (s *Session) Latest() model.Update {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	u := s.last
	u.History = u.History.Clone()
	return u
}

func (s *Session) warmStart() {
	if s.deps.Cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.CacheTimeout)
	defer cancel()

	snap, ok := s.deps.Cache.Get(ctx, s.symbol)
	if !ok {
		return
	}

	s.logger.Debug("warm start from cache",
		"points", len(snap.Points),
		"age_ms", time.Now().UnixMilli()-snap.CapturedAt,
	)
	s.st.history = snap.Points
	s.publish()
}

// run is the event loop. It is the only writer of s.st.
func (s *Session) run() {
	defer close(s.done)

	s.startFetch()
	s.connect()

	for {
		select {
		case <-s.ctx.Done():
			s.teardown()
			return
		case ev := <-s.events:
			// Teardown wins over anything queued behind it.
			if s.ctx.Err() != nil {
				s.discard(ev)
				s.teardown()
				return
			}
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev any) {
	switch e := ev.(type) {
	case fetchDone:
		s.onFetchDone(e)
	case dialDone:
		s.onDialDone(e)
	case frameIn:
		s.onFrame(e)
	case connLost:
		s.onConnLost(e.gen, e.err)
	case reconnectDue:
		s.onReconnectDue(e)
	}
}

// discard releases resources carried by an event that will not be handled.
func (s *Session) discard(ev any) {
	if d, ok := ev.(dialDone); ok && d.client != nil {
		d.client.Close()
	}
}

// post hands an event to the loop. It reports false once teardown has begun.
func (s *Session) post(ev any) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) transition(to ConnState) error {
	from := s.st.conn
	if !CanTransition(from, to) {
		s.logger.Error("rejected state transition", "from", from, "to", to)
		return ErrIllegalTransition
	}
	s.st.conn = to
	s.setStatus(func(st *Status) { st.State = to })
	s.logger.Debug("state transition", "from", from, "to", to)
	return nil
}

func (s *Session) setAttempts(n int) {
	s.st.attempts = n
	s.setStatus(func(st *Status) { st.ReconnectAttempts = n })
}

func (s *Session) setStatus(f func(*Status)) {
	s.statusMu.Lock()
	f(&s.status)
	s.statusMu.Unlock()
}

// startFetch launches the one-shot snapshot fetch.
func (s *Session) startFetch() {
	if s.deps.Fetcher == nil {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.fetchCancel = cancel

	go func() {
		snap, err := s.deps.Fetcher.FetchSnapshot(ctx, s.symbol)
		s.post(fetchDone{snap: snap, err: err})
	}()
}

func (s *Session) onFetchDone(e fetchDone) {
	if s.fetchCancel != nil {
		s.fetchCancel()
		s.fetchCancel = nil
	}

	if e.err != nil {
		s.logger.Warn("history snapshot fetch failed", "error", e.err)
		return
	}

	s.st.history = e.snap.Points.Clone()
	s.writeCache()

	if l := e.snap.Latest; l != nil && (!s.st.latestPrice.Valid || l.Timestamp > s.st.latestTS) {
		s.st.latestPrice = decimal.NewNullDecimal(l.Price)
		s.st.latestTS = l.Timestamp
	}

	s.publish()
}

// connect dials a new socket. Sockets are never reused.
func (s *Session) connect() {
	if err := s.transition(StateConnecting); err != nil {
		return
	}

	s.gen++
	s.dials++
	gen := s.gen
	dials := s.dials
	s.setStatus(func(st *Status) { st.Dials = dials })

	go func() {
		c, err := s.deps.Dialer.Dial(s.ctx)
		if !s.post(dialDone{gen: gen, client: c, err: err}) && c != nil {
			c.Close()
		}
	}()
}

func (s *Session) onDialDone(e dialDone) {
	if e.gen != s.gen || s.st.conn != StateConnecting {
		s.discard(e)
		return
	}

	if e.err != nil {
		s.logger.Warn("stream connect failed", "error", e.err)
		s.onConnLost(e.gen, e.err)
		return
	}

	s.client = e.client
	s.setAttempts(0)

	if err := s.client.SendJSON(stream.NewSubscribe(s.symbol)); err != nil {
		s.logger.Warn("subscribe failed", "error", err)
		s.onConnLost(e.gen, err)
		return
	}

	s.logger.Info("stream connected, subscribe sent")
	go s.pump(e.gen, e.client)
}

// pump forwards one socket's frames and its terminal error to the loop.
func (s *Session) pump(gen uint64, c stream.Client) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-c.Done():
			return
		case msg := <-c.Messages():
			if !s.post(frameIn{gen: gen, msg: msg}) {
				return
			}
		case err := <-c.Errors():
			// Frames read before the failure are still delivered.
			for {
				select {
				case msg := <-c.Messages():
					if !s.post(frameIn{gen: gen, msg: msg}) {
						return
					}
					continue
				default:
				}
				break
			}
			s.post(connLost{gen: gen, err: err})
			return
		}
	}
}

func (s *Session) onFrame(e frameIn) {
	if e.gen != s.gen || !s.st.conn.AcceptsMessages() {
		return
	}

	msg, err := stream.Decode(e.msg.Data)
	if err != nil {
		s.logger.Debug("dropping malformed frame", "error", err)
		return
	}

	if s.st.conn == StateConnecting {
		s.transition(StateLive)
	}

	if msg.Symbol != s.symbol {
		s.logger.Debug("ignoring frame for other symbol", "frame_symbol", msg.Symbol, "kind", msg.Kind)
		return
	}

	switch msg.Kind {
	case stream.KindHistory:
		s.st.history = msg.History
		s.writeCache()
		s.publish()
	case stream.KindPrice:
		s.st.latestPrice = decimal.NewNullDecimal(msg.Tick.Price)
		s.st.latestTS = msg.Tick.Timestamp
		s.publish()
	case stream.KindSubscribed:
		s.logger.Debug("subscription acknowledged")
	}
}

// onConnLost is the single path that schedules a reconnect.
func (s *Session) onConnLost(gen uint64, err error) {
	if gen != s.gen || !s.st.conn.AcceptsMessages() {
		return
	}

	if s.client != nil {
		s.client.Close()
		s.client = nil
	}

	if err := s.transition(StateBackoff); err != nil {
		return
	}

	attempts, delay := s.cfg.Backoff.Next(s.st.attempts)
	s.setAttempts(attempts)

	s.timerSeq++
	seq := s.timerSeq
	s.timer = s.cfg.Scheduler.AfterFunc(delay, func() {
		s.post(reconnectDue{seq: seq})
	})

	s.logger.Warn("stream disconnected, reconnect scheduled",
		"error", err,
		"attempt", attempts,
		"delay", delay,
	)
}

func (s *Session) onReconnectDue(e reconnectDue) {
	if e.seq != s.timerSeq || s.st.conn != StateBackoff {
		return
	}
	s.timer = nil
	s.connect()
}

// teardown aborts the fetch, stops the timer and closes the socket.
func (s *Session) teardown() {
	if s.fetchCancel != nil {
		s.fetchCancel()
		s.fetchCancel = nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	s.transition(StateClosed)
	s.logger.Info("session closed")
}

func (s *Session) writeCache() {
	if s.deps.Cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.CacheTimeout)
	defer cancel()
	s.deps.Cache.Put(ctx, s.symbol, s.st.history)
}

// publish pushes the current state to the observer and the status mirror.
func (s *Session) publish() {
	u := model.Update{
		Symbol:    s.symbol,
		Price:     s.st.latestPrice,
		Timestamp: s.st.latestTS,
		History:   s.st.history.Clone(),
	}

	s.statusMu.Lock()
	s.last = u
	s.status.HistoryLen = len(u.History)
	s.status.LatestTimestamp = u.Timestamp
	if u.Price.Valid {
		s.status.LatestPrice = u.Price.Decimal.String()
	}
	s.statusMu.Unlock()

	if s.deps.Observer != nil {
		s.deps.Observer.OnUpdate(model.Update{
			Symbol:    u.Symbol,
			Price:     u.Price,
			Timestamp: u.Timestamp,
			History:   u.History.Clone(),
		})
	}
}
