package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/pricefeed/internal/model"
)

// Defaults for HistoryCache.
const (
	DefaultTTL       = 15 * time.Second
	DefaultKeyPrefix = "pricefeed:history:"
)

// record is the serialized cache value.
type record struct {
	Points    *model.History `json:"points"`
	Timestamp int64          `json:"timestamp"` // capture time, ms since epoch
}

// HistoryCache stores the last known history per symbol for at most TTL.
// It is safe for concurrent use as long as the Store is.
type HistoryCache struct {
	store  Store
	ttl    time.Duration
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a HistoryCache.
type Option func(*HistoryCache)

// WithTTL sets how long an entry stays readable.
func WithTTL(d time.Duration) Option {
	return func(c *HistoryCache) {
		c.ttl = d
	}
}

// WithKeyPrefix sets the namespace prepended to each symbol.
func WithKeyPrefix(prefix string) Option {
	return func(c *HistoryCache) {
		c.prefix = prefix
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *HistoryCache) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *HistoryCache) {
		c.logger = logger
	}
}

// NewHistoryCache creates a cache over store. A nil store gives a cache that
// never hits and drops every write.
func NewHistoryCache(store Store, opts ...Option) *HistoryCache {
	c := &HistoryCache{
		store:  store,
		ttl:    DefaultTTL,
		prefix: DefaultKeyPrefix,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *HistoryCache) TTL() time.Duration {
	return c.ttl
}

// Key returns the store key for symbol.
func (c *HistoryCache) Key(symbol string) string {
	return c.prefix + symbol
}

// Get returns the cached snapshot for symbol if it was written no more than
// TTL ago. Expired, malformed and unreadable entries report false.
func (c *HistoryCache) Get(ctx context.Context, symbol string) (model.HistorySnapshot, bool) {
	if c == nil || c.store == nil {
		return model.HistorySnapshot{}, false
	}

	raw, err := c.store.Get(ctx, c.Key(symbol))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Debug("history cache read failed", "symbol", symbol, "error", err)
		}
		return model.HistorySnapshot{}, false
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		c.logger.Debug("discarding malformed history cache entry", "symbol", symbol, "error", err)
		return model.HistorySnapshot{}, false
	}
	if rec.Points == nil || rec.Timestamp <= 0 || !rec.Points.IsOrdered() {
		c.logger.Debug("discarding invalid history cache entry", "symbol", symbol)
		return model.HistorySnapshot{}, false
	}

	age := c.now().UnixMilli() - rec.Timestamp
	if age > c.ttl.Milliseconds() {
		return model.HistorySnapshot{}, false
	}

	return model.HistorySnapshot{
		Symbol:     symbol,
		Points:     rec.Points.Clone(),
		CapturedAt: rec.Timestamp,
	}, true
}

// Put replaces the entry for symbol, stamping it with the current time.
// Failures are logged and otherwise ignored.
func (c *HistoryCache) Put(ctx context.Context, symbol string, points model.History) {
	if c == nil || c.store == nil {
		return
	}

	pts := points.Clone()
	data, err := json.Marshal(record{
		Points:    &pts,
		Timestamp: c.now().UnixMilli(),
	})
	if err != nil {
		c.logger.Debug("history cache encode failed", "symbol", symbol, "error", err)
		return
	}

	if err := c.store.Set(ctx, c.Key(symbol), string(data)); err != nil {
		c.logger.Debug("history cache write dropped", "symbol", symbol, "error", err)
	}
}
