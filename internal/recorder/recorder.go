package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/rickgao/pricefeed/internal/model"
)

// DB is the subset of pgxpool.Pool the recorder uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config tunes batching.
type Config struct {
	BatchSize         int
	FlushInterval     time.Duration
	BufferSize        int           // initial queue capacity
	FinalFlushTimeout time.Duration // bound on the flush done by Stop
}

// DefaultConfig returns the production batching settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:         500,
		FlushInterval:     time.Second,
		BufferSize:        10000,
		FinalFlushTimeout: 5 * time.Second,
	}
}

// Stats are cumulative recorder counters.
type Stats struct {
	Received  int64
	Skipped   int64 // updates that carried no new tick
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Queued    int
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS price_ticks (
	id          UUID PRIMARY KEY,
	symbol      TEXT NOT NULL,
	price       NUMERIC NOT NULL,
	exchange_ts BIGINT NOT NULL,
	received_at BIGINT NOT NULL,
	UNIQUE (symbol, exchange_ts)
)`

const insertSQL = `
INSERT INTO price_ticks (id, symbol, price, exchange_ts, received_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (symbol, exchange_ts) DO NOTHING`

type tickRow struct {
	ID         uuid.UUID
	Symbol     string
	Price      decimal.Decimal
	ExchangeTs int64 // ms
	ReceivedAt int64 // µs
}

// Recorder batches published ticks into Postgres.
type Recorder struct {
	cfg    Config
	db     DB
	logger *slog.Logger
	now    func() time.Time

	queue *Queue[tickRow]
	full  chan struct{}

	// last recorded tick timestamp per symbol
	seenMu sync.Mutex
	seen   map[string]int64

	statsMu sync.Mutex
	stats   Stats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a recorder writing to db.
func New(cfg Config, db DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = d.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = d.BufferSize
	}
	if cfg.FinalFlushTimeout <= 0 {
		cfg.FinalFlushTimeout = d.FinalFlushTimeout
	}

	return &Recorder{
		cfg:    cfg,
		db:     db,
		logger: logger,
		now:    time.Now,
		queue:  NewQueue[tickRow](cfg.BufferSize),
		full:   make(chan struct{}, 1),
		seen:   make(map[string]int64),
	}
}

// EnsureSchema creates the price_ticks table if it is missing.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create price_ticks: %w", err)
	}
	return nil
}

// OnUpdate enqueues the update's tick if it has not been recorded yet.
// It never blocks on the database.
func (r *Recorder) OnUpdate(u model.Update) {
	r.statsMu.Lock()
	r.stats.Received++
	r.statsMu.Unlock()

	if !u.HasPrice() || !r.markSeen(u.Symbol, u.Timestamp) {
		r.statsMu.Lock()
		r.stats.Skipped++
		r.statsMu.Unlock()
		return
	}

	row := tickRow{
		ID:         uuid.New(),
		Symbol:     u.Symbol,
		Price:      u.Price.Decimal,
		ExchangeTs: u.Timestamp,
		ReceivedAt: r.now().UnixMicro(),
	}
	if !r.queue.Push(row) {
		return
	}

	if r.queue.Len() >= r.cfg.BatchSize {
		select {
		case r.full <- struct{}{}:
		default:
		}
	}
}

// markSeen reports whether ts is new for symbol.
func (r *Recorder) markSeen(symbol string, ts int64) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()

	if last, ok := r.seen[symbol]; ok && last == ts {
		return false
	}
	r.seen[symbol] = ts
	return true
}

// Start begins the flush loop.
func (r *Recorder) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.flushLoop(ctx)

	r.logger.Info("price recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop ends the flush loop and writes whatever is still queued.
func (r *Recorder) Stop(ctx context.Context) error {
	r.queue.Close()
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("price recorder stop timed out")
	}

	// Final flush. An expired ctx still gets a bounded attempt.
	flushCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), r.cfg.FinalFlushTimeout)
		defer cancel()
	}
	r.flushAll(flushCtx)

	r.logger.Info("price recorder stopped", "inserts", r.Stats().Inserts)
	return nil
}

// Stats returns current counters.
func (r *Recorder) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	s := r.stats
	s.Queued = r.queue.Len()
	return s
}

func (r *Recorder) flushLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.full:
			r.flushAll(ctx)
		case <-ticker.C:
			r.flushAll(ctx)
		}
	}
}

// flushAll writes the queue out in BatchSize chunks.
func (r *Recorder) flushAll(ctx context.Context) {
	for {
		rows := r.queue.Drain(r.cfg.BatchSize)
		if len(rows) == 0 {
			return
		}
		r.flush(ctx, rows)
	}
}

func (r *Recorder) flush(ctx context.Context, rows []tickRow) {
	start := time.Now()

	conflicts, err := r.batchInsert(ctx, rows)
	if err != nil {
		r.logger.Error("price tick insert failed", "error", err, "count", len(rows))
		r.statsMu.Lock()
		r.stats.Errors++
		r.statsMu.Unlock()
		return
	}

	r.statsMu.Lock()
	r.stats.Inserts += int64(len(rows) - conflicts)
	r.stats.Conflicts += int64(conflicts)
	r.stats.Flushes++
	r.statsMu.Unlock()

	r.logger.Debug("flushed price ticks",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

func (r *Recorder) batchInsert(ctx context.Context, rows []tickRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertSQL, row.ID, row.Symbol, row.Price, row.ExchangeTs, row.ReceivedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
