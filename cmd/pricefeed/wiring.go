package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/pricefeed/internal/api"
	"github.com/rickgao/pricefeed/internal/cache"
	"github.com/rickgao/pricefeed/internal/config"
	"github.com/rickgao/pricefeed/internal/database"
	"github.com/rickgao/pricefeed/internal/feed"
	"github.com/rickgao/pricefeed/internal/model"
	"github.com/rickgao/pricefeed/internal/stream"
)

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// cacheBackend is the history cache plus whatever must be released on exit.
type cacheBackend struct {
	cache *cache.HistoryCache
	ping  func(ctx context.Context) error
	close func()
}

// buildCache opens the configured history cache store.
func buildCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (*cacheBackend, error) {
	opts := []cache.Option{
		cache.WithTTL(cfg.TTL),
		cache.WithKeyPrefix(cfg.KeyPrefix),
		cache.WithLogger(logger),
	}
	noop := func(context.Context) error { return nil }

	switch cfg.Backend {
	case config.BackendMemory, "":
		return &cacheBackend{
			cache: cache.NewHistoryCache(cache.NewMemoryStore(), opts...),
			ping:  noop,
			close: func() {},
		}, nil

	case config.BackendRedis:
		rdb, err := cache.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		store := cache.NewRedisStore(rdb, 2*cfg.TTL)
		return &cacheBackend{
			cache: cache.NewHistoryCache(store, opts...),
			ping:  store.Health,
			close: func() { store.Close() },
		}, nil

	case config.BackendPostgres:
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect cache database: %w", err)
		}
		store := cache.NewPostgresStore(pool, cache.DefaultCacheTable)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return &cacheBackend{
			cache: cache.NewHistoryCache(store, opts...),
			ping:  pool.Ping,
			close: pool.Close,
		}, nil
	}

	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

func newAPIClient(cfg config.APIConfig, logger *slog.Logger) *api.Client {
	return api.NewClient(
		cfg.RestURL,
		cfg.APIKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Timeout),
		api.WithRetries(cfg.MaxRetries, time.Second),
		api.WithHistoryPath(cfg.HistoryPath),
	)
}

func newDialer(cfg config.StreamConfig, apiKey string, logger *slog.Logger) *stream.WSDialer {
	return stream.NewDialer(stream.ClientConfig{
		URL:          cfg.WSURL,
		APIKey:       apiKey,
		PingInterval: cfg.PingInterval,
		PingTimeout:  cfg.PingTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BufferSize:   cfg.BufferSize,
	}, logger)
}

func sessionConfig(cfg config.StreamConfig) feed.SessionConfig {
	sc := feed.DefaultSessionConfig()
	sc.Backoff = feed.Backoff{
		Base:        cfg.ReconnectBaseDelay,
		Max:         cfg.ReconnectMaxDelay,
		MaxAttempts: cfg.MaxReconnectAttempts,
	}
	return sc
}

// logObserver logs every published update at debug level.
func logObserver(logger *slog.Logger) feed.Observer {
	return feed.ObserverFunc(func(u model.Update) {
		attrs := []any{"symbol", u.Symbol, "history_len", len(u.History)}
		if u.HasPrice() {
			attrs = append(attrs, "price", u.Price.Decimal.String(), "ts", u.Timestamp)
		}
		logger.Debug("price update", attrs...)
	})
}
