package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/pricefeed/internal/config"
	"github.com/rickgao/pricefeed/internal/database"
	"github.com/rickgao/pricefeed/internal/feed"
	"github.com/rickgao/pricefeed/internal/recorder"
	"github.com/rickgao/pricefeed/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/pricefeed.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config (optional)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(*configPath, *envFile); err != nil {
		slog.Error("pricefeed exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	if err := config.LoadEnvFile(envFile, true); err != nil {
		return err
	}

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting pricefeed",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"symbols", cfg.Symbols,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	backend, err := buildCache(ctx, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("open history cache: %w", err)
	}
	defer backend.close()

	logger.Info("history cache ready", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL)

	observers := feed.MultiObserver{logObserver(logger)}

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		pool, err := database.Connect(ctx, cfg.Recorder.Database)
		if err != nil {
			return fmt.Errorf("connect recorder database: %w", err)
		}
		defer pool.Close()

		rec = recorder.New(recorder.Config{
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval,
			BufferSize:    cfg.Recorder.BufferSize,
		}, pool, logger)
		if err := rec.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := rec.Start(ctx); err != nil {
			return fmt.Errorf("start recorder: %w", err)
		}
		observers = append(observers, rec)
	}

	deps := feed.Dependencies{
		Fetcher:  newAPIClient(cfg.API, logger),
		Dialer:   newDialer(cfg.Stream, cfg.API.APIKey, logger),
		Cache:    backend.cache,
		Observer: observers,
	}
	manager := feed.NewManager(ctx, feed.NewSessionFactory(sessionConfig(cfg.Stream), deps, logger), logger)

	for _, sym := range cfg.Symbols {
		if _, err := manager.Activate(sym); err != nil {
			return fmt.Errorf("activate %s: %w", sym, err)
		}
	}

	healthServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: newHealthHandler(healthDeps{
			sessions:     manager,
			cacheBackend: cfg.Cache.Backend,
			pingCache:    backend.ping,
			recorder:     rec,
			logger:       logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		var errs []error
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("health server shutdown: %w", err))
		}
		if err := manager.Close(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if rec != nil {
			if err := rec.Stop(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	logger.Info("pricefeed stopped")
	return err
}
