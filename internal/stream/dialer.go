package stream

import (
	"context"
	"log/slog"
)

// Dialer opens a fresh, connected Client.
type Dialer interface {
	Dial(ctx context.Context) (Client, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Client, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context) (Client, error) {
	return f(ctx)
}

// WSDialer dials WebSocket clients from a fixed config.
type WSDialer struct {
	cfg    ClientConfig
	logger *slog.Logger
}

// NewDialer creates a dialer for cfg.
func NewDialer(cfg ClientConfig, logger *slog.Logger) *WSDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSDialer{cfg: cfg, logger: logger}
}

// Dial creates a new client and connects it. The client is closed if the
// connect fails.
func (d *WSDialer) Dial(ctx context.Context) (Client, error) {
	c := NewClient(d.cfg, d.logger)
	if err := c.Connect(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}
