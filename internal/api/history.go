package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rickgao/pricefeed/internal/model"
)

// ErrEmptySymbol is returned when a history fetch names no symbol.
var ErrEmptySymbol = errors.New("symbol is required")

// GetHistory fetches the raw snapshot response for symbol.
func (c *Client) GetHistory(ctx context.Context, symbol string) (*HistoryResponse, error) {
	if symbol == "" {
		return nil, ErrEmptySymbol
	}

	query := url.Values{}
	query.Set("symbol", symbol)

	var resp HistoryResponse
	if err := c.get(ctx, c.historyPath, query, &resp); err != nil {
		return nil, fmt.Errorf("get history %s: %w", symbol, err)
	}

	return &resp, nil
}

// FetchSnapshot fetches and converts the snapshot for symbol.
func (c *Client) FetchSnapshot(ctx context.Context, symbol string) (model.Snapshot, error) {
	resp, err := c.GetHistory(ctx, symbol)
	if err != nil {
		return model.Snapshot{}, err
	}

	snap := ToSnapshot(symbol, resp)
	c.logger.Debug("fetched history snapshot",
		"symbol", symbol,
		"points", len(snap.Points),
		"has_latest", snap.Latest != nil,
	)
	return snap, nil
}
