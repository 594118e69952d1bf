package api

import "github.com/rickgao/pricefeed/internal/model"

// ToSnapshot converts a snapshot response for symbol into the model type.
// Points are ordered by timestamp; for equal timestamps the later entry wins.
// Latest is dropped when the server sent no price or no timestamp.
func ToSnapshot(symbol string, resp *HistoryResponse) model.Snapshot {
	snap := model.Snapshot{
		Symbol: symbol,
		Points: model.History{},
	}
	if resp == nil {
		return snap
	}

	h := make(model.History, 0, len(resp.Points))
	for _, p := range resp.Points {
		h = append(h, model.NewPricePoint(p.Timestamp, p.Price))
	}
	snap.Points = h.Normalize()

	if l := resp.Latest; l != nil && l.Price.Valid && l.TS > 0 {
		snap.Latest = &model.Tick{
			Symbol:    symbol,
			Price:     l.Price.Decimal,
			Timestamp: l.TS,
		}
	}

	return snap
}
