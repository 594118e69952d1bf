package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PricePoint is a single observation in a price series.
type PricePoint struct {
	Timestamp int64           `json:"timestamp"` // ms since epoch
	Price     decimal.Decimal `json:"price"`
}

// NewPricePoint builds a point from a millisecond timestamp and a price.
func NewPricePoint(ts int64, price decimal.Decimal) PricePoint {
	return PricePoint{Timestamp: ts, Price: price}
}

// Equal reports whether two points carry the same timestamp and price.
func (p PricePoint) Equal(o PricePoint) bool {
	return p.Timestamp == o.Timestamp && p.Price.Equal(o.Price)
}

// History is an ordered price series.
type History []PricePoint

// Clone returns a copy that shares no backing array with h.
// A nil history clones to an empty, non-nil one.
func (h History) Clone() History {
	out := make(History, len(h))
	copy(out, h)
	return out
}

// IsOrdered reports whether timestamps never decrease.
func (h History) IsOrdered() bool {
	for i := 1; i < len(h); i++ {
		if h[i].Timestamp < h[i-1].Timestamp {
			return false
		}
	}
	return true
}

// Normalize returns an ordered copy of h. Points sharing a timestamp collapse
// to the one that appeared last in h.
func (h History) Normalize() History {
	out := h.Clone()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})

	n := 0
	for i := range out {
		if n > 0 && out[n-1].Timestamp == out[i].Timestamp {
			out[n-1] = out[i]
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}

// Equal reports whether both histories hold the same points in the same order.
func (h History) Equal(o History) bool {
	if len(h) != len(o) {
		return false
	}
	for i := range h {
		if !h[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Last returns the newest point, if any.
func (h History) Last() (PricePoint, bool) {
	if len(h) == 0 {
		return PricePoint{}, false
	}
	return h[len(h)-1], true
}

// HistorySnapshot is a persisted copy of a symbol's history.
// CapturedAt is the write time and is used only for expiry.
type HistorySnapshot struct {
	Symbol     string
	Points     History
	CapturedAt int64 // ms since epoch
}

// Snapshot is the result of a one-shot history fetch.
type Snapshot struct {
	Symbol string
	Points History
	Latest *Tick // nil when the server has no latest price
}

// Tick is a single latest-price observation.
type Tick struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp int64 // ms since epoch
}

// Update is what observers receive on every state change of a session.
// Price.Valid is false and Timestamp is 0 until a price has been seen.
type Update struct {
	Symbol    string
	Price     decimal.NullDecimal
	Timestamp int64
	History   History
}

// HasPrice reports whether a latest price is set.
func (u Update) HasPrice() bool {
	return u.Price.Valid
}
