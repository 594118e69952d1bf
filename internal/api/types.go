package api

import "github.com/shopspring/decimal"

// HistoryResponse is the body of the snapshot endpoint.
type HistoryResponse struct {
	Points []APIPoint `json:"points"`
	Latest *APILatest `json:"latest,omitempty"`
}

// APIPoint is one history point on the wire.
type APIPoint struct {
	Timestamp int64           `json:"timestamp"` // ms since epoch
	Price     decimal.Decimal `json:"price"`
}

// APILatest is the most recent price on the wire.
type APILatest struct {
	Price decimal.NullDecimal `json:"price"`
	TS    int64               `json:"ts"` // ms since epoch
}
