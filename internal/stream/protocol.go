package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rickgao/pricefeed/internal/model"
)

// Subscribe action and server message types.
const (
	ActionSubscribe = "subscribe"

	TypeHistory    = "history"
	TypePrice      = "price"
	TypeSubscribed = "subscribed"
)

// Decode errors. All of them mean "drop the frame".
var (
	ErrUnknownType   = errors.New("unknown message type")
	ErrMissingSymbol = errors.New("message has no symbol")
	ErrMissingField  = errors.New("message is missing a required field")
)

// SubscribeRequest is the client -> server subscribe command.
type SubscribeRequest struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

// NewSubscribe builds a subscribe command for symbol.
func NewSubscribe(symbol string) SubscribeRequest {
	return SubscribeRequest{Action: ActionSubscribe, Symbol: symbol}
}

// WirePoint is a history point as sent by the server.
type WirePoint struct {
	Timestamp int64           `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

// Envelope is the union of all server -> client frames.
type Envelope struct {
	Type   string              `json:"type"`
	Symbol string              `json:"symbol"`
	Points *[]WirePoint        `json:"points,omitempty"` // history
	Price  decimal.NullDecimal `json:"price"`            // price
	TS     int64               `json:"ts,omitempty"`     // price, ms since epoch
}

// Kind identifies a decoded server message.
type Kind int

const (
	KindHistory Kind = iota + 1
	KindPrice
	KindSubscribed
)

func (k Kind) String() string {
	switch k {
	case KindHistory:
		return TypeHistory
	case KindPrice:
		return TypePrice
	case KindSubscribed:
		return TypeSubscribed
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is a validated server message.
type Message struct {
	Kind    Kind
	Symbol  string
	History model.History // KindHistory, ordered
	Tick    model.Tick    // KindPrice
}

// Decode parses and validates one server frame.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if env.Symbol == "" {
		return Message{}, ErrMissingSymbol
	}

	switch env.Type {
	case TypeHistory:
		if env.Points == nil {
			return Message{}, fmt.Errorf("%w: points", ErrMissingField)
		}
		h := make(model.History, 0, len(*env.Points))
		for _, p := range *env.Points {
			h = append(h, model.NewPricePoint(p.Timestamp, p.Price))
		}
		return Message{Kind: KindHistory, Symbol: env.Symbol, History: h.Normalize()}, nil

	case TypePrice:
		if !env.Price.Valid {
			return Message{}, fmt.Errorf("%w: price", ErrMissingField)
		}
		if env.TS <= 0 {
			return Message{}, fmt.Errorf("%w: ts", ErrMissingField)
		}
		return Message{
			Kind:   KindPrice,
			Symbol: env.Symbol,
			Tick: model.Tick{
				Symbol:    env.Symbol,
				Price:     env.Price.Decimal,
				Timestamp: env.TS,
			},
		}, nil

	case TypeSubscribed:
		return Message{Kind: KindSubscribed, Symbol: env.Symbol}, nil
	}

	return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}
