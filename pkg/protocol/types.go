package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/stock-rooms/pkg/market"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

const (
	TypeIdentity      = "identity"
	TypeJoinRoom      = "join_room"
	TypeLeaveRoom     = "leave_room"
	TypePriceSnapshot = "price_snapshot"
	TypePriceUpdated  = "price_updated"
	TypeSubmitOrder   = "submit_order"
	TypeOrderResult   = "order_result"
	TypeLiveTrade     = "live_trade"
	TypeRoomNotice    = "room_notice"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Identity struct {
	SessionID string        `json:"session_id"`
	Name      string        `json:"name"`
	Wallet    models.Wallet `json:"wallet"`
}

type RoomRequest struct {
	Instrument string `json:"instrument"`
}

type PriceSnapshot struct {
	Instrument string              `json:"instrument"`
	Price      decimal.Decimal     `json:"price"`
	History    []market.PricePoint `json:"history"`
}

type PriceUpdated struct {
	Instrument    string          `json:"instrument"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	Price         decimal.Decimal `json:"price"`
	Delta         int64           `json:"delta"`
	PercentChange float64         `json:"percent_change"`
	Timestamp     time.Time       `json:"timestamp"`
}

type SubmitOrder struct {
	models.Order
}

type OrderResult struct {
	Trade  models.Trade  `json:"trade"`
	Wallet models.Wallet `json:"wallet"`
	Reason string        `json:"reason,omitempty"`
}

type LiveTrade struct {
	Trade models.Trade `json:"trade"`
}

type RoomNotice struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPriceSnapshot(instrument string, s market.PriceState) PriceSnapshot {
	history := s.History
	if history == nil {
		history = []market.PricePoint{}
	}
	return PriceSnapshot{Instrument: instrument, Price: s.Price, History: history}
}

func NewPriceUpdated(instrument string, m market.Move) PriceUpdated {
	return PriceUpdated{
		Instrument:    instrument,
		PreviousPrice: m.PreviousPrice,
		Price:         m.Price,
		Delta:         m.Delta,
		PercentChange: m.PercentChange,
		Timestamp:     m.Timestamp,
	}
}

// Encode wraps payload in an envelope of the given type.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// Into unmarshals the payload into v.
func (e Envelope) Into(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s payload: %w", e.Type, err)
	}
	return nil
}

// Message decodes the payload into the typed struct registered for its type.
func (e Envelope) Message() (any, error) {
	var v any
	switch e.Type {
	case TypeIdentity:
		v = &Identity{}
	case TypeJoinRoom, TypeLeaveRoom:
		v = &RoomRequest{}
	case TypePriceSnapshot:
		v = &PriceSnapshot{}
	case TypePriceUpdated:
		v = &PriceUpdated{}
	case TypeSubmitOrder:
		v = &SubmitOrder{}
	case TypeOrderResult:
		v = &OrderResult{}
	case TypeLiveTrade:
		v = &LiveTrade{}
	case TypeRoomNotice:
		v = &RoomNotice{}
	default:
		return nil, fmt.Errorf("unknown message type %q", e.Type)
	}
	if err := e.Into(v); err != nil {
		return nil, err
	}
	return v, nil
}
