package gateway

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-rooms/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-rooms/cmd/gateway/internal/ledger"
	"github.com/shubham-shewale/stock-rooms/pkg/market"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
	"github.com/shubham-shewale/stock-rooms/pkg/protocol"
)

var namePool = []string{
	"Sayan", "Aakash", "Amey", "Rahul", "Priya",
	"Neha", "Vikram", "Anjali", "Rohan", "Kavita",
	"Arjun", "Divya", "Karan", "Meera", "Rajiv",
}

// TradeQueue takes executed trades off the request path.
type TradeQueue interface {
	Enqueue(trade models.Trade)
}

// Service ties sessions to rooms and wallets.
type Service struct {
	hub     *hub.Hub
	ledger  *ledger.Ledger
	trades  TradeQueue
	catalog *models.Catalog
	rand    market.Rand
	logger  *zap.Logger

	minBalance int64
	maxBalance int64
}

func NewService(
	h *hub.Hub,
	l *ledger.Ledger,
	trades TradeQueue,
	catalog *models.Catalog,
	rnd market.Rand,
	logger *zap.Logger,
	minBalance, maxBalance int64,
) *Service {
	return &Service{
		hub:        h,
		ledger:     l,
		trades:     trades,
		catalog:    catalog,
		rand:       rnd,
		logger:     logger,
		minBalance: minBalance,
		maxBalance: maxBalance,
	}
}

// NewIdentity returns a fresh session id and a display name from the pool.
// Names are not unique.
func (s *Service) NewIdentity() (id, name string) {
	return uuid.NewString(), namePool[s.rand.Intn(len(namePool))]
}

// Connect opens the session's wallet and sends it its identity.
func (s *Service) Connect(c hub.ClientInterface) error {
	balance := s.minBalance
	if span := s.maxBalance - s.minBalance; span > 0 {
		balance += int64(s.rand.Intn(int(span)))
	}

	w, err := s.ledger.Open(c.ID(), c.Name(), decimal.NewFromInt(balance))
	if err != nil {
		return err
	}

	s.logger.Info("Session connected",
		zap.String("session", c.ID()),
		zap.String("name", c.Name()),
		zap.Int64("balance", balance))

	c.SendJSON(protocol.TypeIdentity, protocol.Identity{SessionID: c.ID(), Name: c.Name(), Wallet: w})
	return nil
}

// Disconnect leaves any room, closes the client and drops the wallet.
func (s *Service) Disconnect(c hub.ClientInterface) {
	s.hub.Unregister(c)
	s.ledger.Close(c.ID())
	s.logger.Info("Session disconnected", zap.String("session", c.ID()), zap.String("name", c.Name()))
}

// Handle dispatches one inbound frame. Malformed or unknown frames are
// logged and otherwise ignored.
func (s *Service) Handle(c hub.ClientInterface, payload []byte) {
	env, err := protocol.Decode(payload)
	if err != nil {
		s.logger.Warn("Malformed message", zap.String("session", c.ID()), zap.Error(err))
		return
	}

	switch env.Type {
	case protocol.TypeJoinRoom:
		var req protocol.RoomRequest
		if err := env.Into(&req); err != nil {
			s.logger.Warn("Malformed join", zap.String("session", c.ID()), zap.Error(err))
			return
		}
		if err := s.hub.Join(c, strings.TrimSpace(req.Instrument)); err != nil {
			s.logger.Warn("Join rejected", zap.String("session", c.ID()), zap.Error(err))
		}

	case protocol.TypeLeaveRoom:
		var req protocol.RoomRequest
		if len(env.Payload) > 0 {
			if err := env.Into(&req); err != nil {
				s.logger.Warn("Malformed leave", zap.String("session", c.ID()), zap.Error(err))
				return
			}
		}
		if !s.hub.Leave(c, strings.TrimSpace(req.Instrument)) {
			s.logger.Debug("Leave ignored", zap.String("session", c.ID()), zap.String("instrument", req.Instrument))
		}

	case protocol.TypeSubmitOrder:
		var req protocol.SubmitOrder
		if err := env.Into(&req); err != nil {
			s.logger.Warn("Malformed order", zap.String("session", c.ID()), zap.Error(err))
			return
		}
		s.submit(c, req.Order)

	default:
		s.logger.Warn("Unknown message type", zap.String("session", c.ID()), zap.String("type", env.Type))
	}
}

func (s *Service) submit(c hub.ClientInterface, o models.Order) {
	o.Instrument = strings.TrimSpace(o.Instrument)
	if o.Symbol == "" && o.Instrument != "" {
		o.Symbol = s.catalog.Lookup(o.Instrument).Symbol
	}

	trade, w, err := s.ledger.Settle(c.ID(), o)
	if err != nil {
		s.logger.Error("Settlement failed", zap.String("session", c.ID()), zap.Error(err))
		return
	}

	c.SendJSON(protocol.TypeOrderResult, protocol.OrderResult{Trade: trade, Wallet: w, Reason: trade.Reason})

	if !trade.Executed() {
		s.logger.Info("Order rejected",
			zap.String("session", c.ID()),
			zap.String("instrument", o.Instrument),
			zap.String("reason", trade.Reason))
		return
	}

	s.logger.Info("Order executed",
		zap.String("session", c.ID()),
		zap.String("instrument", o.Instrument),
		zap.String("side", string(o.Side)),
		zap.Int64("quantity", o.Quantity),
		zap.String("price", o.Price.String()))

	s.hub.Broadcast(o.Instrument, protocol.TypeLiveTrade, protocol.LiveTrade{Trade: trade}, "")
	s.trades.Enqueue(trade)
}
