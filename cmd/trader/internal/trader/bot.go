package trader

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-rooms/pkg/market"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
	"github.com/shubham-shewale/stock-rooms/pkg/protocol"
	"github.com/shubham-shewale/stock-rooms/pkg/syncagent"
)

const defaultMaxQuantity = 20

// Bot sits in one room and trades at the last seen price.
type Bot struct {
	logger     *zap.Logger
	agent      Agent
	rand       market.Rand
	clock      market.Clock
	instrument string
	interval   time.Duration
	maxQty     int

	mu     sync.Mutex
	price  decimal.Decimal
	known  bool
	wallet models.Wallet
}

func NewBot(
	logger *zap.Logger,
	agent Agent,
	instrument string,
	interval time.Duration,
	rnd market.Rand,
	clock market.Clock,
) *Bot {
	if interval <= 0 {
		interval = 7 * time.Second
	}
	return &Bot{
		logger:     logger,
		agent:      agent,
		rand:       rnd,
		clock:      clock,
		instrument: instrument,
		interval:   interval,
		maxQty:     defaultMaxQuantity,
		wallet:     models.NewWallet(decimal.Zero),
	}
}

// Observe tracks the room price and the wallet. Use it as (part of) the
// agent's sink.
func (b *Bot) Observe(e syncagent.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch p := e.Payload.(type) {
	case *protocol.Identity:
		b.wallet = p.Wallet
	case *protocol.PriceSnapshot:
		if p.Instrument == b.instrument {
			b.price, b.known = p.Price, true
		}
	case *protocol.PriceUpdated:
		if p.Instrument == b.instrument {
			b.price, b.known = p.Price, true
		}
	case *protocol.OrderResult:
		b.wallet = p.Wallet
	}
}

// NextOrder picks a random order at the last price. It reports false until
// a price has been seen.
func (b *Bot) NextOrder() (models.Order, bool) {
	b.mu.Lock()
	price, known, wallet := b.price, b.known, b.wallet
	b.mu.Unlock()

	if !known {
		return models.Order{}, false
	}

	o := models.Order{
		Instrument: b.instrument,
		Symbol:     models.DeriveSymbol(b.instrument),
		Price:      price,
		Side:       models.SideBuy,
	}

	held := wallet.Holding(b.instrument)
	if held > 0 && b.rand.Intn(2) == 1 {
		o.Side = models.SideSell
		o.Quantity = 1 + int64(b.rand.Intn(int(min(held, int64(b.maxQty)))))
		return o, true
	}

	// capped at what the balance affords, when it affords at least one
	qty := 1 + b.rand.Intn(b.maxQty)
	if price.IsPositive() {
		if afford := wallet.Balance.Div(price).IntPart(); afford >= 1 && afford < int64(qty) {
			qty = int(afford)
		}
	}
	o.Quantity = int64(qty)
	return o, true
}

// Run joins the room and submits one order per interval until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.agent.JoinRoom(b.instrument); err != nil {
		return err
	}
	b.logger.Info("Trader Started", zap.String("instrument", b.instrument), zap.Duration("interval", b.interval))

	ticker := b.clock.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			o, ok := b.NextOrder()
			if !ok {
				b.logger.Debug("No price yet, skipping")
				continue
			}
			if err := b.agent.SubmitOrder(o); err != nil {
				b.logger.Error("Submit Error", zap.Error(err))
				continue
			}
			b.logger.Debug("Submitted order",
				zap.String("side", string(o.Side)),
				zap.Int64("quantity", o.Quantity),
				zap.String("price", o.Price.String()))
		}
	}
}
