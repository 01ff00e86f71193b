package syncagent

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/stock-rooms/pkg/market"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
	"github.com/shubham-shewale/stock-rooms/pkg/protocol"
)

const (
	MockSessionID = "mock-user-id"
	MockUserName  = "MockUser"

	fallbackHistoryPoints = 10
	fallbackPriceFloor    = 500
	fallbackPriceSpread   = 200
)

var MockBalance = decimal.NewFromInt(25000)

// simulator stands in for the gateway: one mock wallet and at most one
// ticking instrument, driven by the same market rules.
type simulator struct {
	opts Options
	sink Sink
	wg   *sync.WaitGroup

	// held across a tick's emit so nothing from a stopped feed is
	// delivered once join or leave returns; taken before mu
	emitMu sync.Mutex

	mu         sync.Mutex
	wallet     models.Wallet
	instrument string
	price      market.PriceState
	cancel     context.CancelFunc
}

func newSimulator(opts Options, sink Sink, wg *sync.WaitGroup) *simulator {
	return &simulator{
		opts:   opts,
		sink:   sink,
		wg:     wg,
		wallet: models.NewWallet(MockBalance),
	}
}

func (s *simulator) identify() {
	s.mu.Lock()
	w := s.wallet.Clone()
	s.mu.Unlock()

	s.sink(Event{Type: protocol.TypeIdentity, Payload: &protocol.Identity{
		SessionID: MockSessionID,
		Name:      MockUserName,
		Wallet:    w,
	}})
}

// join seeds a synthetic history around a random start price and starts
// ticking it. Any previous feed is stopped first.
func (s *simulator) join(instrument string) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.stopLocked()

	start := decimal.NewFromInt(int64(fallbackPriceFloor + s.opts.Rand.Intn(fallbackPriceSpread)))
	s.price = market.SeedHistory(start, s.opts.Rand, s.opts.Clock.Now(), fallbackHistoryPoints, s.opts.TickInterval)
	s.instrument = instrument

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	ticker := s.opts.Clock.NewTicker(s.opts.TickInterval)
	s.wg.Add(1)
	go s.run(ctx, instrument, ticker)

	snap := protocol.NewPriceSnapshot(instrument, s.price.Clone())
	s.mu.Unlock()

	s.sink(Event{Type: protocol.TypePriceSnapshot, Payload: &snap})
}

func (s *simulator) leave() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *simulator) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.instrument = ""
}

func (s *simulator) run(ctx context.Context, instrument string, ticker market.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if !s.tick(ctx, instrument) {
				return
			}
		}
	}
}

func (s *simulator) tick(ctx context.Context, instrument string) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if ctx.Err() != nil {
		return false
	}

	s.mu.Lock()
	var move market.Move
	s.price, move = market.Advance(s.price, s.opts.Rand, s.opts.Clock.Now())
	s.mu.Unlock()

	upd := protocol.NewPriceUpdated(instrument, move)
	s.sink(Event{Type: protocol.TypePriceUpdated, Payload: &upd})
	return true
}

// submit settles o against the mock wallet. Rejections are reported like
// the gateway does: an order_result with the reason and no live_trade.
func (s *simulator) submit(o models.Order) {
	if o.Symbol == "" && o.Instrument != "" {
		o.Symbol = models.DeriveSymbol(o.Instrument)
	}

	s.mu.Lock()
	var trade models.Trade
	s.wallet, trade = market.Execute(s.wallet, o, MockUserName, s.opts.Clock.Now())
	w := s.wallet.Clone()
	s.mu.Unlock()

	s.sink(Event{Type: protocol.TypeOrderResult, Payload: &protocol.OrderResult{Trade: trade, Wallet: w, Reason: trade.Reason}})
	if trade.Executed() {
		s.sink(Event{Type: protocol.TypeLiveTrade, Payload: &protocol.LiveTrade{Trade: trade}})
	}
}
