package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-rooms/pkg/market"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

// PriceEngine runs one independent random walk per started instrument.
type PriceEngine struct {
	logger   *zap.Logger
	catalog  *models.Catalog
	rand     market.Rand
	clock    market.Clock
	interval time.Duration

	mu    sync.Mutex
	feeds map[string]*feed
	wg    sync.WaitGroup
}

type feed struct {
	instrument models.Instrument
	cancel     context.CancelFunc

	mu    sync.Mutex // guards state
	state market.PriceState
}

func NewPriceEngine(
	logger *zap.Logger,
	catalog *models.Catalog,
	rnd market.Rand,
	clock market.Clock,
	interval time.Duration,
) *PriceEngine {
	if interval <= 0 {
		interval = market.TickInterval
	}
	return &PriceEngine{
		logger:   logger,
		catalog:  catalog,
		rand:     rnd,
		clock:    clock,
		interval: interval,
		feeds:    make(map[string]*feed),
	}
}

// Start seeds the instrument at its base price and ticks it until Stop.
// It returns false when the instrument is already running.
func (e *PriceEngine) Start(instrument string, sink func(instrument string, m market.Move)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.feeds[instrument]; ok {
		return false
	}

	inst := e.catalog.Lookup(instrument)
	ctx, cancel := context.WithCancel(context.Background())
	f := &feed{
		instrument: inst,
		cancel:     cancel,
		state:      market.NewPriceState(inst.BasePrice),
	}
	e.feeds[instrument] = f

	ticker := e.clock.NewTicker(e.interval)
	e.wg.Add(1)
	go e.run(ctx, f, ticker, sink)

	e.logger.Info("Started price feed", zap.String("instrument", instrument), zap.String("base_price", inst.BasePrice.String()))
	return true
}

// Stop cancels the feed and drops its state. It does not wait for the tick
// goroutine, so it is safe to call while holding a lock the sink needs.
func (e *PriceEngine) Stop(instrument string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, ok := e.feeds[instrument]
	if !ok {
		return false
	}
	f.cancel()
	delete(e.feeds, instrument)

	e.logger.Info("Stopped price feed", zap.String("instrument", instrument))
	return true
}

// Snapshot returns a copy of the instrument's price and history.
func (e *PriceEngine) Snapshot(instrument string) (market.PriceState, bool) {
	e.mu.Lock()
	f, ok := e.feeds[instrument]
	e.mu.Unlock()
	if !ok {
		return market.PriceState{}, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone(), true
}

func (e *PriceEngine) Running(instrument string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.feeds[instrument]
	return ok
}

// Shutdown stops every feed and waits for the tick goroutines to exit.
func (e *PriceEngine) Shutdown() {
	e.mu.Lock()
	for name, f := range e.feeds {
		f.cancel()
		delete(e.feeds, name)
	}
	e.mu.Unlock()

	e.wg.Wait()
}

func (e *PriceEngine) run(ctx context.Context, f *feed, ticker market.Ticker, sink func(string, market.Move)) {
	defer e.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			f.mu.Lock()
			if ctx.Err() != nil {
				f.mu.Unlock()
				return
			}
			var move market.Move
			f.state, move = market.Advance(f.state, e.rand, e.clock.Now())
			f.mu.Unlock()

			e.logger.Debug("Tick",
				zap.String("instrument", f.instrument.Name),
				zap.String("price", move.Price.String()),
				zap.Int64("delta", move.Delta))

			sink(f.instrument.Name, move)
		}
	}
}
