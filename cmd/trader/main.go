package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-rooms/cmd/trader/internal/trader"
	"github.com/shubham-shewale/stock-rooms/pkg/config"
	"github.com/shubham-shewale/stock-rooms/pkg/market"
	"github.com/shubham-shewale/stock-rooms/pkg/syncagent"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	history := syncagent.FetchHistoricalTransactions(ctx, &http.Client{Timeout: 5 * time.Second}, cfg.Client.HistoryURL, logger)
	fmt.Println(trader.RenderHistory(history))

	rnd := market.NewLockedRand(time.Now().UnixNano())
	clock := market.RealClock{}

	var bot *trader.Bot
	agent := syncagent.New(syncagent.NewWebsocketDialer(), func(e syncagent.Event) {
		bot.Observe(e)
		if line := trader.Render(e); line != "" {
			fmt.Println(line)
		}
	}, syncagent.Options{
		URL:            cfg.Client.URL,
		MaxAttempts:    cfg.Client.MaxAttempts,
		AttemptTimeout: cfg.Client.ConnectTimeout,
		TickInterval:   cfg.Market.TickInterval,
		Logger:         logger,
		Clock:          clock,
		Rand:           rnd,
	})
	bot = trader.NewBot(logger, agent, cfg.Client.Instrument, cfg.Client.OrderInterval, rnd, clock)

	state := agent.Connect(ctx)
	logger.Info("Agent ready", zap.Stringer("state", state))

	if err := bot.Run(ctx); err != nil {
		logger.Error("Trader stopped", zap.Error(err))
	}

	if err := agent.Close(); err != nil {
		logger.Warn("Error closing agent", zap.Error(err))
	}
	logger.Info("Trader exited cleanly")
}
