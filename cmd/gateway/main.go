package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-rooms/cmd/gateway/internal/engine"
	"github.com/shubham-shewale/stock-rooms/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/stock-rooms/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-rooms/cmd/gateway/internal/ledger"
	"github.com/shubham-shewale/stock-rooms/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-rooms/cmd/gateway/internal/tradefeed"
	"github.com/shubham-shewale/stock-rooms/pkg/config"
	"github.com/shubham-shewale/stock-rooms/pkg/market"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.AppName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			Tags:            map[string]string{"env": cfg.App.Env},
			Logger:          logger.Sugar(),
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
				pyroscope.ProfileGoroutines,
			},
		})
		if err != nil {
			logger.Fatal("Failed to start profiler", zap.Error(err))
		}
		defer profiler.Stop()
	}

	defaultBase := decimal.NewFromFloat(cfg.Market.DefaultBasePrice)
	catalog, err := models.ParseCatalog(defaultBase, cfg.Market.Instruments)
	if err != nil {
		logger.Fatal("Invalid instrument catalog", zap.Error(err))
	}

	// Trade journal backs /transactions; nil leaves the endpoint at 503
	var journal repository.TradeJournal
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		journal = repository.NewRedisJournal(rdb, cfg.Redis.JournalKey, cfg.Redis.JournalLimit)
		defer journal.Close()
	}

	var sinks []tradefeed.Sink
	switch {
	case cfg.Kafka.Enabled:
		creator := tradefeed.NewTopicCreator(logger,
			&tradefeed.RealKafkaDialer{Dialer: &kafka.Dialer{Timeout: 10 * time.Second}},
			tradefeed.RealSleeper{})
		createCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := creator.Create(createCtx, cfg.Kafka.Brokers, tradefeed.TopicLayoutFromConfig(cfg.Kafka))
		cancel()
		if err != nil && journal != nil {
			logger.Warn("Trade topic unavailable, journaling to redis directly", zap.Error(err))
			sinks = append(sinks, journal)
			break
		}
		if err != nil {
			logger.Warn("Trade topic unavailable, relying on broker auto-create", zap.Error(err))
		}

		publisher := tradefeed.NewKafkaPublisher(&kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		})
		defer publisher.Close()
		sinks = append(sinks, publisher)
	case journal != nil:
		// no journal service in front of redis, write directly
		sinks = append(sinks, journal)
	}

	trades := tradefeed.NewQueue(logger, 1024, sinks...)
	go trades.Run(context.Background())

	rnd := market.NewLockedRand(time.Now().UnixNano())
	eng := engine.NewPriceEngine(logger, catalog, rnd, market.RealClock{}, cfg.Market.TickInterval)
	wsHub := hub.NewHub(eng, catalog, logger)
	svc := gateway.NewService(wsHub, ledger.NewLedger(), trades, catalog, rnd, logger,
		cfg.Wallet.MinBalance, cfg.Wallet.MaxBalance)

	srv := &http.Server{Addr: cfg.App.Port, Handler: gateway.NewRouter(svc, journal, logger)}

	go func() {
		logger.Info("Server Started",
			zap.String("port", cfg.App.Port),
			zap.Bool("catalog_restricted", catalog.Restricted()),
			zap.Int("trade_sinks", len(sinks)))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	eng.Shutdown()
	trades.Close()
	logger.Info("Shutdown Complete")
}
