package journal

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-rooms/pkg/config"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

// ChannelPrefix + instrument is where journaled trades are announced.
const ChannelPrefix = "trades."

// Processor moves executed trades from Kafka into the capped Redis journal.
type Processor struct {
	logger     Logger
	rdb        RedisClient
	reader     KafkaReader
	numWorkers int
	key        string
	limit      int64
}

func NewProcessor(cfg *config.Config, logger Logger, rdb RedisClient, reader KafkaReader) *Processor {
	workers := cfg.Journal.NumWorkers
	if workers < 1 {
		workers = 1
	}
	limit := cfg.Redis.JournalLimit
	if limit < 1 {
		limit = 500
	}
	key := cfg.Redis.JournalKey
	if key == "" {
		key = "trades:recent"
	}
	return &Processor{
		logger:     logger,
		rdb:        rdb,
		reader:     reader,
		numWorkers: workers,
		key:        key,
		limit:      limit,
	}
}

// Run blocks until ctx is done, then drains the workers.
func (p *Processor) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, p.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < p.numWorkers; i++ {
		workerChans[i] = make(chan []byte, 100)
		wg.Add(1)
		go p.worker(i, workerChans[i], &wg)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		p.logger.Info("Journal Started", zap.Int("workers", p.numWorkers), zap.String("key", p.key))
		for {
			m, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				p.logger.Error("Kafka Read Error", zap.Error(err))
				continue
			}

			// Same instrument always goes to the same worker
			workerID := getWorkerID(m.Key, p.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				p.logger.Warn("Dropping trade, worker busy", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	p.logger.Info("Shutdown signal received, stopping journal...")

	// no sends may race the close below
	<-readerDone
	for _, ch := range workerChans {
		close(ch)
	}
	p.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (p *Processor) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background()

	// Dedup state is local; sharding keeps an instrument on one worker
	lastSeq := make(map[string]int64)

	for payload := range msgs {
		var trade models.Trade
		if err := json.Unmarshal(payload, &trade); err != nil {
			p.logger.Error("JSON Unmarshal Error", zap.Error(err))
			continue
		}
		if !trade.Executed() || trade.Instrument == "" {
			p.logger.Warn("Skipping non-executed trade", zap.String("instrument", trade.Instrument), zap.String("status", string(trade.Status)))
			continue
		}

		if trade.SeqID <= lastSeq[trade.Instrument] {
			p.logger.Debug("Skipping duplicate trade", zap.String("instrument", trade.Instrument), zap.Int64("seq_id", trade.SeqID))
			continue
		}

		pipe := p.rdb.Pipeline()
		pipe.LPush(ctx, p.key, payload)
		pipe.LTrim(ctx, p.key, 0, p.limit-1)
		pipe.Publish(ctx, ChannelPrefix+trade.Instrument, payload)

		if _, err := pipe.Exec(ctx); err != nil {
			p.logger.Error("Redis Pipeline Error", zap.Error(err), zap.String("instrument", trade.Instrument))
			continue
		}
		p.logger.Debug("Journaled", zap.String("instrument", trade.Instrument), zap.Int("worker_id", id), zap.Int64("seq_id", trade.SeqID))
		lastSeq[trade.Instrument] = trade.SeqID
	}
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numWorkers))
}
