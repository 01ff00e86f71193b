package tradefeed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

// Queue decouples settlement from the sinks. Enqueue never blocks; when the
// buffer is full the trade is dropped, like a slow websocket frame.
type Queue struct {
	logger *zap.Logger
	sinks  []Sink
	ch     chan models.Trade

	// per-instrument sequence; starts at the queue's creation time so that
	// numbers keep growing across gateway restarts
	epoch int64
	seq   map[string]int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewQueue(logger *zap.Logger, size int, sinks ...Sink) *Queue {
	return &Queue{
		logger: logger,
		sinks:  sinks,
		ch:     make(chan models.Trade, size),
		epoch:  time.Now().UnixMicro(),
		seq:    make(map[string]int64),
		done:   make(chan struct{}),
	}
}

func (q *Queue) Enqueue(trade models.Trade) {
	if len(q.sinks) == 0 {
		return
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- trade:
	default:
		q.logger.Warn("Dropping trade, feed buffer full", zap.String("instrument", trade.Instrument))
	}
}

// Run forwards trades until Close is called, then drains what is buffered.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)

	for trade := range q.ch {
		if _, ok := q.seq[trade.Instrument]; !ok {
			q.seq[trade.Instrument] = q.epoch
		}
		q.seq[trade.Instrument]++
		trade.SeqID = q.seq[trade.Instrument]

		for _, s := range q.sinks {
			if err := s.Record(ctx, trade); err != nil {
				q.logger.Error("Trade sink error",
					zap.String("instrument", trade.Instrument),
					zap.Int64("seq_id", trade.SeqID),
					zap.Error(err))
			}
		}
	}
}

// Close stops accepting trades and waits for Run to drain. Run must have
// been started.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
}
