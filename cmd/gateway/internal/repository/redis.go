package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

const channelPrefix = "trades."

// Compile-time check to ensure RedisJournal implements TradeJournal
var _ TradeJournal = (*RedisJournal)(nil)

// RedisJournal stores trades newest-first in a capped list.
type RedisJournal struct {
	client *redis.Client
	key    string
	limit  int64
}

func NewRedisJournal(client *redis.Client, key string, limit int64) *RedisJournal {
	if limit <= 0 {
		limit = 500
	}
	return &RedisJournal{client: client, key: key, limit: limit}
}

// Record pushes the trade, trims the list and announces it on trades.<instrument>.
func (r *RedisJournal) Record(ctx context.Context, trade models.Trade) error {
	payload, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, payload)
	pipe.LTrim(ctx, r.key, 0, r.limit-1)
	pipe.Publish(ctx, channelPrefix+trade.Instrument, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("journal trade: %w", err)
	}
	return nil
}

// Recent returns up to limit trades ordered newest-first. Entries that fail
// to decode are skipped.
func (r *RedisJournal) Recent(ctx context.Context, limit int64) ([]models.Trade, error) {
	if limit <= 0 || limit > r.limit {
		limit = r.limit
	}

	raw, err := r.client.LRange(ctx, r.key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	trades := make([]models.Trade, 0, len(raw))
	for _, item := range raw {
		var t models.Trade
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue
		}
		trades = append(trades, t)
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.After(trades[j].Timestamp)
	})
	return trades, nil
}

func (r *RedisJournal) Close() error {
	return r.client.Close()
}
