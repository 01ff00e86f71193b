package syncagent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

// SampleTransactions is what FetchHistoricalTransactions returns when the
// history endpoint cannot be read. Timestamps are relative to now.
func SampleTransactions(now time.Time) []models.Trade {
	sample := func(name, symbol, price string, qty int64, status models.Status, ago time.Duration) models.Trade {
		return models.Trade{
			Order: models.Order{
				Instrument: name,
				Symbol:     symbol,
				Price:      decimal.RequireFromString(price),
				Quantity:   qty,
				Side:       models.SideBuy,
			},
			Timestamp: now.Add(-ago),
			Status:    status,
		}
	}
	return []models.Trade{
		sample("Zomato", "ZOM", "142.32", 100, models.StatusExecuted, time.Hour),
		sample("Reliance", "REL", "2500.75", 50, models.StatusExecuted, 2*time.Hour),
		sample("TCS", "TCS", "3450.20", 200, models.StatusRejected, 3*time.Hour),
	}
}

// FetchHistoricalTransactions reads past trades from url, newest first. It
// never fails: any error is logged and the sample set is returned instead.
func FetchHistoricalTransactions(ctx context.Context, client *http.Client, url string, logger *zap.Logger) []models.Trade {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	trades, err := fetchTransactions(ctx, client, url)
	if err != nil {
		logger.Warn("Using sample transactions", zap.String("url", url), zap.Error(err))
		return SampleTransactions(time.Now())
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.After(trades[j].Timestamp)
	})
	return trades
}

func fetchTransactions(ctx context.Context, client *http.Client, url string) ([]models.Trade, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get transactions: unexpected status %s", resp.Status)
	}

	var trades []models.Trade
	if err := json.NewDecoder(resp.Body).Decode(&trades); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	return trades, nil
}
