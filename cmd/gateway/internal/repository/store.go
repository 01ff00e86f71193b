package repository

import (
	"context"

	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

// TradeJournal keeps the most recent executed trades for the history endpoint.
type TradeJournal interface {
	Record(ctx context.Context, trade models.Trade) error
	Recent(ctx context.Context, limit int64) ([]models.Trade, error)
	Close() error
}
