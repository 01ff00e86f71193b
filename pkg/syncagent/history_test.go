package syncagent_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubham-shewale/stock-rooms/pkg/models"
	"github.com/shubham-shewale/stock-rooms/pkg/syncagent"
)

func TestFetchHistoricalTransactions_SortsNewestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"stock_name":"TCS","stock_symbol":"TCS","transaction_price":"510","quantity":1,"action":"buy","timestamp":"2024-03-01T09:00:00Z","status":"executed","user":"Rohan"},
			{"stock_name":"TCS","stock_symbol":"TCS","transaction_price":"520","quantity":2,"action":"sell","timestamp":"2024-03-01T11:00:00Z","status":"executed","user":"Rohan"},
			{"stock_name":"Zomato","stock_symbol":"ZOM","transaction_price":"140","quantity":3,"action":"buy","timestamp":"2024-03-01T10:00:00Z","status":"executed","user":"Meera"}
		]`))
	}))
	defer srv.Close()

	trades := syncagent.FetchHistoricalTransactions(context.Background(), srv.Client(), srv.URL, nil)

	require.Len(t, trades, 3)
	assert.Equal(t, int64(2), trades[0].Quantity)
	assert.Equal(t, "Zomato", trades[1].Instrument)
	assert.Equal(t, int64(1), trades[2].Quantity)
}

func TestFetchHistoricalTransactions_FallsBackToSamples(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"unavailable", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "trade journal not configured", http.StatusServiceUnavailable)
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			trades := syncagent.FetchHistoricalTransactions(context.Background(), srv.Client(), srv.URL, nil)

			require.Len(t, trades, 3)
			assert.Equal(t, "Zomato", trades[0].Instrument)
			assert.Equal(t, "REL", trades[1].Symbol)
			assert.Equal(t, models.StatusRejected, trades[2].Status)
			assert.True(t, trades[0].Timestamp.After(trades[1].Timestamp))
		})
	}
}

func TestFetchHistoricalTransactions_Unreachable(t *testing.T) {
	trades := syncagent.FetchHistoricalTransactions(context.Background(), nil, "http://127.0.0.1:1/transactions", nil)
	assert.Len(t, trades, 3)
}
