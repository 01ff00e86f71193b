package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-rooms/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// NewRouter serves the websocket endpoint, trade history and a health check.
// journal may be nil, in which case /transactions answers 503.
func NewRouter(svc *Service, journal repository.TradeJournal, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Warn("Upgrade failed", zap.Error(err))
			return
		}
		NewClient(conn, svc, logger).Start()
	})

	mux.Handle("/transactions", TransactionsHandler(journal, logger))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

// TransactionsHandler lists recent executed trades, newest first.
func TransactionsHandler(journal repository.TradeJournal, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if journal == nil {
			http.Error(w, "trade journal not configured", http.StatusServiceUnavailable)
			return
		}

		limit := int64(defaultHistoryLimit)
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n < 1 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		trades, err := journal.Recent(r.Context(), limit)
		if err != nil {
			logger.Error("Failed to read trade journal", zap.Error(err))
			http.Error(w, "trade journal unavailable", http.StatusBadGateway)
			return
		}
		if trades == nil {
			trades = []models.Trade{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(trades); err != nil {
			logger.Warn("Failed to write transactions", zap.Error(err))
		}
	})
}
