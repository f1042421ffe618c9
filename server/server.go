// Package server exposes the ledger over HTTP: one logical endpoint per
// aggregate where POST submits a command and GET reads the materialized
// view.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/withobsrvr/asset-ledger/account"
	"github.com/withobsrvr/asset-ledger/cqrs"
	"github.com/withobsrvr/asset-ledger/order"
	"github.com/withobsrvr/asset-ledger/transfer"
)

const maxCommandBytes = 1 << 20

// Server routes ledger requests onto the command engines and view store.
type Server struct {
	logger    *zap.Logger
	accounts  *account.Engine
	orders    *order.Engine
	transfers *transfer.Engine
	views     cqrs.ViewRepository
}

// New assembles the HTTP surface.
func New(logger *zap.Logger, accounts *account.Engine, orders *order.Engine, transfers *transfer.Engine, views cqrs.ViewRepository) *Server {
	return &Server{
		logger:    logger,
		accounts:  accounts,
		orders:    orders,
		transfers: transfers,
		views:     views,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/account/{id}", s.handleView(account.ViewName)).Methods(http.MethodGet)
	router.HandleFunc("/account/{id}", commandHandler(s, "account", s.accounts.ExecuteWithMetadata)).Methods(http.MethodPost)
	router.HandleFunc("/order/{id}", s.handleView(order.ViewName)).Methods(http.MethodGet)
	router.HandleFunc("/order/{id}", commandHandler(s, "order", s.orders.ExecuteWithMetadata)).Methods(http.MethodPost)
	router.HandleFunc("/transfer/{id}", s.handleView(transfer.ViewName)).Methods(http.MethodGet)
	router.HandleFunc("/transfer/{id}", commandHandler(s, "transfer", s.transfers.ExecuteWithMetadata)).Methods(http.MethodPost)
	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// commandMetadata captures the ingestion time, the called uri and the
// user agent; it is persisted alongside the emitted events.
func commandMetadata(r *http.Request) map[string]string {
	metadata := map[string]string{
		"time": time.Now().UTC().Format(time.RFC3339),
		"uri":  r.RequestURI,
	}
	if userAgent := r.Header.Get("User-Agent"); userAgent != "" {
		metadata["User-Agent"] = userAgent
	}
	return metadata
}

// commandHandler decodes the body as the aggregate's command sum and runs
// it through the engine. Domain rejections map to 400 with the error text,
// infrastructure failures to 500.
func commandHandler[C any](s *Server, aggregate string, execute func(ctx context.Context, id string, cmd C, metadata map[string]string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes))
		if err != nil {
			http.Error(w, "command could not be read", http.StatusBadRequest)
			return
		}
		var cmd C
		if err := json.Unmarshal(body, &cmd); err != nil {
			commandsTotal.WithLabelValues(aggregate, "malformed").Inc()
			http.Error(w, "command could not be read", http.StatusBadRequest)
			return
		}

		start := time.Now()
		err = execute(r.Context(), id, cmd, commandMetadata(r))
		commandDuration.WithLabelValues(aggregate).Observe(time.Since(start).Seconds())

		switch {
		case err == nil:
			commandsTotal.WithLabelValues(aggregate, "accepted").Inc()
			w.WriteHeader(http.StatusNoContent)
		case cqrs.IsInfrastructure(err):
			commandsTotal.WithLabelValues(aggregate, "error").Inc()
			s.logger.Error("command failed",
				zap.String("aggregate", aggregate),
				zap.String("id", id),
				zap.Error(err),
			)
			http.Error(w, "internal error", http.StatusInternalServerError)
		default:
			commandsTotal.WithLabelValues(aggregate, "rejected").Inc()
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
}

// handleView serves the materialized view row as-is; it is already the
// response DTO.
func (s *Server) handleView(viewName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		payload, err := s.views.Load(r.Context(), viewName, id)
		if err != nil {
			viewReadsTotal.WithLabelValues(viewName, "error").Inc()
			s.logger.Error("view load failed",
				zap.String("view", viewName),
				zap.String("id", id),
				zap.Error(err),
			)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if payload == nil {
			viewReadsTotal.WithLabelValues(viewName, "miss").Inc()
			w.WriteHeader(http.StatusNotFound)
			return
		}
		viewReadsTotal.WithLabelValues(viewName, "hit").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	}
}
