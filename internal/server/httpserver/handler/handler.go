package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/dirmesh-go/internal/server/clusterserver"
)

// SubscriberCounter reports the number of subscribed connections.
type SubscriberCounter interface {
	Len() int
}

// Handler serves the admin endpoints.
type Handler struct {
	federations []*clusterserver.Federation
	subscribers SubscriberCounter
	started     time.Time
	logger      *slog.Logger
	mux         *http.ServeMux
}

// New creates a Handler. Nil federations are skipped; subscribers may be
// nil.
func New(federations []*clusterserver.Federation, subscribers SubscriberCounter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		subscribers: subscribers,
		started:     time.Now(),
		logger:      logger,
		mux:         http.NewServeMux(),
	}
	for _, f := range federations {
		if f != nil {
			h.federations = append(h.federations, f)
		}
	}

	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.HandleFunc("GET /peers", h.handlePeers)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
