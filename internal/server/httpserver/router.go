// Package httpserver provides the admin HTTP endpoint of a DirMesh node.
package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/dirmesh-go/internal/server/clusterserver"
	"github.com/yndnr/dirmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/dirmesh-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Metrics is served on /metrics.
	Metrics *metric.Registry

	// Federations are reported by /healthz and /peers.
	Federations []*clusterserver.Federation

	// Subscribers reports the subscriber count on /healthz.
	Subscribers handler.SubscriberCounter

	// AllowList is the IP/CIDR allowlist (empty = no restriction).
	AllowList []string

	Logger *slog.Logger
}

// NewRouter creates the admin router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := handler.New(cfg.Federations, cfg.Subscribers, logger)

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", h)
	mux.Handle("GET /peers", h)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	return Chain(mux,
		RequestID(),
		Recover(logger),
		AccessLog(logger),
		NetworkACL(&NetworkACLConfig{AllowList: cfg.AllowList, Logger: logger}),
	)
}
