package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/dirmesh-go/internal/infra/buildinfo"
)

// handleHealth handles GET /healthz.
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Build:         buildinfo.Get(),
		UptimeSeconds: int64(time.Since(h.started) / time.Second),
		Peers:         make(map[string]int, len(h.federations)),
	}
	if h.subscribers != nil {
		resp.Subscribers = h.subscribers.Len()
	}
	for _, f := range h.federations {
		resp.Peers[f.Name] = f.Peers.Len()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handlePeers handles GET /peers.
func (h *Handler) handlePeers(w http.ResponseWriter, _ *http.Request) {
	resp := PeersResponse{Federations: make([]FederationPeers, 0, len(h.federations))}
	for _, f := range h.federations {
		snapshot := f.Peers.Snapshot()
		fp := FederationPeers{
			Name:  f.Name,
			Self:  f.Origin(),
			Peers: make([]string, len(snapshot)),
		}
		for i, p := range snapshot {
			fp.Peers[i] = p.String()
		}
		resp.Federations = append(resp.Federations, fp)
	}
	h.writeJSON(w, http.StatusOK, resp)
}
