package handler

import "github.com/yndnr/dirmesh-go/internal/infra/buildinfo"

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status        string         `json:"status"`
	Build         buildinfo.Info `json:"build"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Subscribers   int            `json:"subscribers"`
	Peers         map[string]int `json:"peers"`
}

// FederationPeers lists the peers of one federation.
type FederationPeers struct {
	Name  string   `json:"name"`
	Self  string   `json:"self"`
	Peers []string `json:"peers"`
}

// PeersResponse is the body of GET /peers.
type PeersResponse struct {
	Federations []FederationPeers `json:"federations"`
}
