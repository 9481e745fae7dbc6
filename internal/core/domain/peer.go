package domain

import (
	"fmt"
	"net"
	"strconv"
)

// Peer identifies a federation node by the address it advertises.
// Peers compare by value and may be used as map keys.
type Peer struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
}

// Valid reports whether the peer has a hostname and a port in 1..65535.
func (p Peer) Valid() bool {
	return p.Hostname != "" && p.Port > 0 && p.Port <= 65535
}

// String returns host:port.
func (p Peer) String() string {
	return net.JoinHostPort(p.Hostname, strconv.Itoa(p.Port))
}

// ParsePeer parses a host:port pair.
func ParsePeer(s string) (Peer, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Peer{}, fmt.Errorf("parse peer %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Peer{}, fmt.Errorf("parse peer %q: invalid port", s)
	}
	p := Peer{Hostname: host, Port: port}
	if !p.Valid() {
		return Peer{}, ErrInvalidServerRecord.WithDetails(s)
	}
	return p, nil
}
