package wire

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

// DefaultDialTimeout bounds connection setup to a peer.
const DefaultDialTimeout = 10 * time.Second

// Dialer opens framed connections to peers, over TLS when TLSConfig is set.
type Dialer struct {
	// Timeout bounds connection setup. Zero means DefaultDialTimeout.
	Timeout time.Duration

	// TLSConfig enables TLS. ServerName defaults to the peer hostname.
	TLSConfig *tls.Config

	// ReadTimeout and WriteTimeout are applied to the returned Conn.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Dial connects to peer.
func (d *Dialer) Dial(ctx context.Context, peer domain.Peer) (*Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	netDialer := &net.Dialer{Timeout: timeout}

	var (
		nc  net.Conn
		err error
	)
	if d.TLSConfig != nil {
		cfg := d.TLSConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = peer.Hostname
		}
		tlsDialer := &tls.Dialer{NetDialer: netDialer, Config: cfg}
		nc, err = tlsDialer.DialContext(ctx, "tcp", peer.String())
	} else {
		nc, err = netDialer.DialContext(ctx, "tcp", peer.String())
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", peer, err)
	}

	c := NewConn(nc)
	c.SetReadTimeout(d.ReadTimeout)
	c.SetWriteTimeout(d.WriteTimeout)
	return c, nil
}
