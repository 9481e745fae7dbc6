// Package connection provides the node protocol client of dirmesh-cli.
package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
	"github.com/yndnr/dirmesh-go/internal/wire"
)

// DefaultTimeout bounds dialing and every read and write of a one-shot
// command.
const DefaultTimeout = time.Minute

// ServerError is an error response sent by the node.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server: " + e.Message
}

// ErrResultMismatch is returned when a stream terminator disagrees with
// the number of frames received.
var ErrResultMismatch = errors.New("result size does not match the frames received")

// Client issues commands to one node. Every command uses its own
// connection.
type Client struct {
	server domain.Peer
	dialer *wire.Dialer
}

// NewClient creates a client for server (host:port). tlsConfig enables TLS.
func NewClient(server string, tlsConfig *tls.Config, timeout time.Duration) (*Client, error) {
	peer, err := domain.ParsePeer(server)
	if err != nil {
		return nil, fmt.Errorf("invalid server address: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		server: peer,
		dialer: &wire.Dialer{
			Timeout:      timeout,
			TLSConfig:    tlsConfig,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
	}, nil
}

// Server returns the node address.
func (c *Client) Server() string {
	return c.server.String()
}

// open dials the node, sends cmd and reads the acknowledgement.
func (c *Client) open(ctx context.Context, cmd domain.Command) (*wire.Conn, domain.Response, error) {
	conn, err := c.dialer.Dial(ctx, c.server)
	if err != nil {
		return nil, domain.Response{}, err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.Send(cmd); err != nil {
		conn.Close()
		return nil, domain.Response{}, err
	}
	var resp domain.Response
	if err := conn.DecodeAs(&resp); err != nil {
		conn.Close()
		return nil, domain.Response{}, fmt.Errorf("read response: %w", err)
	}
	if !resp.IsSuccess() {
		conn.Close()
		return nil, resp, &ServerError{Message: resp.ErrorMessage}
	}
	return conn, resp, nil
}

// exec runs a command answered by a single response.
func (c *Client) exec(ctx context.Context, cmd domain.Command) error {
	conn, _, err := c.open(ctx, cmd)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Publish registers r.
func (c *Client) Publish(ctx context.Context, r *domain.Resource) error {
	return c.exec(ctx, domain.Publish{Resource: r})
}

// Remove deletes r.
func (c *Client) Remove(ctx context.Context, r *domain.Resource) error {
	return c.exec(ctx, domain.Remove{Resource: r})
}

// Share registers the local file resource r with the node secret.
func (c *Client) Share(ctx context.Context, r *domain.Resource, secret string) error {
	return c.exec(ctx, domain.Share{Resource: r, Secret: &secret})
}

// Exchange sends a server list to the node.
func (c *Client) Exchange(ctx context.Context, servers []domain.Peer) error {
	return c.exec(ctx, domain.Exchange{Servers: servers})
}

// Query streams the resources matching template to fn and returns how many
// arrived.
func (c *Client) Query(ctx context.Context, template *domain.Resource, relay bool, fn func(*domain.Resource) error) (int, error) {
	conn, _, err := c.open(ctx, domain.Query{Template: template, Relay: relay})
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	received, declared, err := conn.ReadResources(fn)
	if err != nil {
		return received, fmt.Errorf("read results: %w", err)
	}
	if received != declared {
		return received, fmt.Errorf("%w: got %d, declared %d", ErrResultMismatch, received, declared)
	}
	return received, nil
}

// Fetch downloads the file behind template. open receives the resource,
// whose Size is the file length, and returns where to write the bytes.
func (c *Client) Fetch(ctx context.Context, template *domain.Resource, open func(*domain.Resource) (io.Writer, error)) (*domain.Resource, error) {
	conn, _, err := c.open(ctx, domain.Fetch{Template: template})
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var res domain.Resource
	if err := conn.DecodeAs(&res); err != nil {
		return nil, fmt.Errorf("read resource: %w", err)
	}
	w, err := open(&res)
	if err != nil {
		return nil, err
	}
	if err := conn.ReceiveRaw(w, res.Size); err != nil {
		return nil, err
	}

	var size domain.ResultSize
	if err := conn.DecodeAs(&size); err != nil {
		return nil, fmt.Errorf("read trailer: %w", err)
	}
	if size.ResultSize != 1 {
		return nil, fmt.Errorf("%w: trailer declares %d", ErrResultMismatch, size.ResultSize)
	}
	return &res, nil
}

// Subscription is the outcome of Subscribe.
type Subscription struct {
	// ID is the subscription id acknowledged by the node.
	ID string
	// Delivered is the count reported by the node on unsubscribe.
	Delivered int
}

// Subscribe registers template and passes pushed resources to fn until
// ctx is cancelled, then unsubscribes and returns the delivery count. onAck,
// if set, receives the subscription id. id may be empty to let the node
// choose one.
func (c *Client) Subscribe(ctx context.Context, template *domain.Resource, id string, relay bool, onAck func(string), fn func(*domain.Resource) error) (*Subscription, error) {
	conn, err := c.dialer.Dial(ctx, c.server)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.Send(domain.Subscribe{Template: template, Relay: relay, ID: id}); err != nil {
		return nil, err
	}

	acked := make(chan string, 1)
	done := make(chan struct{})
	defer close(done)
	go c.unsubscribeOnCancel(ctx, conn, acked, done)

	sub := &Subscription{ID: id}
	ackSeen := false
	for {
		var res domain.Resource
		err := conn.DecodeAs(&res)
		if err == nil {
			if fn != nil {
				if err := fn(&res); err != nil {
					return sub, err
				}
			}
			continue
		}
		if !errors.Is(err, wire.ErrDecodeMismatch) {
			return sub, fmt.Errorf("read frame: %w", err)
		}

		var resp domain.Response
		err = conn.DecodeAs(&resp)
		if err == nil {
			if !resp.IsSuccess() {
				return sub, &ServerError{Message: resp.ErrorMessage}
			}
			if ackSeen {
				continue
			}
			ackSeen = true
			if resp.ID != "" {
				sub.ID = resp.ID
			}
			// Pushes may arrive at any time from now on.
			conn.SetReadTimeout(0)
			if onAck != nil {
				onAck(sub.ID)
			}
			acked <- sub.ID
			continue
		}
		if !errors.Is(err, wire.ErrDecodeMismatch) {
			return sub, fmt.Errorf("read frame: %w", err)
		}

		var size domain.ResultSize
		if err := conn.DecodeAs(&size); err != nil {
			return sub, fmt.Errorf("read frame: %w", err)
		}
		sub.Delivered = size.ResultSize
		return sub, nil
	}
}

// unsubscribeOnCancel sends the UNSUBSCRIBE once ctx is cancelled after
// the acknowledgement, and re-arms the read timeout so a silent node
// cannot block the reader.
func (c *Client) unsubscribeOnCancel(ctx context.Context, conn *wire.Conn, acked <-chan string, done <-chan struct{}) {
	var id string
	select {
	case id = <-acked:
	case <-done:
		return
	}
	select {
	case <-ctx.Done():
	case <-done:
		return
	}

	timeout := c.dialer.ReadTimeout
	conn.SetReadTimeout(timeout)
	_ = conn.NetConn().SetReadDeadline(time.Now().Add(timeout))
	if err := conn.Send(domain.Unsubscribe{ID: id}); err != nil {
		conn.Close()
	}
}
