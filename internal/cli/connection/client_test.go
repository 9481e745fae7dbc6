package connection

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
	"github.com/yndnr/dirmesh-go/internal/wire"
)

// fakeNode accepts one connection and runs handle on it.
func fakeNode(t *testing.T, handle func(*wire.Conn, domain.Command)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		conn := wire.NewConn(nc)
		defer conn.Close()
		frame, err := conn.Receive()
		if err != nil {
			return
		}
		conn.Consume()
		cmd, err := domain.DecodeCommand(frame)
		if err != nil {
			_ = conn.Send(domain.ErrorResponse("invalid command"))
			return
		}
		handle(conn, cmd)
	}()
	return ln.Addr().String()
}

func newClient(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := NewClient(addr, nil, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func resource(name, uri string) *domain.Resource {
	return &domain.Resource{Name: name, URI: uri, Tags: []string{}}
}

func TestNewClient_InvalidAddress(t *testing.T) {
	for _, addr := range []string{"", "nohost", "host:0", "host:abc"} {
		if _, err := NewClient(addr, nil, 0); err == nil {
			t.Errorf("NewClient(%q) succeeded", addr)
		}
	}
}

func TestClient_Publish(t *testing.T) {
	got := make(chan domain.Command, 1)
	addr := fakeNode(t, func(conn *wire.Conn, cmd domain.Command) {
		got <- cmd
		_ = conn.Send(domain.SuccessResponse())
	})

	r := resource("docs", "http://example.com/docs")
	if err := newClient(t, addr).Publish(context.Background(), r); err != nil {
		t.Fatalf("Publish() = %v", err)
	}
	pub, ok := (<-got).(domain.Publish)
	if !ok || pub.Resource.URI != r.URI {
		t.Errorf("server received %#v", pub)
	}
}

func TestClient_ErrorResponse(t *testing.T) {
	addr := fakeNode(t, func(conn *wire.Conn, _ domain.Command) {
		_ = conn.Send(domain.ErrorResponse("cannot publish resource"))
	})

	err := newClient(t, addr).Publish(context.Background(), resource("a", "http://x/a"))
	var se *ServerError
	if !errors.As(err, &se) || se.Message != "cannot publish resource" {
		t.Fatalf("Publish() = %v, want ServerError", err)
	}
}

func TestClient_ShareSendsSecret(t *testing.T) {
	got := make(chan domain.Share, 1)
	addr := fakeNode(t, func(conn *wire.Conn, cmd domain.Command) {
		got <- cmd.(domain.Share)
		_ = conn.Send(domain.SuccessResponse())
	})

	if err := newClient(t, addr).Share(context.Background(), resource("f", "file:///tmp/f"), "s3cret"); err != nil {
		t.Fatal(err)
	}
	if s := <-got; s.Secret == nil || *s.Secret != "s3cret" {
		t.Errorf("secret = %v", s.Secret)
	}
}

func TestClient_Query(t *testing.T) {
	tests := []struct {
		name     string
		declared int
		wantErr  error
	}{
		{"matching terminator", 2, nil},
		{"mismatched terminator", 3, ErrResultMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := fakeNode(t, func(conn *wire.Conn, cmd domain.Command) {
				if q := cmd.(domain.Query); !q.Relay {
					_ = conn.Send(domain.ErrorResponse("relay expected"))
					return
				}
				_ = conn.Send(domain.SuccessResponse())
				_ = conn.Send(resource("a", "http://x/a"))
				_ = conn.Send(resource("b", "http://x/b"))
				_ = conn.Send(domain.ResultSize{ResultSize: tt.declared})
			})

			var names []string
			n, err := newClient(t, addr).Query(context.Background(), &domain.Resource{}, true, func(r *domain.Resource) error {
				names = append(names, r.Name)
				return nil
			})
			if !errors.Is(err, tt.wantErr) && (err != nil || tt.wantErr != nil) {
				t.Fatalf("Query() = %v, want %v", err, tt.wantErr)
			}
			if n != 2 || strings.Join(names, ",") != "a,b" {
				t.Errorf("n = %d, names = %v", n, names)
			}
		})
	}
}

func TestClient_Fetch(t *testing.T) {
	content := bytes.Repeat([]byte("dirmesh"), 5000)
	addr := fakeNode(t, func(conn *wire.Conn, _ domain.Command) {
		_ = conn.Send(domain.SuccessResponse())
		r := resource("f", "file:///srv/f")
		r.Size = int64(len(content))
		_ = conn.Send(r)
		_ = conn.SendRaw(bytes.NewReader(content), int64(len(content)))
		_ = conn.Send(domain.ResultSize{ResultSize: 1})
	})

	var buf bytes.Buffer
	res, err := newClient(t, addr).Fetch(context.Background(), &domain.Resource{URI: "file:///srv/f"}, func(r *domain.Resource) (io.Writer, error) {
		if r.Size != int64(len(content)) {
			t.Errorf("Size = %d", r.Size)
		}
		return &buf, nil
	})
	if err != nil {
		t.Fatalf("Fetch() = %v", err)
	}
	if res.Name != "f" || !bytes.Equal(buf.Bytes(), content) {
		t.Errorf("fetched %q with %d bytes", res.Name, buf.Len())
	}
}

func TestClient_FetchBadTrailer(t *testing.T) {
	addr := fakeNode(t, func(conn *wire.Conn, _ domain.Command) {
		_ = conn.Send(domain.SuccessResponse())
		r := resource("f", "file:///srv/f")
		r.Size = 3
		_ = conn.Send(r)
		_ = conn.SendRaw(strings.NewReader("abc"), 3)
		_ = conn.Send(domain.ResultSize{ResultSize: 0})
	})

	_, err := newClient(t, addr).Fetch(context.Background(), &domain.Resource{}, func(*domain.Resource) (io.Writer, error) {
		return io.Discard, nil
	})
	if !errors.Is(err, ErrResultMismatch) {
		t.Fatalf("Fetch() = %v, want ErrResultMismatch", err)
	}
}

func TestClient_Exchange(t *testing.T) {
	got := make(chan domain.Exchange, 1)
	addr := fakeNode(t, func(conn *wire.Conn, cmd domain.Command) {
		got <- cmd.(domain.Exchange)
		_ = conn.Send(domain.SuccessResponse())
	})

	peers := []domain.Peer{{Hostname: "a.example", Port: 3780}}
	if err := newClient(t, addr).Exchange(context.Background(), peers); err != nil {
		t.Fatal(err)
	}
	if ex := <-got; len(ex.Servers) != 1 || ex.Servers[0] != peers[0] {
		t.Errorf("servers = %v", ex.Servers)
	}
}

func TestClient_Subscribe(t *testing.T) {
	addr := fakeNode(t, func(conn *wire.Conn, cmd domain.Command) {
		sub := cmd.(domain.Subscribe)
		id := sub.ID
		if id == "" {
			id = "generated"
		}
		// A push may precede the acknowledgement.
		_ = conn.Send(resource("early", "http://x/early"))
		_ = conn.Send(domain.SubscribedResponse(id))
		_ = conn.Send(resource("late", "http://x/late"))

		frame, err := conn.Receive()
		if err != nil {
			return
		}
		conn.Consume()
		next, err := domain.DecodeCommand(frame)
		if err != nil {
			return
		}
		if u, ok := next.(domain.Unsubscribe); ok && u.ID == id {
			_ = conn.Send(domain.ResultSize{ResultSize: 2})
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ackID string
	var names []string
	sub, err := newClient(t, addr).Subscribe(ctx, &domain.Resource{}, "", false,
		func(id string) { ackID = id },
		func(r *domain.Resource) error {
			names = append(names, r.Name)
			if len(names) == 2 {
				cancel()
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Subscribe() = %v", err)
	}
	if ackID != "generated" || sub.ID != "generated" {
		t.Errorf("id = %q / %q", ackID, sub.ID)
	}
	if sub.Delivered != 2 {
		t.Errorf("Delivered = %d, want 2", sub.Delivered)
	}
	if strings.Join(names, ",") != "early,late" {
		t.Errorf("names = %v", names)
	}
}

func TestClient_SubscribeRejected(t *testing.T) {
	addr := fakeNode(t, func(conn *wire.Conn, _ domain.Command) {
		_ = conn.Send(domain.ErrorResponse("missing resourceTemplate"))
	})

	_, err := newClient(t, addr).Subscribe(context.Background(), nil, "", false, nil, nil)
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("Subscribe() = %v, want ServerError", err)
	}
}

func TestClient_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if err := newClient(t, addr).Publish(context.Background(), resource("a", "http://x/a")); err == nil {
		t.Error("Publish() to a closed port succeeded")
	}
}
