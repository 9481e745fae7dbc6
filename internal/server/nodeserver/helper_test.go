package nodeserver

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
	"github.com/yndnr/dirmesh-go/internal/core/service"
	"github.com/yndnr/dirmesh-go/internal/server/clusterserver"
	"github.com/yndnr/dirmesh-go/internal/storage/localfs"
	"github.com/yndnr/dirmesh-go/internal/storage/memory"
	"github.com/yndnr/dirmesh-go/internal/wire"
)

const testSecret = "open-sesame"

// testNode is a node served on a loopback port.
type testNode struct {
	srv   *Server
	dir   *memory.Directory
	fed   *clusterserver.Federation
	self  domain.Peer
	root  string
	close func()
}

// freePort returns a loopback port nothing listens on.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestNode(t *testing.T, interval time.Duration) *testNode {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	self := domain.Peer{Hostname: "127.0.0.1", Port: freePort(t)}
	root := t.TempDir()
	dir := memory.NewDirectory()
	verifier, err := service.NewSecretVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewSecretVerifier: %v", err)
	}

	subs := service.NewSubscriptionService()
	subsDone := make(chan struct{})
	go func() {
		_ = subs.Run(ctx)
		close(subsDone)
	}()

	fed := clusterserver.NewFederation(clusterserver.FederationConfig{
		Name:         clusterserver.FederationPlain,
		Self:         self,
		DialTimeout:  time.Second,
		RelayTimeout: 2 * time.Second,
		Notifier:     subs,
	})
	srv := New(&Config{
		PlainAddress:       self.String(),
		ReadTimeout:        2 * time.Second,
		WriteTimeout:       2 * time.Second,
		ConnectionInterval: interval,
	}, Deps{
		Resources:     service.NewResourceService(dir, localfs.New(localfs.WithRoot(root)), verifier, subs, nil),
		Subscriptions: subs,
		Plain:         fed,
	})
	if err := srv.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}

	n := &testNode{srv: srv, dir: dir, fed: fed, self: self, root: root}
	n.close = func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
		fed.Subscriptions.Close()
		cancel()
		<-subsDone
	}
	t.Cleanup(n.close)
	return n
}

// dial opens a client connection to the node.
func (n *testNode) dial(t *testing.T) *wire.Conn {
	t.Helper()
	d := &wire.Dialer{Timeout: time.Second, ReadTimeout: 2 * time.Second, WriteTimeout: 2 * time.Second}
	c, err := d.Dial(context.Background(), n.self)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// roundTrip sends cmd on a new connection and returns the response.
func (n *testNode) roundTrip(t *testing.T, cmd domain.Command) domain.Response {
	t.Helper()
	c := n.dial(t)
	if err := c.Send(cmd); err != nil {
		t.Fatalf("send: %v", err)
	}
	return readResponse(t, c)
}

func readResponse(t *testing.T, c *wire.Conn) domain.Response {
	t.Helper()
	var resp domain.Response
	if err := c.DecodeAs(&resp); err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp
}

// sendRawFrame writes payload as one frame without encoding it.
func sendRawFrame(t *testing.T, c *wire.Conn, payload string) {
	t.Helper()
	buf := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(buf, uint16(len(payload)))
	copy(buf[2:], payload)
	if _, err := c.NetConn().Write(buf); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func strPtr(s string) *string { return &s }
