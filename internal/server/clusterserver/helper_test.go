package clusterserver

import (
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
	"github.com/yndnr/dirmesh-go/internal/wire"
)

// fakePeer is a loopback server that runs handle for every connection.
type fakePeer struct {
	ln   net.Listener
	peer domain.Peer
	wg   sync.WaitGroup
}

func newFakePeer(t *testing.T, handle func(c *wire.Conn)) *fakePeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	fp := &fakePeer{ln: ln, peer: domain.Peer{Hostname: "127.0.0.1", Port: port}}
	fp.wg.Add(1)
	go func() {
		defer fp.wg.Done()
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			fp.wg.Add(1)
			go func() {
				defer fp.wg.Done()
				c := wire.NewConn(nc)
				defer c.Close()
				handle(c)
			}()
		}
	}()
	t.Cleanup(fp.close)
	return fp
}

func (fp *fakePeer) close() {
	fp.ln.Close()
	fp.wg.Wait()
}

// deadPeer returns an address nothing listens on.
func deadPeer(t *testing.T) domain.Peer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()
	return domain.Peer{Hostname: "127.0.0.1", Port: port}
}

func readCommand(c *wire.Conn) (domain.Command, error) {
	frame, err := c.Receive()
	if err != nil {
		return nil, err
	}
	c.Consume()
	return domain.DecodeCommand(frame)
}

var testSelf = domain.Peer{Hostname: "self.example", Port: 3780}
