package clusterserver

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
	"github.com/yndnr/dirmesh-go/internal/wire"
)

// queryPeer answers a QUERY with the given URIs and records the query.
func queryPeer(t *testing.T, uris []string, seen chan<- domain.Query) *fakePeer {
	return newFakePeer(t, func(c *wire.Conn) {
		cmd, err := readCommand(c)
		if err != nil {
			return
		}
		if seen != nil {
			seen <- cmd.(domain.Query)
		}
		_ = c.Send(domain.SuccessResponse())
		for _, u := range uris {
			origin := "peer:1"
			_ = c.Send(domain.Resource{URI: u, Owner: "*", Tags: []string{}, Origin: &origin})
		}
		_ = c.Send(domain.ResultSize{ResultSize: len(uris)})
	})
}

func newTestRelay(d *PeerDirectory) *QueryRelay {
	return NewQueryRelay(FederationPlain, d, &wire.Dialer{Timeout: time.Second}, nil, 2*time.Second, nil, nil)
}

func TestQueryRelay_QueryAll(t *testing.T) {
	seen := make(chan domain.Query, 2)
	p1 := queryPeer(t, []string{"http://a/1", "http://a/2"}, seen)
	p2 := queryPeer(t, []string{"http://b/1"}, seen)
	broken := newFakePeer(t, func(c *wire.Conn) {
		_, _ = readCommand(c)
		_ = c.Send(domain.ErrorResponse("invalid command"))
	})

	d := NewPeerDirectory(testSelf, nil)
	d.AddPeers([]domain.Peer{p1.peer, p2.peer, broken.peer, deadPeer(t)})

	var (
		mu   sync.Mutex
		uris []string
	)
	q := domain.Query{Template: &domain.Resource{Channel: "c", Owner: "o", Name: "doc"}, Relay: true}
	err := newTestRelay(d).QueryAll(context.Background(), q, func(r *domain.Resource) error {
		mu.Lock()
		defer mu.Unlock()
		uris = append(uris, r.URI)
		return nil
	})
	if err != nil {
		t.Fatalf("QueryAll error = %v", err)
	}

	sort.Strings(uris)
	want := []string{"http://a/1", "http://a/2", "http://b/1"}
	if len(uris) != len(want) {
		t.Fatalf("uris = %v, want %v", uris, want)
	}
	for i := range want {
		if uris[i] != want[i] {
			t.Errorf("uris[%d] = %s, want %s", i, uris[i], want[i])
		}
	}

	for range 2 {
		rq := <-seen
		if rq.Relay {
			t.Error("relayed query must not relay again")
		}
		if rq.Template.Channel != "" || rq.Template.Owner != "" || rq.Template.Name != "doc" {
			t.Errorf("relayed template = %+v", rq.Template)
		}
	}
	if d.Len() != 4 {
		t.Error("relay failures must not remove peers")
	}
}

func TestQueryRelay_ConsumerError(t *testing.T) {
	p := queryPeer(t, []string{"http://a/1", "http://a/2"}, nil)
	d := NewPeerDirectory(testSelf, nil)
	d.AddPeers([]domain.Peer{p.peer})

	stop := errors.New("client gone")
	err := newTestRelay(d).QueryAll(context.Background(), domain.Query{Template: &domain.Resource{}}, func(*domain.Resource) error {
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("QueryAll error = %v, want %v", err, stop)
	}
}

func TestQueryRelay_NoPeers(t *testing.T) {
	called := false
	err := newTestRelay(NewPeerDirectory(testSelf, nil)).QueryAll(context.Background(),
		domain.Query{Template: &domain.Resource{}},
		func(*domain.Resource) error { called = true; return nil })
	if err != nil || called {
		t.Errorf("QueryAll = %v, called = %v", err, called)
	}
}

func TestQueryRelay_SlowPeerTimesOut(t *testing.T) {
	release := make(chan struct{})
	slow := newFakePeer(t, func(c *wire.Conn) {
		_, _ = readCommand(c)
		<-release
	})
	t.Cleanup(func() { close(release) })

	d := NewPeerDirectory(testSelf, nil)
	d.AddPeers([]domain.Peer{slow.peer})
	r := NewQueryRelay(FederationPlain, d, &wire.Dialer{Timeout: time.Second}, nil, 100*time.Millisecond, nil, nil)

	start := time.Now()
	if err := r.QueryAll(context.Background(), domain.Query{Template: &domain.Resource{}}, func(*domain.Resource) error { return nil }); err != nil {
		t.Errorf("QueryAll error = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("slow peer was not abandoned at the relay timeout")
	}
}
