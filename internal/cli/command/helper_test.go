package command

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
	"github.com/yndnr/dirmesh-go/internal/wire"
)

// fakeNode serves every connection with handle and records the commands
// it received.
type fakeNode struct {
	addr     string
	commands chan domain.Command
}

func newFakeNode(t *testing.T, handle func(*wire.Conn, domain.Command)) *fakeNode {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	n := &fakeNode{addr: ln.Addr().String(), commands: make(chan domain.Command, 16)}
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
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
				n.commands <- cmd
				handle(conn, cmd)
			}()
		}
	}()
	return n
}

// received returns the next command the node decoded.
func (n *fakeNode) received(t *testing.T) domain.Command {
	t.Helper()
	select {
	case cmd := <-n.commands:
		return cmd
	default:
		t.Fatal("node received no command")
		return nil
	}
}

// run executes the CLI with args and returns stdout and stderr.
func run(ctx context.Context, args ...string) (string, string, error) {
	app := App()
	var stdout, stderr bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.RunContext(ctx, append([]string{"dirmesh-cli"}, args...))
	return stdout.String(), stderr.String(), err
}

func ack(conn *wire.Conn, _ domain.Command) {
	_ = conn.Send(domain.SuccessResponse())
}
