package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dirmesh-go/internal/cli/output"
	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

// ExchangeCommand returns the exchange command.
func ExchangeCommand() *cli.Command {
	return &cli.Command{
		Name:      "exchange",
		Usage:     "Send a list of servers to the node",
		ArgsUsage: "HOST:PORT [HOST:PORT...]",
		Action:    exchange,
	}
}

func exchange(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("exchange needs at least one HOST:PORT")
	}
	servers := make([]domain.Peer, 0, c.NArg())
	for _, arg := range splitList(c.Args().Slice()) {
		p, err := domain.ParsePeer(arg)
		if err != nil {
			return err
		}
		servers = append(servers, p)
	}

	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	if err := client.Exchange(ctx, servers); err != nil {
		return fmt.Errorf("exchange: %w", err)
	}

	list := make([]string, len(servers))
	for i, p := range servers {
		list[i] = p.String()
	}
	return printResult(c, output.Fields{
		{"response", "success"},
		{"command", string(domain.KindExchange)},
		{"servers", strings.Join(list, ",")},
	})
}
