package command

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dirmesh-go/internal/cli/output"
	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

// SubscribeCommand returns the subscribe command.
func SubscribeCommand() *cli.Command {
	flags := append(resourceFlags(false),
		&cli.BoolFlag{
			Name:    "relay",
			Aliases: []string{"r"},
			Usage:   "Also receive resources published on federation peers",
		},
		&cli.StringFlag{
			Name:  "id",
			Usage: "Subscription id (chosen by the node when empty)",
		},
	)
	return &cli.Command{
		Name:   "subscribe",
		Usage:  "Print resources matching a template as they are published, until interrupted",
		Flags:  flags,
		Action: subscribe,
	}
}

func subscribe(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := ParseGlobalFlags(c)
	printer := newStreamPrinter(c, flags)

	sub, err := client.Subscribe(ctx, resourceFromFlags(c), c.String("id"), c.Bool("relay"),
		func(id string) {
			fmt.Fprintf(c.App.ErrWriter, "Subscribed %s (Ctrl-C to stop)\n", id)
		},
		printer.print,
	)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	fmt.Fprintf(c.App.ErrWriter, "Unsubscribed %s: %d resources delivered\n", sub.ID, sub.Delivered)
	return nil
}

// streamPrinter prints pushed resources one at a time.
type streamPrinter struct {
	c      *cli.Context
	format output.Format
	wide   bool
	count  int
}

func newStreamPrinter(c *cli.Context, flags *GlobalFlags) *streamPrinter {
	return &streamPrinter{c: c, format: flags.Output, wide: flags.Wide}
}

func (p *streamPrinter) print(r *domain.Resource) error {
	w := p.c.App.Writer
	p.count++
	switch p.format {
	case output.FormatTable:
		f := &output.TableFormatter{Wide: p.wide, NoHeaders: p.count > 1}
		return f.Format(w, output.Resources{r})
	case output.FormatYAML:
		fmt.Fprintln(w, "---")
		return (&output.YAMLFormatter{}).Format(w, r)
	default:
		return (&output.JSONFormatter{}).Format(w, r)
	}
}
