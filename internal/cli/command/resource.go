package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dirmesh-go/internal/cli/connection"
	"github.com/yndnr/dirmesh-go/internal/cli/output"
	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

// resourceFlags are the fields of a resource or template. uriRequired
// marks --uri as mandatory.
func resourceFlags(uriRequired bool) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Resource name"},
		&cli.StringSliceFlag{Name: "tags", Aliases: []string{"t"}, Usage: "Tags (repeat or comma separated)"},
		&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Resource description"},
		&cli.StringFlag{Name: "uri", Aliases: []string{"u"}, Usage: "Resource URI", Required: uriRequired},
		&cli.StringFlag{Name: "channel", Aliases: []string{"c"}, Usage: "Channel (default channel when empty)"},
		&cli.StringFlag{Name: "owner", Usage: "Owner (public when empty)"},
	}
}

// resourceFromFlags builds a resource or template from resourceFlags.
func resourceFromFlags(c *cli.Context) *domain.Resource {
	return &domain.Resource{
		Name:        c.String("name"),
		Tags:        splitList(c.StringSlice("tags")),
		Description: c.String("description"),
		URI:         c.String("uri"),
		Channel:     c.String("channel"),
		Owner:       c.String("owner"),
	}
}

// PublishCommand returns the publish command.
func PublishCommand() *cli.Command {
	return &cli.Command{
		Name:   "publish",
		Usage:  "Publish a resource with a non-file URI",
		Flags:  resourceFlags(true),
		Action: publish,
	}
}

// RemoveCommand returns the remove command.
func RemoveCommand() *cli.Command {
	return &cli.Command{
		Name:    "remove",
		Aliases: []string{"rm"},
		Usage:   "Remove a resource published with the same channel, URI and owner",
		Flags:   resourceFlags(true),
		Action:  remove,
	}
}

// ShareCommand returns the share command.
func ShareCommand() *cli.Command {
	flags := append(resourceFlags(true), &cli.StringFlag{
		Name:     "secret",
		Usage:    "Node secret",
		EnvVars:  []string{"DIRMESH_SECRET"},
		Required: true,
	})
	return &cli.Command{
		Name:   "share",
		Usage:  "Share a file on the node (file:// URI)",
		Flags:  flags,
		Action: share,
	}
}

func publish(c *cli.Context) error {
	r := resourceFromFlags(c)
	return runResourceCommand(c, domain.KindPublish, r, func(ctx context.Context, cl *connection.Client) error {
		return cl.Publish(ctx, r)
	})
}

func remove(c *cli.Context) error {
	r := resourceFromFlags(c)
	return runResourceCommand(c, domain.KindRemove, r, func(ctx context.Context, cl *connection.Client) error {
		return cl.Remove(ctx, r)
	})
}

func share(c *cli.Context) error {
	r := resourceFromFlags(c)
	return runResourceCommand(c, domain.KindShare, r, func(ctx context.Context, cl *connection.Client) error {
		return cl.Share(ctx, r, c.String("secret"))
	})
}

// runResourceCommand sends a command answered by a single response and
// prints the acknowledged resource key.
func runResourceCommand(c *cli.Context, kind domain.Kind, r *domain.Resource, send func(context.Context, *connection.Client) error) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	if err := send(ctx, client); err != nil {
		return fmt.Errorf("%s: %w", strings.ToLower(string(kind)), err)
	}
	return printResult(c, output.Fields{
		{"response", "success"},
		{"command", string(kind)},
		{"channel", r.Channel},
		{"uri", r.URI},
	})
}
