package command

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dirmesh-go/internal/cli/output"
	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

// QueryCommand returns the query command.
func QueryCommand() *cli.Command {
	flags := append(resourceFlags(false), &cli.BoolFlag{
		Name:    "relay",
		Aliases: []string{"r"},
		Usage:   "Also query the node's federation peers",
	})
	return &cli.Command{
		Name:      "query",
		Aliases:   []string{"q"},
		Usage:     "List resources matching a template",
		UsageText: "dirmesh-cli query [--relay] [--name N] [--tags T] [--description D] [--uri U] [--channel C] [--owner O]",
		Flags:     flags,
		Action:    query,
	}
}

// FetchCommand returns the fetch command.
func FetchCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "uri", Aliases: []string{"u"}, Usage: "file:// URI of the shared file", Required: true},
		&cli.StringFlag{Name: "channel", Aliases: []string{"c"}, Usage: "Channel the file was shared on"},
		&cli.StringFlag{Name: "dest", Usage: "Destination file or directory (default: file name in the current directory)"},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Do not draw transfer progress"},
	}
	return &cli.Command{
		Name:   "fetch",
		Usage:  "Download a shared file",
		Flags:  flags,
		Action: fetch,
	}
}

func query(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	var results output.Resources
	n, qerr := client.Query(ctx, resourceFromFlags(c), c.Bool("relay"), func(r *domain.Resource) error {
		results = append(results, r)
		return nil
	})
	if n == 0 && qerr != nil {
		return fmt.Errorf("query: %w", qerr)
	}
	if results == nil {
		results = output.Resources{}
	}

	if err := printResult(c, results); err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output == output.FormatTable {
		fmt.Fprintf(c.App.Writer, "\nTotal: %d resources\n", n)
	}
	if qerr != nil {
		return fmt.Errorf("query: %w", qerr)
	}
	return nil
}

func fetch(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	template := &domain.Resource{URI: c.String("uri"), Channel: c.String("channel"), Tags: []string{}}
	dest, err := fetchDestination(template.URI, c.String("dest"))
	if err != nil {
		return err
	}

	var (
		file *os.File
		bar  *output.ProgressBar
	)
	res, ferr := client.Fetch(ctx, template, func(r *domain.Resource) (io.Writer, error) {
		f, err := os.Create(dest)
		if err != nil {
			return nil, err
		}
		file = f
		if c.Bool("quiet") || !output.IsTerminal(c.App.ErrWriter) {
			return f, nil
		}
		bar = output.NewProgressBar(c.App.ErrWriter, filepath.Base(dest))
		bar.SetTotal(r.Size)
		return bar.Writer(f), nil
	})
	if file != nil {
		if cerr := file.Close(); ferr == nil {
			ferr = cerr
		}
	}
	if ferr != nil {
		if file != nil {
			os.Remove(dest)
		}
		return fmt.Errorf("fetch: %w", ferr)
	}
	if bar != nil {
		bar.Finish()
	}

	if err := printResult(c, output.Resources{res}); err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output == output.FormatTable {
		fmt.Fprintf(c.App.Writer, "\nSaved %s to %s\n", output.FormatBytes(res.Size), dest)
	}
	return nil
}

// fetchDestination resolves where a fetched file is written. An existing
// directory receives the file under its own name.
func fetchDestination(uri, dest string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid uri %q: %w", uri, err)
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return "", errors.New("uri does not name a file")
	}
	if dest == "" {
		return name, nil
	}
	if st, err := os.Stat(dest); err == nil && st.IsDir() {
		return filepath.Join(dest, name), nil
	}
	return dest, nil
}
