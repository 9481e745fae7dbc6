package command

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dirmesh-go/internal/cli/connection"
	"github.com/yndnr/dirmesh-go/internal/cli/output"
	"github.com/yndnr/dirmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/dirmesh-go/internal/infra/tlsroots"
	"github.com/yndnr/dirmesh-go/internal/telemetry/logger"
)

// DefaultServer is the node contacted when --server is not given.
const DefaultServer = "localhost:3780"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "dirmesh-cli",
		Usage:   "DirMesh resource directory client",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			PublishCommand(),
			RemoveCommand(),
			ShareCommand(),
			QueryCommand(),
			FetchCommand(),
			ExchangeCommand(),
			SubscribeCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "DirMesh node address (host:port)",
			EnvVars: []string{"DIRMESH_SERVER"},
			Value:   DefaultServer,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Dial and read/write timeout",
			Value: connection.DefaultTimeout,
		},
		&cli.BoolFlag{
			Name:    "tls",
			Usage:   "Connect over TLS (the node's secure port)",
			EnvVars: []string{"DIRMESH_TLS"},
		},
		&cli.StringFlag{
			Name:    "tls-cert",
			Usage:   "Client certificate file (PEM) for mutual TLS",
			EnvVars: []string{"DIRMESH_TLS_CERT"},
		},
		&cli.StringFlag{
			Name:    "tls-key",
			Usage:   "Client private key file (PEM) for mutual TLS",
			EnvVars: []string{"DIRMESH_TLS_KEY"},
		},
		&cli.StringFlag{
			Name:    "tls-ca",
			Usage:   "CA certificate file (PEM) used to verify the node",
			EnvVars: []string{"DIRMESH_TLS_CA"},
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Log protocol activity to stderr",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Server  string
	Output  output.Format
	Wide    bool
	Timeout time.Duration

	TLS     bool
	TLSCert string
	TLSKey  string
	TLSCA   string

	Debug bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, _ := output.ParseFormat(c.String("output"))
	return &GlobalFlags{
		Server:  c.String("server"),
		Output:  format,
		Wide:    c.Bool("wide"),
		Timeout: c.Duration("timeout"),
		TLS:     c.Bool("tls"),
		TLSCert: c.String("tls-cert"),
		TLSKey:  c.String("tls-key"),
		TLSCA:   c.String("tls-ca"),
		Debug:   c.Bool("debug"),
	}
}

// useTLS reports whether any TLS flag was given.
func (f *GlobalFlags) useTLS() bool {
	return f.TLS || f.TLSCert != "" || f.TLSKey != "" || f.TLSCA != ""
}

// clientLogger returns the logger of a command run. It discards everything
// unless --debug is set.
func clientLogger(c *cli.Context) *slog.Logger {
	if !c.Bool("debug") {
		return logger.Discard()
	}
	l, err := logger.New(logger.Config{Level: "debug", Format: "text", Output: c.App.ErrWriter})
	if err != nil {
		return logger.Discard()
	}
	return l.Logger
}

// tlsConfig builds the client TLS configuration from the TLS flags. A
// client certificate enables mutual TLS.
func tlsConfig(flags *GlobalFlags, log *slog.Logger) (*tls.Config, error) {
	if !flags.useTLS() {
		return nil, nil
	}
	if flags.TLSCert != "" || flags.TLSKey != "" {
		bundle, err := tlsroots.Load(flags.TLSCert, flags.TLSKey, flags.TLSCA, log)
		if err != nil {
			return nil, err
		}
		return bundle.Client, nil
	}

	roots := tlsroots.NewPool()
	if flags.TLSCA != "" {
		roots = tlsroots.NewEmptyPool()
		if err := roots.AddCertFile(flags.TLSCA); err != nil {
			return nil, err
		}
	}
	return &tls.Config{RootCAs: roots.Pool(), MinVersion: tls.VersionTLS12}, nil
}

// newClient creates the protocol client for the --server node.
func newClient(c *cli.Context) (*connection.Client, error) {
	flags := ParseGlobalFlags(c)
	log := clientLogger(c)
	cfg, err := tlsConfig(flags, log)
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	client, err := connection.NewClient(flags.Server, cfg, flags.Timeout)
	if err != nil {
		return nil, err
	}
	log.Debug("using node", "server", client.Server(), "tls", cfg != nil)
	return client, nil
}

// commandContext bounds a one-shot command by the timeout.
func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, ParseGlobalFlags(c).Timeout)
}

// printResult writes data in the selected output format.
func printResult(c *cli.Context, data any) error {
	flags := ParseGlobalFlags(c)
	return output.NewFormatter(flags.Output, flags.Wide).Format(c.App.Writer, data)
}

// splitList splits comma separated values of a repeated flag.
func splitList(values []string) []string {
	out := []string{}
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
