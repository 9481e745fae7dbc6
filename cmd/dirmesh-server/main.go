package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dirmesh-go/internal/infra/buildinfo"
)

func main() {
	if err := app().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func app() *cli.App {
	return &cli.App{
		Name:    "dirmesh-server",
		Usage:   "DirMesh federated resource directory node",
		Version: buildinfo.String(),
		Flags:   serverFlags(),
		Action:  run,
	}
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"host":                      "server.host",
	"port":                      "server.port",
	"sport":                     "server.secure_port",
	"advertised-hostname":       "server.advertised_hostname",
	"exchange-interval":         "federation.exchange_interval",
	"connection-interval-limit": "federation.connection_interval_limit",
	"seeds":                     "federation.seeds",
	"secure-seeds":              "federation.secure_seeds",
	"secret":                    "security.secret",
	"tls-cert":                  "security.tls_cert_file",
	"tls-key":                   "security.tls_key_file",
	"tls-ca":                    "security.tls_ca_file",
	"share-root":                "storage.share_root",
	"metrics-addr":              "metrics.addr",
	"log-level":                 "log.level",
	"log-format":                "log.format",
}

func serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to configuration file", EnvVars: []string{"DIRMESH_CONFIG"}},
		&cli.StringFlag{Name: "host", Usage: "Bind address of the listeners"},
		&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Plaintext listener port"},
		&cli.IntFlag{Name: "sport", Usage: "TLS listener port"},
		&cli.StringFlag{Name: "advertised-hostname", Usage: "Host announced to peers"},
		&cli.DurationFlag{Name: "exchange-interval", Usage: "Period of the peer exchange"},
		&cli.DurationFlag{Name: "connection-interval-limit", Usage: "Minimum time between connections from one address"},
		&cli.StringSliceFlag{Name: "seeds", Usage: "Peers (host:port) of the plain federation"},
		&cli.StringSliceFlag{Name: "secure-seeds", Usage: "Peers (host:port) of the secure federation"},
		&cli.StringFlag{Name: "secret", Usage: "SHARE secret or its argon2id digest (random when empty)"},
		&cli.StringFlag{Name: "tls-cert", Usage: "Node certificate (PEM), enables the TLS listener"},
		&cli.StringFlag{Name: "tls-key", Usage: "Node private key (PEM)"},
		&cli.StringFlag{Name: "tls-ca", Usage: "CA (PEM) required of clients and peers"},
		&cli.StringFlag{Name: "share-root", Usage: "Directory shared files must live under"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "Admin HTTP address for /metrics, /healthz and /peers"},
		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error"},
		&cli.StringFlag{Name: "log-format", Usage: "Log format: json, text"},
		&cli.BoolFlag{Name: "debug", Usage: "Shorthand for --log-level debug"},
		&cli.DurationFlag{Name: "shutdown-timeout", Value: 30 * time.Second, Usage: "Bound on graceful shutdown"},
	}
}

// flagOverrides returns the configuration values set on the command line.
func flagOverrides(c *cli.Context) map[string]any {
	out := make(map[string]any)
	for name, key := range flagKeys {
		if !c.IsSet(name) {
			continue
		}
		switch name {
		case "seeds", "secure-seeds":
			out[key] = c.StringSlice(name)
		default:
			out[key] = c.Value(name)
		}
	}
	if c.Bool("debug") {
		out["log.level"] = "debug"
	}
	return out
}
