package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/semaphore"

	"github.com/yndnr/dirmesh-go/internal/core/service"
	"github.com/yndnr/dirmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/dirmesh-go/internal/infra/confloader"
	"github.com/yndnr/dirmesh-go/internal/infra/shutdown"
	"github.com/yndnr/dirmesh-go/internal/infra/tlsroots"
	"github.com/yndnr/dirmesh-go/internal/server/clusterserver"
	"github.com/yndnr/dirmesh-go/internal/server/config"
	"github.com/yndnr/dirmesh-go/internal/server/httpserver"
	"github.com/yndnr/dirmesh-go/internal/server/nodeserver"
	"github.com/yndnr/dirmesh-go/internal/storage/localfs"
	"github.com/yndnr/dirmesh-go/internal/storage/memory"
	"github.com/yndnr/dirmesh-go/internal/telemetry/logger"
	"github.com/yndnr/dirmesh-go/internal/telemetry/metric"
)

func run(c *cli.Context) error {
	loader := confloader.NewLoader(
		confloader.WithConfigFile(c.String("config")),
		confloader.WithOverrides(flagOverrides(c)),
	)
	cfg, err := loadConfig(loader)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log.Logger)

	log.Info("starting dirmesh-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Get().Commit,
		"config", loader.FilePath())
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	if cfg.Security.Secret == "" {
		secret, err := service.GenerateSecret()
		if err != nil {
			return err
		}
		cfg.Security.Secret = secret
		fmt.Fprintf(os.Stdout, "Using secret: %s\n", secret)
	}
	verifier, err := service.NewSecretVerifier(cfg.Security.Secret)
	if err != nil {
		return fmt.Errorf("secret: %w", err)
	}

	var bundle *tlsroots.Bundle
	if cfg.TLSEnabled() {
		bundle, err = tlsroots.Load(cfg.Security.TLSCertFile, cfg.Security.TLSKeyFile, cfg.Security.TLSCAFile, log.Logger)
		if err != nil {
			return fmt.Errorf("load tls: %w", err)
		}
	}

	sh := shutdown.NewHandler(c.Duration("shutdown-timeout"), log.Logger)
	node, err := buildNode(cfg, verifier, bundle, log.Logger)
	if err != nil {
		return err
	}
	if err := node.start(sh); err != nil {
		return err
	}
	if bundle != nil {
		sh.Go("tls-watcher", bundle.Certs.Run)
	}
	if path := loader.FilePath(); path != "" {
		if err := watchConfig(sh, loader, path, log); err != nil {
			log.Warn("config file watch disabled", "path", path, "error", err)
		}
	}

	log.Info("node started, press Ctrl+C to stop",
		"origin", node.plain.Origin(),
		"peers", node.plain.Peers.Len())
	if err := sh.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("node stopped")
	return nil
}

// loadConfig loads and verifies the configuration.
func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// watchConfig reapplies log.level whenever the configuration file changes.
// Other settings take effect on restart.
func watchConfig(sh *shutdown.Handler, loader *confloader.Loader, path string, log *logger.Logger) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log.Logger))
	if err != nil {
		return err
	}
	if err := w.Watch(path); err != nil {
		return err
	}
	w.OnChange(func(string) {
		cfg := config.Default()
		if err := loader.Reload(cfg); err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		if err := config.Verify(cfg); err != nil {
			log.Warn("reloaded config rejected", "error", err)
			return
		}
		if cfg.Log.Level == log.Level() {
			return
		}
		if err := log.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("log level not applied", "error", err)
			return
		}
		log.Info("log level changed", "level", cfg.Log.Level)
	})
	sh.Go("config-watcher", w.Run)
	return nil
}

// node holds the components of a running node.
type node struct {
	cfg     *config.ServerConfig
	metrics *metric.Registry
	logger  *slog.Logger

	directory     *memory.Directory
	subscriptions *service.SubscriptionService
	plain         *clusterserver.Federation
	secure        *clusterserver.Federation
	server        *nodeserver.Server
	admin         *httpserver.Server
}

// buildNode wires the directory, the services, the federations and the
// listeners. bundle is nil with TLS disabled.
func buildNode(cfg *config.ServerConfig, verifier *service.SecretVerifier, bundle *tlsroots.Bundle, log *slog.Logger) (*node, error) {
	metrics := metric.NewRegistry()
	n := &node{cfg: cfg, metrics: metrics, logger: log}

	n.directory = memory.NewDirectory()
	metrics.RegisterGaugeFunc("resources", "Resources in the local directory.", func() float64 {
		return float64(n.directory.Len())
	})

	n.subscriptions = service.NewSubscriptionService(
		service.WithNotifyWorkers(cfg.Federation.NotifyWorkers, 0),
		service.WithSubscriptionLogger(log),
		service.WithSubscriptionHooks(service.SubscriptionHooks{
			SubscriberAdded:   metrics.IncSubscribers,
			SubscriberRemoved: metrics.DecSubscribers,
			Delivered:         metrics.IncDeliveries,
		}),
	)

	var files *localfs.Accessor
	if cfg.Storage.ShareRoot != "" {
		files = localfs.New(localfs.WithRoot(cfg.Storage.ShareRoot))
	} else {
		files = localfs.New()
	}
	resources := service.NewResourceService(n.directory, files, verifier, n.subscriptions, log)

	pool := semaphore.NewWeighted(int64(cfg.Federation.RelayPoolSize))
	n.plain = n.federation(clusterserver.FederationPlain, nil, pool)

	var serverTLS *tls.Config
	if bundle != nil {
		serverTLS = bundle.Server
		n.secure = n.federation(clusterserver.FederationSecure, bundle.Client, pool)
	}

	n.server = nodeserver.New(config.ToNodeConfig(cfg, serverTLS), nodeserver.Deps{
		Resources:     resources,
		Subscriptions: n.subscriptions,
		Plain:         n.plain,
		Secure:        n.secure,
		Metrics:       metrics,
		Logger:        log,
	})

	if cfg.Metrics.Addr != "" {
		router := httpserver.NewRouter(&httpserver.RouterConfig{
			Metrics:     metrics,
			Federations: []*clusterserver.Federation{n.plain, n.secure},
			Subscribers: n.subscriptions,
			AllowList:   cfg.Metrics.AllowList,
			Logger:      log,
		})
		n.admin = httpserver.New(cfg.Metrics.Addr, router, log)
	}
	return n, nil
}

// federation creates the named federation and merges its seeds.
func (n *node) federation(name string, clientTLS *tls.Config, pool *semaphore.Weighted) *clusterserver.Federation {
	fc := config.ToFederationConfig(n.cfg, name, clientTLS)
	fc.RelayPool = pool
	fc.Notifier = n.subscriptions
	fc.Metrics = n.metrics
	fc.Logger = n.logger
	f := clusterserver.NewFederation(fc)

	if seeds := config.SeedsFor(n.cfg, name); len(seeds) > 0 {
		if err := f.Merge(seeds); err != nil {
			n.logger.Warn("seed peers rejected", "federation", name, "error", err)
		}
	}
	return f
}

// start opens the listeners and starts every background task under sh.
func (n *node) start(sh *shutdown.Handler) error {
	ctx := sh.Context()
	if err := n.server.Start(ctx); err != nil {
		return err
	}
	sh.OnShutdown(func(ctx context.Context) error {
		n.logger.Info("closing node listeners")
		return n.server.Shutdown(ctx)
	})

	sh.Go("notify-workers", n.subscriptions.Run)
	sh.Go("admission", n.server.RunAdmission)
	sh.Go("federation-"+n.plain.Name, n.plain.Run)
	if n.secure != nil {
		sh.Go("federation-"+n.secure.Name, n.secure.Run)
	}
	if n.admin != nil {
		sh.Go("admin-http", n.admin.Run)
	}
	return nil
}
