package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	dockerCli "github.com/docker/docker/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/sync/errgroup"

	"github.com/auto-dns/dock-route/internal/api"
	"github.com/auto-dns/dock-route/internal/config"
	"github.com/auto-dns/dock-route/internal/deploy"
	"github.com/auto-dns/dock-route/internal/domain"
	"github.com/auto-dns/dock-route/internal/lifecycle"
	"github.com/auto-dns/dock-route/internal/proxy"
	"github.com/auto-dns/dock-route/internal/registry"
	"github.com/auto-dns/dock-route/internal/source"
	"github.com/auto-dns/dock-route/internal/templates"
)

type App struct {
	cfg          *config.Config
	dockerClient *dockerCli.Client
	manager      *lifecycle.Manager
	catalog      *templates.Catalog
	resolver     *source.Resolver
	deployer     *deploy.Deployer
	proxy        *proxy.Server
	dns          registry.Registry
	admin        *api.Server
	logger       zerolog.Logger
}

// New creates a new App by wiring up all dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	// Docker CLI
	dockerClient, err := dockerCli.NewClientWithOpts(dockerCli.FromEnv, dockerCli.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	rt := lifecycle.NewDockerRuntime(dockerClient, logger)

	// DNS publishing
	var dns registry.Registry = registry.NopRegistry{}
	if cfg.DNS.Enabled {
		etcdClient, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.DNS.Endpoints,
			DialTimeout: cfg.DNS.DialTimeout,
		})
		if err != nil {
			_ = dockerClient.Close()
			return nil, fmt.Errorf("failed to connect to etcd: %w", err)
		}
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown-host"
		}
		dns = registry.NewEtcdRegistry(etcdClient, &cfg.DNS, cfg.Proxy.Domain, hostname, logger)
	}

	// Metrics
	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &App{
		cfg:          cfg,
		dockerClient: dockerClient,
		manager:      lifecycle.NewManager(rt, cfg.Docker.ManagedLabel, logger),
		catalog:      templates.NewCatalog(templates.Embedded(), logger),
		resolver:     source.NewResolver(logger),
		deployer:     deploy.NewDeployer(dockerClient, logger),
		proxy:        proxy.NewServer(cfg.Proxy.Port, proxy.NewTable(proxy.NewMetrics(metricsRegistry), logger), logger),
		dns:          dns,
		logger:       logger,
	}
	if cfg.Admin.Enabled {
		a.admin = api.NewServer(cfg.Admin.Port, api.Deps{
			Catalog:     a.catalog,
			Containers:  a.manager,
			Deployments: a,
			Router:      a,
			DNS:         dns,
			Gatherer:    metricsRegistry,
		}, logger)
	}
	return a, nil
}

func (a *App) Manager() *lifecycle.Manager { return a.manager }

func (a *App) Catalog() *templates.Catalog { return a.catalog }

// Run restores routes from running containers, serves the proxy (and the
// admin API when enabled) and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().Msg("Application starting")
	a.restoreRoutes(ctx)

	proxyLn, err := net.Listen("tcp", a.proxy.Addr())
	if err != nil {
		return domain.NewRuntimeError("listen on "+a.proxy.Addr(), err)
	}
	var adminLn net.Listener
	if a.admin != nil {
		if adminLn, err = net.Listen("tcp", a.admin.Addr()); err != nil {
			_ = proxyLn.Close()
			return domain.NewRuntimeError("listen on "+a.admin.Addr(), err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.proxy.Serve(proxyLn) })
	if adminLn != nil {
		g.Go(func() error { return a.admin.Serve(adminLn) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})
	return g.Wait()
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Proxy.ShutdownTimeout)
	defer cancel()

	a.logger.Info().Msg("Shutting down")
	var errs []error
	if err := a.proxy.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.admin != nil {
		if err := a.admin.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) restoreRoutes(ctx context.Context) {
	routes, err := a.manager.Routes(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Could not restore routes from containers")
		return
	}
	for _, r := range routes {
		if err := a.Publish(ctx, r.Subdomain, r.Target, r.Container); err != nil {
			a.logger.Warn().Err(err).Str("subdomain", r.Subdomain).Msg("Skipping route")
		}
	}
}

// Publish routes subdomain to target and announces it in DNS on behalf of
// containerName, which may be empty for routes not backed by a managed
// container. A DNS failure is logged; the route stays in place.
func (a *App) Publish(ctx context.Context, subdomain, target, containerName string) error {
	if err := a.proxy.AddProxy(subdomain, target); err != nil {
		return err
	}
	if _, err := a.dns.Register(ctx, subdomain, containerName); err != nil {
		a.logger.Warn().Err(err).Str("subdomain", subdomain).Msg("Failed to publish DNS record")
	}
	return nil
}

// Unpublish drops the route for subdomain and its DNS record.
func (a *App) Unpublish(ctx context.Context, subdomain string) error {
	if !a.proxy.Table().HasProxy(subdomain) {
		return domain.NewNotFoundError("route", subdomain)
	}
	a.proxy.RemoveProxy(subdomain)
	if err := a.dns.Remove(ctx, subdomain); err != nil {
		a.logger.Warn().Err(err).Str("subdomain", subdomain).Msg("Failed to remove DNS record")
	}
	return nil
}

// Teardown removes the managed container matching name and withdraws the
// route and DNS record recorded in its labels.
func (a *App) Teardown(ctx context.Context, name string, force bool) (domain.ContainerInfo, error) {
	removed, err := a.manager.RemoveByName(ctx, name, force)
	if err != nil {
		return domain.ContainerInfo{}, err
	}
	if removed.Subdomain == "" {
		return removed, nil
	}
	a.proxy.RemoveProxy(removed.Subdomain)
	if err := a.dns.Remove(ctx, removed.Subdomain); err != nil {
		a.logger.Warn().Err(err).Str("subdomain", removed.Subdomain).Msg("Failed to remove DNS record")
	}
	a.logger.Info().Str("container", removed.Name).Str("subdomain", removed.Subdomain).Msg("Deployment torn down")
	return removed, nil
}

func (a *App) Routes() []domain.RoutingEntry {
	return a.proxy.Table().Entries()
}

func (a *App) Close() error {
	var firstErr error
	if a.dockerClient != nil {
		if err := a.dockerClient.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close docker client: %w", err)
		}
	}
	if a.dns != nil {
		if err := a.dns.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close etcd client: %w", err)
		}
	}
	return firstErr
}
