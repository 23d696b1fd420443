package api

import (
	"context"
	"errors"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/auto-dns/dock-route/internal/domain"
	"github.com/auto-dns/dock-route/internal/registry"
)

type catalog interface {
	GetTemplate(appType string) (*domain.Template, error)
	ListTemplates() []string
}

type containers interface {
	ListManaged(ctx context.Context) ([]domain.ContainerInfo, error)
	GetStatus(ctx context.Context, name string) (string, error)
}

// Router publishes and withdraws subdomain routes.
type Router interface {
	Publish(ctx context.Context, subdomain, target, containerName string) error
	Unpublish(ctx context.Context, subdomain string) error
	Routes() []domain.RoutingEntry
}

// Deployments removes a managed container together with its route.
type Deployments interface {
	Teardown(ctx context.Context, name string, force bool) (domain.ContainerInfo, error)
}

type dnsLister interface {
	List(ctx context.Context) ([]registry.Entry, error)
}

// Deps are the components the admin API exposes.
type Deps struct {
	Catalog     catalog
	Containers  containers
	Deployments Deployments
	Router      Router
	DNS         dnsLister
	Gatherer    prometheus.Gatherer
}

// Server is the admin HTTP API.
type Server struct {
	app    *fiber.App
	addr   string
	logger zerolog.Logger
}

func NewServer(port string, deps Deps, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "dock-route",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})
	app.Use(recover.New())

	h := &handler{deps: deps}
	v1 := app.Group("/api/v1")
	v1.Get("/templates", h.listTemplates)
	v1.Get("/templates/:type", h.getTemplate)
	v1.Get("/containers", h.listContainers)
	v1.Get("/containers/:name/status", h.containerStatus)
	v1.Delete("/containers/:name", h.removeContainer)
	v1.Get("/routes", h.listRoutes)
	v1.Post("/routes", h.addRoute)
	v1.Delete("/routes/:subdomain", h.removeRoute)
	v1.Get("/dns", h.listDNS)

	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	return &Server{
		app:    app,
		addr:   net.JoinHostPort("", port),
		logger: logger,
	}
}

func (s *Server) Addr() string { return s.addr }

// App exposes the fiber app, mainly for in-process tests.
func (s *Server) App() *fiber.App { return s.app }

// Start listens on the admin port and blocks until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return domain.NewRuntimeError("listen on "+s.addr, err)
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Admin API listening")
	return s.app.Listener(ln)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// errorHandler maps domain errors onto status codes with a JSON body.
func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		switch {
		case domain.IsNotFound(err):
			code = fiber.StatusNotFound
		case domain.IsValidation(err):
			code = fiber.StatusBadRequest
		case errors.As(err, &fe):
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Path()).Msg("Admin request failed")
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}
