package api

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/auto-dns/dock-route/internal/domain"
	"github.com/auto-dns/dock-route/internal/registry"
)

type handler struct {
	deps Deps
}

var validate = validator.New()

type routeRequest struct {
	Subdomain string `json:"subdomain" validate:"required,hostname_rfc1123"`
	Target    string `json:"target" validate:"required,url"`
	Container string `json:"container,omitempty"`
}

func (h *handler) listTemplates(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"templates": h.deps.Catalog.ListTemplates()})
}

func (h *handler) getTemplate(c *fiber.Ctx) error {
	tpl, err := h.deps.Catalog.GetTemplate(c.Params("type"))
	if err != nil {
		return err
	}
	return c.JSON(tpl)
}

func (h *handler) listContainers(c *fiber.Ctx) error {
	list, err := h.deps.Containers.ListManaged(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *handler) containerStatus(c *fiber.Ctx) error {
	name := c.Params("name")
	status, err := h.deps.Containers.GetStatus(c.UserContext(), name)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"name": name, "status": status})
}

func (h *handler) removeContainer(c *fiber.Ctx) error {
	name := c.Params("name")
	removed, err := h.deps.Deployments.Teardown(c.UserContext(), name, c.QueryBool("force"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"name": name, "image": removed.Image, "subdomain": removed.Subdomain})
}

func (h *handler) listRoutes(c *fiber.Ctx) error {
	return c.JSON(h.deps.Router.Routes())
}

func (h *handler) addRoute(c *fiber.Ctx) error {
	var req routeRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.NewValidationError("invalid request body", err)
	}
	req.Subdomain = strings.TrimSpace(req.Subdomain)
	if err := validate.Struct(req); err != nil {
		return domain.NewValidationError("invalid route", err)
	}
	if err := h.deps.Router.Publish(c.UserContext(), req.Subdomain, req.Target, req.Container); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(domain.RoutingEntry{
		Subdomain: req.Subdomain,
		Target:    req.Target,
		Container: req.Container,
	})
}

func (h *handler) removeRoute(c *fiber.Ctx) error {
	if err := h.deps.Router.Unpublish(c.UserContext(), c.Params("subdomain")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handler) listDNS(c *fiber.Ctx) error {
	if h.deps.DNS == nil {
		return c.JSON(map[string][]registry.Entry{})
	}
	entries, err := h.deps.DNS.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(registry.GroupByName(entries))
}
