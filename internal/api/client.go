package api

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/auto-dns/dock-route/internal/domain"
)

// Client calls the admin API of a running dock-route instance, so that
// one-shot commands can update the routing table it owns.
type Client struct {
	http    *fiber.Client
	baseURL string
	timeout time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http:    &fiber.Client{UserAgent: "dock-route"},
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

// PublishRoute adds or replaces a route on the running instance.
func (c *Client) PublishRoute(entry domain.RoutingEntry) error {
	agent := c.http.Post(c.baseURL + "/api/v1/routes").
		JSON(routeRequest{Subdomain: entry.Subdomain, Target: entry.Target, Container: entry.Container}).
		Timeout(c.timeout)
	return c.do(agent, fiber.StatusCreated)
}

// UnpublishRoute withdraws a route. A route the instance does not know is
// not an error.
func (c *Client) UnpublishRoute(subdomain string) error {
	agent := c.http.Delete(c.baseURL + "/api/v1/routes/" + url.PathEscape(subdomain)).
		Timeout(c.timeout)
	return c.do(agent, fiber.StatusNoContent, fiber.StatusNotFound)
}

func (c *Client) do(agent *fiber.Agent, accepted ...int) error {
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("admin API at %s: %w", c.baseURL, errors.Join(errs...))
	}
	if !slices.Contains(accepted, code) {
		return fmt.Errorf("admin API at %s returned %d: %s", c.baseURL, code, strings.TrimSpace(string(body)))
	}
	return nil
}
