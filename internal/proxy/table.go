package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/auto-dns/dock-route/internal/domain"
)

const (
	// DefaultSubdomain is the key used for hosts with two or fewer labels.
	DefaultSubdomain = "default"

	notFoundBody = "Not Found: No application configured for this subdomain."
)

type route struct {
	target *url.URL
	proxy  *httputil.ReverseProxy
}

// Table maps subdomains to forwarding targets and dispatches requests to
// them. It is safe for concurrent use.
type Table struct {
	mu     sync.RWMutex
	routes map[string]*route

	metrics *Metrics
	logger  zerolog.Logger
}

// NewTable creates an empty routing table. metrics may be nil.
func NewTable(metrics *Metrics, logger zerolog.Logger) *Table {
	return &Table{
		routes:  make(map[string]*route),
		metrics: metrics,
		logger:  logger,
	}
}

// AddProxy installs or replaces the forwarding target for subdomain. The
// target is validated before the table is touched.
func (t *Table) AddProxy(subdomain, targetURL string) error {
	target, err := parseTarget(targetURL)
	if err != nil {
		return err
	}
	r := &route{target: target, proxy: newReverseProxy(target, t.metrics, t.logger)}

	t.mu.Lock()
	t.routes[subdomain] = r
	n := len(t.routes)
	t.mu.Unlock()
	t.metrics.setRoutes(n)

	t.logger.Info().Str("subdomain", subdomain).Str("target", target.String()).Msg("Added proxy")
	return nil
}

// RemoveProxy deletes the entry for subdomain. Requests already forwarded
// to the old target are left to finish.
func (t *Table) RemoveProxy(subdomain string) {
	t.mu.Lock()
	delete(t.routes, subdomain)
	n := len(t.routes)
	t.mu.Unlock()
	t.metrics.setRoutes(n)

	t.logger.Info().Str("subdomain", subdomain).Msg("Removed proxy")
}

func (t *Table) HasProxy(subdomain string) bool {
	_, ok := t.lookup(subdomain)
	return ok
}

// Target returns the forwarding target registered for subdomain.
func (t *Table) Target(subdomain string) (string, bool) {
	r, ok := t.lookup(subdomain)
	if !ok {
		return "", false
	}
	return r.target.String(), true
}

// GetActiveSubdomains returns an unordered snapshot of registered subdomains.
func (t *Table) GetActiveSubdomains() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	subdomains := make([]string, 0, len(t.routes))
	for subdomain := range t.routes {
		subdomains = append(subdomains, subdomain)
	}
	return subdomains
}

// Entries returns an unordered snapshot of the table.
func (t *Table) Entries() []domain.RoutingEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]domain.RoutingEntry, 0, len(t.routes))
	for subdomain, r := range t.routes {
		entries = append(entries, domain.RoutingEntry{Subdomain: subdomain, Target: r.target.String()})
	}
	return entries
}

// ServeHTTP dispatches r to the target registered for its subdomain.
func (t *Table) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subdomain := SubdomainFromHost(r.Host)

	rt, ok := t.lookup(subdomain)
	if !ok {
		t.logger.Debug().Str("subdomain", subdomain).Str("host", r.Host).Msg("No proxy found for subdomain")
		t.metrics.observe(outcomeMiss)
		http.Error(w, notFoundBody, http.StatusNotFound)
		return
	}

	t.logger.Debug().
		Str("subdomain", subdomain).
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Msg("Proxying request")
	t.metrics.observe(outcomeForwarded)

	// The relay is best effort and is not cut short when the client goes away.
	rt.proxy.ServeHTTP(w, r.WithContext(context.WithoutCancel(r.Context())))
}

func (t *Table) lookup(subdomain string) (*route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.routes[subdomain]
	return r, ok
}

// SubdomainFromHost returns the first label of host when it has more than
// two dot-separated labels, and DefaultSubdomain otherwise. IP literals
// always map to DefaultSubdomain.
func SubdomainFromHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil {
		return DefaultSubdomain
	}
	parts := strings.Split(host, ".")
	if len(parts) > 2 {
		return parts[0]
	}
	return DefaultSubdomain
}

func parseTarget(targetURL string) (*url.URL, error) {
	target, err := url.Parse(targetURL)
	if err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid target URL %q", targetURL), err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, domain.NewValidationError(fmt.Sprintf("target URL %q must include scheme and host", targetURL), nil)
	}
	// Request paths are forwarded verbatim, so a target is a bare origin.
	if (target.Path != "" && target.Path != "/") || target.RawQuery != "" || target.Fragment != "" {
		return nil, domain.NewValidationError(fmt.Sprintf("target URL %q must not include a path, query or fragment", targetURL), nil)
	}
	return target, nil
}

func newReverseProxy(target *url.URL, metrics *Metrics, logger zerolog.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)

	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
		req.URL.Host = target.Host
		req.URL.Scheme = target.Scheme
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn().Err(err).Str("target", target.String()).Msg("Proxy request failed")
		metrics.observe(outcomeUpstreamError)
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy
}
