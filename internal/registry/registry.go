package registry

import (
	"context"
	"time"

	"github.com/auto-dns/dock-route/internal/domain"
	"github.com/auto-dns/dock-route/internal/util"
)

// Entry is a published DNS record and who published it.
type Entry struct {
	Record        domain.Record `json:"record"`
	OwnerHostname string        `json:"owner_hostname"`
	ContainerName string        `json:"container_name"`
	Created       time.Time     `json:"created"`
}

// Registry publishes subdomain records for the proxy host.
type Registry interface {
	Register(ctx context.Context, subdomain, containerName string) (domain.Record, error)
	Remove(ctx context.Context, subdomain string) error
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

// NopRegistry is used when DNS publishing is disabled.
type NopRegistry struct{}

func (NopRegistry) Register(context.Context, string, string) (domain.Record, error) {
	return domain.Record{}, nil
}

func (NopRegistry) Remove(context.Context, string) error { return nil }

func (NopRegistry) List(context.Context) ([]Entry, error) { return []Entry{}, nil }

func (NopRegistry) Close() error { return nil }

// GroupByName buckets entries by record name. More than one entry per name
// means another host published the same subdomain.
func GroupByName(entries []Entry) map[string][]Entry {
	groups := util.NewDefaultMap[string, []Entry](func() []Entry { return nil })
	for _, e := range entries {
		groups.Set(e.Record.Name, append(groups.Get(e.Record.Name), e))
	}
	return groups.Items()
}
