package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/auto-dns/dock-route/internal/config"
	"github.com/auto-dns/dock-route/internal/domain"
)

type etcdClient interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Close() error
}

// EtcdRegistry writes skydns records that point every routed subdomain at
// the proxy host.
type EtcdRegistry struct {
	client   etcdClient
	prefix   string
	domain   string
	hostIP   string
	hostname string
	now      func() time.Time
	logger   zerolog.Logger
}

func NewEtcdRegistry(client etcdClient, cfg *config.DNSConfig, domainName, hostname string, logger zerolog.Logger) *EtcdRegistry {
	return &EtcdRegistry{
		client:   client,
		prefix:   cfg.PathPrefix,
		domain:   domainName,
		hostIP:   cfg.HostIP,
		hostname: hostname,
		now:      time.Now,
		logger:   logger,
	}
}

// Register publishes <subdomain>.<domain>, replacing any record already
// stored for that name.
func (er *EtcdRegistry) Register(ctx context.Context, subdomain, containerName string) (domain.Record, error) {
	rec, err := domain.NewForValue(domain.FQDN(subdomain, er.domain), er.hostIP)
	if err != nil {
		return domain.Record{}, err
	}

	value, err := marshalEtcdValue(Entry{
		Record:        rec,
		OwnerHostname: er.hostname,
		ContainerName: containerName,
		Created:       er.now().UTC(),
	})
	if err != nil {
		return domain.Record{}, err
	}

	key := keyForFQDN(er.prefix, rec.Name)
	if _, err := er.client.Put(ctx, key, value); err != nil {
		return domain.Record{}, domain.NewRuntimeError(fmt.Sprintf("put %s", key), err)
	}
	er.logger.Info().Str("key", key).Msgf("[etcd_registry] Registered %s", rec.Render())
	return rec, nil
}

// Remove deletes every slot stored for <subdomain>.<domain>.
func (er *EtcdRegistry) Remove(ctx context.Context, subdomain string) error {
	base := keyBaseForFQDN(er.prefix, domain.FQDN(subdomain, er.domain)) + "/"
	resp, err := er.client.Delete(ctx, base, clientv3.WithPrefix())
	if err != nil {
		return domain.NewRuntimeError(fmt.Sprintf("delete %s", base), err)
	}
	er.logger.Info().Int64("deleted", resp.Deleted).Msgf("[etcd_registry] Removed %s", base)
	return nil
}

// List returns every record stored under the prefix. Values that do not
// parse are logged and skipped.
func (er *EtcdRegistry) List(ctx context.Context) ([]Entry, error) {
	resp, err := er.client.Get(ctx, er.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, domain.NewRuntimeError(fmt.Sprintf("list %s", er.prefix), err)
	}
	entries := make([]Entry, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keyStr := string(kv.Key)
		entry, err := unmarshalEtcdValue(keyStr, kv.Value, er.prefix)
		if err != nil {
			er.logger.Error().Err(err).Msgf("[etcd_registry] Failed to parse key: %s", keyStr)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (er *EtcdRegistry) Close() error {
	return er.client.Close()
}
