package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/auto-dns/dock-route/internal/domain"
)

// etcdRecord is the JSON value stored under a skydns key. CoreDNS reads
// host; the owner fields let List attribute records.
type etcdRecord struct {
	Host               string            `json:"host"`
	RecordType         domain.RecordKind `json:"record_type"`
	OwnerHostname      string            `json:"owner_hostname"`
	OwnerContainerName string            `json:"owner_container_name,omitempty"`
	Created            time.Time         `json:"created"`
}

func marshalEtcdValue(e Entry) (string, error) {
	wire := etcdRecord{
		Host:               e.Record.Value,
		RecordType:         e.Record.Type,
		OwnerHostname:      e.OwnerHostname,
		OwnerContainerName: e.ContainerName,
		Created:            e.Created,
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalEtcdValue(key string, raw []byte, prefix string) (Entry, error) {
	fqdn := fqdnFromKey(prefix, key)

	var wire etcdRecord
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Entry{}, fmt.Errorf("decode etcd value: %w", err)
	}

	rec, err := domain.NewFromKind(wire.RecordType, fqdn, wire.Host)
	if err != nil {
		return Entry{}, err
	}

	return Entry{
		Record:        rec,
		OwnerHostname: wire.OwnerHostname,
		ContainerName: wire.OwnerContainerName,
		Created:       wire.Created,
	}, nil
}
