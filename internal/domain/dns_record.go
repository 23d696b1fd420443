package domain

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

type RecordKind string

const (
	RecordA     RecordKind = "A"
	RecordAAAA  RecordKind = "AAAA"
	RecordCNAME RecordKind = "CNAME"
)

// Record is a DNS record published for a subdomain.
type Record struct {
	Name  string
	Type  RecordKind
	Value string
}

func NewA(name, ipv4 string) (Record, error) {
	if !isValidHostname(name) {
		return Record{}, NewValidationError(fmt.Sprintf("invalid A name: %s", name), nil)
	}
	ip := net.ParseIP(ipv4)
	if ip == nil || ip.To4() == nil {
		return Record{}, NewValidationError(fmt.Sprintf("invalid IPv4: %s", ipv4), nil)
	}
	return Record{Name: name, Type: RecordA, Value: ipv4}, nil
}

func NewAAAA(name, ipv6 string) (Record, error) {
	if !isValidHostname(name) {
		return Record{}, NewValidationError(fmt.Sprintf("invalid AAAA name: %s", name), nil)
	}
	ip := net.ParseIP(ipv6)
	if ip == nil || ip.To4() != nil {
		return Record{}, NewValidationError(fmt.Sprintf("invalid IPv6: %s", ipv6), nil)
	}
	return Record{Name: name, Type: RecordAAAA, Value: ipv6}, nil
}

func NewCNAME(name, target string) (Record, error) {
	if !isValidHostname(name) || !isValidHostname(target) {
		return Record{}, NewValidationError(fmt.Sprintf("invalid CNAME: %s -> %s", name, target), nil)
	}
	return Record{Name: name, Type: RecordCNAME, Value: target}, nil
}

// FQDN joins a subdomain and the base domain.
func FQDN(subdomain, domain string) string {
	domain = strings.Trim(domain, ".")
	if domain == "" {
		return subdomain
	}
	return subdomain + "." + domain
}

func (r Record) Render() string {
	if r.Value == "" {
		return fmt.Sprintf("[%s] %s -> <no value>", r.Type, r.Name)
	}
	return fmt.Sprintf("[%s] %s -> %s", r.Type, r.Name, r.Value)
}

func (r Record) Equal(o Record) bool {
	return r.Name == o.Name && r.Type == o.Type && r.Value == o.Value
}

var hostnameRegexp = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func isValidHostname(h string) bool {
	return len(h) > 0 && len(h) <= 255 && hostnameRegexp.MatchString(h)
}
