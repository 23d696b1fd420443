package domain

import (
	"fmt"
	"net"
)

func NewFromKind(kind RecordKind, name, value string) (Record, error) {
	switch kind {
	case RecordA:
		return NewA(name, value)
	case RecordAAAA:
		return NewAAAA(name, value)
	case RecordCNAME:
		return NewCNAME(name, value)
	default:
		return Record{}, NewValidationError(fmt.Sprintf("unsupported record kind %q", kind), nil)
	}
}

// NewForValue infers the record kind from value: IPv4 gives A, IPv6 gives
// AAAA, anything else is treated as a CNAME target.
func NewForValue(name, value string) (Record, error) {
	ip := net.ParseIP(value)
	switch {
	case ip == nil:
		return NewCNAME(name, value)
	case ip.To4() != nil:
		return NewA(name, value)
	default:
		return NewAAAA(name, value)
	}
}
