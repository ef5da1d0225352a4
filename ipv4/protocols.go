package ipv4

import (
	"errors"
	"sync"

	"github.com/oxidian/netstack"
)

// ProtocolHandler processes one IPv4 payload. src/dst are the header's
// source/destination addresses, already validated by Input before the
// handler runs.
type ProtocolHandler func(payload []byte, src, dst [4]byte) error

var errProtoRegistered = errors.New("ipv4: protocol already registered")

type protoEntry struct {
	proto   netstack.IPProto
	handler ProtocolHandler
	valid   bool
}

// protocolTable is the upper-protocol registry IPv4 Input dispatches into,
// one handler per protocol number (ICMP, UDP, TCP, ...). This package
// implements only the registration mechanism; no protocol bodies.
type protocolTable struct {
	mu      sync.Mutex
	entries []protoEntry
}

func (t *protocolTable) register(proto netstack.IPProto, h ProtocolHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	hole := -1
	for i, e := range t.entries {
		if e.valid && e.proto == proto {
			return errProtoRegistered
		}
		if !e.valid && hole == -1 {
			hole = i
		}
	}
	if hole != -1 {
		t.entries[hole] = protoEntry{proto: proto, handler: h, valid: true}
		return nil
	}
	t.entries = append(t.entries, protoEntry{proto: proto, handler: h, valid: true})
	return nil
}

func (t *protocolTable) unregister(proto netstack.IPProto) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e.valid && e.proto == proto {
			t.entries[i] = protoEntry{}
		}
	}
}

func (t *protocolTable) lookup(proto netstack.IPProto) (ProtocolHandler, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.valid && e.proto == proto {
			return e.handler, true
		}
	}
	return nil, false
}
