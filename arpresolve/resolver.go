// Package arpresolve supplies a minimal, usable implementation of the
// arp_resolve bridge between IPv4 output and hardware-address resolution.
// The address-resolution table itself is a supplementary feature here (the
// core datapath only depends on the ipv4.Resolver interface); this package
// exists so ipv4.Output has something real to drive end to end.
package arpresolve

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oxidian/netstack/device"
	"github.com/oxidian/netstack/ethernet"
	"github.com/oxidian/netstack/ipv4"
)

const (
	htypeEthernet  = 1
	plenIPv4       = 4
	hlenEthernet   = 6
	sizeARPv4      = 8 + 2*hlenEthernet + 2*plenIPv4
	cacheCapacity  = 32
	queryRetention = 10 * time.Second
)

type cacheEntry struct {
	addr [4]byte
	ha   [6]byte
	used bool
}

type pendingQuery struct {
	addr    [4]byte
	started time.Time
}

// CacheResolver implements ipv4.Resolver with an in-memory hardware-address
// cache and an ARP request/reply exchange driven by the device registry
// it's attached to. It satisfies requests synchronously from the cache
// when possible and otherwise starts a query and reports StatusPending.
type CacheResolver struct {
	log *slog.Logger
	reg *device.Registry

	mu      sync.Mutex
	cache   []cacheEntry
	cacheAt int
	pending []pendingQuery
}

// NewCacheResolver returns a CacheResolver bound to reg, the registry used
// to send ARP requests/replies.
func NewCacheResolver(reg *device.Registry, log *slog.Logger) *CacheResolver {
	return &CacheResolver{reg: reg, log: log, cache: make([]cacheEntry, cacheCapacity)}
}

// Resolve implements ipv4.Resolver.
func (c *CacheResolver) Resolve(iface *ipv4.Interface, dst [4]byte) (ipv4.Status, [6]byte, error) {
	c.mu.Lock()
	if ha, ok := c.lookup(dst); ok {
		c.mu.Unlock()
		return ipv4.StatusFound, ha, nil
	}
	needsQuery := !c.hasFreshPending(dst)
	if needsQuery {
		c.dropPending(dst)
		c.pending = append(c.pending, pendingQuery{addr: dst, started: time.Now()})
	}
	c.mu.Unlock()

	if needsQuery {
		if err := c.sendRequest(iface, dst); err != nil {
			return ipv4.StatusError, [6]byte{}, err
		}
	}
	return ipv4.StatusPending, [6]byte{}, nil
}

func (c *CacheResolver) lookup(addr [4]byte) ([6]byte, bool) {
	for _, e := range c.cache {
		if e.used && e.addr == addr {
			return e.ha, true
		}
	}
	return [6]byte{}, false
}

// hasFreshPending reports whether a query for addr was started recently
// enough that we shouldn't retransmit it yet.
func (c *CacheResolver) hasFreshPending(addr [4]byte) bool {
	for _, p := range c.pending {
		if p.addr == addr && time.Since(p.started) < queryRetention {
			return true
		}
	}
	return false
}

func (c *CacheResolver) dropPending(addr [4]byte) {
	out := c.pending[:0]
	for _, p := range c.pending {
		if p.addr != addr {
			out = append(out, p)
		}
	}
	c.pending = out
}

// store inserts/overwrites a cache entry, evicting the oldest slot (by
// insertion order, wrapping) once the cache is full.
func (c *CacheResolver) store(addr [4]byte, ha [6]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.cache {
		if c.cache[i].used && c.cache[i].addr == addr {
			c.cache[i].ha = ha
			return
		}
	}
	c.cache[c.cacheAt] = cacheEntry{addr: addr, ha: ha, used: true}
	c.cacheAt = (c.cacheAt + 1) % len(c.cache)
	c.dropPending(addr)
}

var errNoDevice = errors.New("arpresolve: interface has no device")

func (c *CacheResolver) sendRequest(iface *ipv4.Interface, target [4]byte) error {
	if iface.Device == nil {
		return errNoDevice
	}
	buf := make([]byte, sizeARPv4)
	setHeader(buf, arpOpRequest)
	copy(buf[8:14], iface.Device.HWAddr[:])
	copy(buf[14:18], iface.Unicast[:])
	copy(buf[24:28], target[:])
	return ethernet.EncodeHelper(c.reg, iface.Device, ethernet.BroadcastAddr(), ethernet.TypeARP, buf)
}

// Handle returns the device.Handler for ethernet.TypeARP frames arriving
// on the device bound to iface: it answers requests for addresses we own
// and feeds replies into the cache.
func (c *CacheResolver) Handle(iface *ipv4.Interface) device.Handler {
	return func(dev *device.Device, payload []byte) error {
		if len(payload) < sizeARPv4 {
			return nil
		}
		op := binary.BigEndian.Uint16(payload[6:8])
		var senderHA [6]byte
		var senderIP, targetIP [4]byte
		copy(senderHA[:], payload[8:14])
		copy(senderIP[:], payload[14:18])
		copy(targetIP[:], payload[24:28])

		switch op {
		case arpOpRequest:
			if targetIP != iface.Unicast {
				return nil
			}
			reply := make([]byte, sizeARPv4)
			setHeader(reply, arpOpReply)
			copy(reply[8:14], dev.HWAddr[:])
			copy(reply[14:18], iface.Unicast[:])
			copy(reply[18:24], senderHA[:])
			copy(reply[24:28], senderIP[:])
			return ethernet.EncodeHelper(c.reg, dev, senderHA, ethernet.TypeARP, reply)
		case arpOpReply:
			c.store(senderIP, senderHA)
			return nil
		}
		return nil
	}
}

const (
	arpOpRequest uint16 = 1
	arpOpReply   uint16 = 2
)

func setHeader(buf []byte, op uint16) {
	binary.BigEndian.PutUint16(buf[0:2], htypeEthernet)
	binary.BigEndian.PutUint16(buf[2:4], uint16(ethernet.TypeIPv4))
	buf[4] = hlenEthernet
	buf[5] = plenIPv4
	binary.BigEndian.PutUint16(buf[6:8], op)
}
