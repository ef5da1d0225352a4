package ipv4

import (
	"encoding/binary"
	"errors"
	"sync"
)

var errNoRoute = errors.New("ipv4: no matching route")

// Route is one entry in a RouteTable: reach Network/Netmask via Nexthop
// (the zero address for a directly-connected route) out Iface.
type Route struct {
	Network [4]byte
	Netmask [4]byte
	Nexthop [4]byte
	Iface   *Interface
	valid   bool
}

// RouteTable holds IPv4 routes and resolves a destination address to the
// most specific (longest prefix match) route, matching conventional IP
// routing semantics: among all entries whose network/netmask match the
// destination, the one with the most specific (numerically largest)
// netmask wins, with a zero network/netmask entry acting as the default
// gateway route of last resort.
type RouteTable struct {
	mu     sync.Mutex
	routes []Route
}

// Add inserts a route, reusing a deleted slot if one is available.
func (t *RouteTable) Add(r Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r.valid = true
	for i := range t.routes {
		if !t.routes[i].valid {
			t.routes[i] = r
			return
		}
	}
	t.routes = append(t.routes, r)
}

// AddInterfaceRoute adds the directly-connected route for iface: network =
// unicast & netmask, nexthop = 0.0.0.0 (meaning "on-link, resolve via ARP
// directly"). This is the route every RegisterInterface call installs.
func (t *RouteTable) AddInterfaceRoute(iface *Interface) {
	var network [4]byte
	for i := range network {
		network[i] = iface.Unicast[i] & iface.Netmask[i]
	}
	t.Add(Route{Network: network, Netmask: iface.Netmask, Iface: iface})
}

// SetDefaultGateway installs (or replaces) the 0.0.0.0/0 route pointing at
// gateway via iface.
func (t *RouteTable) SetDefaultGateway(gateway [4]byte, iface *Interface) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.routes {
		if t.routes[i].valid && t.routes[i].Network == ([4]byte{}) && t.routes[i].Netmask == ([4]byte{}) {
			t.routes[i].Nexthop = gateway
			t.routes[i].Iface = iface
			return
		}
	}
	t.routes = append(t.routes, Route{Nexthop: gateway, Iface: iface, valid: true})
}

// Remove deletes every route pointing out iface. Route deletion has no
// direct analogue in a single-interface reference implementation, but is
// needed for realistic interface teardown and for tests.
func (t *RouteTable) Remove(iface *Interface) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.routes {
		if t.routes[i].valid && t.routes[i].Iface == iface {
			t.routes[i] = Route{}
		}
	}
}

// Lookup returns the most specific route matching dst, or errNoRoute if
// none match (not even a default gateway).
func (t *RouteTable) Lookup(dst [4]byte) (Route, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var best *Route
	var bestMask uint32
	for i := range t.routes {
		r := &t.routes[i]
		if !r.valid {
			continue
		}
		if !matches(dst, r.Network, r.Netmask) {
			continue
		}
		mask := binary.BigEndian.Uint32(r.Netmask[:])
		if best == nil || mask > bestMask {
			best = r
			bestMask = mask
		}
	}
	if best == nil {
		return Route{}, errNoRoute
	}
	return *best, nil
}

func matches(dst, network, netmask [4]byte) bool {
	for i := range dst {
		if dst[i]&netmask[i] != network[i]&netmask[i] {
			return false
		}
	}
	return true
}
