package ipv4

import (
	"errors"
	"sync"

	"github.com/oxidian/netstack"
	"github.com/oxidian/netstack/device"
	"github.com/oxidian/netstack/ethernet"
)

var (
	errNoSource    = errors.New("ipv4: no source address and no route")
	errTooLarge    = errors.New("ipv4: payload exceeds interface MTU")
	errNoInterface = errors.New("ipv4: route has no interface")
)

var broadcastAddr = [4]byte{255, 255, 255, 255}

// idCounter is the monotonic IPv4 identification counter. It starts at 128
// (not 0, not random) and wraps modulo 2^16, matching the reference
// behavior exactly rather than adopting a more "modern" random-ID scheme.
type idCounter struct {
	mu sync.Mutex
	n  uint32
}

func newIDCounter() *idCounter { return &idCounter{n: 128} }

func (c *idCounter) next() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uint16(c.n)
	c.n = (c.n + 1) & 0xffff
	return id
}

// InterfaceLookup resolves an interface by its exact unicast address,
// matching the reference ip_iface_by_addr lookup (as opposed to a route
// lookup, which would also match any other address inside the interface's
// connected subnet).
type InterfaceLookup interface {
	InterfaceByAddr(addr [4]byte) (*Interface, bool)
}

// Output is the IPv4 send path: route lookup, header construction, ARP
// bridging, and handoff to the Ethernet encoder.
type Output struct {
	Routes     *RouteTable
	Resolver   Resolver
	Interfaces InterfaceLookup

	ic *idCounter
}

// NewOutput returns an Output bound to the given route table, resolver, and
// exact-address interface lookup (an *Input satisfies InterfaceLookup).
func NewOutput(routes *RouteTable, resolver Resolver, interfaces InterfaceLookup) *Output {
	return &Output{Routes: routes, Resolver: resolver, Interfaces: interfaces, ic: newIDCounter()}
}

// Send transmits payload as the body of an IPv4 datagram with the given
// protocol number from src to dst. If src is the zero address, the
// outgoing interface's unicast address is used, matching the reference
// "fill in source from the chosen route" behavior.
func (o *Output) Send(reg *device.Registry, proto netstack.IPProto, src, dst [4]byte, payload []byte) error {
	var iface *Interface
	var nexthop [4]byte
	if dst == broadcastAddr {
		if src == ([4]byte{}) {
			return errNoSource
		}
		// caller-provided source determines egress interface for a
		// limited-broadcast send; spec.md §4.6 step 1 requires an exact
		// match against an interface's own unicast address here, not a
		// route lookup (which would also match any other address inside
		// a connected subnet that isn't actually configured anywhere).
		found, ok := o.Interfaces.InterfaceByAddr(src)
		if !ok {
			return errNoInterface
		}
		iface = found
		nexthop = dst
	} else {
		r, err := o.Routes.Lookup(dst)
		if err != nil {
			return netstack.ErrNoRoute
		}
		if r.Iface == nil {
			return errNoInterface
		}
		iface = r.Iface
		if src == ([4]byte{}) {
			src = iface.Unicast
		}
		if r.Nexthop != ([4]byte{}) {
			nexthop = r.Nexthop
		} else {
			nexthop = dst
		}
	}
	return o.SendDevice(reg, iface, proto, src, dst, nexthop, payload)
}

// SendDevice builds and transmits the datagram on a specific interface,
// resolving nexthop to a hardware address (bridging through Resolver
// unless the destination is broadcast or the device doesn't use ARP).
func (o *Output) SendDevice(reg *device.Registry, iface *Interface, proto netstack.IPProto, src, dst, nexthop [4]byte, payload []byte) error {
	dev := iface.Device
	if len(payload) > dev.MTU-sizeHeader {
		return errTooLarge
	}
	buf := make([]byte, sizeHeader+len(payload))
	frm, err := NewFrame(buf)
	if err != nil {
		return err
	}
	frm.SetVersionAndIHL(4, 5)
	frm.SetToS(0)
	frm.SetTotalLength(uint16(len(buf)))
	frm.SetID(o.ic.next())
	frm.SetFlags(0)
	frm.SetTTL(255)
	frm.SetProtocol(proto)
	*frm.SourceAddr() = src
	*frm.DestinationAddr() = dst
	copy(frm.Payload(), payload)
	frm.SetCRC(0)
	frm.SetCRC(frm.CalculateHeaderCRC())

	ha, err := o.resolveHardwareAddr(dev, iface, nexthop)
	if err != nil {
		return err
	}
	return ethernet.EncodeHelper(reg, dev, ha, ethernet.TypeIPv4, buf)
}

func (o *Output) resolveHardwareAddr(dev *device.Device, iface *Interface, nexthop [4]byte) ([6]byte, error) {
	if dev.Flags&device.FlagNoARP != 0 {
		return [6]byte{}, nil
	}
	if nexthop == iface.Broadcast || nexthop == broadcastAddr {
		return dev.Broadcast, nil
	}
	status, ha, err := o.Resolver.Resolve(iface, nexthop)
	if err != nil {
		return ha, err
	}
	switch status {
	case StatusFound:
		return ha, nil
	case StatusPending:
		return ha, errArpPending
	default:
		return ha, errArpFailed
	}
}

var (
	errArpPending = errors.New("ipv4: address resolution pending, retry send later")
	errArpFailed  = errors.New("ipv4: address resolution failed")
)
