package ipv4

import (
	"errors"
	"net/netip"

	"github.com/oxidian/netstack/device"
)

var errZeroNetmask = errors.New("ipv4: zero netmask")

// ParseAddr parses a dotted-quad IPv4 address string, e.g. "192.168.1.1".
// It rejects IPv6 literals and anything netip.ParseAddr would accept that
// isn't a 4-byte address.
func ParseAddr(s string) ([4]byte, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return [4]byte{}, err
	}
	if !a.Is4() {
		return [4]byte{}, errNotIPv4
	}
	return a.As4(), nil
}

// AddrString formats addr in dotted-quad form.
func AddrString(addr [4]byte) string {
	return netip.AddrFrom4(addr).String()
}

var errNotIPv4 = errors.New("ipv4: not an IPv4 address")

// Interface binds an IPv4 unicast address and netmask to a device, the
// way a network stack's "ifconfig" step would. Output uses the interface
// list to decide which device a route's traffic actually egresses through;
// Input uses it to decide whether a destination address is local.
type Interface struct {
	Unicast   [4]byte
	Netmask   [4]byte
	Broadcast [4]byte
	Device    *device.Device
}

// NewInterface computes Broadcast from unicast and netmask and returns the
// Interface value. It does not register anything; call
// (*Input).RegisterInterface (which stack.Stack.AddInterface does) to make
// it reachable.
func NewInterface(unicast, netmask [4]byte, dev *device.Device) (Interface, error) {
	if netmask == ([4]byte{}) {
		return Interface{}, errZeroNetmask
	}
	var bcast [4]byte
	for i := range bcast {
		bcast[i] = (unicast[i] & netmask[i]) | ^netmask[i]
	}
	return Interface{Unicast: unicast, Netmask: netmask, Broadcast: bcast, Device: dev}, nil
}

// NewInterfaceFromString parses unicast/netmask dotted-quad strings and
// builds an Interface, mirroring the string-based configuration surface
// (iface_alloc(unicast_str, netmask_str)) used to stand up a stack from a
// config file or CLI flags.
func NewInterfaceFromString(unicast, netmask string, dev *device.Device) (Interface, error) {
	u, err := ParseAddr(unicast)
	if err != nil {
		return Interface{}, err
	}
	m, err := ParseAddr(netmask)
	if err != nil {
		return Interface{}, err
	}
	return NewInterface(u, m, dev)
}

// Contains reports whether addr falls within the interface's subnet.
func (i Interface) Contains(addr [4]byte) bool {
	for k := range addr {
		if addr[k]&i.Netmask[k] != i.Unicast[k]&i.Netmask[k] {
			return false
		}
	}
	return true
}

// IsOurAddress reports whether addr is this interface's unicast address,
// its subnet broadcast address, or the limited broadcast 255.255.255.255.
func (i Interface) IsOurAddress(addr [4]byte) bool {
	return addr == i.Unicast || addr == i.Broadcast || addr == ([4]byte{255, 255, 255, 255})
}
