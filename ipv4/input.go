package ipv4

import (
	"log/slog"
	"sync"

	"github.com/oxidian/netstack"
	"github.com/oxidian/netstack/device"
)

// Input is the IPv4 receive path: interface table, route table, and
// upper-protocol registry, wired to a device.Registry's link-layer input
// by the stack package. The zero value is not usable; use NewInput.
type Input struct {
	Routes RouteTable

	log   *slog.Logger
	ifMu  sync.Mutex
	ifs   []*Interface
	procs protocolTable
}

// NewInput returns an Input ready for interface registration. A nil logger
// silently discards log output.
func NewInput(log *slog.Logger) *Input {
	return &Input{log: log}
}

func (in *Input) logDrop(reason string, args ...any) {
	if in.log == nil {
		return
	}
	args = append([]any{"reason", reason}, args...)
	in.log.Warn("ipv4: dropped packet", args...)
}

// RegisterInterface binds iface to the route table (as a directly
// connected route) and the interface list used by Receive to decide
// whether a destination address is local.
func (in *Input) RegisterInterface(iface *Interface) {
	in.ifMu.Lock()
	in.ifs = append(in.ifs, iface)
	in.ifMu.Unlock()
	in.Routes.AddInterfaceRoute(iface)
}

// InterfaceByAddr returns the interface whose unicast address is addr.
func (in *Input) InterfaceByAddr(addr [4]byte) (*Interface, bool) {
	in.ifMu.Lock()
	defer in.ifMu.Unlock()
	for _, i := range in.ifs {
		if i.Unicast == addr {
			return i, true
		}
	}
	return nil, false
}

// InterfaceByDevice returns the first interface bound to dev.
func (in *Input) InterfaceByDevice(dev *device.Device) (*Interface, bool) {
	in.ifMu.Lock()
	defer in.ifMu.Unlock()
	for _, i := range in.ifs {
		if i.Device == dev {
			return i, true
		}
	}
	return nil, false
}

// InterfaceByPeer returns the interface a packet destined for peer would
// egress through, per the route table.
func (in *Input) InterfaceByPeer(peer [4]byte) (*Interface, bool) {
	r, err := in.Routes.Lookup(peer)
	if err != nil || r.Iface == nil {
		return nil, false
	}
	return r.Iface, true
}

// RegisterProtocol registers handler for IPv4 protocol number proto.
// Registering an already-registered protocol number is an error.
func (in *Input) RegisterProtocol(proto netstack.IPProto, handler ProtocolHandler) error {
	return in.procs.register(proto, handler)
}

// UnregisterProtocol removes a previously registered handler.
func (in *Input) UnregisterProtocol(proto netstack.IPProto) {
	in.procs.unregister(proto)
}

// Receive validates a raw IPv4 datagram received on dev and, if it passes
// every check, dispatches its payload to the registered handler for its
// protocol number. Every rejection is a silent drop (with a log line),
// mirroring how a real IP stack never answers for datagrams it declines to
// process; Receive itself never returns a network-visible error. A datagram
// arriving with TTL 0 is dropped outright; Receive does not decrement TTL,
// since nothing is forwarded.
func (in *Input) Receive(dev *device.Device, raw []byte) error {
	if len(raw) < sizeHeaderIPv4Min {
		in.logDrop("too_short")
		return nil
	}
	frm, err := NewFrame(raw)
	if err != nil {
		in.logDrop("bad_frame")
		return nil
	}
	var v netstack.Validator
	frm.ValidateExceptCRC(&v)
	if err := v.Err(); err != nil {
		in.logDrop("validation", "err", err)
		return nil
	}
	if frm.TTL() == 0 {
		in.logDrop("ttl_zero")
		return nil
	}
	if frm.CalculateHeaderCRC() != frm.CRC() {
		in.logDrop("bad_checksum")
		return nil
	}
	iface, ok := in.InterfaceByDevice(dev)
	if !ok {
		in.logDrop("no_interface", "device", dev.Name)
		return nil
	}
	dst := *frm.DestinationAddr()
	if !iface.IsOurAddress(dst) {
		in.logDrop("wrong_destination", "dst", AddrString(dst))
		return nil
	}
	proto := frm.Protocol()
	handler, ok := in.procs.lookup(proto)
	if !ok {
		in.logDrop("no_protocol_handler", "protocol", uint8(proto))
		return nil
	}
	src := *frm.SourceAddr()
	return handler(frm.Payload(), src, dst)
}

const sizeHeaderIPv4Min = 20
