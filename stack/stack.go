// Package stack composes the device registry, IPv4 input/output, and ARP
// bridging into a single value an application constructs and threads
// through its own code, instead of relying on package-level singletons.
package stack

import (
	"context"
	"log/slog"

	"github.com/oxidian/netstack"
	"github.com/oxidian/netstack/arpresolve"
	"github.com/oxidian/netstack/device"
	"github.com/oxidian/netstack/ethernet"
	"github.com/oxidian/netstack/ipv4"
)

// Config configures a Stack at construction time.
type Config struct {
	Logger  *slog.Logger
	Metrics *device.Metrics
}

// Stack bundles the device registry and IPv4 layer and runs the
// background worker that drives them. Multiple independent Stacks may
// coexist in one process, each with its own devices and routes.
type Stack struct {
	Registry *device.Registry
	Input    *ipv4.Input
	Output   *ipv4.Output
	Resolver *arpresolve.CacheResolver

	worker device.Worker
}

// New constructs a Stack. Devices and interfaces are added afterward via
// AddDevice/AddInterface. The IPv4-over-Ethernet dispatch path is wired up
// immediately so RegisterProtocol calls only ever add upper-protocol
// handlers, never link-layer plumbing.
func New(cfg Config) *Stack {
	reg := device.NewRegistry(cfg.Logger)
	in := ipv4.NewInput(cfg.Logger)
	resolver := arpresolve.NewCacheResolver(reg, cfg.Logger)
	out := ipv4.NewOutput(&in.Routes, resolver, in)

	reg.LinkInput = func(dev *device.Device, frame []byte) {
		ethernet.DecodeHelper(reg, dev, frame)
	}
	reg.ProtocolRegister(uint16(ethernet.TypeIPv4), func(dev *device.Device, payload []byte) error {
		return in.Receive(dev, payload)
	})

	s := &Stack{
		Registry: reg,
		Input:    in,
		Output:   out,
		Resolver: resolver,
	}
	s.worker.Registry = reg
	s.worker.Metrics = cfg.Metrics
	return s
}

// AddDevice allocates and registers a device bound to driver.
func (s *Stack) AddDevice(name string, driver device.Driver) (*device.Device, error) {
	return s.Registry.Alloc(name, driver)
}

// AddInterface registers an IPv4 interface on dev, installs its
// directly-connected route, and wires the ARP handler that answers
// requests for this interface's address.
func (s *Stack) AddInterface(dev *device.Device, unicast, netmask [4]byte) (*ipv4.Interface, error) {
	iface, err := ipv4.NewInterface(unicast, netmask, dev)
	if err != nil {
		return nil, err
	}
	s.Input.RegisterInterface(&iface)
	if dev.Flags&device.FlagNoARP == 0 {
		if err := s.Registry.ProtocolRegister(uint16(ethernet.TypeARP), s.Resolver.Handle(&iface)); err != nil {
			return nil, err
		}
	}
	return &iface, nil
}

// AddInterfaceFromString is AddInterface taking dotted-quad strings, for
// callers building a stack from config text rather than parsed addresses.
func (s *Stack) AddInterfaceFromString(dev *device.Device, unicast, netmask string) (*ipv4.Interface, error) {
	u, err := ipv4.ParseAddr(unicast)
	if err != nil {
		return nil, err
	}
	m, err := ipv4.ParseAddr(netmask)
	if err != nil {
		return nil, err
	}
	return s.AddInterface(dev, u, m)
}

// SetDefaultGateway installs a default route pointed at gateway, egressing
// through iface.
func (s *Stack) SetDefaultGateway(gateway [4]byte, iface *ipv4.Interface) {
	s.Input.Routes.SetDefaultGateway(gateway, iface)
}

// SetDefaultGatewayFromString is SetDefaultGateway taking a dotted-quad
// gateway address string.
func (s *Stack) SetDefaultGatewayFromString(gateway string, iface *ipv4.Interface) error {
	gw, err := ipv4.ParseAddr(gateway)
	if err != nil {
		return err
	}
	s.SetDefaultGateway(gw, iface)
	return nil
}

// RegisterProtocol registers handler for IPv4 protocol number proto. The
// link-layer dispatch that feeds ipv4.Input.Receive is already wired up by
// New, so this only ever adds an upper-protocol handler.
func (s *Stack) RegisterProtocol(proto netstack.IPProto, handler ipv4.ProtocolHandler) error {
	return s.Input.RegisterProtocol(proto, handler)
}

// Send transmits payload as an IPv4 datagram of the given protocol number.
func (s *Stack) Send(proto netstack.IPProto, src, dst [4]byte, payload []byte) error {
	return s.Output.Send(s.Registry, proto, src, dst, payload)
}

// Run starts the background worker and blocks until ctx is cancelled.
func (s *Stack) Run(ctx context.Context) {
	s.worker.Run(ctx)
}

// Start launches the background worker in its own goroutine.
func (s *Stack) Start(ctx context.Context) {
	s.worker.Start(ctx)
}

// Close stops the worker and releases any devices that hold OS resources.
func (s *Stack) Close() {
	s.worker.Stop()
	for _, d := range s.Registry.Devices() {
		if c, ok := d.Driver.(device.Closer); ok {
			c.Close()
		}
	}
}
