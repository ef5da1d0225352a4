package device

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/oxidian/netstack"
)

var (
	errNilDriver       = errors.New("device: nil driver")
	errProtoRegistered = errors.New("device: protocol already registered")
	errUnknownDevice   = errors.New("device: unknown device index")
	errHandlerNil      = errors.New("device: nil handler")
)

// Handler processes one received payload for a registered link-layer
// protocol. dev identifies the device the payload arrived on.
type Handler func(dev *Device, payload []byte) error

type protoEntry struct {
	proto   uint16
	handler Handler
	valid   bool
}

type rxEntry struct {
	proto   uint16
	dev     *Device
	payload []byte
}

// Registry holds the process-wide (or per-Stack) set of devices and
// link-layer protocol handlers, along with the bounded receive queue the
// Worker drains. This is the Go analogue of the device-list/protocol-list
// pair described for the datapath engine: a coarse mutex per list, never
// held across a handler call.
type Registry struct {
	log *slog.Logger

	// LinkInput, if set, is invoked by the Worker with each frame a
	// driver's Poll reports, before any protocol dispatch. It is wired
	// up to a link-layer decode helper (e.g. ethernet.DecodeHelper) by
	// the stack package; device itself has no notion of link framing.
	LinkInput func(dev *Device, frame []byte)

	devMu   sync.Mutex
	devices []*Device

	protoMu sync.Mutex
	protos  []protoEntry

	rxMu  sync.Mutex
	rxq   []rxEntry
	rxcap int
}

// NewRegistry returns a Registry ready for use. A nil logger silently
// discards log output.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{log: log, rxcap: 256}
}

func (r *Registry) info(msg string, args ...any) {
	if r.log != nil {
		r.log.Info(msg, args...)
	}
}

func (r *Registry) warn(msg string, args ...any) {
	if r.log != nil {
		r.log.Warn(msg, args...)
	}
}

// Alloc creates and registers a new device, returning it for further
// configuration (driver, MTU, flags) before the caller marks it up.
func (r *Registry) Alloc(name string, driver Driver) (*Device, error) {
	if driver == nil {
		return nil, errNilDriver
	}
	r.devMu.Lock()
	defer r.devMu.Unlock()
	d := &Device{
		Index:  len(r.devices),
		Name:   name,
		MTU:    1500,
		Driver: driver,
		txcap:  defaultQueueDepth,
	}
	r.devices = append(r.devices, d)
	return d, nil
}

// Devices returns a snapshot slice of all registered devices.
func (r *Registry) Devices() []*Device {
	r.devMu.Lock()
	defer r.devMu.Unlock()
	out := make([]*Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// DeviceByIndex returns the device with the given index, or an error if
// none matches.
func (r *Registry) DeviceByIndex(idx int) (*Device, error) {
	r.devMu.Lock()
	defer r.devMu.Unlock()
	for _, d := range r.devices {
		if d.Index == idx {
			return d, nil
		}
	}
	return nil, errUnknownDevice
}

// ProtocolRegister registers handler to be invoked for payloads received
// under the given link-layer protocol number (an EtherType, cast to
// uint16 by the ethernet package). Registering the same proto twice is an
// error, mirroring the teacher's handler registry semantics.
func (r *Registry) ProtocolRegister(proto uint16, handler Handler) error {
	if handler == nil {
		return errHandlerNil
	}
	r.protoMu.Lock()
	defer r.protoMu.Unlock()
	hole := -1
	for i, p := range r.protos {
		if p.valid && p.proto == proto {
			return errProtoRegistered
		}
		if !p.valid && hole == -1 {
			hole = i
		}
	}
	if hole != -1 {
		r.protos[hole] = protoEntry{proto: proto, handler: handler, valid: true}
		return nil
	}
	r.protos = append(r.protos, protoEntry{proto: proto, handler: handler, valid: true})
	return nil
}

// ProtocolUnregister removes a previously registered protocol handler, if
// present. It is a no-op if proto was never registered.
func (r *Registry) ProtocolUnregister(proto uint16) {
	r.protoMu.Lock()
	defer r.protoMu.Unlock()
	for i, p := range r.protos {
		if p.valid && p.proto == proto {
			r.protos[i].valid = false
			r.protos[i].handler = nil
		}
	}
}

func (r *Registry) handlerFor(proto uint16) Handler {
	r.protoMu.Lock()
	defer r.protoMu.Unlock()
	for _, p := range r.protos {
		if p.valid && p.proto == proto {
			return p.handler
		}
	}
	return nil
}

// Transmit enqueues frame (already link-layer encoded) for transmission on
// dev. The worker loop is responsible for actually calling the driver.
func (r *Registry) Transmit(dev *Device, frame []byte) error {
	return dev.EnqueueTx(frame)
}

// Input enqueues a received payload for dispatch to the protocol handler
// registered for proto. Called by a link-layer decode helper (e.g.
// ethernet.DecodeHelper) once it has stripped the link-layer header and
// identified the payload's protocol number.
func (r *Registry) Input(dev *Device, proto uint16, payload []byte) error {
	r.rxMu.Lock()
	defer r.rxMu.Unlock()
	if len(r.rxq) >= r.rxcap {
		return netstack.ErrQueueFull
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	r.rxq = append(r.rxq, rxEntry{proto: proto, dev: dev, payload: cp})
	return nil
}

func (r *Registry) dequeueRx() (rxEntry, bool) {
	r.rxMu.Lock()
	defer r.rxMu.Unlock()
	if len(r.rxq) == 0 {
		return rxEntry{}, false
	}
	e := r.rxq[0]
	r.rxq = r.rxq[1:]
	return e, true
}
