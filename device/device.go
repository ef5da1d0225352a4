// Package device implements the datapath engine: a registry of network
// devices and link-layer protocol handlers, each device owning a bounded
// transmit queue, drained by a background Worker alongside the shared
// protocol receive queue. Device drivers (loopback, tap, raw socket) only need to
// supply Transmit and, optionally, Poll; everything above the driver
// boundary — queuing, dispatch, backpressure — lives here.
package device

import (
	"sync"

	"github.com/oxidian/netstack"
)

// Flags describes device capabilities and state, mirroring the handful of
// bits a userspace datapath actually needs to make forwarding decisions.
type Flags uint8

const (
	FlagUp        Flags = 1 << iota // device is up and may transmit/receive
	FlagBroadcast                   // device supports broadcast frames
	FlagNoARP                       // device does not participate in ARP resolution
	FlagLoopback                    // device is a loopback pseudo-device
)

// Driver is the minimal capability a device backend must provide. Transmit
// sends one already-framed link-layer packet. Receiving is not part of
// Driver: drivers that can be polled also implement Poller, and the Worker
// polls only those.
type Driver interface {
	Transmit(frame []byte) (int, error)
}

// Poller is implemented by drivers that can be asked for the next received
// frame, rather than pushing frames in asynchronously.
type Poller interface {
	Poll(buf []byte) (int, error)
}

// Closer is implemented by drivers holding an OS resource (file descriptor,
// socket) that must be released when the device is torn down.
type Closer interface {
	Close() error
}

const defaultQueueDepth = 64

// Device represents one network interface bound to a driver. The zero
// value is not usable; construct one with Registry.Alloc.
type Device struct {
	Index     int
	Name      string
	MTU       int
	Flags     Flags
	HWAddr    [6]byte
	Broadcast [6]byte
	Driver    Driver

	// AppendCRC32 requests that the Ethernet encode helper append a
	// software-computed IEEE CRC-32 frame check sequence to outgoing
	// frames. Real NICs and the songgao/water TAP driver compute FCS in
	// hardware/kernel and never need this; it exists for drivers (e.g. a
	// raw socket opened without hardware offload) that must supply their
	// own trailer.
	AppendCRC32 bool

	mu    sync.Mutex
	txq   [][]byte
	txcap int
}

// IsUp reports whether the device has been marked up.
func (d *Device) IsUp() bool { return d.Flags&FlagUp != 0 }

// EnqueueTx appends frame to the device's transmit queue. It copies frame
// so the caller's buffer may be reused immediately. ErrQueueFull is
// returned, rather than blocking, when the queue is at capacity —
// backpressure is the caller's responsibility, matching a non-blocking
// datapath that never stalls the worker loop on a single slow device.
func (d *Device) EnqueueTx(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.txq) >= d.txcap {
		return netstack.ErrQueueFull
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.txq = append(d.txq, cp)
	return nil
}

// dequeueTx pops the oldest queued frame, if any.
func (d *Device) dequeueTx() ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.txq) == 0 {
		return nil, false
	}
	frame := d.txq[0]
	d.txq = d.txq[1:]
	return frame, true
}
