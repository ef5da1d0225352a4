//go:build linux

package device

import (
	"github.com/songgao/water"
)

// TapDriver backs a Device with an OS TAP interface via songgao/water,
// giving the datapath a real link to the host network stack without
// hand-rolled ioctl plumbing.
type TapDriver struct {
	iface *water.Interface
}

// NewTapDriver creates (or attaches to, if name already exists) a TAP
// interface with the given name.
func NewTapDriver(name string) (*TapDriver, error) {
	cfg := water.Config{DeviceType: water.TAP}
	cfg.Name = name
	iface, err := water.New(cfg)
	if err != nil {
		return nil, err
	}
	return &TapDriver{iface: iface}, nil
}

// Transmit writes one already-framed Ethernet packet to the TAP interface.
func (t *TapDriver) Transmit(frame []byte) (int, error) {
	return t.iface.Write(frame)
}

// Poll reads the next packet available on the TAP interface into dst.
func (t *TapDriver) Poll(dst []byte) (int, error) {
	return t.iface.Read(dst)
}

// Close releases the underlying TAP file descriptor.
func (t *TapDriver) Close() error {
	return t.iface.Close()
}
