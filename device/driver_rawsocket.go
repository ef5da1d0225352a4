//go:build linux

package device

import (
	"encoding/binary"
	"net"

	"golang.org/x/sys/unix"
)

// RawSocketDriver binds a device to an existing Linux network interface
// using an AF_PACKET/SOCK_RAW socket, bypassing the kernel's IP stack
// entirely so this package's IPv4 implementation sees raw frames. Adapted
// from a hand-rolled ioctl/syscall bridge to the maintained
// golang.org/x/sys/unix bindings.
type RawSocketDriver struct {
	fd       int
	ifindex  int
	sockaddr unix.SockaddrLinklayer
}

func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.LittleEndian.Uint16(b[:])
}

// NewRawSocketDriver opens a raw packet socket bound to the named
// interface (e.g. "eth0").
func NewRawSocketDriver(ifaceName string) (*RawSocketDriver, error) {
	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, err
	}
	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return nil, err
	}
	sa := unix.SockaddrLinklayer{
		Protocol: proto,
		Ifindex:  ifi.Index,
	}
	if err := unix.Bind(fd, &sa); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &RawSocketDriver{fd: fd, ifindex: ifi.Index, sockaddr: sa}, nil
}

// Transmit writes frame to the bound interface.
func (r *RawSocketDriver) Transmit(frame []byte) (int, error) {
	return unix.Write(r.fd, frame)
}

// Poll reads the next frame seen on the bound interface into dst.
func (r *RawSocketDriver) Poll(dst []byte) (int, error) {
	n, _, err := unix.Recvfrom(r.fd, dst, 0)
	return n, err
}

// Close releases the underlying socket.
func (r *RawSocketDriver) Close() error {
	return unix.Close(r.fd)
}
