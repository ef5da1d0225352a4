// Package ethernet implements IEEE 802.3 Ethernet II frame encoding,
// decoding and validation for use by the device datapath. VLAN tagging is
// not supported: frames are plain destination|source|ethertype|payload.
package ethernet

import (
	"errors"
	"strconv"
)

const (
	sizeHeaderNoVLAN = 14
	// minPayload is the minimum payload size for an untagged Ethernet
	// frame, so that the frame (excluding FCS) is at least 60 bytes.
	minPayload = 46
	// maxPayload is the standard untagged Ethernet MTU.
	maxPayload = 1500
)

// AppendAddr appends the text representation of the hardware address to the destination buffer.
func AppendAddr(dst []byte, hwAddr [6]byte) []byte {
	for i, b := range hwAddr {
		if i != 0 {
			dst = append(dst, ':')
		}
		if b < 16 {
			dst = append(dst, '0')
		}
		dst = strconv.AppendUint(dst, uint64(b), 16)
	}
	return dst
}

// BroadcastAddr returns the all 0xff's broadcast hardware/MAC/EUI/OUI address.
func BroadcastAddr() [6]byte {
	return [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
}

var errBadMAC = errors.New("ethernet: malformed hardware address")

// ParseMAC parses a hardware address of the form "ab:cd:ef:01:02:03".
// Unlike net.ParseMAC it accepts only this exact 6-octet colon-separated
// form, rejecting EUI-64 and dash/dot notations.
func ParseMAC(s string) (addr [6]byte, err error) {
	if len(s) != 17 {
		return addr, errBadMAC
	}
	for i := 0; i < 6; i++ {
		off := i * 3
		if i != 5 && s[off+2] != ':' {
			return addr, errBadMAC
		}
		hi, ok1 := hexVal(s[off])
		lo, ok2 := hexVal(s[off+1])
		if !ok1 || !ok2 {
			return addr, errBadMAC
		}
		addr[i] = hi<<4 | lo
	}
	return addr, nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

//go:generate stringer -type=Type -linecomment -output stringers.go .

// Type is the EtherType field of an Ethernet II frame, or, for values
// <= 1500, the payload length of an 802.3 length-framed packet.
type Type uint16

// IsSize returns true if the EtherType is actually the size of the payload
// and should NOT be interpreted as an EtherType.
func (et Type) IsSize() bool { return et <= 1500 }

// Ethernet type values this stack recognizes at the link layer.
const (
	TypeIPv4 Type = 0x0800 // IPv4
	TypeARP  Type = 0x0806 // ARP
	TypeIPv6 Type = 0x86DD // IPv6
)
