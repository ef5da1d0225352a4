package ethernet

import "strconv"

// String returns the name of the EtherType, or its hex value if unrecognized.
func (t Type) String() string {
	switch t {
	case TypeIPv4:
		return "IPv4"
	case TypeARP:
		return "ARP"
	case TypeIPv6:
		return "IPv6"
	default:
		return "EtherType(0x" + strconv.FormatUint(uint64(t), 16) + ")"
	}
}
