package ethernet

import (
	"encoding/binary"
	"errors"

	"github.com/oxidian/netstack/device"
)

var errFrameTooLarge = errors.New("ethernet: payload exceeds maximum frame size")

// EncodeHelper builds an untagged Ethernet II frame around payload and
// hands it to dev's transmit queue. It pads the payload up to the 46-byte
// minimum so the resulting frame (excluding FCS) is never shorter than 60
// bytes, matching the wire minimum for Ethernet. dst is taken as given,
// including the all-zero address a NOARP device's output path passes for a
// destination it never resolves over the wire — Go has no null-pointer
// analogue of the C helper's destination-pointer check, so there is nothing
// to reject here.
func EncodeHelper(reg *device.Registry, dev *device.Device, dst [6]byte, ethType Type, payload []byte) error {
	if len(payload) > maxPayload {
		return errFrameTooLarge
	}
	plen := len(payload)
	if plen < minPayload {
		plen = minPayload
	}
	trailer := 0
	if dev.AppendCRC32 {
		trailer = 4
	}
	buf := make([]byte, sizeHeaderNoVLAN+plen+trailer)
	frm, err := NewFrame(buf[:sizeHeaderNoVLAN+plen])
	if err != nil {
		return err
	}
	*frm.DestinationHardwareAddr() = dst
	*frm.SourceHardwareAddr() = dev.HWAddr
	frm.SetEtherType(ethType)
	copy(frm.Payload(), payload)
	if dev.AppendCRC32 {
		fcs := CRC32(buf[:sizeHeaderNoVLAN+plen])
		binary.LittleEndian.PutUint32(buf[sizeHeaderNoVLAN+plen:], fcs)
	}
	return reg.Transmit(dev, buf)
}

// DecodeHelper validates a raw received frame, enforces destination
// filtering (unicast match against dev's hardware address, or broadcast),
// and forwards the payload to reg.Input keyed by the frame's EtherType.
// Non-matching destinations and undersized frames are silently dropped, as
// is normal for a shared/broadcast medium.
func DecodeHelper(reg *device.Registry, dev *device.Device, raw []byte) error {
	frm, err := NewFrame(raw)
	if err != nil {
		return nil // too short to be a frame at all; not an error condition
	}
	if !frameIsForUs(frm, dev) {
		return nil
	}
	et := frm.EtherTypeOrSize()
	if et.IsSize() {
		return nil // 802.3 length-framed payloads carry no dispatchable protocol
	}
	return reg.Input(dev, uint16(et), frm.Payload())
}

func frameIsForUs(frm Frame, dev *device.Device) bool {
	if frm.IsBroadcast() {
		return true
	}
	return *frm.DestinationHardwareAddr() == dev.HWAddr
}
