package ethernet

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oxidian/netstack/device"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T) (*device.Registry, *device.Device) {
	t.Helper()
	reg := device.NewRegistry(nil)
	dev, err := reg.Alloc("net0", &device.LoopbackDriver{})
	require.NoError(t, err)
	dev.HWAddr = [6]byte{0x52, 0x54, 0, 0x11, 0x22, 0x33}
	dev.Broadcast = BroadcastAddr()
	dev.Flags |= device.FlagUp
	return reg, dev
}

// transmitAndCapture runs the device's tx queue through a real Worker
// iteration (so EnqueueTx -> driver.Transmit executes exactly as it would in
// production). Because LoopbackDriver also implements Poller, the same
// worker iteration loops the transmitted bytes straight back to
// reg.LinkInput, which is how this helper observes the encoded frame.
func transmitAndCapture(t *testing.T, reg *device.Registry, dev *device.Device) []byte {
	t.Helper()
	captured := make(chan []byte, 1)
	reg.LinkInput = func(d *device.Device, frame []byte) {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		select {
		case captured <- cp:
		default:
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	w := &device.Worker{Registry: reg}
	w.Start(ctx)
	defer w.Stop()

	select {
	case frame := <-captured:
		return frame
	case <-time.After(150 * time.Millisecond):
		t.Fatal("frame was never looped back")
		return nil
	}
}

func TestEncodeHelperPadsToMinimumFrame(t *testing.T) {
	reg, dev := newTestDevice(t)
	dst := [6]byte{1, 2, 3, 4, 5, 6}
	require.NoError(t, EncodeHelper(reg, dev, dst, TypeIPv4, []byte("hi")))

	frame := transmitAndCapture(t, reg, dev)
	require.Len(t, frame, 60) // 14-byte header + 46-byte minimum payload

	frm, err := NewFrame(frame)
	require.NoError(t, err)
	require.Equal(t, dst, *frm.DestinationHardwareAddr())
	require.Equal(t, dev.HWAddr, *frm.SourceHardwareAddr())
	require.Equal(t, TypeIPv4, frm.EtherTypeOrSize())
	require.Equal(t, []byte("hi"), frame[sizeHeaderNoVLAN:sizeHeaderNoVLAN+2])
}

func TestEncodeHelperRejectsOversizePayload(t *testing.T) {
	reg, dev := newTestDevice(t)
	err := EncodeHelper(reg, dev, [6]byte{1}, TypeIPv4, make([]byte, maxPayload+1))
	require.ErrorIs(t, err, errFrameTooLarge)
}

func TestEncodeHelperAcceptsAllZeroDestination(t *testing.T) {
	// A NOARP device's ip_output_device path hands EncodeHelper an
	// all-zero hardware address (there's nothing to resolve it to); that
	// must still go out, not be rejected as if it were a null pointer.
	reg, dev := newTestDevice(t)
	require.NoError(t, EncodeHelper(reg, dev, [6]byte{}, TypeIPv4, []byte("x")))

	frame := transmitAndCapture(t, reg, dev)
	frm, err := NewFrame(frame)
	require.NoError(t, err)
	require.Equal(t, [6]byte{}, *frm.DestinationHardwareAddr())
}

func TestEncodeHelperAppendsCRC32WhenRequested(t *testing.T) {
	reg, dev := newTestDevice(t)
	dev.AppendCRC32 = true
	require.NoError(t, EncodeHelper(reg, dev, [6]byte{1, 2, 3, 4, 5, 6}, TypeIPv4, []byte("hi")))

	frame := transmitAndCapture(t, reg, dev)
	require.Len(t, frame, 64) // 60-byte minimum frame + 4-byte FCS trailer

	want := CRC32(frame[:60])
	got := uint32(frame[60]) | uint32(frame[61])<<8 | uint32(frame[62])<<16 | uint32(frame[63])<<24
	require.Equal(t, want, got)
}

func TestDecodeHelperAcceptsUnicastMatch(t *testing.T) {
	reg, dev := newTestDevice(t)
	var gotProto uint16
	var gotPayload []byte
	var handled atomic.Int32
	require.NoError(t, reg.ProtocolRegister(uint16(TypeIPv4), func(d *device.Device, payload []byte) error {
		gotProto = uint16(TypeIPv4)
		gotPayload = payload
		handled.Add(1)
		return nil
	}))

	payload := []byte("payload-data")
	buf := make([]byte, sizeHeaderNoVLAN+len(payload))
	frm, err := NewFrame(buf)
	require.NoError(t, err)
	*frm.DestinationHardwareAddr() = dev.HWAddr
	*frm.SourceHardwareAddr() = [6]byte{9, 9, 9, 9, 9, 9}
	frm.SetEtherType(TypeIPv4)
	copy(frm.Payload(), payload)

	require.NoError(t, DecodeHelper(reg, dev, buf))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	w := &device.Worker{Registry: reg}
	w.Start(ctx)
	defer w.Stop()
	require.Eventually(t, func() bool { return handled.Load() == 1 }, 100*time.Millisecond, time.Millisecond)
	require.Equal(t, uint16(TypeIPv4), gotProto)
	require.Equal(t, payload, gotPayload)
}

func TestDecodeHelperAcceptsBroadcast(t *testing.T) {
	reg, dev := newTestDevice(t)
	var handled atomic.Int32
	require.NoError(t, reg.ProtocolRegister(uint16(TypeARP), func(d *device.Device, payload []byte) error {
		handled.Add(1)
		return nil
	}))

	buf := make([]byte, sizeHeaderNoVLAN+4)
	frm, err := NewFrame(buf)
	require.NoError(t, err)
	*frm.DestinationHardwareAddr() = BroadcastAddr()
	frm.SetEtherType(TypeARP)

	require.NoError(t, DecodeHelper(reg, dev, buf))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	w := &device.Worker{Registry: reg}
	w.Start(ctx)
	defer w.Stop()
	require.Eventually(t, func() bool { return handled.Load() == 1 }, 100*time.Millisecond, time.Millisecond)
}

func TestDecodeHelperDropsWrongDestination(t *testing.T) {
	reg, dev := newTestDevice(t)
	var handled atomic.Int32
	require.NoError(t, reg.ProtocolRegister(uint16(TypeIPv4), func(d *device.Device, payload []byte) error {
		handled.Add(1)
		return nil
	}))

	buf := make([]byte, sizeHeaderNoVLAN+4)
	frm, err := NewFrame(buf)
	require.NoError(t, err)
	*frm.DestinationHardwareAddr() = [6]byte{9, 9, 9, 9, 9, 9}
	frm.SetEtherType(TypeIPv4)

	require.NoError(t, DecodeHelper(reg, dev, buf))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	w := &device.Worker{Registry: reg}
	w.Run(ctx)
	require.Equal(t, int32(0), handled.Load())
}

func TestDecodeHelperDropsUndersizedFrame(t *testing.T) {
	reg, dev := newTestDevice(t)
	require.NoError(t, DecodeHelper(reg, dev, []byte{1, 2, 3}))
}
