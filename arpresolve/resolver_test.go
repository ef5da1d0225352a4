package arpresolve

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/oxidian/netstack/device"
	"github.com/oxidian/netstack/ethernet"
	"github.com/oxidian/netstack/ipv4"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T) (*device.Registry, *device.Device) {
	t.Helper()
	reg := device.NewRegistry(nil)
	dev, err := reg.Alloc("net0", &device.LoopbackDriver{})
	require.NoError(t, err)
	dev.HWAddr = [6]byte{0x52, 0x54, 0, 0x11, 0x22, 0x33}
	dev.Broadcast = ethernet.BroadcastAddr()
	dev.Flags |= device.FlagUp
	return reg, dev
}

func newTestInterface(t *testing.T, dev *device.Device) ipv4.Interface {
	t.Helper()
	iface, err := ipv4.NewInterface([4]byte{10, 0, 0, 2}, [4]byte{255, 255, 255, 0}, dev)
	require.NoError(t, err)
	return iface
}

// sentFrame runs a Worker over reg and returns the first frame transmitted
// (looped back by the LoopbackDriver), or nil if none appears within wait.
func sentFrame(t *testing.T, reg *device.Registry, wait time.Duration) []byte {
	t.Helper()
	sent := make(chan []byte, 1)
	reg.LinkInput = func(_ *device.Device, frame []byte) {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		select {
		case sent <- cp:
		default:
		}
	}
	w := &device.Worker{Registry: reg}
	w.Start(context.Background())
	defer w.Stop()
	select {
	case frame := <-sent:
		return frame
	case <-time.After(wait):
		return nil
	}
}

func TestResolveReturnsPendingAndSendsRequest(t *testing.T) {
	reg, dev := newTestDevice(t)
	iface := newTestInterface(t, dev)
	c := NewCacheResolver(reg, nil)

	status, ha, err := c.Resolve(&iface, [4]byte{10, 0, 0, 50})
	require.NoError(t, err)
	require.Equal(t, ipv4.StatusPending, status)
	require.Equal(t, [6]byte{}, ha)

	devs := reg.Devices()
	require.Len(t, devs, 1)

	frame := sentFrame(t, reg, 150*time.Millisecond)
	require.Len(t, frame, 60) // 14-byte header + 28-byte request padded to 46
	require.Equal(t, ethernet.BroadcastAddr(), [6]byte(frame[0:6]))
	require.Equal(t, uint16(ethernet.TypeARP), binary.BigEndian.Uint16(frame[12:14]))
	require.Equal(t, arpOpRequest, binary.BigEndian.Uint16(frame[20:22]))
	require.Equal(t, []byte{10, 0, 0, 50}, frame[38:42])
}

func TestResolveRepeatedCallsDoNotRequeryWhilePending(t *testing.T) {
	reg, dev := newTestDevice(t)
	iface := newTestInterface(t, dev)
	c := NewCacheResolver(reg, nil)

	_, _, err := c.Resolve(&iface, [4]byte{10, 0, 0, 50})
	require.NoError(t, err)
	require.Len(t, c.pending, 1)
	started := c.pending[0].started

	_, _, err = c.Resolve(&iface, [4]byte{10, 0, 0, 50})
	require.NoError(t, err)
	require.Len(t, c.pending, 1)
	// a requery would have replaced the pending entry with a fresh one.
	require.Equal(t, started, c.pending[0].started)
}

func TestResolveReturnsFoundFromCache(t *testing.T) {
	reg, dev := newTestDevice(t)
	iface := newTestInterface(t, dev)
	c := NewCacheResolver(reg, nil)

	want := [6]byte{1, 2, 3, 4, 5, 6}
	c.store([4]byte{10, 0, 0, 50}, want)

	status, ha, err := c.Resolve(&iface, [4]byte{10, 0, 0, 50})
	require.NoError(t, err)
	require.Equal(t, ipv4.StatusFound, status)
	require.Equal(t, want, ha)
}

func TestHandleAnswersRequestForOwnedAddress(t *testing.T) {
	reg, dev := newTestDevice(t)
	iface := newTestInterface(t, dev)
	c := NewCacheResolver(reg, nil)

	req := make([]byte, sizeARPv4)
	setHeader(req, arpOpRequest)
	senderHA := [6]byte{9, 9, 9, 9, 9, 9}
	copy(req[8:14], senderHA[:])
	copy(req[14:18], []byte{10, 0, 0, 77})
	copy(req[24:28], iface.Unicast[:])

	handler := c.Handle(&iface)
	require.NoError(t, handler(dev, req))

	devs := reg.Devices()
	require.Len(t, devs, 1)

	frame := sentFrame(t, reg, 150*time.Millisecond)
	require.Len(t, frame, 60)
	require.Equal(t, senderHA, [6]byte(frame[0:6]))
	require.Equal(t, uint16(ethernet.TypeARP), binary.BigEndian.Uint16(frame[12:14]))
	require.Equal(t, arpOpReply, binary.BigEndian.Uint16(frame[20:22]))
	require.Equal(t, iface.Unicast[:], frame[28:32])
	require.Equal(t, []byte{10, 0, 0, 77}, frame[38:42])
}

func TestHandleIgnoresRequestForOtherAddress(t *testing.T) {
	reg, dev := newTestDevice(t)
	iface := newTestInterface(t, dev)
	c := NewCacheResolver(reg, nil)

	req := make([]byte, sizeARPv4)
	setHeader(req, arpOpRequest)
	copy(req[14:18], []byte{10, 0, 0, 77})
	copy(req[24:28], []byte{10, 0, 0, 200}) // not iface.Unicast

	handler := c.Handle(&iface)
	require.NoError(t, handler(dev, req))

	require.Nil(t, sentFrame(t, reg, 30*time.Millisecond))
}

func TestHandleStoresReply(t *testing.T) {
	reg, dev := newTestDevice(t)
	iface := newTestInterface(t, dev)
	c := NewCacheResolver(reg, nil)

	reply := make([]byte, sizeARPv4)
	setHeader(reply, arpOpReply)
	senderHA := [6]byte{1, 2, 3, 4, 5, 6}
	copy(reply[8:14], senderHA[:])
	copy(reply[14:18], []byte{10, 0, 0, 50})
	copy(reply[18:24], dev.HWAddr[:])
	copy(reply[24:28], iface.Unicast[:])

	handler := c.Handle(&iface)
	require.NoError(t, handler(dev, reply))

	ha, ok := c.lookup([4]byte{10, 0, 0, 50})
	require.True(t, ok)
	require.Equal(t, senderHA, ha)
}

func TestHandleDropsUndersizedFrame(t *testing.T) {
	reg, dev := newTestDevice(t)
	iface := newTestInterface(t, dev)
	c := NewCacheResolver(reg, nil)

	handler := c.Handle(&iface)
	require.NoError(t, handler(dev, []byte{1, 2, 3}))
}

func TestCacheStoreEvictsOldestOnOverflow(t *testing.T) {
	reg, dev := newTestDevice(t)
	_ = dev
	c := NewCacheResolver(reg, nil)

	for i := 0; i < cacheCapacity+1; i++ {
		addr := [4]byte{10, 0, byte(i >> 8), byte(i)}
		c.store(addr, [6]byte{byte(i)})
	}

	// the very first entry stored should have been evicted by the wrap.
	_, ok := c.lookup([4]byte{10, 0, 0, 0})
	require.False(t, ok)

	// the most recent entry stored must still be present.
	last := cacheCapacity
	lastAddr := [4]byte{10, 0, byte(last >> 8), byte(last)}
	ha, ok := c.lookup(lastAddr)
	require.True(t, ok)
	require.Equal(t, [6]byte{byte(last)}, ha)
}
