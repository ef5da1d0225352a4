package ethernet

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMACRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		var want [6]byte
		rng.Read(want[:])
		s := string(AppendAddr(nil, want))
		got, err := ParseMAC(s)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestParseMACRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"aa:bb:cc:dd:ee",
		"aa:bb:cc:dd:ee:ff:00",
		"aa-bb-cc-dd-ee-ff",
		"zz:bb:cc:dd:ee:ff",
		"aa:bb:cc:dd:ee:gg",
	}
	for _, c := range cases {
		_, err := ParseMAC(c)
		require.Errorf(t, err, "expected error parsing %q", c)
	}
}

func TestBroadcastAddr(t *testing.T) {
	require.Equal(t, [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, BroadcastAddr())
}
