package tracerouter

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddrToKeyMonotonicAndLosesExactlyGrainBits(t *testing.T) {
	const grain = 8

	a := netip.MustParseAddr("10.0.0.0")
	b := netip.MustParseAddr("10.0.1.0")

	ka := AddrToKey(a, grain)
	kb := AddrToKey(b, grain)
	require.Less(t, ka, kb)

	// Every address in [a, a+256) collapses to the same key, and a+256 does
	// not: exactly `grain` low bits are lost.
	within := netip.MustParseAddr("10.0.0.255")
	require.Equal(t, ka, AddrToKey(within, grain))

	outside := netip.MustParseAddr("10.0.1.0")
	require.NotEqual(t, ka, AddrToKey(outside, grain))
}

func TestAddrToKeyZeroGrainIsIdentity(t *testing.T) {
	a := netip.MustParseAddr("203.0.113.7")
	require.Equal(t, uint32(203)<<24|113<<8|7, AddrToKey(a, 0))
}

func TestKeyToBaseIsLeftInverseOfShift(t *testing.T) {
	a := netip.MustParseAddr("198.51.100.0")
	k := AddrToKey(a, 8)
	require.Equal(t, a, KeyToBase(k, 8))
}
