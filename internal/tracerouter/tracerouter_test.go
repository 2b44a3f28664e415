package tracerouter

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flashtrace/flashtrace/internal/config"
	"github.com/flashtrace/flashtrace/internal/prober"
)

func newTestTracerouter(t *testing.T, targets string, grain uint8) *Tracerouter {
	t.Helper()
	opts := config.Default()
	opts.Targets = targets
	opts.Grain = grain

	tr, err := New(opts, netip.MustParseAddr("192.0.2.1"), nil)
	require.NoError(t, err)
	return tr
}

// packedInner builds the first 28 bytes (IP header + UDP header) of a probe
// packet sent at ttl, for reuse as the "original datagram" an ICMP reply
// echoes back.
func packedInner(t *testing.T, prb *prober.Prober, dst, src netip.Addr, ttl uint8) []byte {
	t.Helper()
	packed, err := prb.Pack(prober.Unit{Dst: dst, TTL: ttl}, src)
	require.NoError(t, err)
	return packed[:28]
}

// icmpEnvelope prepends an 8-byte ICMP header to inner, overriding the
// inner IP TTL with reportedTTL to simulate how far the packet actually
// traveled before a router's reply was generated.
func icmpEnvelope(icmpType, icmpCode byte, inner []byte, reportedTTL byte) []byte {
	cp := append([]byte(nil), inner...)
	cp[8] = reportedTTL

	msg := make([]byte, 8)
	msg[0] = icmpType
	msg[1] = icmpCode
	return append(msg, cp...)
}

// A destination-unreachable pre-probe reply at distance 9 re-splits the DCB
// around 9 and latches the accurate-distance flag.
func TestPreProbeSplitsDCBAccurately(t *testing.T) {
	tr := newTestTracerouter(t, "1.2.3.4/32", 0)
	dst := netip.MustParseAddr("1.2.3.4")
	key := AddrToKey(dst, 0)

	prb := prober.New(tr.probeConfig(prober.PhasePre))
	inner := packedInner(t, prb, dst, tr.sourceIP, tr.opts.PreprobingTTL) // initial_ttl=32
	envelope := icmpEnvelope(3, 3, inner, 24)                            // 32-24+1 = 9

	tr.onPreProbeResult(envelope, dst, prb)

	d := tr.dcbs[key]
	require.EqualValues(t, 9, d.InitialTTL())
	require.True(t, d.AccurateDistance())
	backward, ok := d.PullBackwardTask()
	require.True(t, ok)
	require.EqualValues(t, 9, backward)
	// next_forward_hop is now 10 with the horizon back at 9, so forward
	// probing stays closed until a responder raises the horizon.
	require.EqualValues(t, 9, d.LastForwardTask())
	_, ok = d.PullForwardTask()
	require.False(t, ok)
}

// Two destinations see the same responder on backward probes; the second
// sighting stops that destination's backward probing.
func TestBackwardStopOnSecondSighting(t *testing.T) {
	tr := newTestTracerouter(t, "10.0.0.0/30", 0)
	d1 := netip.MustParseAddr("10.0.0.1")
	d2 := netip.MustParseAddr("10.0.0.2")
	responder := netip.MustParseAddr("198.51.100.1")

	prb := prober.New(tr.probeConfig(prober.PhaseMain))

	inner1 := packedInner(t, prb, d1, tr.sourceIP, 10)
	tr.onMainProbeResult(icmpEnvelope(11, 0, inner1, 9), responder, prb)

	dcb2 := tr.dcbs[AddrToKey(d2, 0)]

	inner2 := packedInner(t, prb, d2, tr.sourceIP, 10)
	tr.onMainProbeResult(icmpEnvelope(11, 0, inner2, 9), responder, prb)

	_, ok := dcb2.PullBackwardTask()
	require.False(t, ok, "second sighting of the same responder should stop backward probing")
}

// A forward reply at the last issued hop extends the horizon by the gap,
// capped at max_ttl.
func TestForwardHorizonExtension(t *testing.T) {
	tr := newTestTracerouter(t, "1.2.3.4/32", 0)
	dst := netip.MustParseAddr("1.2.3.4")
	key := AddrToKey(dst, 0)
	d := tr.dcbs[key]

	// Simulate the scheduler having issued ttl=17 so last_forward_task()
	// reflects it; the horizon must already admit 17 for the pull to land.
	d.SetForwardHorizon(17)
	ttl, ok := d.PullForwardTask()
	require.True(t, ok)
	require.EqualValues(t, 17, ttl)

	prb := prober.New(tr.probeConfig(prober.PhaseMain))
	inner := packedInner(t, prb, dst, tr.sourceIP, 17)
	tr.onMainProbeResult(icmpEnvelope(11, 0, inner, 16), netip.MustParseAddr("198.51.100.9"), prb)

	for want := uint8(18); want <= 22; want++ {
		got, ok := d.PullForwardTask()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	_, ok = d.PullForwardTask()
	require.False(t, ok)
}

func TestProximityPropagationUsesInclusiveLowExclusiveHighWindow(t *testing.T) {
	tr := newTestTracerouter(t, "10.0.0.0/24", 0)
	tr.opts.ProximitySpan = 2

	center := netip.MustParseAddr("10.0.0.10")
	key := AddrToKey(center, 0)

	prb := prober.New(tr.probeConfig(prober.PhasePre))
	inner := packedInner(t, prb, center, tr.sourceIP, tr.opts.PreprobingTTL)
	envelope := icmpEnvelope(3, 3, inner, tr.opts.PreprobingTTL-4) // distance 5

	tr.onPreProbeResult(envelope, center, prb)

	for _, delta := range []int64{-2, -1, 1} {
		neighbor := tr.dcbs[uint32(int64(key)+delta)]
		require.EqualValues(t, 5, neighbor.InitialTTL())
		require.False(t, neighbor.AccurateDistance())
	}
	// Exclusive high bound: key+span itself is not touched.
	far := tr.dcbs[uint32(int64(key)+2)]
	require.NotEqualValues(t, 5, far.InitialTTL())
}
