package topo

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flashtrace/flashtrace/internal/prober"
)

func addr(s string) netip.Addr { return netip.MustParseAddr(s) }

// Results at distances 3, 5, 14 produce edges (local,Ra,3) and (Ra,Rb,2),
// skipping (Rb,Rc) because 14-5=9 exceeds the plausible-gap cap.
func TestEdgeInsertionSkipsImplausibleGap(t *testing.T) {
	local := addr("192.0.2.1")
	dst := addr("10.0.0.1")
	ra, rb, rc := addr("198.51.100.1"), addr("198.51.100.2"), addr("198.51.100.3")

	tp := New(local)
	go tp.Run()

	tp.Feed(prober.Result{Destination: dst, Responder: ra, Distance: 3})
	tp.Feed(prober.Result{Destination: dst, Responder: rb, Distance: 5})
	tp.Feed(prober.Result{Destination: dst, Responder: rc, Distance: 14})

	g := tp.Stop()

	require.ElementsMatch(t, g.Edges(), []Edge{
		{A: local, B: ra, Weight: 3},
		{A: ra, B: rb, Weight: 2},
	})
}

func TestFlushOmitsSelfLoops(t *testing.T) {
	local := addr("192.0.2.1")
	dst := addr("10.0.0.2")
	r := addr("198.51.100.9")

	tp := New(local)
	go tp.Run()

	tp.Feed(prober.Result{Destination: dst, Responder: r, Distance: 3})
	tp.Feed(prober.Result{Destination: dst, Responder: r, Distance: 3})

	g := tp.Stop()
	require.Equal(t, 0, g.EdgeCount())
}

func TestDoneFlushesEarlyWithoutWaitingForStop(t *testing.T) {
	local := addr("192.0.2.1")
	dst := addr("10.0.0.3")
	r := addr("198.51.100.5")

	tp := New(local)
	go tp.Run()

	tp.Feed(prober.Result{Destination: dst, Responder: r, Distance: 4})
	tp.Done(dst)

	g := tp.Stop()
	require.Equal(t, 2, g.NodeCount())
	require.ElementsMatch(t, g.Edges(), []Edge{{A: local, B: r, Weight: 4}})
}

func TestEmptyDestinationProducesNoEdges(t *testing.T) {
	tp := New(addr("192.0.2.1"))
	go tp.Run()
	g := tp.Stop()
	require.Equal(t, 0, g.NodeCount())
	require.Equal(t, 0, g.EdgeCount())
}
