package topo

import (
	"net/netip"
	"sort"

	"github.com/flashtrace/flashtrace/internal/prober"
)

// maxPlausibleGap is the largest hop-distance delta between consecutive
// responders that is still treated as a real edge; larger deltas are
// assumed to be asymmetric routing or dropped intermediate hops.
const maxPlausibleGap = 8

type reqKind int

const (
	reqResult reqKind = iota
	reqDone
	reqStop
)

type req struct {
	kind        reqKind
	destination netip.Addr
	result      prober.Result
}

// Topo is the single graph-builder task: it owns an unexported request
// channel so exactly one goroutine ever touches its buffers or the graph,
// matching the "never share mutable state across tasks" rule the scheduler
// follows for its own stop-sets.
type Topo struct {
	localSource netip.Addr
	reqCh       chan req
	doneCh      chan *Graph

	buffers map[netip.Addr][]prober.Result
	graph   *Graph
}

// New creates a Topo rooted at localSource, the synthetic distance-0 node
// prepended to every destination's result chain.
func New(localSource netip.Addr) *Topo {
	return &Topo{
		localSource: localSource,
		reqCh:       make(chan req, 4096),
		doneCh:      make(chan *Graph, 1),
		buffers:     make(map[netip.Addr][]prober.Result),
		graph:       NewGraph(),
	}
}

// Run processes requests until Stop is called, then hands the final graph
// back to Stop, which returns it. Run must be started in its own goroutine
// before any Feed/Done/Stop call.
func (t *Topo) Run() {
	for r := range t.reqCh {
		switch r.kind {
		case reqResult:
			t.buffers[r.destination] = append(t.buffers[r.destination], r.result)
		case reqDone:
			t.flush(r.destination)
		case reqStop:
			for dest := range t.buffers {
				t.flush(dest)
			}
			t.doneCh <- t.graph
			return
		}
	}
}

// Feed records one probe result against its destination's buffer.
func (t *Topo) Feed(r prober.Result) {
	t.reqCh <- req{kind: reqResult, destination: r.Destination, result: r}
}

// Done signals that a destination's work list entry has been dropped (both
// DCB cursors exhausted), so its buffered results can be flushed early
// instead of waiting for Stop.
func (t *Topo) Done(destination netip.Addr) {
	t.reqCh <- req{kind: reqDone, destination: destination}
}

// Stop flushes every remaining buffered destination and returns the
// completed graph. It closes the request channel, so Feed/Done must not be
// called again afterwards.
func (t *Topo) Stop() *Graph {
	t.reqCh <- req{kind: reqStop}
	close(t.reqCh)
	return <-t.doneCh
}

// flush sorts a destination's buffered results by ascending distance,
// prepends the synthetic local-source node, and links consecutive
// responders into edges.
func (t *Topo) flush(destination netip.Addr) {
	results := t.buffers[destination]
	delete(t.buffers, destination)
	if len(results) == 0 {
		return
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	chain := make([]prober.Result, 0, len(results)+1)
	chain = append(chain, prober.Result{
		Destination: destination,
		Responder:   t.localSource,
		Distance:    0,
	})
	chain = append(chain, results...)

	for i := 1; i < len(chain); i++ {
		a, b := chain[i-1], chain[i]
		delta := b.Distance - a.Distance
		if delta > maxPlausibleGap {
			continue
		}
		if a.Responder == b.Responder {
			continue
		}
		t.graph.AddEdge(a.Responder, b.Responder, delta)
	}
}
