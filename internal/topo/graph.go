// Package topo assembles an undirected topology graph from per-destination
// probe results: it buffers replies for a destination, sorts them by hop
// distance, and links consecutive responders with weighted edges.
package topo

import "net/netip"

// Edge is an undirected link between two responders, weighted by the
// hop-distance delta that produced it.
type Edge struct {
	A, B   netip.Addr
	Weight uint8
}

type edgeKey struct {
	a, b netip.Addr
}

func normalizedEdgeKey(a, b netip.Addr) edgeKey {
	if a.Compare(b) < 0 {
		return edgeKey{a, b}
	}
	return edgeKey{b, a}
}

// Graph is a simple undirected weighted graph keyed by responder address:
// an adjacency set plus an edge-weight map, which is all the assembler
// needs since nothing here runs traversal algorithms over it.
type Graph struct {
	nodes map[netip.Addr]struct{}
	edges map[edgeKey]uint8
	adj   map[netip.Addr]map[netip.Addr]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[netip.Addr]struct{}),
		edges: make(map[edgeKey]uint8),
		adj:   make(map[netip.Addr]map[netip.Addr]struct{}),
	}
}

// AddNode registers addr as a graph node even if it ends up with no edges.
func (g *Graph) AddNode(addr netip.Addr) {
	g.nodes[addr] = struct{}{}
	if g.adj[addr] == nil {
		g.adj[addr] = make(map[netip.Addr]struct{})
	}
}

// AddEdge adds an undirected edge (a, b) with the given weight. Self-loops
// are ignored. Re-adding an existing edge overwrites its weight with the
// most recently observed delta.
func (g *Graph) AddEdge(a, b netip.Addr, weight uint8) {
	g.AddNode(a)
	g.AddNode(b)
	if a == b {
		return
	}
	g.edges[normalizedEdgeKey(a, b)] = weight
	g.adj[a][b] = struct{}{}
	g.adj[b][a] = struct{}{}
}

// Nodes returns every node in the graph, in no particular order.
func (g *Graph) Nodes() []netip.Addr {
	out := make([]netip.Addr, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// Edges returns every edge in the graph, in no particular order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for k, w := range g.edges {
		out = append(out, Edge{A: k.a, B: k.b, Weight: w})
	}
	return out
}

// Neighbors returns addr's adjacent nodes.
func (g *Graph) Neighbors(addr netip.Addr) []netip.Addr {
	set := g.adj[addr]
	out := make([]netip.Addr, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	return out
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int { return len(g.edges) }
