package graph

import (
	"github.com/paulmach/orb"

	"guard_model/pkg/geo"
	osmparser "guard_model/pkg/osm"
)

// UnionFind implements a disjoint-set data structure with path halving
// and union by rank.
type UnionFind struct {
	parent []uint32
	rank   []byte
	size   []uint32
}

// NewUnionFind creates a UnionFind for n elements.
func NewUnionFind(n uint32) *UnionFind {
	parent := make([]uint32, n)
	size := make([]uint32, n)
	for i := range n {
		parent[i] = i
		size[i] = 1
	}
	return &UnionFind{
		parent: parent,
		rank:   make([]byte, n),
		size:   size,
	}
}

// Find returns the representative of the set containing x.
func (uf *UnionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already same set.
func (uf *UnionFind) Union(x, y uint32) bool {
	rx, ry := uf.Find(x), uf.Find(y)
	if rx == ry {
		return false
	}
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// LargestComponent returns the node indices belonging to the largest
// weakly connected component, in ascending order.
func LargestComponent(g *Graph) []uint32 {
	if g.NumNodes == 0 {
		return nil
	}

	uf := NewUnionFind(g.NumNodes)
	for u := uint32(0); u < g.NumNodes; u++ {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			uf.Union(u, g.Head[e])
		}
	}

	bestRoot, bestSize := uint32(0), uint32(0)
	for i := uint32(0); i < g.NumNodes; i++ {
		root := uf.Find(i)
		if uf.size[root] > bestSize {
			bestRoot = root
			bestSize = uf.size[root]
		}
	}

	nodes := make([]uint32, 0, bestSize)
	for i := uint32(0); i < g.NumNodes; i++ {
		if uf.Find(i) == bestRoot {
			nodes = append(nodes, i)
		}
	}
	return nodes
}

// Subgraph creates a new graph induced by the given nodes. Edges with an
// endpoint outside the set are dropped; node order follows nodes.
func Subgraph(g *Graph, nodes []uint32) *Graph {
	if len(nodes) == 0 {
		return &Graph{}
	}

	oldToNew := make(map[uint32]uint32, len(nodes))
	for newIdx, oldIdx := range nodes {
		oldToNew[oldIdx] = uint32(newIdx)
	}
	numNodes := uint32(len(nodes))

	firstOut := make([]uint32, numNodes+1)
	var head, length []uint32
	var tags []osmparser.EdgeTags

	// nodes is walked in new-index order, so edges land in CSR order directly.
	for newU, oldU := range nodes {
		start, end := g.EdgesFrom(oldU)
		for e := start; e < end; e++ {
			newV, ok := oldToNew[g.Head[e]]
			if !ok {
				continue
			}
			head = append(head, newV)
			length = append(length, g.Length[e])
			tags = append(tags, g.Tags[e])
		}
		firstOut[newU+1] = uint32(len(head))
	}

	nodeLat := make([]float64, numNodes)
	nodeLon := make([]float64, numNodes)
	nodeID := make([]int64, numNodes)
	for newIdx, oldIdx := range nodes {
		nodeLat[newIdx] = g.NodeLat[oldIdx]
		nodeLon[newIdx] = g.NodeLon[oldIdx]
		if g.NodeID != nil {
			nodeID[newIdx] = g.NodeID[oldIdx]
		}
	}

	return &Graph{
		NumNodes: numNodes,
		NumEdges: uint32(len(head)),
		FirstOut: firstOut,
		Head:     head,
		Length:   length,
		NodeLat:  nodeLat,
		NodeLon:  nodeLon,
		NodeID:   nodeID,
		Tags:     tags,
	}
}

// FilterToComponent restricts g to its largest weakly connected component.
func FilterToComponent(g *Graph) *Graph {
	return Subgraph(g, LargestComponent(g))
}

// Clip returns the part of g inside the boundary: nodes inside the polygon,
// the edges between them, reduced to the largest weakly connected component.
// The input graph is not modified.
func Clip(g *Graph, b geo.Boundary) *Graph {
	bound := b.Bound()
	var inside []uint32
	for u := uint32(0); u < g.NumNodes; u++ {
		p := orb.Point{g.NodeLon[u], g.NodeLat[u]}
		if !bound.Contains(p) {
			continue
		}
		if b.Contains(p) {
			inside = append(inside, u)
		}
	}
	return FilterToComponent(Subgraph(g, inside))
}
