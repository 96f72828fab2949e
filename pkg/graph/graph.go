package graph

import osmparser "guard_model/pkg/osm"

// Graph is a directed road multigraph in CSR (Compressed Sparse Row) format.
// Parallel edges between the same pair of nodes are kept as separate entries.
type Graph struct {
	NumNodes uint32
	NumEdges uint32
	FirstOut []uint32  // len: NumNodes + 1; FirstOut[i]..FirstOut[i+1] are edges from node i
	Head     []uint32  // len: NumEdges; target node for each edge
	Length   []uint32  // len: NumEdges; length in millimeters
	NodeLat  []float64 // len: NumNodes
	NodeLon  []float64 // len: NumNodes
	NodeID   []int64   // len: NumNodes; source identifier (OSM node id)

	// Tags[i] is the raw metadata of edge i.
	Tags []osmparser.EdgeTags
}

// EdgesFrom returns the range of edge indices for edges originating from node u.
func (g *Graph) EdgesFrom(u uint32) (start, end uint32) {
	return g.FirstOut[u], g.FirstOut[u+1]
}

// LengthMeters returns the length of edge e in meters.
func (g *Graph) LengthMeters(e uint32) float64 {
	return float64(g.Length[e]) / 1000
}
