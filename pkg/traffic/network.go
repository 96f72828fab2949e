package traffic

import "guard_model/pkg/graph"

// Network is a road graph annotated with a resolved speed for every edge.
// The graph is shared and never written to.
type Network struct {
	Graph    *graph.Graph
	SpeedKPH []float64 // len: Graph.NumEdges
}

// Prepare annotates g with edge speeds and derives its intersection delays.
func Prepare(g *graph.Graph) (*Network, DelayMap) {
	return &Network{Graph: g, SpeedKPH: ResolveSpeeds(g)}, IntersectionDelays(g)
}

// Speed returns the speed of edge e in km/h.
func (n *Network) Speed(e uint32) float64 {
	return n.SpeedKPH[e]
}
