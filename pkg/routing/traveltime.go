package routing

import (
	"errors"
	"math"

	"guard_model/pkg/traffic"
)

// ErrNoRoute is returned when no path exists between the two nodes.
var ErrNoRoute = errors.New("no route found")

// Path is a shortest path by length through the road graph.
type Path struct {
	Nodes        []uint32 // src first, dst last; a single node when src == dst
	Edges        []uint32 // len(Nodes)-1 edges, Edges[i] leads from Nodes[i] to Nodes[i+1]
	LengthMeters float64
}

// Estimator converts shortest paths by length into travel times. The path is
// chosen by length alone; time is derived from the length, the speed of the
// first hop out of the source, and the control delays along the way. The
// first hop's speed is that of the lowest-index edge between the first two
// path nodes, even when a parallel edge was the one taken.
//
// An Estimator reuses its search state and is not safe for concurrent use.
type Estimator struct {
	net    *traffic.Network
	delays traffic.DelayMap
	state  *searchState

	// Per-node values accumulated along the tree in settle order.
	cumDelay  []float64
	firstEdge []uint32 // speed source of the first hop, see hopEdge
}

// NewEstimator creates an estimator over a prepared network.
func NewEstimator(net *traffic.Network, delays traffic.DelayMap) *Estimator {
	n := net.Graph.NumNodes
	return &Estimator{
		net:       net,
		delays:    delays,
		state:     newSearchState(n),
		cumDelay:  make([]float64, n),
		firstEdge: make([]uint32, n),
	}
}

// Path returns the shortest path by length from src to dst.
func (est *Estimator) Path(src, dst uint32) (Path, error) {
	g := est.net.Graph
	if src >= g.NumNodes || dst >= g.NumNodes {
		return Path{}, ErrNoRoute
	}

	est.state.run(g, src, dst)
	if est.state.Dist[dst] == inf {
		return Path{}, ErrNoRoute
	}

	var nodes, edges []uint32
	for v := dst; v != src; v = est.state.Pred[v] {
		nodes = append(nodes, v)
		edges = append(edges, est.state.PredEdge[v])
	}
	nodes = append(nodes, src)
	reverse(nodes)
	reverse(edges)

	return Path{
		Nodes:        nodes,
		Edges:        edges,
		LengthMeters: float64(est.state.Dist[dst]) / 1000,
	}, nil
}

// TravelTime returns the estimated minutes from src to dst.
// It returns ErrNoRoute if dst cannot be reached.
func (est *Estimator) TravelTime(src, dst uint32) (float64, error) {
	p, err := est.Path(src, dst)
	if err != nil {
		return 0, err
	}
	if len(p.Edges) == 0 {
		return 0, nil
	}

	var delaySec float64
	for _, v := range p.Nodes[1:] {
		delaySec += est.delays.At(v)
	}
	return minutes(p.LengthMeters, est.net.Speed(est.hopEdge(src, p.Nodes[1])), delaySec), nil
}

// FromSource fills out[i] with the minutes from src to targets[i], the same
// value TravelTime would return, from a single search. Unreachable targets
// get +Inf. out must have the same length as targets.
func (est *Estimator) FromSource(src uint32, targets []uint32, out []float64) {
	g := est.net.Graph
	if src >= g.NumNodes {
		for i := range out {
			out[i] = math.Inf(1)
		}
		return
	}

	s := est.state
	s.run(g, src, noNode)

	// Predecessors settle before their children, so one pass in settle
	// order fills both arrays.
	for _, v := range s.Settled {
		p := s.Pred[v]
		switch {
		case v == src:
			est.cumDelay[v] = 0
			est.firstEdge[v] = noEdge
		case p == src:
			est.cumDelay[v] = est.delays.At(v)
			est.firstEdge[v] = est.hopEdge(src, v)
		default:
			est.cumDelay[v] = est.cumDelay[p] + est.delays.At(v)
			est.firstEdge[v] = est.firstEdge[p]
		}
	}

	for i, t := range targets {
		switch {
		case t >= g.NumNodes || s.Dist[t] == inf:
			out[i] = math.Inf(1)
		case t == src:
			out[i] = 0
		default:
			out[i] = minutes(float64(s.Dist[t])/1000, est.net.Speed(est.firstEdge[t]), est.cumDelay[t])
		}
	}
}

// hopEdge returns the lowest-index edge u->v. Build keeps parallel edges in
// input order, so this is the first edge listed between the two nodes.
func (est *Estimator) hopEdge(u, v uint32) uint32 {
	g := est.net.Graph
	start, end := g.EdgesFrom(u)
	for e := start; e < end; e++ {
		if g.Head[e] == v {
			return e
		}
	}
	return noEdge
}

// minutes converts a driven length at a constant speed plus stopped time
// into minutes.
func minutes(lengthMeters, speedKPH, delaySec float64) float64 {
	metersPerSec := speedKPH * 1000 / 3600
	return lengthMeters/metersPerSec/60 + delaySec/60
}

func reverse(s []uint32) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
