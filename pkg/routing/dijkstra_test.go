package routing

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/osm"

	"guard_model/pkg/graph"
	osmparser "guard_model/pkg/osm"
	"guard_model/pkg/traffic"
)

// buildGridGraph creates a small test graph.
//
//	10 ---100--- 20 ---200--- 30
//	|                          |
//	300                       400
//	|                          |
//	40 ---500--- 50 ---600--- 60
//
// All edges bidirectional. Lengths in millimeters.
func buildGridGraph(t testing.TB) *graph.Graph {
	t.Helper()
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 10, ToNodeID: 20, Length: 100},
			{FromNodeID: 20, ToNodeID: 10, Length: 100},
			{FromNodeID: 20, ToNodeID: 30, Length: 200},
			{FromNodeID: 30, ToNodeID: 20, Length: 200},
			{FromNodeID: 10, ToNodeID: 40, Length: 300},
			{FromNodeID: 40, ToNodeID: 10, Length: 300},
			{FromNodeID: 30, ToNodeID: 60, Length: 400},
			{FromNodeID: 60, ToNodeID: 30, Length: 400},
			{FromNodeID: 40, ToNodeID: 50, Length: 500},
			{FromNodeID: 50, ToNodeID: 40, Length: 500},
			{FromNodeID: 50, ToNodeID: 60, Length: 600},
			{FromNodeID: 60, ToNodeID: 50, Length: 600},
		},
		NodeLat: map[osm.NodeID]float64{10: 1.300, 20: 1.300, 30: 1.300, 40: 1.301, 50: 1.301, 60: 1.301},
		NodeLon: map[osm.NodeID]float64{10: 103.800, 20: 103.801, 30: 103.802, 40: 103.800, 50: 103.801, 60: 103.802},
	}
	return graph.Build(result)
}

// plainDijkstra runs textbook Dijkstra with a linear scan for the minimum.
func plainDijkstra(g *graph.Graph, source, target uint32) uint32 {
	dist := make([]uint32, g.NumNodes)
	for i := range dist {
		dist[i] = math.MaxUint32
	}
	dist[source] = 0

	type item struct {
		node uint32
		dist uint32
	}
	var pq []item
	pq = append(pq, item{source, 0})

	for len(pq) > 0 {
		minIdx := 0
		for i := 1; i < len(pq); i++ {
			if pq[i].dist < pq[minIdx].dist {
				minIdx = i
			}
		}
		cur := pq[minIdx]
		pq[minIdx] = pq[len(pq)-1]
		pq = pq[:len(pq)-1]

		if cur.dist > dist[cur.node] {
			continue
		}

		start, end := g.EdgesFrom(cur.node)
		for e := start; e < end; e++ {
			v := g.Head[e]
			newDist := cur.dist + g.Length[e]
			if newDist < dist[v] {
				dist[v] = newDist
				pq = append(pq, item{v, newDist})
			}
		}
	}

	return dist[target]
}

func TestDijkstraCorrectness(t *testing.T) {
	g := buildGridGraph(t)
	s := newSearchState(g.NumNodes)

	for src := uint32(0); src < g.NumNodes; src++ {
		s.run(g, src, noNode)
		for dst := uint32(0); dst < g.NumNodes; dst++ {
			want := plainDijkstra(g, src, dst)
			if s.Dist[dst] != want {
				t.Errorf("src=%d dst=%d: got %d, want %d", src, dst, s.Dist[dst], want)
			}
		}
		if len(s.Settled) != int(g.NumNodes) {
			t.Errorf("src=%d: settled %d nodes, want %d", src, len(s.Settled), g.NumNodes)
		}
	}
}

func TestDijkstraEarlyStop(t *testing.T) {
	g := buildGridGraph(t)
	s := newSearchState(g.NumNodes)

	// Full run first so reset has something to clear.
	s.run(g, 0, noNode)
	s.run(g, 0, 1)

	if s.Dist[1] != 100 {
		t.Errorf("Dist[1] = %d, want 100", s.Dist[1])
	}
	if s.Settled[len(s.Settled)-1] != 1 {
		t.Errorf("last settled = %d, want 1", s.Settled[len(s.Settled)-1])
	}
	if len(s.Settled) != 2 {
		t.Errorf("settled %d nodes, want 2", len(s.Settled))
	}
}

func TestMinHeap(t *testing.T) {
	var h MinHeap

	h.Push(1, 30)
	h.Push(2, 10)
	h.Push(3, 20)

	item := h.Pop()
	if item.Node != 2 || item.Dist != 10 {
		t.Errorf("Pop = {%d, %d}, want {2, 10}", item.Node, item.Dist)
	}

	item = h.Pop()
	if item.Node != 3 || item.Dist != 20 {
		t.Errorf("Pop = {%d, %d}, want {3, 20}", item.Node, item.Dist)
	}

	item = h.Pop()
	if item.Node != 1 || item.Dist != 30 {
		t.Errorf("Pop = {%d, %d}, want {1, 30}", item.Node, item.Dist)
	}

	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
}

func BenchmarkFromSource(b *testing.B) {
	// 40x40 bidirectional grid, 100 m blocks.
	const side = 40
	id := func(r, c int) osm.NodeID { return osm.NodeID(r*side + c + 1) }
	result := &osmparser.ParseResult{
		NodeLat: map[osm.NodeID]float64{},
		NodeLon: map[osm.NodeID]float64{},
	}
	for r := range side {
		for c := range side {
			result.NodeLat[id(r, c)] = 1.3 + float64(r)*0.0009
			result.NodeLon[id(r, c)] = 103.8 + float64(c)*0.0009
			if c+1 < side {
				result.Edges = append(result.Edges,
					osmparser.RawEdge{FromNodeID: id(r, c), ToNodeID: id(r, c+1), Length: 100_000},
					osmparser.RawEdge{FromNodeID: id(r, c+1), ToNodeID: id(r, c), Length: 100_000})
			}
			if r+1 < side {
				result.Edges = append(result.Edges,
					osmparser.RawEdge{FromNodeID: id(r, c), ToNodeID: id(r+1, c), Length: 100_000},
					osmparser.RawEdge{FromNodeID: id(r+1, c), ToNodeID: id(r, c), Length: 100_000})
			}
		}
	}
	net, delays := traffic.Prepare(graph.Build(result))
	est := NewEstimator(net, delays)

	targets := make([]uint32, 100)
	for i := range targets {
		targets[i] = uint32(i * 13 % int(net.Graph.NumNodes))
	}
	out := make([]float64, len(targets))

	for b.Loop() {
		est.FromSource(0, targets, out)
	}
}

func TestEstimatorUnknownNodes(t *testing.T) {
	net, delays := traffic.Prepare(buildGridGraph(t))
	est := NewEstimator(net, delays)

	if _, err := est.TravelTime(0, 99); !errors.Is(err, ErrNoRoute) {
		t.Errorf("TravelTime to unknown node: err = %v, want ErrNoRoute", err)
	}

	out := []float64{0}
	est.FromSource(99, []uint32{0}, out)
	if !math.IsInf(out[0], 1) {
		t.Errorf("FromSource(unknown) = %f, want +Inf", out[0])
	}
}
