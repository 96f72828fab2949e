package routing

import (
	"math"

	"guard_model/pkg/graph"
)

const (
	noNode = math.MaxUint32
	noEdge = math.MaxUint32
	inf    = math.MaxUint32
)

// MinHeap is a concrete-typed min-heap for the Dijkstra priority queue.
// Avoids interface boxing overhead of container/heap.
type MinHeap struct {
	items []PQItem
}

// PQItem is a priority queue entry. Dist is in millimeters.
type PQItem struct {
	Node uint32
	Dist uint32
}

func (h *MinHeap) Len() int { return len(h.items) }

func (h *MinHeap) Push(node, dist uint32) {
	h.items = append(h.items, PQItem{node, dist})
	h.siftUp(len(h.items) - 1)
}

func (h *MinHeap) Pop() PQItem {
	n := len(h.items)
	item := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return item
}

func (h *MinHeap) Reset() {
	h.items = h.items[:0]
}

func (h *MinHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.items[i].Dist >= h.items[parent].Dist {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *MinHeap) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2
		if left < n && h.items[left].Dist < h.items[smallest].Dist {
			smallest = left
		}
		if right < n && h.items[right].Dist < h.items[smallest].Dist {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// searchState holds the shortest-path tree of one single-source search.
// Only touched entries are reset between searches.
type searchState struct {
	Dist     []uint32 // millimeters; inf = not reached
	Pred     []uint32 // predecessor node (noNode for the source)
	PredEdge []uint32 // edge Pred -> node
	Settled  []uint32 // nodes in settle order
	Touched  []uint32
	PQ       MinHeap
}

func newSearchState(n uint32) *searchState {
	dist := make([]uint32, n)
	pred := make([]uint32, n)
	predEdge := make([]uint32, n)
	for i := range dist {
		dist[i] = inf
		pred[i] = noNode
		predEdge[i] = noEdge
	}
	return &searchState{
		Dist:     dist,
		Pred:     pred,
		PredEdge: predEdge,
		Settled:  make([]uint32, 0, 1024),
		Touched:  make([]uint32, 0, 1024),
		PQ:       MinHeap{items: make([]PQItem, 0, 256)},
	}
}

func (s *searchState) reset() {
	for _, node := range s.Touched {
		s.Dist[node] = inf
		s.Pred[node] = noNode
		s.PredEdge[node] = noEdge
	}
	s.Touched = s.Touched[:0]
	s.Settled = s.Settled[:0]
	s.PQ.Reset()
}

func (s *searchState) touch(node, dist, pred, edge uint32) {
	if s.Dist[node] == inf {
		s.Touched = append(s.Touched, node)
	}
	s.Dist[node] = dist
	s.Pred[node] = pred
	s.PredEdge[node] = edge
}

// run performs Dijkstra from src over edge lengths. If target is not noNode
// the search stops once target is settled. Ties keep the first relaxation,
// so the tree is deterministic for a given graph.
func (s *searchState) run(g *graph.Graph, src, target uint32) {
	s.reset()
	s.touch(src, 0, noNode, noEdge)
	s.PQ.Push(src, 0)

	for s.PQ.Len() > 0 {
		item := s.PQ.Pop()
		u, d := item.Node, item.Dist
		if d > s.Dist[u] {
			continue // stale entry
		}
		s.Settled = append(s.Settled, u)
		if u == target {
			return
		}

		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			v := g.Head[e]
			nd := d + g.Length[e]
			if nd < d {
				continue // overflow
			}
			if nd < s.Dist[v] {
				s.touch(v, nd, u, e)
				s.PQ.Push(v, nd)
			}
		}
	}
}
