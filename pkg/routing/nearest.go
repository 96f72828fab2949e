package routing

import (
	"errors"
	"math"

	"github.com/tidwall/rtree"

	"guard_model/pkg/graph"
)

// ErrEmptyIndex is returned when the index has no nodes to snap to.
var ErrEmptyIndex = errors.New("nearest index has no nodes")

// NearestIndex finds the graph node closest to a coordinate.
// Coordinates are indexed in an equirectangular projection around the
// graph's mean latitude, so nearest by index is nearest on the ground for
// city-sized areas.
type NearestIndex struct {
	tr     rtree.RTreeG[uint32]
	cosLat float64
}

// NewNearestIndex indexes every node of g.
func NewNearestIndex(g *graph.Graph) *NearestIndex {
	var sumLat float64
	for _, lat := range g.NodeLat {
		sumLat += lat
	}
	cosLat := 1.0
	if g.NumNodes > 0 {
		cosLat = math.Cos(sumLat / float64(g.NumNodes) * math.Pi / 180)
	}

	idx := &NearestIndex{cosLat: cosLat}
	for u := uint32(0); u < g.NumNodes; u++ {
		p := idx.project(g.NodeLat[u], g.NodeLon[u])
		idx.tr.Insert(p, p, u)
	}
	return idx
}

func (idx *NearestIndex) project(lat, lon float64) [2]float64 {
	return [2]float64{lon * idx.cosLat, lat}
}

// Nearest returns the node closest to (lat, lon).
func (idx *NearestIndex) Nearest(lat, lon float64) (uint32, error) {
	q := idx.project(lat, lon)

	node, found := uint32(0), false
	idx.tr.Nearby(
		func(min, max [2]float64, _ uint32, _ bool) float64 {
			return boxDistSq(q, min, max)
		},
		func(_, _ [2]float64, data uint32, _ float64) bool {
			node, found = data, true
			return false
		},
	)
	if !found {
		return 0, ErrEmptyIndex
	}
	return node, nil
}

// Len returns the number of indexed nodes.
func (idx *NearestIndex) Len() int {
	return idx.tr.Len()
}

// boxDistSq is the squared distance from p to the rectangle [min, max].
func boxDistSq(p, min, max [2]float64) float64 {
	var d float64
	for i := range 2 {
		switch {
		case p[i] < min[i]:
			d += (min[i] - p[i]) * (min[i] - p[i])
		case p[i] > max[i]:
			d += (p[i] - max[i]) * (p[i] - max[i])
		}
	}
	return d
}
