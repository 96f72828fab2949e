// Package sample draws random locations inside a city boundary.
package sample

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/paulmach/orb"

	"guard_model/pkg/geo"
	"guard_model/pkg/graph"
	"guard_model/pkg/routing"
)

// ErrEmptyBoundary is returned for a boundary with no interior to sample from.
var ErrEmptyBoundary = errors.New("boundary has zero area")

// Sampler draws uniformly distributed points strictly inside a boundary and
// maps them onto the nearest road graph node.
//
// A Sampler owns its random source and is not safe for concurrent use.
type Sampler struct {
	boundary geo.Boundary
	bound    orb.Bound
	index    *routing.NearestIndex
	rng      *rand.Rand
}

// New creates a sampler over boundary snapping to the nodes of g.
func New(boundary geo.Boundary, g *graph.Graph, rng *rand.Rand) (*Sampler, error) {
	if boundary.Area() <= 0 {
		return nil, ErrEmptyBoundary
	}
	if g.NumNodes == 0 {
		return nil, fmt.Errorf("sampler: %w", routing.ErrEmptyIndex)
	}
	return &Sampler{
		boundary: boundary,
		bound:    boundary.Bound(),
		index:    routing.NewNearestIndex(g),
		rng:      rng,
	}, nil
}

// SamplePoints returns n points strictly inside the boundary, drawn by
// rejection from its bounding rectangle.
func (s *Sampler) SamplePoints(n int) []orb.Point {
	points := make([]orb.Point, 0, n)
	for len(points) < n {
		p := orb.Point{
			s.bound.Min.Lon() + s.rng.Float64()*(s.bound.Max.Lon()-s.bound.Min.Lon()),
			s.bound.Min.Lat() + s.rng.Float64()*(s.bound.Max.Lat()-s.bound.Min.Lat()),
		}
		if s.boundary.ContainsStrict(p) {
			points = append(points, p)
		}
	}
	return points
}

// SampleNodes returns the nearest graph node of each of n sampled points.
// Several points may map to the same node.
func (s *Sampler) SampleNodes(n int) []uint32 {
	points := s.SamplePoints(n)
	nodes := make([]uint32, len(points))
	for i, p := range points {
		// The index is non-empty, checked in New.
		nodes[i], _ = s.index.Nearest(p.Lat(), p.Lon())
	}
	return nodes
}
