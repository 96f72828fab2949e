package graph

import (
	"context"
	"errors"
	"fmt"

	"guard_model/pkg/geo"
	"guard_model/pkg/obs"
)

// ErrNoRoads is returned when a boundary contains no drivable roads.
var ErrNoRoads = errors.New("no roads inside boundary")

// Regional serves city graphs cut from one preloaded regional graph.
// The regional graph is shared by all callers and never modified.
type Regional struct {
	g *Graph
}

// NewRegional wraps a regional graph, typically one read with ReadBinary.
func NewRegional(g *Graph) *Regional {
	return &Regional{g: g}
}

// Graph returns the largest connected part of the road network inside b.
func (r *Regional) Graph(ctx context.Context, b geo.Boundary) (_ *Graph, err error) {
	defer obs.Time(ctx, "graph.Clip")(&err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clipped := Clip(r.g, b)
	if clipped.NumNodes == 0 || clipped.NumEdges == 0 {
		return nil, fmt.Errorf("%w: %d nodes, %d edges", ErrNoRoads, clipped.NumNodes, clipped.NumEdges)
	}
	return clipped, nil
}

// Size returns the node and edge count of the regional graph.
func (r *Regional) Size() (nodes, edges uint32) {
	return r.g.NumNodes, r.g.NumEdges
}
