package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrUnsupportedGeometry is returned when a boundary is not areal.
var ErrUnsupportedGeometry = errors.New("boundary must be a polygon or multipolygon")

// Boundary is an area in geographic coordinates (EPSG:4326, lon/lat order).
// Cities usually come back as a single polygon; a multipolygon is accepted
// for places split by water.
type Boundary struct {
	polys orb.MultiPolygon
}

// NewBoundary wraps a Polygon or MultiPolygon geometry.
func NewBoundary(g orb.Geometry) (Boundary, error) {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return Boundary{}, fmt.Errorf("empty polygon: %w", ErrUnsupportedGeometry)
		}
		return Boundary{polys: orb.MultiPolygon{v}}, nil
	case orb.MultiPolygon:
		if len(v) == 0 {
			return Boundary{}, fmt.Errorf("empty multipolygon: %w", ErrUnsupportedGeometry)
		}
		return Boundary{polys: v}, nil
	case nil:
		return Boundary{}, fmt.Errorf("nil geometry: %w", ErrUnsupportedGeometry)
	default:
		return Boundary{}, fmt.Errorf("%s: %w", g.GeoJSONType(), ErrUnsupportedGeometry)
	}
}

// Geometry returns the boundary as an orb geometry, a Polygon when there is
// only one part.
func (b Boundary) Geometry() orb.Geometry {
	if len(b.polys) == 1 {
		return b.polys[0]
	}
	return b.polys
}

// Bound returns the bounding rectangle.
func (b Boundary) Bound() orb.Bound {
	return b.polys.Bound()
}

// Area returns the planar area in square degrees.
func (b Boundary) Area() float64 {
	var total float64
	for _, p := range b.polys {
		total += math.Abs(planar.Area(p))
	}
	return total
}

// Contains reports whether p is inside the boundary or on its edge.
func (b Boundary) Contains(p orb.Point) bool {
	return planar.MultiPolygonContains(b.polys, p)
}

// ContainsStrict reports whether p lies in the interior: inside, and not on
// any ring edge.
func (b Boundary) ContainsStrict(p orb.Point) bool {
	if !b.Contains(p) {
		return false
	}
	for _, poly := range b.polys {
		for _, ring := range poly {
			if onRing(ring, p) {
				return false
			}
		}
	}
	return true
}

// onRing reports whether p lies on one of the ring's segments.
func onRing(r orb.Ring, p orb.Point) bool {
	n := len(r)
	for i := 0; i < n; i++ {
		a := r[i]
		c := r[(i+1)%n]
		if onSegment(a, c, p) {
			return true
		}
	}
	return false
}

func onSegment(a, c, p orb.Point) bool {
	cross := (c[0]-a[0])*(p[1]-a[1]) - (c[1]-a[1])*(p[0]-a[0])
	if math.Abs(cross) > 1e-12 {
		return false
	}
	return p[0] >= math.Min(a[0], c[0]) && p[0] <= math.Max(a[0], c[0]) &&
		p[1] >= math.Min(a[1], c[1]) && p[1] <= math.Max(a[1], c[1])
}
