package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

// square returns the unit square [0,1]x[0,1] with a closed ring.
func square() orb.Polygon {
	return orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
}

func TestNewBoundary(t *testing.T) {
	if _, err := NewBoundary(square()); err != nil {
		t.Fatalf("polygon: %v", err)
	}
	if _, err := NewBoundary(orb.MultiPolygon{square()}); err != nil {
		t.Fatalf("multipolygon: %v", err)
	}

	tests := []struct {
		name string
		g    orb.Geometry
	}{
		{"point", orb.Point{1, 2}},
		{"line", orb.LineString{{0, 0}, {1, 1}}},
		{"empty polygon", orb.Polygon{}},
		{"nil", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBoundary(tt.g)
			if !errors.Is(err, ErrUnsupportedGeometry) {
				t.Errorf("err = %v, want ErrUnsupportedGeometry", err)
			}
		})
	}
}

func TestBoundaryContainsStrict(t *testing.T) {
	b, err := NewBoundary(square())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		p    orb.Point
		want bool
	}{
		{"center", orb.Point{0.5, 0.5}, true},
		{"near corner", orb.Point{0.001, 0.001}, true},
		{"corner", orb.Point{0, 0}, false},
		{"bottom edge", orb.Point{0.5, 0}, false},
		{"right edge", orb.Point{1, 0.3}, false},
		{"outside", orb.Point{1.5, 0.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.ContainsStrict(tt.p); got != tt.want {
				t.Errorf("ContainsStrict(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestBoundaryHole(t *testing.T) {
	poly := orb.Polygon{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
		{{1, 1}, {1, 3}, {3, 3}, {3, 1}, {1, 1}},
	}
	b, err := NewBoundary(poly)
	if err != nil {
		t.Fatal(err)
	}

	if b.ContainsStrict(orb.Point{2, 2}) {
		t.Error("point in hole should not be contained")
	}
	if !b.ContainsStrict(orb.Point{0.5, 2}) {
		t.Error("point between shell and hole should be contained")
	}
	if b.ContainsStrict(orb.Point{1, 2}) {
		t.Error("point on hole edge should not be strictly contained")
	}
}

func TestBoundaryAreaAndBound(t *testing.T) {
	b, err := NewBoundary(orb.MultiPolygon{
		square(),
		{{{2, 0}, {4, 0}, {4, 1}, {2, 1}, {2, 0}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := b.Area(); math.Abs(got-3) > 1e-9 {
		t.Errorf("Area = %f, want 3", got)
	}
	bound := b.Bound()
	if bound.Min != (orb.Point{0, 0}) || bound.Max != (orb.Point{4, 1}) {
		t.Errorf("Bound = %v, want [0 0]-[4 1]", bound)
	}
	if _, ok := b.Geometry().(orb.MultiPolygon); !ok {
		t.Errorf("Geometry() = %T, want orb.MultiPolygon", b.Geometry())
	}
}
