package service

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"guard_model/pkg/geo"
	"guard_model/pkg/graph"
	"guard_model/pkg/mart"
	osmparser "guard_model/pkg/osm"
	"guard_model/pkg/simulation"
)

var errUnknownPlace = errors.New("unknown place")

type fakeBoundaries struct {
	b     geo.Boundary
	calls int
}

func (f *fakeBoundaries) Boundary(ctx context.Context, place string) (geo.Boundary, error) {
	f.calls++
	if place != "Testville" {
		return geo.Boundary{}, errUnknownPlace
	}
	return f.b, nil
}

type fakePopulation struct {
	pop int64
	err error
}

func (f fakePopulation) Population(ctx context.Context, b geo.Boundary) (int64, error) {
	return f.pop, f.err
}

type fakeGraphs struct {
	g *graph.Graph
}

func (f fakeGraphs) Graph(ctx context.Context, b geo.Boundary) (*graph.Graph, error) {
	return graph.Clip(f.g, b), nil
}

// testPlanner serves a 1 km square of roads around Testville.
func testPlanner(t *testing.T) (*Planner, *fakeBoundaries) {
	t.Helper()
	tags := osmparser.EdgeTags{Highway: []string{"residential"}}
	var edges []osmparser.RawEdge
	for _, pair := range [][2]osm.NodeID{{1, 2}, {2, 3}, {3, 4}, {4, 1}} {
		edges = append(edges,
			osmparser.RawEdge{FromNodeID: pair[0], ToNodeID: pair[1], Length: 1_000_000, Tags: tags},
			osmparser.RawEdge{FromNodeID: pair[1], ToNodeID: pair[0], Length: 1_000_000, Tags: tags})
	}
	g := graph.Build(&osmparser.ParseResult{
		Edges:   edges,
		NodeLat: map[osm.NodeID]float64{1: 1.300, 2: 1.300, 3: 1.309, 4: 1.309},
		NodeLon: map[osm.NodeID]float64{1: 103.800, 2: 103.809, 3: 103.809, 4: 103.800},
	})
	b, err := geo.NewBoundary(orb.Polygon{{
		{103.799, 1.299}, {103.810, 1.299}, {103.810, 1.310}, {103.799, 1.310}, {103.799, 1.299},
	}})
	if err != nil {
		t.Fatal(err)
	}

	boundaries := &fakeBoundaries{b: b}
	return &Planner{
		Boundaries: boundaries,
		Population: fakePopulation{pop: 50_000},
		Graphs:     fakeGraphs{g: g},
	}, boundaries
}

func TestSimulate(t *testing.T) {
	p, _ := testPlanner(t)

	rep, err := p.Simulate(context.Background(), Request{
		Place:              " Testville ",
		Accounts:           25,
		CommercialFraction: 0.1,
		Seed:               7,
	})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	if rep.Place != "Testville" || rep.Population != 50_000 || rep.Seed != 7 {
		t.Errorf("report = %+v", rep)
	}
	if rep.TargetMinutes != mart.ComputeTarget(50_000) {
		t.Errorf("TargetMinutes = %f, want %f", rep.TargetMinutes, mart.ComputeTarget(50_000))
	}
	if rep.GraphNodes != 4 || rep.GraphEdges != 8 {
		t.Errorf("graph = %d nodes, %d edges, want 4, 8", rep.GraphNodes, rep.GraphEdges)
	}
	// Anything on the square is at most 4 minutes away at 30 km/h.
	if rep.Result.Outcome != simulation.Found || rep.Result.Guards != 1 {
		t.Errorf("result = %v with %d guards, want found with 1", rep.Result.Outcome, rep.Result.Guards)
	}
	if rep.Result.CommercialFraction != 0.1 {
		t.Errorf("CommercialFraction = %f, want 0.1", rep.Result.CommercialFraction)
	}
}

func TestSimulateReproducible(t *testing.T) {
	p, _ := testPlanner(t)
	target := 0.8
	req := Request{Place: "Testville", Accounts: 15, Seed: 99, Target: &target}

	a, err := p.Simulate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Simulate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Result.Trials) != len(b.Result.Trials) {
		t.Fatalf("trial counts differ: %d vs %d", len(a.Result.Trials), len(b.Result.Trials))
	}
	for i := range a.Result.Trials {
		if a.Result.Trials[i] != b.Result.Trials[i] {
			t.Errorf("trial %d differs: %+v vs %+v", i, a.Result.Trials[i], b.Result.Trials[i])
		}
	}
	if a.TargetMinutes != 0.8 {
		t.Errorf("TargetMinutes = %f, want override 0.8", a.TargetMinutes)
	}
}

func TestSimulateOverrides(t *testing.T) {
	p, boundaries := testPlanner(t)
	p.Population = nil
	pop := int64(8_810_767)

	rep, err := p.Simulate(context.Background(), Request{
		Boundary:   &boundaries.b,
		Population: &pop,
		Accounts:   5,
		Seed:       1,
	})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if boundaries.calls != 0 {
		t.Errorf("boundary lookups = %d, want 0", boundaries.calls)
	}
	if rep.TargetMinutes != 10 {
		t.Errorf("TargetMinutes = %f, want 10", rep.TargetMinutes)
	}
}

func TestSimulateErrors(t *testing.T) {
	errDB := errors.New("db down")

	tests := []struct {
		name    string
		modify  func(p *Planner)
		req     Request
		wantErr error
	}{
		{"no accounts", nil, Request{Place: "Testville"}, simulation.ErrInvalidRequest},
		{"bad fraction", nil, Request{Place: "Testville", Accounts: 1, CommercialFraction: 2}, simulation.ErrInvalidRequest},
		{"no place", nil, Request{Accounts: 1}, simulation.ErrInvalidRequest},
		{"unknown place", nil, Request{Place: "Atlantis", Accounts: 1}, errUnknownPlace},
		{"no population source", func(p *Planner) { p.Population = nil }, Request{Place: "Testville", Accounts: 1}, simulation.ErrInvalidRequest},
		{"population fails", func(p *Planner) { p.Population = fakePopulation{err: errDB} }, Request{Place: "Testville", Accounts: 1}, errDB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, boundaries := testPlanner(t)
			if tt.modify != nil {
				tt.modify(p)
			}
			_, err := p.Simulate(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.modify == nil && errors.Is(tt.wantErr, simulation.ErrInvalidRequest) && boundaries.calls != 0 {
				t.Errorf("boundary looked up %d times for an invalid request", boundaries.calls)
			}
		})
	}
}
