// Package service runs guard-count simulations for a named place: boundary
// lookup, population, road graph, target and search.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"guard_model/pkg/geo"
	"guard_model/pkg/graph"
	"guard_model/pkg/mart"
	"guard_model/pkg/metrics"
	"guard_model/pkg/obs"
	"guard_model/pkg/simulation"
	"guard_model/pkg/traffic"
)

// BoundaryProvider resolves a place name to its boundary.
type BoundaryProvider interface {
	Boundary(ctx context.Context, place string) (geo.Boundary, error)
}

// PopulationProvider counts the people living inside a boundary.
type PopulationProvider interface {
	Population(ctx context.Context, b geo.Boundary) (int64, error)
}

// GraphProvider returns the drivable road graph inside a boundary.
type GraphProvider interface {
	Graph(ctx context.Context, b geo.Boundary) (*graph.Graph, error)
}

// Request asks for one simulation. Either Place or Boundary must be set.
type Request struct {
	Place    string
	Boundary *geo.Boundary // used instead of looking up Place

	Population *int64   // overrides the population lookup
	Target     *float64 // overrides the population-derived target, minutes

	Accounts           int
	CommercialFraction float64
	Seed               uint64 // 0 picks a random seed, reported back
}

// Report is the outcome of a simulation with the inputs that produced it.
type Report struct {
	Place         string
	Population    int64
	TargetMinutes float64
	GraphNodes    uint32
	GraphEdges    uint32
	Seed          uint64
	Result        simulation.Result
	Elapsed       time.Duration
}

// Planner wires the collaborators of a simulation. Population may be nil
// when every request carries a population override.
type Planner struct {
	Boundaries BoundaryProvider
	Population PopulationProvider
	Graphs     GraphProvider
	Metrics    *metrics.Collector
}

// Simulate resolves the inputs of req and runs the guard-count search.
// Population and the road graph are fetched concurrently.
func (p *Planner) Simulate(ctx context.Context, req Request) (_ Report, err error) {
	defer obs.Time(ctx, "planner.Simulate")(&err)

	// Catch bad parameters before any lookup. The target is checked once known.
	if err := (simulation.Request{
		Accounts:           req.Accounts,
		CommercialFraction: req.CommercialFraction,
		TargetMinutes:      1,
	}).Validate(); err != nil {
		return Report{}, err
	}

	place := strings.TrimSpace(req.Place)
	var boundary geo.Boundary
	switch {
	case req.Boundary != nil:
		boundary = *req.Boundary
	case place == "":
		return Report{}, fmt.Errorf("%w: place or boundary is required", simulation.ErrInvalidRequest)
	case p.Boundaries == nil:
		return Report{}, errors.New("planner: no boundary provider configured")
	default:
		if boundary, err = p.Boundaries.Boundary(ctx, place); err != nil {
			return Report{}, fmt.Errorf("boundary of %q: %w", place, err)
		}
	}

	var (
		population int64
		g          *graph.Graph
	)
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if req.Population != nil {
			population = *req.Population
			return nil
		}
		if p.Population == nil {
			return fmt.Errorf("%w: population is required without a population source", simulation.ErrInvalidRequest)
		}
		pop, err := p.Population.Population(egctx, boundary)
		if err != nil {
			return fmt.Errorf("population: %w", err)
		}
		population = pop
		return nil
	})
	eg.Go(func() error {
		clipped, err := p.Graphs.Graph(egctx, boundary)
		if err != nil {
			return fmt.Errorf("road graph: %w", err)
		}
		g = clipped
		return nil
	})
	if err := eg.Wait(); err != nil {
		return Report{}, err
	}

	target := mart.ComputeTarget(population)
	if req.Target != nil {
		target = *req.Target
	}

	seed := req.Seed
	if seed == 0 {
		seed = rand.Uint64() | 1
	}

	net, delays := traffic.Prepare(g)
	log.Printf("req_id=%s Simulating %q: population=%d target=%.2fmin nodes=%d edges=%d accounts=%d seed=%d",
		obs.RequestID(ctx), place, population, target, g.NumNodes, g.NumEdges, req.Accounts, seed)

	start := time.Now()
	res, err := simulation.Run(ctx, net, delays, boundary, NewRand(seed), simulation.Request{
		Accounts:           req.Accounts,
		CommercialFraction: req.CommercialFraction,
		TargetMinutes:      target,
	})
	elapsed := time.Since(start)
	if err != nil {
		return Report{}, fmt.Errorf("simulate: %w", err)
	}
	p.Metrics.ObserveSimulation(res.Outcome.String(), elapsed, len(res.Trials), res.PathSearches)

	return Report{
		Place:         place,
		Population:    population,
		TargetMinutes: target,
		GraphNodes:    g.NumNodes,
		GraphEdges:    g.NumEdges,
		Seed:          seed,
		Result:        res,
		Elapsed:       elapsed,
	}, nil
}

// NewRand returns the random source used for a given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
