// Package simulation searches for the number of guards needed to bring the
// median response time to the accounts of a city under its target.
package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"guard_model/pkg/geo"
	"guard_model/pkg/routing"
	"guard_model/pkg/sample"
	"guard_model/pkg/traffic"
)

// NodeSampler draws graph nodes at random locations.
type NodeSampler interface {
	SampleNodes(n int) []uint32
}

// SearchGuardCount tries g = 1, 2, ... MaxGuards guards and returns the first
// count whose median account response time is at most targetMinutes.
//
// Accounts are sampled once and kept for the whole search; guards are
// sampled afresh for every count, so the median is not monotonic in g and
// the first success is reported as is. Each account is served by the guard
// with the smallest travel time. ctx is checked between counts.
func SearchGuardCount(
	ctx context.Context,
	net *traffic.Network,
	delays traffic.DelayMap,
	sampler NodeSampler,
	accounts int,
	targetMinutes float64,
) (Result, error) {
	if accounts <= 0 {
		return Result{}, fmt.Errorf("%w: accounts must be positive, got %d", ErrInvalidRequest, accounts)
	}

	est := routing.NewEstimator(net, delays)
	accountNodes := sampler.SampleNodes(accounts)

	res := Result{
		Outcome:       Exhausted,
		TargetMinutes: targetMinutes,
		Accounts:      accounts,
		Trials:        make([]Trial, 0, 16),
	}

	best := make([]float64, len(accountNodes))
	times := make([]float64, len(accountNodes))
	seen := make(map[uint32]struct{})

	for g := 1; g <= MaxGuards; g++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		for i := range best {
			best[i] = math.Inf(1)
		}
		clear(seen)

		for _, guard := range sampler.SampleNodes(g) {
			// Two guards on the same node serve identically.
			if _, ok := seen[guard]; ok {
				continue
			}
			seen[guard] = struct{}{}

			est.FromSource(guard, accountNodes, times)
			res.PathSearches++
			for i, t := range times {
				best[i] = min(best[i], t)
			}
		}

		median := Median(best)
		res.Trials = append(res.Trials, Trial{Guards: g, MedianMinutes: median})

		if median <= targetMinutes {
			res.Outcome = Found
			res.Guards = g
			res.MedianMinutes = median
			return res, nil
		}
	}

	return res, nil
}

// Run validates req, samples inside boundary with rng and searches for the
// guard count.
func Run(
	ctx context.Context,
	net *traffic.Network,
	delays traffic.DelayMap,
	boundary geo.Boundary,
	rng *rand.Rand,
	req Request,
) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	sampler, err := sample.New(boundary, net.Graph, rng)
	if err != nil {
		return Result{}, fmt.Errorf("create sampler: %w", err)
	}

	res, err := SearchGuardCount(ctx, net, delays, sampler, req.Accounts, req.TargetMinutes)
	res.CommercialFraction = req.CommercialFraction
	return res, err
}
