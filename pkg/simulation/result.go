package simulation

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// MaxGuards is the largest guard count tried before giving up.
const MaxGuards = 500

// ErrInvalidRequest is returned for requests that cannot be simulated.
var ErrInvalidRequest = errors.New("invalid simulation request")

// Request describes one simulation run.
type Request struct {
	Accounts int
	// CommercialFraction is the share of accounts that are commercial. It is
	// validated and reported but does not affect where accounts are placed.
	CommercialFraction float64
	TargetMinutes      float64
}

// Validate reports whether the request can be simulated.
func (r Request) Validate() error {
	if r.Accounts <= 0 {
		return fmt.Errorf("%w: accounts must be positive, got %d", ErrInvalidRequest, r.Accounts)
	}
	if math.IsNaN(r.CommercialFraction) || r.CommercialFraction < 0 || r.CommercialFraction > 1 {
		return fmt.Errorf("%w: commercial fraction must be in [0, 1], got %v", ErrInvalidRequest, r.CommercialFraction)
	}
	if math.IsNaN(r.TargetMinutes) || r.TargetMinutes <= 0 {
		return fmt.Errorf("%w: target minutes must be positive, got %v", ErrInvalidRequest, r.TargetMinutes)
	}
	return nil
}

// Outcome tells whether a guard count meeting the target was found.
type Outcome int

const (
	// Found means Result.Guards guards met the target.
	Found Outcome = iota + 1
	// Exhausted means no count up to MaxGuards met the target.
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Trial is the median reached with a given number of guards. The median is
// +Inf when at least half of the accounts could not be reached.
type Trial struct {
	Guards        int
	MedianMinutes float64
}

// Result is the outcome of a guard-count search. Guards and MedianMinutes
// are only meaningful when Outcome is Found.
type Result struct {
	Outcome       Outcome
	Guards        int
	MedianMinutes float64

	TargetMinutes      float64
	Accounts           int
	CommercialFraction float64

	Trials       []Trial
	PathSearches int // single-source searches run
}

// Median returns the median of values, averaging the two middle values for
// an even count. values is reordered. +Inf entries sort last and propagate
// when they reach the middle. Returns NaN for no values.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	slices.Sort(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
