package traffic

import (
	"strings"

	"guard_model/pkg/graph"
)

// Intersection delays in seconds.
const (
	SignalDelaySec = 15.0
	StopDelaySec   = 15.0
	OtherDelaySec  = 5.0
)

// DelayMap holds the control delay of each node in seconds, indexed by node.
type DelayMap []float64

// At returns the delay at node u. Nodes outside the map have no delay.
func (d DelayMap) At(u uint32) float64 {
	if int(u) >= len(d) {
		return 0
	}
	return d[u]
}

// IntersectionDelays derives a delay for every node from the traffic-control
// tags on its outgoing edges.
func IntersectionDelays(g *graph.Graph) DelayMap {
	delays := make(DelayMap, g.NumNodes)
	controls := make(map[string]struct{}, 4)

	for u := uint32(0); u < g.NumNodes; u++ {
		clear(controls)
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			if int(e) >= len(g.Tags) {
				break
			}
			if c := g.Tags[e].TrafficControl; c != "" {
				controls[strings.ToLower(c)] = struct{}{}
			}
		}
		delays[u] = controlDelay(controls)
	}
	return delays
}

// controlDelay picks the delay for a set of control tags: signals first, then
// stop signs, then any other control.
func controlDelay(controls map[string]struct{}) float64 {
	if _, ok := controls["traffic_signals"]; ok {
		return SignalDelaySec
	}
	if _, ok := controls["stop"]; ok {
		return StopDelaySec
	}
	if len(controls) > 0 {
		return OtherDelaySec
	}
	return 0
}
