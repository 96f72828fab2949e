package traffic

import (
	"strconv"
	"strings"

	"guard_model/pkg/graph"
	osmparser "guard_model/pkg/osm"
)

// DefaultSpeedKPH is used when neither maxspeed nor the road class gives a speed.
const DefaultSpeedKPH = 40.0

const kphPerMph = 1.60934

// SpeedTable maps a highway classification to a typical speed in km/h.
var SpeedTable = map[string]float64{
	"motorway":      100,
	"trunk":         80,
	"primary":       60,
	"secondary":     50,
	"tertiary":      40,
	"residential":   30,
	"unclassified":  40,
	"service":       20,
	"living_street": 10,
}

// ResolveSpeed returns the effective speed of an edge in km/h. It never
// fails and always returns a positive value.
func ResolveSpeed(tags osmparser.EdgeTags) float64 {
	if len(tags.MaxSpeed) > 0 {
		if kph, ok := parseMaxSpeed(tags.MaxSpeed[0]); ok {
			return kph
		}
	}
	if len(tags.Highway) > 0 {
		if kph, ok := SpeedTable[tags.Highway[0]]; ok {
			return kph
		}
	}
	return DefaultSpeedKPH
}

// ResolveSpeeds resolves the speed of every edge of g, indexed by edge.
func ResolveSpeeds(g *graph.Graph) []float64 {
	speeds := make([]float64, g.NumEdges)
	for e := range speeds {
		var tags osmparser.EdgeTags
		if e < len(g.Tags) {
			tags = g.Tags[e]
		}
		speeds[e] = ResolveSpeed(tags)
	}
	return speeds
}

// parseMaxSpeed keeps only digits and '.' from a raw maxspeed value, e.g.
// "30 mph" -> 30 * 1.60934, "50" -> 50. Values like "none" or "signals"
// and anything that does not parse to a positive number are rejected.
func parseMaxSpeed(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	if strings.Contains(strings.ToLower(raw), "mph") {
		v *= kphPerMph
	}
	if v <= 0 {
		return 0, false
	}
	return v, true
}
