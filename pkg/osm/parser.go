package osm

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
)

// EdgeTags is the raw road metadata carried by a directed edge.
// Values are kept as found in the source data; resolving them into speeds
// and delays happens later, per simulation.
type EdgeTags struct {
	MaxSpeed       []string // raw maxspeed values, possibly several ("50;30")
	Highway        []string // highway classification(s)
	TrafficControl string   // control at the edge's source node, "" if none
}

// RawEdge represents a directed edge parsed from OSM data.
type RawEdge struct {
	FromNodeID osm.NodeID
	ToNodeID   osm.NodeID
	Length     uint32 // millimeters
	Tags       EdgeTags
}

// ParseResult holds the output of parsing an OSM PBF file.
type ParseResult struct {
	Edges   []RawEdge
	NodeLat map[osm.NodeID]float64
	NodeLon map[osm.NodeID]float64
}

// driveHighways lists highway tag values that make up the drive network.
var driveHighways = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
	"road":           true,
}

// isDrivable reports whether a way belongs to the drive network.
func isDrivable(tags osm.Tags) bool {
	if !driveHighways[tags.Find("highway")] {
		return false
	}
	if tags.Find("area") == "yes" {
		return false
	}
	switch tags.Find("access") {
	case "no", "private":
		return false
	}
	if tags.Find("motor_vehicle") == "no" || tags.Find("motorcar") == "no" {
		return false
	}
	return true
}

// directionFlags returns (forward, backward) based on highway type and oneway tags.
func directionFlags(tags osm.Tags) (forward, backward bool) {
	forward, backward = true, true

	hw := tags.Find("highway")
	if hw == "motorway" || hw == "motorway_link" || tags.Find("junction") == "roundabout" {
		backward = false
	}

	switch tags.Find("oneway") {
	case "yes", "true", "1":
		forward, backward = true, false
	case "-1", "reverse":
		forward, backward = false, true
	case "no":
		forward, backward = true, true
	case "reversible", "alternating":
		// Time-dependent direction; not routable.
		forward, backward = false, false
	}

	return forward, backward
}

// splitValues splits a semicolon separated OSM tag value into its parts.
func splitValues(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ";")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// speedValues returns the raw maxspeed values for one travel direction.
// Directional tags win over the plain maxspeed tag.
func speedValues(tags osm.Tags, forward bool) []string {
	key := "maxspeed:backward"
	if forward {
		key = "maxspeed:forward"
	}
	if v := splitValues(tags.Find(key)); len(v) > 0 {
		return v
	}
	return splitValues(tags.Find("maxspeed"))
}

// controlTag returns the traffic control found on a node, or "".
func controlTag(tags osm.Tags) string {
	switch hw := tags.Find("highway"); hw {
	case "traffic_signals", "stop", "give_way", "mini_roundabout":
		return hw
	}
	if tags.Find("crossing") == "traffic_signals" {
		return "traffic_signals"
	}
	return ""
}

// wayInfo holds parsed way data collected during Pass 1.
type wayInfo struct {
	NodeIDs  []osm.NodeID
	Forward  bool
	Backward bool
	Tags     osm.Tags
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only edges with both endpoints inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	BBox BBox // if non-zero, filter edges to this bounding box
}

// Parse reads an OSM PBF file and returns the directed edges of the drive network.
// The reader is consumed twice (seeks back to start for the second pass),
// so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ...ParseOptions) (*ParseResult, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	useBBox := !opt.BBox.IsZero()

	// Pass 1: ways.
	referencedNodes := make(map[osm.NodeID]struct{})
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok || len(w.Nodes) < 2 || !isDrivable(w.Tags) {
			continue
		}

		fwd, bwd := directionFlags(w.Tags)
		if !fwd && !bwd {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
			referencedNodes[wn.ID] = struct{}{}
		}

		ways = append(ways, wayInfo{
			NodeIDs:  nodeIDs,
			Forward:  fwd,
			Backward: bwd,
			Tags:     w.Tags,
		})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 1 complete: %d ways, %d referenced nodes", len(ways), len(referencedNodes))

	// Pass 2: coordinates and traffic controls of referenced nodes.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	nodeLat := make(map[osm.NodeID]float64, len(referencedNodes))
	nodeLon := make(map[osm.NodeID]float64, len(referencedNodes))
	controls := make(map[osm.NodeID]string)

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}

		nodeLat[n.ID] = n.Lat
		nodeLon[n.ID] = n.Lon
		if c := controlTag(n.Tags); c != "" {
			controls[n.ID] = c
		}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 2 complete: %d node coordinates, %d controlled intersections", len(nodeLat), len(controls))

	edges, skipped, filtered := buildEdges(ways, nodeLat, nodeLon, controls, opt.BBox, useBBox)

	if skipped > 0 {
		log.Printf("Warning: skipped %d edges due to missing node coordinates", skipped)
	}
	if filtered > 0 {
		log.Printf("Filtered %d edges outside bounding box", filtered)
	}
	log.Printf("Built %d directed edges", len(edges))

	return &ParseResult{
		Edges:   edges,
		NodeLat: nodeLat,
		NodeLon: nodeLon,
	}, nil
}

// buildEdges splits ways into directed edges between consecutive nodes.
func buildEdges(
	ways []wayInfo,
	nodeLat, nodeLon map[osm.NodeID]float64,
	controls map[osm.NodeID]string,
	bbox BBox,
	useBBox bool,
) (edges []RawEdge, skipped, filtered int) {
	for _, w := range ways {
		highway := splitValues(w.Tags.Find("highway"))
		fwdSpeed := speedValues(w.Tags, true)
		bwdSpeed := speedValues(w.Tags, false)

		for i := 0; i < len(w.NodeIDs)-1; i++ {
			fromID := w.NodeIDs[i]
			toID := w.NodeIDs[i+1]

			fromLat, fromOk := nodeLat[fromID]
			toLat, toOk := nodeLat[toID]
			if !fromOk || !toOk {
				skipped++
				continue
			}
			fromLon := nodeLon[fromID]
			toLon := nodeLon[toID]

			if useBBox && (!bbox.Contains(fromLat, fromLon) || !bbox.Contains(toLat, toLon)) {
				filtered++
				continue
			}

			dist := geo.DistanceHaversine(orb.Point{fromLon, fromLat}, orb.Point{toLon, toLat})
			length := uint32(math.Round(dist * 1000))

			if w.Forward {
				edges = append(edges, RawEdge{
					FromNodeID: fromID,
					ToNodeID:   toID,
					Length:     length,
					Tags: EdgeTags{
						MaxSpeed:       fwdSpeed,
						Highway:        highway,
						TrafficControl: controls[fromID],
					},
				})
			}
			if w.Backward {
				edges = append(edges, RawEdge{
					FromNodeID: toID,
					ToNodeID:   fromID,
					Length:     length,
					Tags: EdgeTags{
						MaxSpeed:       bwdSpeed,
						Highway:        highway,
						TrafficControl: controls[toID],
					},
				})
			}
		}
	}
	return edges, skipped, filtered
}
