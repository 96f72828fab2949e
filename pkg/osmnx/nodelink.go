// Package osmnx reads road graphs exported by OSMnx as networkx node-link JSON.
package osmnx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"

	osmparser "guard_model/pkg/osm"
)

// stringList decodes an attribute OSMnx stores either as a single value or
// as a list when merged ways disagree, e.g. "30 mph" or ["30 mph", "25 mph"].
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = nil
		return nil
	case data[0] == '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make([]string, 0, len(raw))
		for _, r := range raw {
			v, err := scalar(r)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		*s = out
		return nil
	default:
		v, err := scalar(data)
		if err != nil {
			return err
		}
		*s = []string{v}
		return nil
	}
}

// scalar renders a JSON string or number as a string.
func scalar(data json.RawMessage) (string, error) {
	if len(data) > 0 && data[0] == '"' {
		var v string
		err := json.Unmarshal(data, &v)
		return v, err
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("unsupported attribute value %s", data)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

type node struct {
	ID      int64      `json:"id"`
	X       float64    `json:"x"`
	Y       float64    `json:"y"`
	Highway stringList `json:"highway"`
}

type edge struct {
	Source         int64      `json:"source"`
	Target         int64      `json:"target"`
	Length         *float64   `json:"length"`
	Highway        stringList `json:"highway"`
	MaxSpeed       stringList `json:"maxspeed"`
	TrafficControl stringList `json:"traffic_control"`
}

type document struct {
	Directed bool   `json:"directed"`
	Nodes    []node `json:"nodes"`
	Links    []edge `json:"links"`
	Edges    []edge `json:"edges"` // networkx >= 3.4 name for links
}

// nodeControls are node highway values that mark an intersection control.
var nodeControls = map[string]bool{
	"traffic_signals": true,
	"stop":            true,
	"give_way":        true,
	"mini_roundabout": true,
}

// Read decodes a node-link document into directed edges. Edges of an
// undirected export are added in both directions. An edge without a length
// attribute gets the great-circle distance between its endpoints. An edge
// without a traffic_control attribute takes the control of its source node.
func Read(r io.Reader) (*osmparser.ParseResult, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode node-link json: %w", err)
	}

	result := &osmparser.ParseResult{
		NodeLat: make(map[osm.NodeID]float64, len(doc.Nodes)),
		NodeLon: make(map[osm.NodeID]float64, len(doc.Nodes)),
	}
	controls := make(map[int64]string)
	for _, n := range doc.Nodes {
		id := osm.NodeID(n.ID)
		result.NodeLat[id] = n.Y
		result.NodeLon[id] = n.X
		if len(n.Highway) > 0 && nodeControls[n.Highway[0]] {
			controls[n.ID] = n.Highway[0]
		}
	}

	links := doc.Links
	if len(links) == 0 {
		links = doc.Edges
	}

	skipped := 0
	for _, e := range links {
		from, to := osm.NodeID(e.Source), osm.NodeID(e.Target)
		fromLat, ok1 := result.NodeLat[from]
		toLat, ok2 := result.NodeLat[to]
		if !ok1 || !ok2 {
			skipped++
			continue
		}

		var meters float64
		if e.Length != nil {
			meters = *e.Length
		} else {
			meters = geo.DistanceHaversine(
				orb.Point{result.NodeLon[from], fromLat},
				orb.Point{result.NodeLon[to], toLat},
			)
		}
		if meters < 0 || math.IsNaN(meters) || meters*1000 > math.MaxUint32 {
			skipped++
			continue
		}
		length := uint32(math.Round(meters * 1000))

		tags := osmparser.EdgeTags{
			MaxSpeed: []string(e.MaxSpeed),
			Highway:  []string(e.Highway),
		}

		fwd := tags
		fwd.TrafficControl = edgeControl(e.TrafficControl, controls[e.Source])
		result.Edges = append(result.Edges, osmparser.RawEdge{FromNodeID: from, ToNodeID: to, Length: length, Tags: fwd})

		if !doc.Directed {
			bwd := tags
			bwd.TrafficControl = edgeControl(e.TrafficControl, controls[e.Target])
			result.Edges = append(result.Edges, osmparser.RawEdge{FromNodeID: to, ToNodeID: from, Length: length, Tags: bwd})
		}
	}

	if skipped > 0 {
		log.Printf("Skipped %d edges with unknown endpoints or invalid length", skipped)
	}
	return result, nil
}

func edgeControl(attr stringList, nodeControl string) string {
	if len(attr) > 0 {
		return attr[0]
	}
	return nodeControl
}
