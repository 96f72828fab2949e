package graph

import (
	"sort"

	"github.com/paulmach/osm"

	osmparser "guard_model/pkg/osm"
)

// Build creates a CSR Graph from parsed OSM edges.
func Build(result *osmparser.ParseResult) *Graph {
	edges := result.Edges
	if len(edges) == 0 {
		return &Graph{}
	}

	// Compact node numbering in order of first appearance.
	nodeSet := make(map[osm.NodeID]uint32)
	var nodeIDs []osm.NodeID

	addNode := func(id osm.NodeID) uint32 {
		if idx, ok := nodeSet[id]; ok {
			return idx
		}
		idx := uint32(len(nodeIDs))
		nodeSet[id] = idx
		nodeIDs = append(nodeIDs, id)
		return idx
	}

	type compactEdge struct {
		from   uint32
		to     uint32
		length uint32
		tags   osmparser.EdgeTags
	}

	compact := make([]compactEdge, len(edges))
	for i, e := range edges {
		compact[i] = compactEdge{
			from:   addNode(e.FromNodeID),
			to:     addNode(e.ToNodeID),
			length: e.Length,
			tags:   e.Tags,
		}
	}
	numNodes := uint32(len(nodeIDs))

	// Stable so that parallel edges keep their input order.
	sort.SliceStable(compact, func(i, j int) bool {
		if compact[i].from != compact[j].from {
			return compact[i].from < compact[j].from
		}
		return compact[i].to < compact[j].to
	})

	numEdges := uint32(len(compact))
	firstOut := make([]uint32, numNodes+1)
	head := make([]uint32, numEdges)
	length := make([]uint32, numEdges)
	tags := make([]osmparser.EdgeTags, numEdges)

	for i, e := range compact {
		head[i] = e.to
		length[i] = e.length
		tags[i] = e.tags
		firstOut[e.from+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		firstOut[i] += firstOut[i-1]
	}

	nodeLat := make([]float64, numNodes)
	nodeLon := make([]float64, numNodes)
	nodeID := make([]int64, numNodes)
	for idx, id := range nodeIDs {
		nodeLat[idx] = result.NodeLat[id]
		nodeLon[idx] = result.NodeLon[id]
		nodeID[idx] = int64(id)
	}

	return &Graph{
		NumNodes: numNodes,
		NumEdges: numEdges,
		FirstOut: firstOut,
		Head:     head,
		Length:   length,
		NodeLat:  nodeLat,
		NodeLon:  nodeLon,
		NodeID:   nodeID,
		Tags:     tags,
	}
}
