package platform

import (
	"os"
	"path/filepath"
	"testing"

	"guard_model/pkg/graph"
	osmparser "guard_model/pkg/osm"

	"github.com/paulmach/osm"
)

func TestLoadGraphBinary(t *testing.T) {
	g := graph.Build(&osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 1, ToNodeID: 2, Length: 1000},
			{FromNodeID: 2, ToNodeID: 1, Length: 1000},
		},
		NodeLat: map[osm.NodeID]float64{1: 1.3, 2: 1.31},
		NodeLon: map[osm.NodeID]float64{1: 103.8, 2: 103.8},
	})
	path := filepath.Join(t.TempDir(), "graph.bin")
	if err := graph.WriteBinary(path, g); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}

	got, err := LoadGraph(path)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	if got.NumNodes != 2 || got.NumEdges != 2 {
		t.Errorf("graph = %d nodes, %d edges, want 2, 2", got.NumNodes, got.NumEdges)
	}
}

func TestLoadGraphNodeLink(t *testing.T) {
	doc := `{
		"directed": true,
		"nodes": [
			{"id": 1, "x": 103.80, "y": 1.30},
			{"id": 2, "x": 103.80, "y": 1.31},
			{"id": 3, "x": 104.00, "y": 1.50},
			{"id": 4, "x": 104.00, "y": 1.51},
			{"id": 5, "x": 103.81, "y": 1.31}
		],
		"links": [
			{"source": 1, "target": 2, "length": 1112, "highway": "residential"},
			{"source": 2, "target": 1, "length": 1112, "highway": "residential"},
			{"source": 2, "target": 5, "length": 1112},
			{"source": 3, "target": 4, "length": 1112}
		]
	}`
	path := filepath.Join(t.TempDir(), "city.JSON")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := LoadGraph(path)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	// Only the larger component survives.
	if g.NumNodes != 3 || g.NumEdges != 3 {
		t.Errorf("graph = %d nodes, %d edges, want 3, 3", g.NumNodes, g.NumEdges)
	}
}

func TestLoadGraphMissing(t *testing.T) {
	if _, err := LoadGraph(filepath.Join(t.TempDir(), "nope.bin")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGetenv(t *testing.T) {
	t.Setenv("GUARD_TEST_VALUE", "  ")
	if got := Getenv("GUARD_TEST_VALUE", "def"); got != "def" {
		t.Errorf("blank value = %q, want def", got)
	}
	t.Setenv("GUARD_TEST_VALUE", "set")
	if got := Getenv("GUARD_TEST_VALUE", "def"); got != "set" {
		t.Errorf("Getenv = %q, want set", got)
	}
}
