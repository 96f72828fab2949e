package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"guard_model/pkg/graph"
	osmparser "guard_model/pkg/osm"
	"guard_model/pkg/osmnx"
)

func main() {
	input := flag.String("input", "", "Path to .osm.pbf file")
	nodeLink := flag.String("osmnx", "", "Path to an OSMnx node-link JSON export (instead of --input)")
	output := flag.String("output", "graph.bin", "Output binary graph file path")
	bbox := flag.String("bbox", "", "Bounding box filter for --input: minLat,minLng,maxLat,maxLng (e.g. 43.58,-79.64,43.86,-79.11)")
	flag.Parse()

	if (*input == "") == (*nodeLink == "") {
		fmt.Fprintln(os.Stderr, "Usage: preprocess (--input <file.osm.pbf> [--bbox minLat,minLng,maxLat,maxLng] | --osmnx <graph.json>) [--output graph.bin]")
		os.Exit(1)
	}

	var opts osmparser.ParseOptions
	if *bbox != "" {
		var minLat, minLng, maxLat, maxLng float64
		_, err := fmt.Sscanf(*bbox, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng)
		if err != nil {
			log.Fatalf("Invalid bbox format (expected minLat,minLng,maxLat,maxLng): %v", err)
		}
		opts.BBox = osmparser.BBox{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lng [%.4f, %.4f]", minLat, maxLat, minLng, maxLng)
	}

	start := time.Now()

	// Step 1: Parse road data.
	var parseResult *osmparser.ParseResult
	if *input != "" {
		log.Println("Opening OSM file...")
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("Failed to open input file: %v", err)
		}
		defer f.Close()

		log.Println("Parsing OSM data...")
		parseResult, err = osmparser.Parse(context.Background(), f, opts)
		if err != nil {
			log.Fatalf("Failed to parse OSM data: %v", err)
		}
	} else {
		log.Println("Reading node-link graph...")
		f, err := os.Open(*nodeLink)
		if err != nil {
			log.Fatalf("Failed to open input file: %v", err)
		}
		defer f.Close()

		parseResult, err = osmnx.Read(f)
		if err != nil {
			log.Fatalf("Failed to read node-link graph: %v", err)
		}
	}
	log.Printf("Parsed %d edges, %d nodes", len(parseResult.Edges), len(parseResult.NodeLat))

	// Step 2: Build graph.
	log.Println("Building graph...")
	g := graph.Build(parseResult)
	log.Printf("Graph: %d nodes, %d edges", g.NumNodes, g.NumEdges)
	if g.NumNodes == 0 {
		log.Fatal("No drivable roads found")
	}

	// Step 3: Extract largest connected component.
	log.Println("Extracting largest connected component...")
	componentNodes := graph.LargestComponent(g)
	log.Printf("Largest component: %d nodes (%.1f%%)", len(componentNodes), float64(len(componentNodes))/float64(g.NumNodes)*100)
	g = graph.Subgraph(g, componentNodes)
	log.Printf("Filtered graph: %d nodes, %d edges", g.NumNodes, g.NumEdges)

	// Step 4: Serialize to binary.
	log.Printf("Writing binary to %s...", *output)
	if err := graph.WriteBinary(*output, g); err != nil {
		log.Fatalf("Failed to write binary: %v", err)
	}

	info, _ := os.Stat(*output)
	elapsed := time.Since(start)
	log.Printf("Done in %s. Output: %s (%.1f MB)", elapsed.Round(time.Second), *output, float64(info.Size())/(1024*1024))
}
