package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"guard_model/pkg/geo"
	"guard_model/pkg/graph"
	"guard_model/pkg/nominatim"
	"guard_model/pkg/obs"
	"guard_model/pkg/platform"
	"guard_model/pkg/population"
	"guard_model/pkg/service"
	"guard_model/pkg/simulation"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	place := flag.String("place", "", "Place to look up, e.g. \"Toronto, Canada\"")
	boundaryPath := flag.String("boundary", "", "GeoJSON file with the boundary polygon (instead of a Nominatim lookup)")
	graphPath := flag.String("graph", platform.Getenv("GRAPH_PATH", "graph.bin"), "Path to a preprocessed graph binary or OSMnx node-link JSON")
	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "Postgres URL with census blocks")
	popTable := flag.String("population-table", platform.Getenv("POPULATION_TABLE", population.DefaultTable), "Census block table")
	nominatimURL := flag.String("nominatim-url", platform.Getenv("NOMINATIM_URL", nominatim.DefaultBaseURL), "Nominatim search endpoint")
	userAgent := flag.String("user-agent", platform.Getenv("NOMINATIM_USER_AGENT", "guard-model/1.0"), "User-Agent sent to Nominatim")
	countryCodes := flag.String("country-codes", platform.Getenv("NOMINATIM_COUNTRY_CODES", nominatim.DefaultCountryCodes), "Restrict place lookups to these countries (\"*\" for any)")
	pop := flag.Int64("population", -1, "Population override (skips the census lookup)")
	target := flag.Float64("target", 0, "Target median response time in minutes (0 derives it from the population)")
	accounts := flag.Int("accounts", 0, "Number of accounts to place")
	commercial := flag.Float64("commercial", 0, "Fraction of commercial accounts, in [0, 1]")
	seed := flag.Uint64("seed", 0, "Random seed (0 picks one)")
	verbose := flag.Bool("v", false, "Print every guard count tried")
	flag.Parse()

	if (*place == "" && *boundaryPath == "") || *accounts < 1 {
		fmt.Fprintln(os.Stderr, "Usage: simulate (--place <name> | --boundary <file.geojson>) --accounts N [--commercial F] [--population P] [--target M] [--seed S] [--graph graph.bin]")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = obs.WithRequestID(ctx, obs.NewRequestID())

	log.Printf("Loading graph from %s...", *graphPath)
	g, err := platform.LoadGraph(*graphPath)
	if err != nil {
		log.Fatalf("Failed to load graph: %v", err)
	}
	log.Printf("Loaded: %d nodes, %d edges", g.NumNodes, g.NumEdges)

	planner := &service.Planner{
		Boundaries: nominatim.New(nominatim.Config{
			BaseURL:      *nominatimURL,
			UserAgent:    *userAgent,
			CountryCodes: *countryCodes,
		}),
		Graphs:     graph.NewRegional(g),
	}
	if *databaseURL != "" {
		db, err := platform.OpenDB(ctx, *databaseURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		planner.Population = population.NewPostGIS(db, *popTable)
	}

	req := service.Request{
		Place:              *place,
		Accounts:           *accounts,
		CommercialFraction: *commercial,
		Seed:               *seed,
	}
	if *boundaryPath != "" {
		b, err := readBoundary(*boundaryPath)
		if err != nil {
			log.Fatalf("Failed to read boundary: %v", err)
		}
		req.Boundary = &b
		if req.Place == "" {
			req.Place = *boundaryPath
		}
	}
	if *pop >= 0 {
		req.Population = pop
	}
	if *target > 0 {
		req.Target = target
	}

	rep, err := planner.Simulate(ctx, req)
	if err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}
	printReport(rep, *verbose)
}

// readBoundary reads a polygon from a GeoJSON geometry, feature or feature
// collection. Only the first feature of a collection is used.
func readBoundary(path string) (geo.Boundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return geo.Boundary{}, err
	}

	var g orb.Geometry
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		g = fc.Features[0].Geometry
	} else if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		g = f.Geometry
	} else {
		geom, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return geo.Boundary{}, fmt.Errorf("parse %s: %w", path, err)
		}
		g = geom.Geometry()
	}
	return geo.NewBoundary(g)
}

func printReport(rep service.Report, verbose bool) {
	res := rep.Result
	fmt.Printf("Place:           %s\n", rep.Place)
	fmt.Printf("Population:      %d\n", rep.Population)
	fmt.Printf("Target:          %.2f minutes\n", rep.TargetMinutes)
	fmt.Printf("Road graph:      %d nodes, %d edges\n", rep.GraphNodes, rep.GraphEdges)
	fmt.Printf("Accounts:        %d (%.0f%% commercial)\n", res.Accounts, res.CommercialFraction*100)
	fmt.Printf("Seed:            %d\n", rep.Seed)

	if verbose {
		for _, tr := range res.Trials {
			fmt.Printf("  %3d guards: median %s\n", tr.Guards, formatMinutes(tr.MedianMinutes))
		}
	}

	switch res.Outcome {
	case simulation.Found:
		fmt.Printf("Median response time with %d guards: %s\n", res.Guards, formatMinutes(res.MedianMinutes))
	default:
		fmt.Printf("No solution up to %d guards\n", simulation.MaxGuards)
	}
	fmt.Printf("Completed in %s (%d path searches)\n", rep.Elapsed.Round(time.Millisecond), res.PathSearches)
}

func formatMinutes(v float64) string {
	if math.IsInf(v, 1) {
		return "unreachable"
	}
	return fmt.Sprintf("%.2f minutes", v)
}
