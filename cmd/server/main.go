package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"guard_model/pkg/api"
	"guard_model/pkg/graph"
	"guard_model/pkg/metrics"
	"guard_model/pkg/nominatim"
	"guard_model/pkg/platform"
	"guard_model/pkg/population"
	"guard_model/pkg/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	defaultPort, _ := strconv.Atoi(platform.Getenv("PORT", "8080"))
	graphPath := flag.String("graph", platform.Getenv("GRAPH_PATH", "graph.bin"), "Path to a preprocessed graph binary or OSMnx node-link JSON")
	port := flag.Int("port", defaultPort, "HTTP port")
	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "Postgres URL with census blocks and the boundary cache")
	popTable := flag.String("population-table", platform.Getenv("POPULATION_TABLE", population.DefaultTable), "Census block table")
	nominatimURL := flag.String("nominatim-url", platform.Getenv("NOMINATIM_URL", nominatim.DefaultBaseURL), "Nominatim search endpoint")
	userAgent := flag.String("user-agent", platform.Getenv("NOMINATIM_USER_AGENT", "guard-model/1.0"), "User-Agent sent to Nominatim")
	countryCodes := flag.String("country-codes", platform.Getenv("NOMINATIM_COUNTRY_CODES", nominatim.DefaultCountryCodes), "Restrict place lookups to these countries (\"*\" for any)")
	corsOrigin := flag.String("cors-origin", "", "CORS allowed origin (empty = same-origin)")
	timeout := flag.Duration("timeout", 10*time.Minute, "Per-request simulation timeout")
	flag.Parse()

	start := time.Now()
	ctx := context.Background()

	// Load graph.
	log.Printf("Loading graph from %s...", *graphPath)
	g, err := platform.LoadGraph(*graphPath)
	if err != nil {
		log.Fatalf("Failed to load graph: %v", err)
	}
	log.Printf("Loaded: %d nodes, %d edges", g.NumNodes, g.NumEdges)
	regional := graph.NewRegional(g)

	m, err := metrics.New(nil)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}
	m.SetGraphSize(regional.Size())

	client := nominatim.New(nominatim.Config{
		BaseURL:      *nominatimURL,
		UserAgent:    *userAgent,
		CountryCodes: *countryCodes,
	})

	var boundaries service.BoundaryProvider = client

	// Without a database only requests carrying a population override succeed.
	var pop service.PopulationProvider
	if *databaseURL != "" {
		db, err := platform.OpenDB(ctx, *databaseURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()

		pop = population.NewPostGIS(db, *popTable)
		cached := nominatim.NewCachedClient(db, client)
		if err := cached.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to create boundary cache: %v", err)
		}
		boundaries = cached
	} else {
		log.Println("DATABASE_URL not set: population lookups disabled")
	}

	planner := &service.Planner{
		Boundaries: boundaries,
		Population: pop,
		Graphs:     regional,
		Metrics:    m,
	}

	log.Printf("Ready in %s", time.Since(start).Round(time.Millisecond))

	// Setup HTTP server.
	cfg := api.DefaultConfig(fmt.Sprintf(":%d", *port))
	cfg.CORSOrigin = *corsOrigin
	cfg.RequestTimeout = *timeout
	cfg.WriteTimeout = *timeout + time.Minute

	nodes, edges := regional.Size()
	handlers := api.NewHandlers(planner, api.StatsResponse{NumNodes: nodes, NumEdges: edges})
	srv := api.NewServer(cfg, handlers, m)

	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}
