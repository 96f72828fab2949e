// Package platform opens the data sources shared by the commands: the
// Postgres database and the regional road graph.
package platform

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"guard_model/pkg/graph"
	"guard_model/pkg/osmnx"
)

// OpenDB opens and pings a Postgres database through the pgx driver.
func OpenDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("openDB: open postgres database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("openDB: verify postgres connection: %w", err)
	}

	return db, nil
}

// LoadGraph reads a road graph from path. Files ending in .json are read as
// OSMnx node-link exports and reduced to their largest connected component;
// anything else is read as a preprocessed binary graph.
func LoadGraph(path string) (*graph.Graph, error) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return graph.ReadBinary(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res, err := osmnx.Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	g := graph.Build(res)
	log.Printf("Graph from %s: %d nodes, %d edges", path, g.NumNodes, g.NumEdges)
	return graph.FilterToComponent(g), nil
}

// Getenv returns the environment variable key, or def when it is unset or blank.
func Getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
