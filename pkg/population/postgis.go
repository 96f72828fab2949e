// Package population sums census population inside a boundary.
package population

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb/encoding/wkt"

	"guard_model/pkg/geo"
	"guard_model/pkg/obs"
)

// DefaultTable holds census blocks in EPSG:4326 with a unique_pop column.
const DefaultTable = "block_population_4326"

// PostGIS sums the unique_pop column of every census block whose geometry
// intersects the boundary.
type PostGIS struct {
	DB    *sql.DB
	query string
}

// NewPostGIS creates a provider reading from table, which may be schema
// qualified ("census.blocks"). An empty table uses DefaultTable.
func NewPostGIS(db *sql.DB, table string) *PostGIS {
	if table == "" {
		table = DefaultTable
	}
	return &PostGIS{DB: db, query: buildQuery(table)}
}

func buildQuery(table string) string {
	ident := pgx.Identifier(strings.Split(table, ".")).Sanitize()
	return fmt.Sprintf(`
	SELECT COALESCE(SUM(unique_pop), 0)::bigint
	FROM %s
	WHERE ST_Intersects(geom, ST_GeomFromText($1, 4326));
	`, ident)
}

// Population returns the population inside b. Blocks that only touch the
// boundary are counted in full.
func (p *PostGIS) Population(ctx context.Context, b geo.Boundary) (_ int64, err error) {
	defer obs.Time(ctx, "population.PostGIS")(&err)

	if p.DB == nil {
		return 0, errors.New("population: db is nil")
	}

	var pop int64
	if err := p.DB.QueryRowContext(ctx, p.query, wkt.MarshalString(b.Geometry())).Scan(&pop); err != nil {
		return 0, fmt.Errorf("query population: %w", err)
	}
	return pop, nil
}

// Fixed is a provider that reports the same population for every boundary.
type Fixed int64

// Population returns f.
func (f Fixed) Population(context.Context, geo.Boundary) (int64, error) {
	return int64(f), nil
}
