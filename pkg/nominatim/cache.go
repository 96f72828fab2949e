package nominatim

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/paulmach/orb/geojson"

	"guard_model/pkg/geo"
	"guard_model/pkg/obs"
)

// Lookuper resolves a place name to a Place.
type Lookuper interface {
	Lookup(ctx context.Context, place string) (Place, error)
}

// CachedClient keeps resolved boundaries in a Postgres table so each place
// is fetched from the search service once. Cache failures are logged and
// the upstream is used instead.
//
// Entries are keyed by Scope and the normalized place name, so clients
// searching different countries can share a table.
type CachedClient struct {
	DB       *sql.DB
	Upstream Lookuper
	Scope    string
}

// NewCachedClient wraps upstream with a cache in db. The scope is taken from
// the upstream's country restriction when it has one.
func NewCachedClient(db *sql.DB, upstream Lookuper) *CachedClient {
	c := &CachedClient{DB: db, Upstream: upstream}
	if s, ok := upstream.(interface{ CountryCodes() string }); ok {
		c.Scope = s.CountryCodes()
	}
	return c
}

// EnsureSchema creates the cache table if it does not exist.
func (c *CachedClient) EnsureSchema(ctx context.Context) error {
	if c.DB == nil {
		return errors.New("boundary cache: db is nil")
	}
	_, err := c.DB.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS boundary_cache (
		place        TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		geojson      TEXT NOT NULL,
		fetched_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`)
	if err != nil {
		return fmt.Errorf("create boundary_cache table: %w", err)
	}
	return nil
}

// Boundary returns the boundary polygon of place.
func (c *CachedClient) Boundary(ctx context.Context, place string) (geo.Boundary, error) {
	p, err := c.Lookup(ctx, place)
	if err != nil {
		return geo.Boundary{}, err
	}
	return p.Boundary, nil
}

// Lookup returns the cached place or fetches and stores it.
func (c *CachedClient) Lookup(ctx context.Context, place string) (Place, error) {
	key := cacheKey(c.Scope, place)

	p, ok, err := c.get(ctx, key)
	if err != nil {
		log.Printf("req_id=%s boundary cache read failed: %v", obs.RequestID(ctx), err)
	}
	if ok {
		p.Query = strings.TrimSpace(place)
		return p, nil
	}

	p, err = c.Upstream.Lookup(ctx, place)
	if err != nil {
		return Place{}, err
	}

	if err := c.put(ctx, key, p); err != nil {
		log.Printf("req_id=%s boundary cache write failed: %v", obs.RequestID(ctx), err)
	}
	return p, nil
}

func (c *CachedClient) get(ctx context.Context, key string) (_ Place, _ bool, err error) {
	defer obs.Time(ctx, "boundary.cache.get")(&err)

	if c.DB == nil {
		return Place{}, false, errors.New("boundary cache: db is nil")
	}

	var displayName, raw string
	err = c.DB.QueryRowContext(ctx,
		`SELECT display_name, geojson FROM boundary_cache WHERE place = $1`, key,
	).Scan(&displayName, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Place{}, false, nil
	}
	if err != nil {
		return Place{}, false, fmt.Errorf("query boundary_cache: %w", err)
	}

	g, err := geojson.UnmarshalGeometry([]byte(raw))
	if err != nil {
		return Place{}, false, fmt.Errorf("decode cached outline: %w", err)
	}
	b, err := geo.NewBoundary(g.Geometry())
	if err != nil {
		return Place{}, false, fmt.Errorf("cached outline: %w", err)
	}
	return Place{DisplayName: displayName, Boundary: b}, true, nil
}

func (c *CachedClient) put(ctx context.Context, key string, p Place) error {
	if c.DB == nil {
		return errors.New("boundary cache: db is nil")
	}

	raw, err := geojson.NewGeometry(p.Boundary.Geometry()).MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode outline: %w", err)
	}

	_, err = c.DB.ExecContext(ctx, `
	INSERT INTO boundary_cache (place, display_name, geojson)
	VALUES ($1, $2, $3)
	ON CONFLICT (place) DO UPDATE
	SET display_name = EXCLUDED.display_name,
		geojson = EXCLUDED.geojson,
		fetched_at = now();
	`, key, p.DisplayName, string(raw))
	if err != nil {
		return fmt.Errorf("insert boundary_cache place=%q: %w", key, err)
	}
	return nil
}

// cacheKey normalizes a place name so "Toronto,  ON" and "toronto, on" share
// an entry, prefixed with the scope: "us,ca|toronto, on".
func cacheKey(scope, place string) string {
	key := strings.ToLower(strings.Join(strings.Fields(place), " "))
	if scope == "" {
		return key
	}
	return strings.ToLower(scope) + "|" + key
}
