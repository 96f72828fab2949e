package nominatim

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/paulmach/orb"

	"guard_model/pkg/geo"
)

const squareResponse = `[{
	"place_id": 1,
	"display_name": "Springfield, Some County, United States",
	"lat": "0.5", "lon": "0.5",
	"geojson": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
}]`

func newTestBoundary() (geo.Boundary, error) {
	return geo.NewBoundary(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}})
}

func newTestClient(url string) *Client {
	return New(Config{
		BaseURL:      url,
		UserAgent:    "guard-model-test",
		CountryCodes: "us,ca",
		Backoff:      time.Millisecond,
	})
}

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		want := map[string]string{
			"q": "Springfield", "format": "json", "polygon_geojson": "1", "limit": "1", "countrycodes": "us,ca",
		}
		for k, v := range want {
			if q.Get(k) != v {
				t.Errorf("query %s = %q, want %q", k, q.Get(k), v)
			}
		}
		if ua := r.Header.Get("User-Agent"); ua != "guard-model-test" {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(squareResponse))
	}))
	defer srv.Close()

	p, err := newTestClient(srv.URL).Lookup(context.Background(), "  Springfield ")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if p.DisplayName != "Springfield, Some County, United States" {
		t.Errorf("DisplayName = %q", p.DisplayName)
	}
	if !p.Boundary.ContainsStrict(orb.Point{0.5, 0.5}) {
		t.Error("boundary should contain the square's center")
	}
	if p.Boundary.Area() != 1 {
		t.Errorf("Area = %f, want 1", p.Boundary.Area())
	}
}

func TestLookupCountryCodes(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   string
		sent   bool
	}{
		{"default", "", DefaultCountryCodes, true},
		{"explicit", "mx", "mx", true},
		{"any country", AnyCountry, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if got := q.Get("countrycodes"); got != tt.want {
					t.Errorf("countrycodes = %q, want %q", got, tt.want)
				}
				if q.Has("countrycodes") != tt.sent {
					t.Errorf("countrycodes sent = %v, want %v", q.Has("countrycodes"), tt.sent)
				}
				w.Write([]byte(squareResponse))
			}))
			defer srv.Close()

			c := New(Config{BaseURL: srv.URL, CountryCodes: tt.config})
			if c.CountryCodes() != tt.want {
				t.Errorf("CountryCodes() = %q, want %q", c.CountryCodes(), tt.want)
			}
			if _, err := c.Lookup(context.Background(), "Toronto"); err != nil {
				t.Fatalf("Lookup: %v", err)
			}
		})
	}
}

func TestLookupNotFound(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no results", `[]`},
		{"point result", `[{"display_name": "x", "geojson": {"type": "Point", "coordinates": [1, 2]}}]`},
		{"no outline", `[{"display_name": "x"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Boundary(context.Background(), "Nowhere")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}

	if _, err := newTestClient("http://unused.invalid").Lookup(context.Background(), " "); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty place: err = %v, want ErrNotFound", err)
	}
}

func TestLookupRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(squareResponse))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Lookup(context.Background(), "Springfield"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestLookupClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Lookup(context.Background(), "Springfield")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want StatusError 400", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestLookupGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Lookup(context.Background(), "Springfield")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want StatusError 429", err)
	}
	if calls.Load() != 4 {
		t.Errorf("calls = %d, want 4", calls.Load())
	}
}

type countingLookuper struct {
	calls int
	place Place
	err   error
}

func (c *countingLookuper) Lookup(ctx context.Context, place string) (Place, error) {
	c.calls++
	return c.place, c.err
}

func TestCachedClientWithoutDB(t *testing.T) {
	b, _ := newTestBoundary()
	up := &countingLookuper{place: Place{DisplayName: "Springfield", Boundary: b}}
	c := NewCachedClient(nil, up)

	got, err := c.Boundary(context.Background(), "Springfield")
	if err != nil {
		t.Fatalf("Boundary: %v", err)
	}
	if got.Area() != 1 || up.calls != 1 {
		t.Errorf("Area = %f, upstream calls = %d", got.Area(), up.calls)
	}

	up.err = ErrNotFound
	if _, err := c.Lookup(context.Background(), "Nowhere"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := c.EnsureSchema(context.Background()); err == nil {
		t.Error("EnsureSchema without db should fail")
	}
}

func TestCachedClientPostgres(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", url)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	b, _ := newTestBoundary()
	up := &countingLookuper{place: Place{DisplayName: "Cache Test Town", Boundary: b}}
	c := NewCachedClient(db, up)
	ctx := context.Background()

	if err := c.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM boundary_cache WHERE place = $1`, "cache test town"); err != nil {
		t.Fatal(err)
	}

	for range 2 {
		p, err := c.Lookup(ctx, "Cache  Test Town")
		if err != nil {
			t.Fatal(err)
		}
		if p.DisplayName != "Cache Test Town" || p.Boundary.Area() != 1 {
			t.Errorf("got %+v", p)
		}
	}
	if up.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", up.calls)
	}
}

func TestCacheKey(t *testing.T) {
	tests := []struct {
		scope, place, want string
	}{
		{"", "  Toronto,   ON ", "toronto, on"},
		{"us,ca", "Springfield", "us,ca|springfield"},
		{"US,CA", "springfield ", "us,ca|springfield"},
		{"gb", "Springfield", "gb|springfield"},
	}
	for _, tt := range tests {
		if got := cacheKey(tt.scope, tt.place); got != tt.want {
			t.Errorf("cacheKey(%q, %q) = %q, want %q", tt.scope, tt.place, got, tt.want)
		}
	}
}

func TestCachedClientScope(t *testing.T) {
	if c := NewCachedClient(nil, New(Config{})); c.Scope != DefaultCountryCodes {
		t.Errorf("Scope = %q, want %q", c.Scope, DefaultCountryCodes)
	}
	if c := NewCachedClient(nil, New(Config{CountryCodes: "gb"})); c.Scope != "gb" {
		t.Errorf("Scope = %q, want gb", c.Scope)
	}
	if c := NewCachedClient(nil, &countingLookuper{}); c.Scope != "" {
		t.Errorf("Scope = %q, want none for a plain lookuper", c.Scope)
	}
}
