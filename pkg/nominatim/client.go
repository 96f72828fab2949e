// Package nominatim looks up city boundary polygons by place name.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"guard_model/pkg/geo"
	"guard_model/pkg/obs"
)

// DefaultBaseURL is the public Nominatim search endpoint.
const DefaultBaseURL = "https://nominatim.openstreetmap.org/search"

// DefaultCountryCodes limits searches to the countries with census data.
const DefaultCountryCodes = "us,ca"

// AnyCountry as Config.CountryCodes searches without a country restriction.
const AnyCountry = "*"

// ErrNotFound is returned when the search has no result for a place.
var ErrNotFound = errors.New("place not found")

// StatusError is an HTTP error response from the search service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nominatim: status %d: %s", e.Code, e.Body)
}

// Place is a resolved search result.
type Place struct {
	Query       string
	DisplayName string
	Boundary    geo.Boundary
}

// Config configures a Client. Zero fields take defaults.
type Config struct {
	BaseURL      string
	UserAgent    string // required by the Nominatim usage policy
	CountryCodes string // comma separated; empty means DefaultCountryCodes, AnyCountry lifts the limit
	HTTPClient   *http.Client
	MaxAttempts  int
	Backoff      time.Duration
}

// Client queries a Nominatim search endpoint.
type Client struct {
	baseURL      string
	userAgent    string
	countryCodes string
	session      *http.Client
	maxAttempts  int
	backoff      time.Duration
}

// New creates a Client.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:      cfg.BaseURL,
		userAgent:    cfg.UserAgent,
		countryCodes: cfg.CountryCodes,
		session:      cfg.HTTPClient,
		maxAttempts:  cfg.MaxAttempts,
		backoff:      cfg.Backoff,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	switch c.countryCodes {
	case "":
		c.countryCodes = DefaultCountryCodes
	case AnyCountry:
		c.countryCodes = ""
	}
	if c.userAgent == "" {
		c.userAgent = "guard-model/1.0"
	}
	if c.session == nil {
		c.session = &http.Client{Timeout: 30 * time.Second}
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 4
	}
	if c.backoff <= 0 {
		c.backoff = 200 * time.Millisecond
	}
	return c
}

// CountryCodes returns the country restriction sent with every search, or ""
// when there is none.
func (c *Client) CountryCodes() string {
	return c.countryCodes
}

type searchResult struct {
	DisplayName string          `json:"display_name"`
	GeoJSON     json.RawMessage `json:"geojson"`
}

// Boundary returns the boundary polygon of place.
func (c *Client) Boundary(ctx context.Context, place string) (geo.Boundary, error) {
	p, err := c.Lookup(ctx, place)
	if err != nil {
		return geo.Boundary{}, err
	}
	return p.Boundary, nil
}

// Lookup searches for place and returns its first result. Results without a
// polygon outline, such as a single point, are reported as ErrNotFound.
func (c *Client) Lookup(ctx context.Context, place string) (_ Place, err error) {
	defer obs.Time(ctx, "nominatim.Lookup")(&err)

	place = strings.TrimSpace(place)
	if place == "" {
		return Place{}, fmt.Errorf("%w: empty place name", ErrNotFound)
	}

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newSearchRequest(ctx, place)
	})
	if err != nil {
		return Place{}, fmt.Errorf("search %q: %w", place, err)
	}
	defer resp.Body.Close()

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Place{}, fmt.Errorf("decode search response: %w", err)
	}
	if len(results) == 0 {
		return Place{}, fmt.Errorf("%w: %q", ErrNotFound, place)
	}

	r := results[0]
	if len(r.GeoJSON) == 0 {
		return Place{}, fmt.Errorf("%w: %q has no outline", ErrNotFound, place)
	}
	g, err := geojson.UnmarshalGeometry(r.GeoJSON)
	if err != nil {
		return Place{}, fmt.Errorf("decode outline of %q: %w", place, err)
	}
	b, err := geo.NewBoundary(g.Geometry())
	if err != nil {
		return Place{}, fmt.Errorf("%w: %q: %v", ErrNotFound, place, err)
	}

	return Place{Query: place, DisplayName: r.DisplayName, Boundary: b}, nil
}

func (c *Client) newSearchRequest(ctx context.Context, place string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	q := req.URL.Query()
	q.Set("q", place)
	q.Set("format", "json")
	q.Set("polygon_geojson", "1")
	q.Set("limit", "1")
	if c.countryCodes != "" {
		q.Set("countrycodes", c.countryCodes)
	}
	req.URL.RawQuery = q.Encode()
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// doWithRetry retries network errors, 429 and 5xx responses with
// exponential backoff while respecting context cancellation.
func (c *Client) doWithRetry(
	ctx context.Context,
	makeReq func() (*http.Request, error),
) (*http.Response, error) {
	backoff := c.backoff
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := makeReq()
		if err != nil {
			return nil, fmt.Errorf("make request: %w", err)
		}

		resp, err := c.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retry := false
		var se *StatusError
		if errors.As(err, &se) {
			switch se.Code {
			case 429, 500, 502, 503, 504:
				retry = true
			}
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}

		if !retry || attempt == c.maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}

	return nil, lastErr
}
