// Package geocode resolves free-text workplace addresses to coordinates via
// the Mapbox Geocoding API.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/commute-rent/internal/resilience"
)

// DefaultBaseURL is the Mapbox API root.
const DefaultBaseURL = "https://api.mapbox.com"

// Client geocodes addresses.
type Client interface {
	// Geocode resolves a single address. An address the provider cannot
	// place is not an error: the Result comes back with Matched=false.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
}

// AddressInput represents an address to geocode.
type AddressInput struct {
	Street  string
	City    string
	State   string
	ZipCode string
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	PlaceName string  `json:"place_name"`
	Source    string  `json:"source"`  // "mapbox" or "cache"
	Quality   string  `json:"quality"` // "rooftop", "centroid", "approximate"
	Matched   bool    `json:"matched"`
}

// BBox restricts results to a rectangle, in degrees.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL overrides the API root (used by tests).
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		g.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := max(int(rps), 1)
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *geocoder) {
		g.retry = cfg
	}
}

// WithBBox limits matches to the given bounding box.
func WithBBox(b BBox) Option {
	return func(g *geocoder) {
		g.bbox = &b
	}
}

// WithCountry limits matches to an ISO 3166 alpha-2 country.
func WithCountry(code string) Option {
	return func(g *geocoder) {
		g.country = strings.ToLower(code)
	}
}

type geocoder struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	bbox       *BBox
	country    string
}

// NewClient creates a Mapbox geocoding Client.
func NewClient(token string, opts ...Option) Client {
	g := &geocoder{
		token:      token,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// formatOneLine joins the non-empty address parts with spaces, the way the
// form concatenates street, city, state and zip.
func formatOneLine(addr AddressInput) string {
	parts := []string{addr.Street, addr.City, addr.State, addr.ZipCode}
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
