// Package isochrone fetches travel-time contour polygons from the Mapbox
// Isochrone API.
package isochrone

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/commute-rent/internal/resilience"
)

// DefaultBaseURL is the Mapbox API root.
const DefaultBaseURL = "https://api.mapbox.com"

// MaxContoursPerRequest is the most contours Mapbox accepts in one call.
const MaxContoursPerRequest = 4

// Profiles accepted by the API.
var Profiles = []string{"driving", "cycling", "walking"}

// Origin is a point in degrees.
type Origin struct {
	Lat float64
	Lon float64
}

// Request describes one isochrone call.
type Request struct {
	Origin  Origin
	Profile string
	Minutes []int
}

// Client fetches isochrone contours.
type Client interface {
	// Contours returns one polygon feature per requested minute value.
	Contours(ctx context.Context, req Request) (*geojson.FeatureCollection, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		burst := max(int(rps), 1)
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *client) {
		c.retry = cfg
	}
}

type client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewClient creates a Mapbox isochrone Client.
func NewClient(token string, opts ...Option) Client {
	c := &client{
		token:      token,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(5, 5),
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Contours implements Client.
func (c *client) Contours(ctx context.Context, req Request) (*geojson.FeatureCollection, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	cfg := c.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("mapbox", "isochrone")
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*geojson.FeatureCollection, error) {
		return c.contoursOnce(ctx, req)
	})
}

func (c *client) contoursOnce(ctx context.Context, req Request) (*geojson.FeatureCollection, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "isochrone: rate limit")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(req), nil)
	if err != nil {
		return nil, eris.Wrap(err, "isochrone: build request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "isochrone: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("isochrone", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "isochrone: read body")
	}

	var fc geojson.FeatureCollection
	if err := fc.UnmarshalJSON(body); err != nil {
		return nil, eris.Wrap(err, "isochrone: parse response")
	}

	zap.L().Debug("isochrone fetched",
		zap.String("profile", req.Profile),
		zap.Ints("minutes", req.Minutes),
		zap.Int("features", len(fc.Features)),
	)
	return &fc, nil
}

func (c *client) requestURL(req Request) string {
	minutes := make([]string, len(req.Minutes))
	for i, m := range req.Minutes {
		minutes[i] = strconv.Itoa(m)
	}
	params := url.Values{
		"contours_minutes": {strings.Join(minutes, ",")},
		"polygons":         {"true"},
		"access_token":     {c.token},
	}
	return fmt.Sprintf("%s/isochrone/v1/mapbox/%s/%s,%s?%s",
		c.baseURL, req.Profile,
		strconv.FormatFloat(req.Origin.Lon, 'f', -1, 64),
		strconv.FormatFloat(req.Origin.Lat, 'f', -1, 64),
		params.Encode())
}

func validate(req Request) error {
	known := false
	for _, p := range Profiles {
		if req.Profile == p {
			known = true
			break
		}
	}
	if !known {
		return eris.Errorf("isochrone: unknown profile %q", req.Profile)
	}
	if len(req.Minutes) == 0 || len(req.Minutes) > MaxContoursPerRequest {
		return eris.Errorf("isochrone: need 1 to %d contours, got %d", MaxContoursPerRequest, len(req.Minutes))
	}
	for _, m := range req.Minutes {
		if m <= 0 || m > 60 {
			return eris.Errorf("isochrone: contour %d out of range", m)
		}
	}
	return nil
}

// FetchBands requests the given minute thresholds in batches of
// MaxContoursPerRequest, concurrently, and merges the features ordered
// innermost first. The default thresholds 10, 20, 30, 40 go out as
// "10,20,30" and "40" to keep the larger polygon in its own call.
func FetchBands(ctx context.Context, c Client, origin Origin, profile string, minutes []int) ([]*geojson.Feature, error) {
	batches := splitContours(minutes)
	results := make([][]*geojson.Feature, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			fc, err := c.Contours(gctx, Request{Origin: origin, Profile: profile, Minutes: batch})
			if err != nil {
				return eris.Wrapf(err, "isochrone: fetch %v", batch)
			}
			results[i] = fc.Features
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []*geojson.Feature
	for _, fs := range results {
		merged = append(merged, fs...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return contourOf(merged[i]) < contourOf(merged[j])
	})
	return merged, nil
}

// splitContours keeps the largest threshold apart and packs the rest into
// groups of at most MaxContoursPerRequest-1.
func splitContours(minutes []int) [][]int {
	if len(minutes) <= 1 {
		return [][]int{minutes}
	}
	sorted := append([]int(nil), minutes...)
	sort.Ints(sorted)

	inner, outer := sorted[:len(sorted)-1], sorted[len(sorted)-1:]
	var batches [][]int
	for len(inner) > 0 {
		n := min(len(inner), MaxContoursPerRequest-1)
		batches = append(batches, inner[:n])
		inner = inner[n:]
	}
	return append(batches, outer)
}

func contourOf(f *geojson.Feature) float64 {
	if f == nil {
		return 0
	}
	if v, ok := f.Properties["contour"].(float64); ok {
		return v
	}
	return 0
}
