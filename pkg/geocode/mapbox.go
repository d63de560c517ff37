package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commute-rent/internal/resilience"
)

// mapboxResponse is the subset of the Geocoding v5 response we read.
type mapboxResponse struct {
	Features []mapboxFeature `json:"features"`
}

type mapboxFeature struct {
	// Center is [longitude, latitude].
	Center    []float64 `json:"center"`
	PlaceName string    `json:"place_name"`
	PlaceType []string  `json:"place_type"`
	Relevance float64   `json:"relevance"`
}

// Geocode implements Client.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	oneLine := formatOneLine(addr)
	if oneLine == "" {
		return &Result{Matched: false, Source: "mapbox"}, nil
	}

	cfg := g.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("mapbox", "geocode")
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*Result, error) {
		return g.geocodeOnce(ctx, oneLine)
	})
}

func (g *geocoder) geocodeOnce(ctx context.Context, query string) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.requestURL(query), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("geocode", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var parsed mapboxResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}

	if len(parsed.Features) == 0 || len(parsed.Features[0].Center) < 2 {
		zap.L().Debug("geocode: no match", zap.String("address", query))
		return &Result{Matched: false, Source: "mapbox"}, nil
	}

	f := parsed.Features[0]
	return &Result{
		Latitude:  f.Center[1],
		Longitude: f.Center[0],
		PlaceName: f.PlaceName,
		Source:    "mapbox",
		Quality:   placeTypeToQuality(f.PlaceType),
		Matched:   true,
	}, nil
}

func (g *geocoder) requestURL(query string) string {
	params := url.Values{
		"access_token": {g.token},
		"limit":        {"1"},
	}
	if g.bbox != nil {
		params.Set("bbox", fmt.Sprintf("%s,%s,%s,%s",
			ftoa(g.bbox.MinLon), ftoa(g.bbox.MinLat), ftoa(g.bbox.MaxLon), ftoa(g.bbox.MaxLat)))
	}
	if g.country != "" {
		params.Set("country", g.country)
	}
	return fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?%s",
		g.baseURL, url.PathEscape(query), params.Encode())
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// placeTypeToQuality maps the most specific Mapbox place type to our
// quality taxonomy.
func placeTypeToQuality(types []string) string {
	for _, t := range types {
		switch t {
		case "address", "poi":
			return "rooftop"
		case "neighborhood", "postcode", "locality", "place":
			return "centroid"
		}
	}
	return "approximate"
}
