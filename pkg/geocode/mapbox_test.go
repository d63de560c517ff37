package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kenmore = AddressInput{Street: "932 N Kenmore St", City: "Arlington", State: "VA", ZipCode: "22201"}

func newTestGeocoder(srvURL string, opts ...Option) *geocoder {
	g := NewClient("test-token", append([]Option{
		WithHTTPClient(newRewriteClient(srvURL, DefaultBaseURL)),
		WithRetry(newTestRetry()),
	}, opts...)...).(*geocoder)
	g.limiter = newTestLimiter()
	return g
}

func TestMapboxGeocode_Match(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"type": "FeatureCollection",
			"features": [{
				"place_type": ["address"],
				"relevance": 1,
				"place_name": "932 North Kenmore Street, Arlington, Virginia 22201, United States",
				"center": [-77.1073, 38.8816]
			}]
		}`)
	}))
	defer srv.Close()

	g := newTestGeocoder(srv.URL)
	result, err := g.Geocode(context.Background(), kenmore)
	require.NoError(t, err)

	assert.True(t, result.Matched)
	// Mapbox returns [lon, lat].
	assert.InDelta(t, 38.8816, result.Latitude, 1e-6)
	assert.InDelta(t, -77.1073, result.Longitude, 1e-6)
	assert.Equal(t, "mapbox", result.Source)
	assert.Equal(t, "rooftop", result.Quality)
	assert.Contains(t, result.PlaceName, "Kenmore")

	assert.Equal(t, "/geocoding/v5/mapbox.places/932%20N%20Kenmore%20St%20Arlington%20VA%2022201.json", gotPath)
	assert.Contains(t, gotQuery, "access_token=test-token")
	assert.Contains(t, gotQuery, "limit=1")
}

func TestMapboxGeocode_NoFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"type":"FeatureCollection","features":[]}`)
	}))
	defer srv.Close()

	result, err := newTestGeocoder(srv.URL).Geocode(context.Background(), AddressInput{Street: "000 Nowhere"})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestMapboxGeocode_EmptyAddress(t *testing.T) {
	g := newTestGeocoder("http://unused.invalid")
	result, err := g.Geocode(context.Background(), AddressInput{Street: "  "})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestMapboxGeocode_Unauthorized(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestGeocoder(srv.URL).Geocode(context.Background(), kenmore)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestMapboxGeocode_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"features":[{"place_type":["place"],"center":[-77.03,38.9]}]}`)
	}))
	defer srv.Close()

	result, err := newTestGeocoder(srv.URL).Geocode(context.Background(), AddressInput{City: "Washington", State: "DC"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "centroid", result.Quality)
	assert.Equal(t, int32(3), calls.Load())
}

func TestMapboxGeocode_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{not json`)
	}))
	defer srv.Close()

	_, err := newTestGeocoder(srv.URL).Geocode(context.Background(), kenmore)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse response")
}

func TestRequestURL_BBoxAndCountry(t *testing.T) {
	g := NewClient("tok",
		WithBaseURL("https://example.test/"),
		WithBBox(BBox{MinLon: -77.5, MinLat: 38.7, MaxLon: -76.9, MaxLat: 39.1}),
		WithCountry("US"),
	).(*geocoder)

	u := g.requestURL("1 Main St")
	assert.Contains(t, u, "https://example.test/geocoding/v5/mapbox.places/1%20Main%20St.json?")
	assert.Contains(t, u, "bbox=-77.5%2C38.7%2C-76.9%2C39.1")
	assert.Contains(t, u, "country=us")
}

func TestPlaceTypeToQuality(t *testing.T) {
	tests := []struct {
		types    []string
		expected string
	}{
		{[]string{"address"}, "rooftop"},
		{[]string{"poi"}, "rooftop"},
		{[]string{"postcode"}, "centroid"},
		{[]string{"place", "region"}, "centroid"},
		{[]string{"region"}, "approximate"},
		{nil, "approximate"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, placeTypeToQuality(tt.types), "types=%v", tt.types)
	}
}

func TestFormatOneLine(t *testing.T) {
	assert.Equal(t, "932 N Kenmore St Arlington VA 22201", formatOneLine(kenmore))
	assert.Equal(t, "Arlington VA", formatOneLine(AddressInput{City: " Arlington ", State: "VA"}))
	assert.Empty(t, formatOneLine(AddressInput{}))
}
