package isochrone

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/commute-rent/internal/resilience"
)

var arlington = Origin{Lat: 38.8816, Lon: -77.1073}

func newTestClient(srvURL string) *client {
	c := NewClient("tok",
		WithBaseURL(srvURL),
		WithRetry(resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Multiplier:     2,
		}),
	).(*client)
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

// squareFeature returns a contour feature: a square of half-width
// minutes/100 degrees centred on the origin.
func squareFeature(minutes int) string {
	d := float64(minutes) / 100
	minX, maxX := arlington.Lon-d, arlington.Lon+d
	minY, maxY := arlington.Lat-d, arlington.Lat+d
	return fmt.Sprintf(`{"type":"Feature","properties":{"contour":%d,"color":"#000000"},
		"geometry":{"type":"Polygon","coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}}`,
		minutes, minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY)
}

// contourServer answers with one square per requested contour, largest first.
func contourServer(t *testing.T, seen *[]string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("contours_minutes")
		mu.Lock()
		*seen = append(*seen, raw)
		mu.Unlock()

		parts := strings.Split(raw, ",")
		features := make([]string, 0, len(parts))
		for i := len(parts) - 1; i >= 0; i-- {
			var m int
			_, _ = fmt.Sscanf(parts[i], "%d", &m)
			features = append(features, squareFeature(m))
		}
		_, _ = io.WriteString(w, `{"type":"FeatureCollection","features":[`+strings.Join(features, ",")+`]}`)
	}))
}

func TestContours_RequestShape(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_, _ = io.WriteString(w, `{"type":"FeatureCollection","features":[`+squareFeature(10)+`]}`)
	}))
	defer srv.Close()

	fc, err := newTestClient(srv.URL).Contours(context.Background(), Request{
		Origin: arlington, Profile: "cycling", Minutes: []int{10},
	})
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.InDelta(t, 10.0, fc.Features[0].Properties["contour"], 0)

	assert.Equal(t, "/isochrone/v1/mapbox/cycling/-77.1073,38.8816", gotPath)
	assert.Equal(t, []string{"10"}, gotQuery["contours_minutes"])
	assert.Equal(t, []string{"true"}, gotQuery["polygons"])
	assert.Equal(t, []string{"tok"}, gotQuery["access_token"])
}

func TestContours_Validation(t *testing.T) {
	c := newTestClient("http://unused.invalid")
	ctx := context.Background()

	_, err := c.Contours(ctx, Request{Origin: arlington, Profile: "flying", Minutes: []int{10}})
	assert.ErrorContains(t, err, "unknown profile")

	_, err = c.Contours(ctx, Request{Origin: arlington, Profile: "driving"})
	assert.ErrorContains(t, err, "contours")

	_, err = c.Contours(ctx, Request{Origin: arlington, Profile: "driving", Minutes: []int{10, 20, 30, 40, 50}})
	assert.ErrorContains(t, err, "contours")

	_, err = c.Contours(ctx, Request{Origin: arlington, Profile: "driving", Minutes: []int{90}})
	assert.ErrorContains(t, err, "out of range")
}

func TestContours_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Contours(context.Background(), Request{
		Origin: arlington, Profile: "driving", Minutes: []int{10},
	})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestContours_BadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"type":"Feature"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Contours(context.Background(), Request{
		Origin: arlington, Profile: "driving", Minutes: []int{10},
	})
	assert.ErrorContains(t, err, "parse response")
}

func TestFetchBands_SplitsAndMerges(t *testing.T) {
	var seen []string
	srv := contourServer(t, &seen)
	defer srv.Close()

	features, err := FetchBands(context.Background(), newTestClient(srv.URL), arlington, "driving", []int{10, 20, 30, 40})
	require.NoError(t, err)
	require.Len(t, features, 4)

	for i, want := range []float64{10, 20, 30, 40} {
		assert.InDelta(t, want, features[i].Properties["contour"], 0, "feature %d", i)
	}
	assert.ElementsMatch(t, []string{"10,20,30", "40"}, seen)
}

func TestFetchBands_PropagatesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("contours_minutes") == "40" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = io.WriteString(w, `{"type":"FeatureCollection","features":[]}`)
	}))
	defer srv.Close()

	_, err := FetchBands(context.Background(), newTestClient(srv.URL), arlington, "walking", []int{10, 20, 30, 40})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestSplitContours(t *testing.T) {
	assert.Equal(t, [][]int{{10, 20, 30}, {40}}, splitContours([]int{40, 10, 30, 20}))
	assert.Equal(t, [][]int{{15}}, splitContours([]int{15}))
	assert.Equal(t, [][]int{{5, 10, 15}, {20, 25}, {30}}, splitContours([]int{5, 10, 15, 20, 25, 30}))
}
