package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/commute-rent/internal/listing"
	"github.com/sells-group/commute-rent/internal/model"
	"github.com/sells-group/commute-rent/internal/store"
	"github.com/sells-group/commute-rent/pkg/geocode"
	isoapi "github.com/sells-group/commute-rent/pkg/isochrone"
)

// --- Geocoder Mock ---

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, addr geocode.AddressInput) (*geocode.Result, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

// --- Isochrone Mock ---

type mockContours struct {
	mock.Mock
}

func (m *mockContours) Contours(ctx context.Context, req isoapi.Request) (*geojson.FeatureCollection, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geojson.FeatureCollection), args.Error(1)
}

// --- In-memory store ---

type memStore struct {
	mu        sync.Mutex
	set       *store.ListingSet
	saves     int
	subs      []model.Submission
	recordErr error
}

func (s *memStore) SaveListings(_ context.Context, listings []model.Listing) (*store.ListingSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.set = &store.ListingSet{BatchID: "batch", GeneratedAt: time.Now(), Listings: listings}
	return s.set, nil
}

func (s *memStore) LatestListings(context.Context) (*store.ListingSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set, nil
}

func (s *memStore) RecordSubmission(_ context.Context, sub model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.subs = append(s.subs, sub)
	return nil
}

var workplace = geocode.Result{Latitude: 38.8816, Longitude: -77.1073, Source: "mapbox", Matched: true}

func testListingConfig() listing.Config {
	cfg := listing.DefaultConfig()
	for u, uc := range cfg.Units {
		uc.Count = 60
		cfg.Units[u] = uc
	}
	cfg.Seed = 7
	return cfg
}

func baseRequest(policy model.Policy) model.Request {
	return model.Request{
		Address:    model.Address{Street: "932 n kenmore st", City: "arlington", State: "va", ZipCode: "22201"},
		HourlyWage: 40,
		SpeedMPH:   40,
		Mode:       model.ModeDriving,
		Policy:     policy,
		MinRent:    1000,
		MaxRent:    10000,
		UnitTypes:  model.AllUnitTypes,
	}
}

// squareContour is a square of half-width minutes/200 degrees around the
// workplace, tagged the way Mapbox tags contours. The 40 minute square does
// not cover the whole listing area.
func squareContour(minutes int) *geojson.Feature {
	d := float64(minutes) / 200
	x, y := workplace.Longitude, workplace.Latitude
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{x - d, y - d}, {x + d, y - d}, {x + d, y + d}, {x - d, y + d}, {x - d, y - d},
	}})
	return &geojson.Feature{Geometry: poly, Properties: map[string]interface{}{"contour": float64(minutes)}}
}

func contoursFor(minutes ...int) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{}
	for i := len(minutes) - 1; i >= 0; i-- {
		fc.Features = append(fc.Features, squareContour(minutes[i]))
	}
	return fc
}

func newTestEstimator(g geocode.Client, c isoapi.Client, st Store, opts ...Option) *Estimator {
	return New(g, c, st, append([]Option{WithListingConfig(testListingConfig())}, opts...)...)
}

func TestEstimate_DistancePolicy(t *testing.T) {
	g := &mockGeocoder{}
	g.On("Geocode", mock.Anything, geocode.AddressInput{
		Street: "932 n kenmore st", City: "arlington", State: "va", ZipCode: "22201",
	}).Return(&workplace, nil)
	st := &memStore{}

	est, err := newTestEstimator(g, &mockContours{}, st).Estimate(context.Background(), baseRequest(model.PolicyDistance))
	require.NoError(t, err)

	assert.Len(t, est.ID, 36)
	assert.Equal(t, "932 N Kenmore St Arlington VA 22201", est.Workplace.Address)
	assert.InDelta(t, 38.8816, est.Workplace.Lat, 1e-9)
	assert.Nil(t, est.Layers)
	assert.Len(t, est.Results, 180)
	assert.Equal(t, 3, est.Request.TopN)

	for _, r := range est.Results {
		assert.GreaterOrEqual(t, r.AdjustedRent, r.Rent)
		assert.Equal(t, r.Band.Label(), r.BandLabel)
	}

	perBand := map[model.Band]int{}
	for i, r := range est.Top {
		perBand[r.Band]++
		if i > 0 {
			assert.LessOrEqual(t, est.Top[i-1].AdjustedRent, r.AdjustedRent)
		}
	}
	for b, n := range perBand {
		assert.LessOrEqual(t, n, 3, "band %s", b.Label())
	}

	require.Len(t, st.subs, 1)
	assert.Equal(t, est.ID, st.subs[0].ID)
	assert.Equal(t, 180, st.subs[0].Matched)
	assert.Equal(t, 1, st.saves)
	g.AssertExpectations(t)
}

func TestEstimate_IsochronePolicy(t *testing.T) {
	g := &mockGeocoder{}
	g.On("Geocode", mock.Anything, mock.Anything).Return(&workplace, nil)

	c := &mockContours{}
	c.On("Contours", mock.Anything, mock.MatchedBy(func(r isoapi.Request) bool {
		return len(r.Minutes) == 3 && r.Profile == "cycling"
	})).Return(contoursFor(10, 20, 30), nil).Once()
	c.On("Contours", mock.Anything, mock.MatchedBy(func(r isoapi.Request) bool {
		return len(r.Minutes) == 1 && r.Minutes[0] == 40
	})).Return(contoursFor(40), nil).Once()

	req := baseRequest(model.PolicyIsochrone)
	req.Mode = model.ModeCycling
	est, err := newTestEstimator(g, c, &memStore{}).Estimate(context.Background(), req)
	require.NoError(t, err)

	assert.NotEmpty(t, est.Layers)
	assert.Contains(t, string(est.Layers), `"contour-40"`)

	bands := map[model.Band]bool{}
	for _, r := range est.Results {
		bands[r.Band] = true
		// Isochrone cost is the band's upper bound: (band+1)*10 minutes each way.
		want := r.Rent + int(float64((int(r.Band)+1)*10)/60*40*2*20)
		assert.Equal(t, want, r.AdjustedRent, "listing %d", r.ID)
	}
	assert.True(t, bands[model.BandUnder10])
	assert.True(t, bands[model.BandOutside])
	c.AssertExpectations(t)
}

func TestEstimate_FiltersOnAdjustedRent(t *testing.T) {
	g := &mockGeocoder{}
	g.On("Geocode", mock.Anything, mock.Anything).Return(&workplace, nil)

	req := baseRequest(model.PolicyDistance)
	req.MinRent, req.MaxRent = 2000, 2500
	req.UnitTypes = []model.UnitType{model.UnitStudio}

	est, err := newTestEstimator(g, nil, &memStore{}).Estimate(context.Background(), req)
	require.NoError(t, err)
	for _, r := range est.Results {
		assert.Equal(t, model.UnitStudio, r.UnitType)
		assert.GreaterOrEqual(t, r.AdjustedRent, 2000)
		assert.LessOrEqual(t, r.AdjustedRent, 2500)
	}
}

func TestEstimate_AddressNotFound(t *testing.T) {
	g := &mockGeocoder{}
	g.On("Geocode", mock.Anything, mock.Anything).Return(&geocode.Result{Matched: false}, nil)
	st := &memStore{}

	_, err := newTestEstimator(g, nil, st).Estimate(context.Background(), baseRequest(model.PolicyDistance))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAddressNotFound)
	assert.Contains(t, err.Error(), "DC/MD/VA")
	assert.Zero(t, st.saves)
	assert.Empty(t, st.subs)
}

func TestEstimate_GeocoderFailureIsUpstream(t *testing.T) {
	g := &mockGeocoder{}
	g.On("Geocode", mock.Anything, mock.Anything).Return(nil, errors.New("mapbox down"))

	_, err := newTestEstimator(g, nil, &memStore{}).Estimate(context.Background(), baseRequest(model.PolicyDistance))
	require.Error(t, err)
	assert.True(t, IsUpstream(err))
	assert.Contains(t, err.Error(), "mapbox down")
}

func TestEstimate_IsochroneFailureIsUpstream(t *testing.T) {
	g := &mockGeocoder{}
	g.On("Geocode", mock.Anything, mock.Anything).Return(&workplace, nil)
	c := &mockContours{}
	c.On("Contours", mock.Anything, mock.Anything).Return(nil, errors.New("quota"))

	_, err := newTestEstimator(g, c, &memStore{}).Estimate(context.Background(), baseRequest(model.PolicyIsochrone))
	require.Error(t, err)
	assert.True(t, IsUpstream(err))
}

func TestEstimate_MissingContourIsUpstream(t *testing.T) {
	g := &mockGeocoder{}
	g.On("Geocode", mock.Anything, mock.Anything).Return(&workplace, nil)
	c := &mockContours{}
	c.On("Contours", mock.Anything, mock.Anything).Return(contoursFor(10), nil)

	_, err := newTestEstimator(g, c, &memStore{}).Estimate(context.Background(), baseRequest(model.PolicyIsochrone))
	require.Error(t, err)
	assert.True(t, IsUpstream(err))
}

func TestEstimate_ValidationError(t *testing.T) {
	req := baseRequest(model.PolicyDistance)
	req.Address = model.Address{}
	req.MinRent, req.MaxRent = 3000, 2000
	req.SpeedMPH = 0

	_, err := newTestEstimator(&mockGeocoder{}, nil, &memStore{}).Estimate(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidRequest)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "address")
	assert.Contains(t, ve.Fields, "rent_range")
	assert.Contains(t, ve.Fields, "speed_mph")
	assert.Contains(t, err.Error(), "address: address is required")
}

func TestEstimate_RejectsOutOfRangeWageAndSpeed(t *testing.T) {
	req := baseRequest(model.PolicyDistance)
	req.HourlyWage = 1e20
	req.SpeedMPH = 1e-20

	g := &mockGeocoder{}
	_, err := newTestEstimator(g, nil, &memStore{}).Estimate(context.Background(), req)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "hourly_wage")
	assert.Contains(t, ve.Fields, "speed_mph")
	g.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
}

func TestEstimate_RecordFailureDoesNotFail(t *testing.T) {
	g := &mockGeocoder{}
	g.On("Geocode", mock.Anything, mock.Anything).Return(&workplace, nil)

	_, err := newTestEstimator(g, nil, &memStore{recordErr: errors.New("disk full")}).
		Estimate(context.Background(), baseRequest(model.PolicyDistance))
	assert.NoError(t, err)
}

func TestListings_ReuseCachedSet(t *testing.T) {
	cached := []model.Listing{{ID: 1, Rent: 1500, Lat: 38.9, Lon: -77.1, UnitType: model.UnitStudio}}
	st := &memStore{set: &store.ListingSet{BatchID: "old", Listings: cached}}

	got, err := newTestEstimator(nil, nil, st, WithReuseListings(true)).Listings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	assert.Zero(t, st.saves)
}

func TestListings_ReuseGeneratesWhenEmpty(t *testing.T) {
	st := &memStore{}

	got, err := newTestEstimator(nil, nil, st, WithReuseListings(true)).Listings(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 180)
	assert.Equal(t, 1, st.saves)
}

func TestListings_RegeneratesByDefault(t *testing.T) {
	st := &memStore{set: &store.ListingSet{BatchID: "old", Listings: []model.Listing{{ID: 1}}}}

	got, err := newTestEstimator(nil, nil, st).Listings(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 180)
	assert.Equal(t, 1, st.saves)
}

func TestNormalize(t *testing.T) {
	got := Normalize(model.Request{})
	assert.Equal(t, 3, got.TopN)
	assert.Equal(t, model.ModeDriving, got.Mode)
	assert.Equal(t, model.PolicyIsochrone, got.Policy)

	kept := Normalize(model.Request{TopN: 5, Mode: model.ModeWalking, Policy: model.PolicyDistance})
	assert.Equal(t, 5, kept.TopN)
	assert.Equal(t, model.ModeWalking, kept.Mode)
	assert.Equal(t, model.PolicyDistance, kept.Policy)
}
