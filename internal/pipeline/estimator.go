// Package pipeline turns a form submission into ranked, commute-adjusted
// listings.
package pipeline

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commute-rent/internal/commute"
	"github.com/sells-group/commute-rent/internal/isochrone"
	"github.com/sells-group/commute-rent/internal/listing"
	"github.com/sells-group/commute-rent/internal/model"
	"github.com/sells-group/commute-rent/internal/rank"
	"github.com/sells-group/commute-rent/internal/store"
	"github.com/sells-group/commute-rent/pkg/geocode"
	isoapi "github.com/sells-group/commute-rent/pkg/isochrone"
)

// Store is the persistence the estimator needs.
type Store interface {
	SaveListings(ctx context.Context, listings []model.Listing) (*store.ListingSet, error)
	LatestListings(ctx context.Context) (*store.ListingSet, error)
	RecordSubmission(ctx context.Context, sub model.Submission) error
}

// Estimator runs the estimate flow: geocode, listings, cost model, filter,
// rank.
type Estimator struct {
	geocoder geocode.Client
	contours isoapi.Client
	store    Store

	listingCfg listing.Config
	reuse      bool

	mu  sync.Mutex // guards rnd
	rnd *rand.Rand

	now func() time.Time
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithListingConfig sets how listings are generated.
func WithListingConfig(cfg listing.Config) Option {
	return func(e *Estimator) {
		e.listingCfg = cfg
		e.rnd = listing.NewRand(cfg)
	}
}

// WithReuseListings serves the cached listing set when one exists instead of
// regenerating on every estimate.
func WithReuseListings(reuse bool) Option {
	return func(e *Estimator) {
		e.reuse = reuse
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) {
		e.now = now
	}
}

// New creates an Estimator.
func New(g geocode.Client, c isoapi.Client, st Store, opts ...Option) *Estimator {
	cfg := listing.DefaultConfig()
	e := &Estimator{
		geocoder:   g,
		contours:   c,
		store:      st,
		listingCfg: cfg,
		rnd:        listing.NewRand(cfg),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalize fills request defaults: top 3 per band, driving, isochrone.
func Normalize(req model.Request) model.Request {
	if req.TopN == 0 {
		req.TopN = rank.DefaultTopN
	}
	if req.Mode == "" {
		req.Mode = model.ModeDriving
	}
	if req.Policy == "" {
		req.Policy = model.PolicyIsochrone
	}
	return req
}

// Estimate runs one submission end to end and records it in the
// submission log.
func (e *Estimator) Estimate(ctx context.Context, req model.Request) (*model.Estimate, error) {
	req = Normalize(req)
	if errs := req.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	log := zap.L().With(
		zap.String("address", req.Address.OneLine()),
		zap.String("policy", string(req.Policy)),
		zap.String("mode", string(req.Mode)),
	)
	start := e.now()

	workplace, err := e.locate(ctx, req.Address)
	if err != nil {
		return nil, err
	}

	listings, err := e.Listings(ctx)
	if err != nil {
		return nil, err
	}

	policy, layers, err := e.policyFor(ctx, req, workplace)
	if err != nil {
		return nil, err
	}

	results := rank.Filter(commute.AdjustAll(policy, listings), rank.CriteriaFor(req))
	est := &model.Estimate{
		ID:        uuid.New().String(),
		Request:   req,
		Workplace: workplace,
		Results:   results,
		Top:       rank.TopPerBand(results, req.TopN),
		Layers:    layers,
		CreatedAt: e.now().UTC(),
	}

	if err := e.store.RecordSubmission(ctx, est.Summarize()); err != nil {
		log.Warn("pipeline: failed to record submission", zap.Error(err))
	}

	log.Info("pipeline: estimate complete",
		zap.String("id", est.ID),
		zap.Int("listings", len(listings)),
		zap.Int("matched", len(results)),
		zap.Int("top", len(est.Top)),
		zap.Duration("elapsed", e.now().Sub(start)),
	)
	return est, nil
}

func (e *Estimator) locate(ctx context.Context, addr model.Address) (model.Workplace, error) {
	res, err := e.geocoder.Geocode(ctx, geocode.AddressInput{
		Street:  addr.Street,
		City:    addr.City,
		State:   addr.State,
		ZipCode: addr.ZipCode,
	})
	if err != nil {
		return model.Workplace{}, &UpstreamError{Service: "geocode", Err: err}
	}
	if res == nil || !res.Matched {
		return model.Workplace{}, ErrAddressNotFound
	}
	return model.Workplace{
		Address: addr.Display(),
		Lat:     res.Latitude,
		Lon:     res.Longitude,
	}, nil
}

func (e *Estimator) policyFor(ctx context.Context, req model.Request, wp model.Workplace) (commute.Policy, []byte, error) {
	if req.Policy == model.PolicyDistance {
		return commute.DistancePolicy{Workplace: wp, HourlyWage: req.HourlyWage, SpeedMPH: req.SpeedMPH}, nil, nil
	}

	features, err := isoapi.FetchBands(ctx, e.contours,
		isoapi.Origin{Lat: wp.Lat, Lon: wp.Lon}, string(req.Mode), isochrone.Contours)
	if err != nil {
		return nil, nil, &UpstreamError{Service: "isochrone", Err: err}
	}
	bands, err := isochrone.NewBands(features)
	if err != nil {
		return nil, nil, &UpstreamError{Service: "isochrone", Err: err}
	}
	layers, err := bands.Layers()
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: isochrone layers")
	}
	return commute.IsochronePolicy{Workplace: wp, HourlyWage: req.HourlyWage, Bands: bands}, layers, nil
}

// Listings returns the listing set for an estimate. Unless reuse is on, a
// fresh set is generated and replaces the cached one.
func (e *Estimator) Listings(ctx context.Context) ([]model.Listing, error) {
	if e.reuse {
		set, err := e.store.LatestListings(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: load listings")
		}
		if set != nil && len(set.Listings) > 0 {
			return set.Listings, nil
		}
	}
	set, err := e.Regenerate(ctx)
	if err != nil {
		return nil, err
	}
	return set.Listings, nil
}

// Regenerate builds a new listing set and stores it as the latest.
func (e *Estimator) Regenerate(ctx context.Context) (*store.ListingSet, error) {
	e.mu.Lock()
	listings := listing.Generate(e.listingCfg, e.rnd)
	e.mu.Unlock()

	set, err := e.store.SaveListings(ctx, listings)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: save listings")
	}
	zap.L().Debug("pipeline: listings regenerated",
		zap.String("batch_id", set.BatchID),
		zap.Int("count", len(listings)),
	)
	return set, nil
}
