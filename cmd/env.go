package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commute-rent/internal/config"
	"github.com/sells-group/commute-rent/internal/listing"
	"github.com/sells-group/commute-rent/internal/model"
	"github.com/sells-group/commute-rent/internal/pipeline"
	"github.com/sells-group/commute-rent/internal/resilience"
	"github.com/sells-group/commute-rent/internal/store"
	"github.com/sells-group/commute-rent/internal/web"
	"github.com/sells-group/commute-rent/pkg/geocode"
	"github.com/sells-group/commute-rent/pkg/isochrone"
)

// appEnv holds the store and estimator shared by the serve and estimate
// commands.
type appEnv struct {
	Store     store.Store
	Estimator *pipeline.Estimator
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		return store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func listingConfig(c config.ListingsConfig) listing.Config {
	lc := listing.DefaultConfig()
	if c.CountPerType > 0 {
		for _, u := range model.AllUnitTypes {
			uc := lc.Units[u]
			uc.Count = c.CountPerType
			lc.Units[u] = uc
		}
	}
	setLow := func(u model.UnitType, low int) {
		if low > 0 {
			uc := lc.Units[u]
			uc.LowRent = low
			lc.Units[u] = uc
		}
	}
	setLow(model.UnitStudio, c.StudioLowRent)
	setLow(model.UnitOneBR, c.OneBRLowRent)
	setLow(model.UnitTwoBR, c.TwoBRLowRent)
	if c.RentSpread > 0 {
		lc.RentSpread = c.RentSpread
	}
	lc.Seed = c.Seed
	return lc
}

func retryConfig(c config.RetryConfig) resilience.RetryConfig {
	return resilience.FromRetryConfig(c.MaxAttempts, c.InitialBackoffMs, c.MaxBackoffMs)
}

func geocodeClient(c *config.Config, cache geocode.Cache) geocode.Client {
	opts := []geocode.Option{
		geocode.WithCountry(c.Mapbox.Country),
		geocode.WithRetry(withRetryLog(retryConfig(c.Retry), "geocode")),
	}
	if c.Mapbox.BaseURL != "" {
		opts = append(opts, geocode.WithBaseURL(c.Mapbox.BaseURL))
	}
	if c.Mapbox.RateLimit > 0 {
		opts = append(opts, geocode.WithRateLimit(c.Mapbox.RateLimit))
	}
	if c.Mapbox.RestrictToArea {
		b := listing.DCMetro
		opts = append(opts, geocode.WithBBox(geocode.BBox{
			MinLon: b.MinLon, MinLat: b.MinLat, MaxLon: b.MaxLon, MaxLat: b.MaxLat,
		}))
	}
	client := geocode.NewClient(c.Mapbox.Token, opts...)
	if cache == nil {
		return client
	}
	ttl := time.Duration(c.Mapbox.GeocodeCacheTTLHours) * time.Hour
	return geocode.NewCachedClient(client, cache, ttl)
}

func isochroneClient(c *config.Config) isochrone.Client {
	opts := []isochrone.Option{
		isochrone.WithRetry(withRetryLog(retryConfig(c.Retry), "isochrone")),
	}
	if c.Mapbox.BaseURL != "" {
		opts = append(opts, isochrone.WithBaseURL(c.Mapbox.BaseURL))
	}
	if c.Mapbox.RateLimit > 0 {
		opts = append(opts, isochrone.WithRateLimit(c.Mapbox.RateLimit))
	}
	return isochrone.NewClient(c.Mapbox.Token, opts...)
}

func withRetryLog(rc resilience.RetryConfig, service string) resilience.RetryConfig {
	rc.OnRetry = resilience.RetryLogger(service, "request")
	return rc
}

// initApp opens the store and wires the Mapbox clients into an estimator.
// Callers should defer env.Close().
func initApp(ctx context.Context, c *config.Config) (*appEnv, error) {
	if err := c.RequireMapbox(); err != nil {
		return nil, err
	}
	st, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}

	est := pipeline.New(
		geocodeClient(c, st),
		isochroneClient(c),
		st,
		pipeline.WithListingConfig(listingConfig(c.Listings)),
		pipeline.WithReuseListings(c.Listings.Reuse),
	)

	zap.L().Debug("app initialized",
		zap.String("store", c.Store.Driver),
		zap.Bool("reuse_listings", c.Listings.Reuse),
	)
	return &appEnv{Store: st, Estimator: est}, nil
}

// formDefaults converts the commute section into form and request defaults.
func formDefaults(c config.CommuteConfig) web.Defaults {
	mode, err := model.ParseTravelMode(c.Mode)
	if err != nil {
		mode = model.ModeDriving
	}
	policy, err := model.ParsePolicy(c.Policy)
	if err != nil {
		policy = model.PolicyIsochrone
	}
	return web.Defaults{
		Address: model.Address{
			Street:  c.DefaultStreet,
			City:    c.DefaultCity,
			State:   c.DefaultState,
			ZipCode: c.DefaultZip,
		},
		HourlyWage:  c.HourlyWage,
		SpeedMPH:    c.SpeedMPH,
		Mode:        mode,
		Policy:      policy,
		MinRent:     c.MinRent,
		MaxRent:     c.MaxRent,
		RentFloor:   c.RentFloor,
		RentCeiling: c.RentCeiling,
		TopN:        c.TopN,
	}
}
