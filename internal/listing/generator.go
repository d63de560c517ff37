// Package listing generates the synthetic apartment listings that stand in
// for scraped inventory.
package listing

import (
	"math/rand/v2"
	"time"

	"github.com/sells-group/commute-rent/internal/model"
)

// BBox bounds the area listings are scattered over.
type BBox struct {
	MinLat float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MinLon float64 `yaml:"min_lon" mapstructure:"min_lon"`
	MaxLat float64 `yaml:"max_lat" mapstructure:"max_lat"`
	MaxLon float64 `yaml:"max_lon" mapstructure:"max_lon"`
}

// Contains reports whether the point lies inside the box (edges inclusive).
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// DCMetro covers the immediate DC/MD/VA area.
var DCMetro = BBox{
	MinLat: 38.79255073884452,
	MinLon: -77.45517065148175,
	MaxLat: 39.10243088446053,
	MaxLon: -76.9218509753054,
}

// UnitSpec controls how many listings of one unit type are generated and at
// what rents.
type UnitSpec struct {
	Count   int `yaml:"count" mapstructure:"count"`
	LowRent int `yaml:"low_rent" mapstructure:"low_rent"`
}

// Config controls listing generation.
type Config struct {
	Units map[model.UnitType]UnitSpec
	// RentSpread is added to LowRent to get the inclusive upper rent.
	RentSpread int
	BBox       BBox
	// Seed makes generation reproducible. Zero seeds from the clock.
	Seed uint64
}

// DefaultConfig returns the inventory mix: 1000 of each unit type.
func DefaultConfig() Config {
	return Config{
		Units: map[model.UnitType]UnitSpec{
			model.UnitStudio: {Count: 1000, LowRent: 1500},
			model.UnitOneBR:  {Count: 1000, LowRent: 1700},
			model.UnitTwoBR:  {Count: 1000, LowRent: 2200},
		},
		RentSpread: 1000,
		BBox:       DCMetro,
	}
}

// NewRand builds the random source for cfg.
func NewRand(cfg Config) *rand.Rand {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Generate produces listings grouped by unit type (studio, 1_br, 2_br) with
// sequential IDs starting at 1.
func Generate(cfg Config, rnd *rand.Rand) []model.Listing {
	total := 0
	for _, uc := range cfg.Units {
		total += max(uc.Count, 0)
	}
	out := make([]model.Listing, 0, total)

	latRange := cfg.BBox.MaxLat - cfg.BBox.MinLat
	lonRange := cfg.BBox.MaxLon - cfg.BBox.MinLon
	spread := max(cfg.RentSpread, 0)

	id := 1
	for _, unit := range model.AllUnitTypes {
		uc, ok := cfg.Units[unit]
		if !ok {
			continue
		}
		for range uc.Count {
			out = append(out, model.Listing{
				ID:       id,
				Rent:     uc.LowRent + rnd.IntN(spread+1),
				Lat:      cfg.BBox.MinLat + rnd.Float64()*latRange,
				Lon:      cfg.BBox.MinLon + rnd.Float64()*lonRange,
				UnitType: unit,
			})
			id++
		}
	}
	return out
}
