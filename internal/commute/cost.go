// Package commute converts travel metrics into a monthly dollar cost and
// adds it to nominal rent.
package commute

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/sells-group/commute-rent/internal/model"
)

// EarthRadiusMiles is the mean Earth radius used for great-circle distance.
const EarthRadiusMiles = 3958.7613

// Monthly commute assumptions.
const (
	TripsPerDay    = 2  // round trip
	WorkdaysPerMon = 20 // workdays per month
)

// Policy computes the commute-adjusted result for one listing.
type Policy interface {
	Name() model.Policy
	Adjust(l model.Listing) model.RankedResult
}

// DistanceMiles returns the great-circle distance between two points in miles.
func DistanceMiles(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMiles
}

// MonthlyCost is the dollar value of commuting `minutes` each way at `wage`
// dollars per hour.
func MonthlyCost(minutes, wage float64) float64 {
	return minutes / 60 * wage * TripsPerDay * WorkdaysPerMon
}

// DistancePolicy charges straight-line distance divided by an assumed speed.
type DistancePolicy struct {
	Workplace  model.Workplace
	HourlyWage float64
	SpeedMPH   float64
}

// Name implements Policy.
func (p DistancePolicy) Name() model.Policy { return model.PolicyDistance }

// Adjust implements Policy. A listing at the workplace has zero commute cost.
func (p DistancePolicy) Adjust(l model.Listing) model.RankedResult {
	miles := DistanceMiles(l.Lat, l.Lon, p.Workplace.Lat, p.Workplace.Lon)
	minutes := 0.0
	if p.SpeedMPH > 0 {
		minutes = miles / p.SpeedMPH * 60
	}
	band := model.BandForMinutes(minutes)
	return model.RankedResult{
		Listing:        l,
		DistanceMiles:  miles,
		CommuteMinutes: minutes,
		Band:           band,
		BandLabel:      band.Label(),
		AdjustedRent:   adjust(l.Rent, MonthlyCost(minutes, p.HourlyWage)),
	}
}

// Classifier assigns a listing location to a band.
type Classifier interface {
	Classify(lat, lon float64) model.Band
}

// IsochronePolicy charges the upper bound of the travel-time band a listing
// falls in. Listings beyond every contour are charged one band further out.
type IsochronePolicy struct {
	Workplace  model.Workplace
	HourlyWage float64
	Bands      Classifier
}

// Name implements Policy.
func (p IsochronePolicy) Name() model.Policy { return model.PolicyIsochrone }

// Adjust implements Policy.
func (p IsochronePolicy) Adjust(l model.Listing) model.RankedResult {
	band := p.Bands.Classify(l.Lat, l.Lon)
	minutes := float64(band.UpperMinutes())
	return model.RankedResult{
		Listing:        l,
		DistanceMiles:  DistanceMiles(l.Lat, l.Lon, p.Workplace.Lat, p.Workplace.Lon),
		CommuteMinutes: minutes,
		Band:           band,
		BandLabel:      band.Label(),
		AdjustedRent:   adjust(l.Rent, MonthlyCost(minutes, p.HourlyWage)),
	}
}

// AdjustAll applies p to every listing, preserving order.
func AdjustAll(p Policy, listings []model.Listing) []model.RankedResult {
	out := make([]model.RankedResult, len(listings))
	for i, l := range listings {
		out[i] = p.Adjust(l)
	}
	return out
}

// adjust truncates rent+cost to whole dollars. Negative or NaN costs count
// as zero so adjusted rent never drops below rent; totals past math.MaxInt
// saturate.
func adjust(rent int, cost float64) int {
	if cost <= 0 || math.IsNaN(cost) {
		return rent
	}
	total := float64(rent) + cost
	if total >= float64(math.MaxInt) {
		return math.MaxInt
	}
	return max(int(total), rent)
}
