package model

import (
	"encoding/json"
	"time"
)

// RankedResult is a listing together with its commute-derived fields.
type RankedResult struct {
	Listing
	DistanceMiles  float64 `json:"distance_miles"`
	CommuteMinutes float64 `json:"commute_minutes"`
	Band           Band    `json:"band"`
	BandLabel      string  `json:"commute_band"`
	AdjustedRent   int     `json:"adjusted_rent"`
}

// Estimate is the full output of one submission.
type Estimate struct {
	ID        string         `json:"id"`
	Request   Request        `json:"request"`
	Workplace Workplace      `json:"workplace"`
	Results   []RankedResult `json:"results"`
	Top       []RankedResult `json:"top"`
	// Layers holds the isochrone polygons as a GeoJSON FeatureCollection.
	// Empty for the distance policy.
	Layers    json.RawMessage `json:"layers,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Submission is the stored summary of an Estimate.
type Submission struct {
	ID        string         `json:"id"`
	Address   string         `json:"address"`
	Policy    Policy         `json:"policy"`
	Mode      TravelMode     `json:"mode"`
	Lat       float64        `json:"lat"`
	Lon       float64        `json:"lon"`
	Matched   int            `json:"matched"`
	Top       []RankedResult `json:"top"`
	CreatedAt time.Time      `json:"created_at"`
}

// Summarize reduces an Estimate to the row kept in the submission log.
func (e *Estimate) Summarize() Submission {
	return Submission{
		ID:        e.ID,
		Address:   e.Workplace.Address,
		Policy:    e.Request.Policy,
		Mode:      e.Request.Mode,
		Lat:       e.Workplace.Lat,
		Lon:       e.Workplace.Lon,
		Matched:   len(e.Results),
		Top:       e.Top,
		CreatedAt: e.CreatedAt,
	}
}
