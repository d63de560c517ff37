package model

import "math"

// Band is a discrete commute-time category. Bands 0-3 correspond to the
// four isochrone contours (10, 20, 30, 40 minutes); BandOutside collects
// everything beyond the largest contour.
type Band int

const (
	BandUnder10 Band = iota
	Band10To20
	Band20To30
	Band30To40
	BandOutside

	// NumBands counts every band including BandOutside.
	NumBands = int(BandOutside) + 1
)

// BandMinutes is the width of a single band.
const BandMinutes = 10

var bandLabels = [NumBands]string{"<10", "10-20", "20-30", "30-40", ">40"}

// Label returns the commute-time label used in the ranked table.
func (b Band) Label() string {
	if b < BandUnder10 || b > BandOutside {
		return bandLabels[BandOutside]
	}
	return bandLabels[b]
}

// UpperMinutes is the travel time charged for a listing in this band.
// BandOutside is charged one band beyond the last contour.
func (b Band) UpperMinutes() int {
	return (int(b) + 1) * BandMinutes
}

// BandForMinutes buckets a continuous commute time into a band. NaN and
// anything at or beyond the last contour land in BandOutside.
func BandForMinutes(minutes float64) Band {
	switch {
	case math.IsNaN(minutes) || minutes >= float64(int(BandOutside)*BandMinutes):
		return BandOutside
	case minutes < 0:
		return BandUnder10
	}
	return Band(int(minutes) / BandMinutes)
}
