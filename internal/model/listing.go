package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// UnitType is the apartment layout of a listing.
type UnitType string

const (
	UnitStudio UnitType = "studio"
	UnitOneBR  UnitType = "1_br"
	UnitTwoBR  UnitType = "2_br"
)

// AllUnitTypes lists every unit type in display order.
var AllUnitTypes = []UnitType{UnitStudio, UnitOneBR, UnitTwoBR}

// Label returns the human-readable form shown in the UI.
func (u UnitType) Label() string {
	switch u {
	case UnitStudio:
		return "Studio"
	case UnitOneBR:
		return "One bedroom"
	case UnitTwoBR:
		return "Two bedrooms"
	default:
		return string(u)
	}
}

// Valid reports whether u is a known unit type.
func (u UnitType) Valid() bool {
	switch u {
	case UnitStudio, UnitOneBR, UnitTwoBR:
		return true
	}
	return false
}

// ParseUnitType accepts either the stored value ("1_br") or the UI label
// ("One bedroom"), case-insensitively.
func ParseUnitType(s string) (UnitType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, u := range AllUnitTypes {
		if v == string(u) || v == strings.ToLower(u.Label()) {
			return u, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidRequest, "unknown unit type %q", s)
}

// Listing is a single rental unit. Listings are created by the generator
// and never mutated afterwards.
type Listing struct {
	ID       int      `json:"id"`
	Rent     int      `json:"rent"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	UnitType UnitType `json:"unit_type"`
}

// Workplace is the geocoded target location for a single submission.
type Workplace struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}
