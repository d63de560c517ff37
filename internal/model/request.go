package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrInvalidRequest marks user input that failed validation.
var ErrInvalidRequest = errors.New("invalid request")

// TravelMode is the routing profile used for isochrones.
type TravelMode string

const (
	ModeDriving TravelMode = "driving"
	ModeCycling TravelMode = "cycling"
	ModeWalking TravelMode = "walking"
)

// ParseTravelMode accepts the routing profile name or the UI label
// (Drive, Bike, Walk).
func ParseTravelMode(s string) (TravelMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "driving", "drive", "":
		return ModeDriving, nil
	case "cycling", "bike":
		return ModeCycling, nil
	case "walking", "walk":
		return ModeWalking, nil
	}
	return "", eris.Wrapf(ErrInvalidRequest, "unknown travel mode %q", s)
}

// Policy selects the commute cost model.
type Policy string

const (
	PolicyDistance  Policy = "distance"
	PolicyIsochrone Policy = "isochrone"
)

// ParsePolicy parses a policy name, defaulting to isochrone.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "isochrone", "":
		return PolicyIsochrone, nil
	case "distance":
		return PolicyDistance, nil
	}
	return "", eris.Wrapf(ErrInvalidRequest, "unknown policy %q", s)
}

// Address is the free-text workplace address split the way the form collects it.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip"`
}

// OneLine joins the non-empty parts with single spaces.
func (a Address) OneLine() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.City, a.State, a.ZipCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Display returns the address with title-cased street and city and an
// upper-cased state, so "932 n kenmore st" reads as "932 N Kenmore St".
func (a Address) Display() string {
	title := cases.Title(language.English)
	return Address{
		Street:  title.String(strings.TrimSpace(a.Street)),
		City:    title.String(strings.TrimSpace(a.City)),
		State:   strings.ToUpper(strings.TrimSpace(a.State)),
		ZipCode: strings.TrimSpace(a.ZipCode),
	}.OneLine()
}

// Input bounds. Speed only applies to the distance policy.
const (
	MaxHourlyWage = 1000.0
	MinSpeedMPH   = 1.0
	MaxSpeedMPH   = 70.0
)

// Request is one form submission.
type Request struct {
	Address    Address    `json:"address"`
	HourlyWage float64    `json:"hourly_wage"`
	SpeedMPH   float64    `json:"speed_mph"`
	Mode       TravelMode `json:"mode"`
	Policy     Policy     `json:"policy"`
	MinRent    int        `json:"min_rent"`
	MaxRent    int        `json:"max_rent"`
	UnitTypes  []UnitType `json:"unit_types"`
	TopN       int        `json:"top_n"`
}

// Validate checks the request and returns per-field messages. An empty map
// means the request is usable.
func (r Request) Validate() map[string][]string {
	errs := make(map[string][]string)
	add := func(field, msg string) {
		errs[field] = append(errs[field], msg)
	}

	if r.Address.OneLine() == "" {
		add("address", "address is required")
	}
	if !(r.HourlyWage >= 0 && r.HourlyWage <= MaxHourlyWage) {
		add("hourly_wage", fmt.Sprintf("must be between 0 and %g", MaxHourlyWage))
	}
	if r.Policy == PolicyDistance && !(r.SpeedMPH >= MinSpeedMPH && r.SpeedMPH <= MaxSpeedMPH) {
		add("speed_mph", fmt.Sprintf("must be between %g and %g", MinSpeedMPH, MaxSpeedMPH))
	}
	if r.MinRent > r.MaxRent {
		add("rent_range", "min_rent must not exceed max_rent")
	}
	if len(r.UnitTypes) == 0 {
		add("unit_types", "select at least one unit type")
	}
	for _, u := range r.UnitTypes {
		if !u.Valid() {
			add("unit_types", "unknown unit type "+string(u))
		}
	}
	if r.TopN < 0 {
		add("top_n", "must not be negative")
	}
	return errs
}
