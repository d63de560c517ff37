package web

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/sells-group/commute-rent/internal/model"
)

// formValues is what the form template renders, either the configured
// defaults or the values the user last submitted.
type formValues struct {
	Street      string
	City        string
	State       string
	Zip         string
	HourlyWage  string
	SpeedMPH    string
	Mode        string
	Policy      string
	MinRent     string
	MaxRent     string
	RentFloor   int
	RentCeiling int
	UnitTypes   map[model.UnitType]bool
}

func (d Defaults) formValues() formValues {
	units := make(map[model.UnitType]bool, len(model.AllUnitTypes))
	for _, u := range model.AllUnitTypes {
		units[u] = true
	}
	return formValues{
		Street:      d.Address.Street,
		City:        d.Address.City,
		State:       d.Address.State,
		Zip:         d.Address.ZipCode,
		HourlyWage:  formatFloat(d.HourlyWage),
		SpeedMPH:    formatFloat(d.SpeedMPH),
		Mode:        string(d.Mode),
		Policy:      string(d.Policy),
		MinRent:     strconv.Itoa(d.MinRent),
		MaxRent:     strconv.Itoa(d.MaxRent),
		RentFloor:   d.RentFloor,
		RentCeiling: d.RentCeiling,
		UnitTypes:   units,
	}
}

// echo returns the submitted values so a rejected form keeps its input.
func (d Defaults) echo(form url.Values) formValues {
	fv := d.formValues()
	fv.Street = form.Get("street")
	fv.City = form.Get("city")
	fv.State = form.Get("state")
	fv.Zip = form.Get("zip")
	fv.HourlyWage = form.Get("hourly_wage")
	fv.SpeedMPH = form.Get("speed_mph")
	fv.Mode = form.Get("mode")
	fv.Policy = form.Get("policy")
	fv.MinRent = form.Get("min_rent")
	fv.MaxRent = form.Get("max_rent")
	fv.UnitTypes = make(map[model.UnitType]bool)
	for _, v := range form["unit_type"] {
		if u, err := model.ParseUnitType(v); err == nil {
			fv.UnitTypes[u] = true
		}
	}
	return fv
}

// parseForm converts submitted form values into a request. Empty numeric
// fields fall back to the defaults. The returned map holds per-field
// parse errors.
func (d Defaults) parseForm(form url.Values) (model.Request, map[string][]string) {
	errs := make(map[string][]string)
	add := func(field, msg string) {
		errs[field] = append(errs[field], msg)
	}

	req := model.Request{
		Address: model.Address{
			Street:  strings.TrimSpace(form.Get("street")),
			City:    strings.TrimSpace(form.Get("city")),
			State:   strings.TrimSpace(form.Get("state")),
			ZipCode: strings.TrimSpace(form.Get("zip")),
		},
		HourlyWage: d.HourlyWage,
		SpeedMPH:   d.SpeedMPH,
		MinRent:    d.MinRent,
		MaxRent:    d.MaxRent,
		TopN:       d.TopN,
	}

	floatField := func(name string, dst *float64) {
		v := strings.TrimSpace(form.Get(name))
		if v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			add(name, "must be a number")
			return
		}
		*dst = f
	}
	intField := func(name string, dst *int) {
		v := strings.TrimSpace(form.Get(name))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			add(name, "must be a whole number")
			return
		}
		*dst = n
	}

	floatField("hourly_wage", &req.HourlyWage)
	floatField("speed_mph", &req.SpeedMPH)
	intField("min_rent", &req.MinRent)
	intField("max_rent", &req.MaxRent)
	intField("top_n", &req.TopN)

	modeValue := form.Get("mode")
	if modeValue == "" {
		modeValue = string(d.Mode)
	}
	mode, err := model.ParseTravelMode(modeValue)
	if err != nil {
		add("mode", "unknown travel mode")
	}
	req.Mode = mode

	policy := form.Get("policy")
	if policy == "" {
		policy = string(d.Policy)
	}
	p, err := model.ParsePolicy(policy)
	if err != nil {
		add("policy", "unknown policy")
	}
	req.Policy = p

	for _, v := range form["unit_type"] {
		u, err := model.ParseUnitType(v)
		if err != nil {
			add("unit_types", "unknown unit type "+v)
			continue
		}
		req.UnitTypes = append(req.UnitTypes, u)
	}

	if req.MinRent < d.RentFloor || (d.RentCeiling > 0 && req.MaxRent > d.RentCeiling) {
		add("rent_range", "rent range must stay within "+strconv.Itoa(d.RentFloor)+" to "+strconv.Itoa(d.RentCeiling))
	}
	return req, errs
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
