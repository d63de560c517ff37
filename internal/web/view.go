package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"math"

	"github.com/sells-group/commute-rent/internal/model"
	"github.com/sells-group/commute-rent/internal/rank"
)

var funcs = template.FuncMap{
	"money": func(n int) string { return fmt.Sprintf("$%d", n) },
	"fixed": func(f float64) string { return fmt.Sprintf("%.1f", f) },
}

// formPage is the data for the form template.
type formPage struct {
	Form   formValues
	Error  string
	Fields map[string][]string
	Modes  []modeOption
	Units  []model.UnitType
}

type modeOption struct {
	Value string
	Label string
}

var modeOptions = []modeOption{
	{Value: string(model.ModeDriving), Label: "Drive"},
	{Value: string(model.ModeCycling), Label: "Bike"},
	{Value: string(model.ModeWalking), Label: "Walk"},
}

// resultPage is the data for the result template.
type resultPage struct {
	Estimate *model.Estimate
	Bands    []bandSummary
	Map      mapData
	Token    string
}

// bandSummary is one row of the per-band match counts.
type bandSummary struct {
	Band     model.Band
	Label    string
	Matched  int
	Cheapest int // lowest adjusted rent in the band, 0 when Matched is 0
}

// summarizeBands counts matched listings per band, nearest band first.
func summarizeBands(results []model.RankedResult) []bandSummary {
	groups := rank.GroupByBand(results)
	out := make([]bandSummary, 0, model.NumBands)
	for b := model.BandUnder10; b <= model.BandOutside; b++ {
		sum := bandSummary{Band: b, Label: b.Label(), Matched: len(groups[b])}
		for _, r := range groups[b] {
			if sum.Cheapest == 0 || r.AdjustedRent < sum.Cheapest {
				sum.Cheapest = r.AdjustedRent
			}
		}
		out = append(out, sum)
	}
	return out
}

// mapPoint is one listing marker.
type mapPoint struct {
	ID           int     `json:"id"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Rent         int     `json:"rent"`
	AdjustedRent int     `json:"adjusted_rent"`
	UnitType     string  `json:"unit_type"`
	Band         string  `json:"band"`
	Color        string  `json:"color"`
}

// mapData is serialized into the page script.
type mapData struct {
	Workplace model.Workplace `json:"workplace"`
	Points    []mapPoint      `json:"points"`
	Layers    json.RawMessage `json:"layers,omitempty"`
}

func buildMapData(est *model.Estimate) mapData {
	lo, hi := math.MaxInt, math.MinInt
	for _, r := range est.Results {
		lo = min(lo, r.AdjustedRent)
		hi = max(hi, r.AdjustedRent)
	}

	points := make([]mapPoint, len(est.Results))
	for i, r := range est.Results {
		points[i] = mapPoint{
			ID:           r.ID,
			Lat:          r.Lat,
			Lon:          r.Lon,
			Rent:         r.Rent,
			AdjustedRent: r.AdjustedRent,
			UnitType:     r.UnitType.Label(),
			Band:         r.BandLabel,
			Color:        rentColor(r.AdjustedRent, lo, hi),
		}
	}
	return mapData{Workplace: est.Workplace, Points: points, Layers: est.Layers}
}

// rentScale runs from cheap (dark blue) to expensive (yellow).
var rentScale = [][3]float64{
	{13, 8, 135},
	{126, 3, 168},
	{204, 71, 120},
	{248, 149, 64},
	{240, 249, 33},
}

// rentColor maps v within [lo, hi] onto rentScale as a hex color.
func rentColor(v, lo, hi int) string {
	t := 0.0
	if hi > lo {
		t = float64(v-lo) / float64(hi-lo)
	}
	t = math.Max(0, math.Min(1, t))

	pos := t * float64(len(rentScale)-1)
	i := int(pos)
	if i >= len(rentScale)-1 {
		i = len(rentScale) - 2
	}
	frac := pos - float64(i)
	a, b := rentScale[i], rentScale[i+1]
	ch := func(k int) int {
		return int(math.Round(a[k] + (b[k]-a[k])*frac))
	}
	return fmt.Sprintf("#%02x%02x%02x", ch(0), ch(1), ch(2))
}
