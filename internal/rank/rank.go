// Package rank filters commute-adjusted listings and picks the cheapest
// per commute band.
package rank

import (
	"sort"

	"github.com/sells-group/commute-rent/internal/model"
)

// DefaultTopN is how many listings per band the table shows.
const DefaultTopN = 3

// Criteria selects which results survive filtering.
type Criteria struct {
	MinRent   int
	MaxRent   int
	UnitTypes []model.UnitType
}

// CriteriaFor extracts the filter criteria from a request.
func CriteriaFor(req model.Request) Criteria {
	return Criteria{MinRent: req.MinRent, MaxRent: req.MaxRent, UnitTypes: req.UnitTypes}
}

// Filter keeps results whose adjusted rent lies within [MinRent, MaxRent]
// and whose unit type is selected. Order is preserved.
func Filter(results []model.RankedResult, c Criteria) []model.RankedResult {
	allowed := make(map[model.UnitType]bool, len(c.UnitTypes))
	for _, u := range c.UnitTypes {
		allowed[u] = true
	}

	out := make([]model.RankedResult, 0, len(results))
	for _, r := range results {
		if r.AdjustedRent < c.MinRent || r.AdjustedRent > c.MaxRent {
			continue
		}
		if !allowed[r.UnitType] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SortByAdjustedRent sorts in place, cheapest first. Ties break on
// listing ID so output is deterministic.
func SortByAdjustedRent(results []model.RankedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].AdjustedRent != results[j].AdjustedRent {
			return results[i].AdjustedRent < results[j].AdjustedRent
		}
		return results[i].ID < results[j].ID
	})
}

// TopPerBand returns at most n of the cheapest results in each band,
// ordered by adjusted rent. The input slice is not modified.
func TopPerBand(results []model.RankedResult, n int) []model.RankedResult {
	if n <= 0 {
		return nil
	}
	sorted := make([]model.RankedResult, len(results))
	copy(sorted, results)
	SortByAdjustedRent(sorted)

	var counts [model.NumBands]int
	out := make([]model.RankedResult, 0, min(len(sorted), n*model.NumBands))
	for _, r := range sorted {
		b := r.Band
		if b < model.BandUnder10 || b > model.BandOutside {
			b = model.BandOutside
		}
		if counts[b] >= n {
			continue
		}
		counts[b]++
		out = append(out, r)
	}
	return out
}

// GroupByBand splits results by band, keeping input order within each band.
func GroupByBand(results []model.RankedResult) map[model.Band][]model.RankedResult {
	out := make(map[model.Band][]model.RankedResult)
	for _, r := range results {
		out[r.Band] = append(out[r.Band], r)
	}
	return out
}
