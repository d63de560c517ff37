// Package export renders an estimate's ranked table in the formats the CLI
// offers.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/commute-rent/internal/model"
)

// Format is an output format name.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
)

// Formats lists every supported format.
var Formats = []Format{FormatTable, FormatJSON, FormatYAML, FormatCSV, FormatXLSX}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", eris.Errorf("export: unknown format %q", s)
}

// Binary reports whether the format should not be written to a terminal.
func (f Format) Binary() bool {
	return f == FormatXLSX
}

// Row is one line of the ranked table.
type Row struct {
	ID             int     `csv:"id" json:"id" yaml:"id"`
	UnitType       string  `csv:"unit_type" json:"unit_type" yaml:"unit_type"`
	Rent           int     `csv:"rent" json:"rent" yaml:"rent"`
	AdjustedRent   int     `csv:"adjusted_rent" json:"adjusted_rent" yaml:"adjusted_rent"`
	CommuteBand    string  `csv:"commute_band" json:"commute_band" yaml:"commute_band"`
	CommuteMinutes float64 `csv:"commute_minutes" json:"commute_minutes" yaml:"commute_minutes"`
	DistanceMiles  float64 `csv:"distance_miles" json:"distance_miles" yaml:"distance_miles"`
	Lat            float64 `csv:"lat" json:"lat" yaml:"lat"`
	Lon            float64 `csv:"lon" json:"lon" yaml:"lon"`
}

var headers = []string{
	"ID", "Unit type", "Rent", "Adjusted rent", "Commute",
	"Minutes", "Miles", "Lat", "Lon",
}

// Rows flattens ranked results into table rows.
func Rows(results []model.RankedResult) []Row {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = Row{
			ID:             r.ID,
			UnitType:       r.UnitType.Label(),
			Rent:           r.Rent,
			AdjustedRent:   r.AdjustedRent,
			CommuteBand:    r.BandLabel,
			CommuteMinutes: round2(r.CommuteMinutes),
			DistanceMiles:  round2(r.DistanceMiles),
			Lat:            r.Lat,
			Lon:            r.Lon,
		}
	}
	return rows
}

// Write renders est in the given format. Tabular formats carry the top
// results only; json and yaml carry the whole estimate summary.
func Write(w io.Writer, format Format, est *model.Estimate) error {
	switch format {
	case FormatTable:
		return WriteTable(w, est)
	case FormatJSON:
		return WriteJSON(w, est)
	case FormatYAML:
		return WriteYAML(w, est)
	case FormatCSV:
		return WriteCSV(w, Rows(est.Top))
	case FormatXLSX:
		return WriteXLSX(w, Rows(est.Top))
	}
	return eris.Errorf("export: unknown format %q", format)
}

// WriteTable prints a short header and the ranked table.
func WriteTable(w io.Writer, est *model.Estimate) error {
	fmt.Fprintf(w, "Workplace: %s (%.5f, %.5f)\n", est.Workplace.Address, est.Workplace.Lat, est.Workplace.Lon)
	fmt.Fprintf(w, "Policy: %s  Mode: %s  Matched: %d\n\n", est.Request.Policy, est.Request.Mode, len(est.Results))

	if len(est.Top) == 0 {
		if _, err := fmt.Fprintln(w, "No listings match the selected filters."); err != nil {
			return eris.Wrap(err, "export: write table")
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers[:5], "\t"))
	for _, r := range Rows(est.Top) {
		fmt.Fprintf(tw, "%d\t%s\t$%d\t$%d\t%s\n", r.ID, r.UnitType, r.Rent, r.AdjustedRent, r.CommuteBand)
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "export: write table")
	}
	return nil
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(rows) == 0 {
		if err := enc.EncodeHeader(Row{}); err != nil {
			return eris.Wrap(err, "export: csv header")
		}
	} else if err := enc.Encode(rows); err != nil {
		return eris.Wrap(err, "export: csv encode")
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: csv flush")
	}
	return nil
}

// WriteXLSX writes rows to a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Ranked listings")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range headers {
		header.AddCell().SetString(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetInt(r.ID)
		row.AddCell().SetString(r.UnitType)
		row.AddCell().SetInt(r.Rent)
		row.AddCell().SetInt(r.AdjustedRent)
		row.AddCell().SetString(r.CommuteBand)
		row.AddCell().SetFloat(r.CommuteMinutes)
		row.AddCell().SetFloat(r.DistanceMiles)
		row.AddCell().SetFloat(r.Lat)
		row.AddCell().SetFloat(r.Lon)
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

// Summary is the serializable view of an estimate used by json and yaml.
type Summary struct {
	ID        string  `json:"id" yaml:"id"`
	Address   string  `json:"address" yaml:"address"`
	Lat       float64 `json:"lat" yaml:"lat"`
	Lon       float64 `json:"lon" yaml:"lon"`
	Policy    string  `json:"policy" yaml:"policy"`
	Mode      string  `json:"mode" yaml:"mode"`
	MinRent   int     `json:"min_rent" yaml:"min_rent"`
	MaxRent   int     `json:"max_rent" yaml:"max_rent"`
	Matched   int     `json:"matched" yaml:"matched"`
	CreatedAt string  `json:"created_at" yaml:"created_at"`
	Top       []Row   `json:"top" yaml:"top"`
}

// Summarize builds the json/yaml view of est.
func Summarize(est *model.Estimate) Summary {
	return Summary{
		ID:        est.ID,
		Address:   est.Workplace.Address,
		Lat:       est.Workplace.Lat,
		Lon:       est.Workplace.Lon,
		Policy:    string(est.Request.Policy),
		Mode:      string(est.Request.Mode),
		MinRent:   est.Request.MinRent,
		MaxRent:   est.Request.MaxRent,
		Matched:   len(est.Results),
		CreatedAt: est.CreatedAt.Format(time.RFC3339),
		Top:       Rows(est.Top),
	}
}

// WriteJSON writes the indented summary.
func WriteJSON(w io.Writer, est *model.Estimate) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Summarize(est)); err != nil {
		return eris.Wrap(err, "export: encode json")
	}
	return nil
}

// WriteYAML writes the summary as YAML.
func WriteYAML(w io.Writer, est *model.Estimate) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Summarize(est)); err != nil {
		return eris.Wrap(err, "export: encode yaml")
	}
	if err := enc.Close(); err != nil {
		return eris.Wrap(err, "export: close yaml")
	}
	return nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
