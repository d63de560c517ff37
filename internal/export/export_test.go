package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/commute-rent/internal/model"
)

func sampleEstimate() *model.Estimate {
	top := []model.RankedResult{
		{
			Listing:        model.Listing{ID: 101, Rent: 1600, Lat: 38.89, Lon: -77.10, UnitType: model.UnitStudio},
			DistanceMiles:  1.234,
			CommuteMinutes: 10,
			Band:           model.BandUnder10,
			BandLabel:      "<10",
			AdjustedRent:   1844,
		},
		{
			Listing:        model.Listing{ID: 7, Rent: 2300, Lat: 38.95, Lon: -77.02, UnitType: model.UnitTwoBR},
			DistanceMiles:  6.789,
			CommuteMinutes: 30,
			Band:           model.Band20To30,
			BandLabel:      "20-30",
			AdjustedRent:   3032,
		},
	}
	return &model.Estimate{
		ID: "est-1",
		Request: model.Request{
			Policy:  model.PolicyIsochrone,
			Mode:    model.ModeDriving,
			MinRent: 1500,
			MaxRent: 3500,
		},
		Workplace: model.Workplace{Address: "932 N Kenmore St Arlington VA 22201", Lat: 38.8816, Lon: -77.1073},
		Results:   append([]model.RankedResult{}, top...),
		Top:       top,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"table", "JSON", " yaml ", "csv", "xlsx"} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseFormat("pdf")
	assert.ErrorContains(t, err, "unknown format")

	assert.True(t, FormatXLSX.Binary())
	assert.False(t, FormatCSV.Binary())
}

func TestRows(t *testing.T) {
	rows := Rows(sampleEstimate().Top)
	require.Len(t, rows, 2)
	assert.Equal(t, 101, rows[0].ID)
	assert.Equal(t, "Studio", rows[0].UnitType)
	assert.Equal(t, 1844, rows[0].AdjustedRent)
	assert.InDelta(t, 1.23, rows[0].DistanceMiles, 1e-9)
	assert.Equal(t, "Two bedrooms", rows[1].UnitType)
	assert.Equal(t, "20-30", rows[1].CommuteBand)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatTable, sampleEstimate()))

	out := buf.String()
	assert.Contains(t, out, "Workplace: 932 N Kenmore St Arlington VA 22201")
	assert.Contains(t, out, "Policy: isochrone")
	assert.Contains(t, out, "Adjusted rent")
	assert.Contains(t, out, "$1844")
	assert.Contains(t, out, "20-30")
}

func TestWriteTable_Empty(t *testing.T) {
	est := sampleEstimate()
	est.Top = nil
	est.Results = nil

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, est))
	assert.Contains(t, buf.String(), "No listings match")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleEstimate()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,unit_type,rent,adjusted_rent,commute_band,commute_minutes,distance_miles,lat,lon", lines[0])

	var rows []Row
	require.NoError(t, csvutil.Unmarshal(buf.Bytes(), &rows))
	assert.Equal(t, Rows(sampleEstimate().Top), rows)
}

func TestWriteCSV_HeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "id,unit_type,rent,adjusted_rent,commute_band,commute_minutes,distance_miles,lat,lon\n", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sampleEstimate()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "Ranked listings", sheet.Name)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "Adjusted rent", sheet.Rows[0].Cells[3].String())
	assert.Equal(t, "Studio", sheet.Rows[1].Cells[1].String())

	adjusted, err := sheet.Rows[2].Cells[3].Int()
	require.NoError(t, err)
	assert.Equal(t, 3032, adjusted)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleEstimate()))

	var got Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "est-1", got.ID)
	assert.Equal(t, 2, got.Matched)
	assert.Equal(t, "2024-05-01T12:00:00Z", got.CreatedAt)
	require.Len(t, got.Top, 2)
	assert.Equal(t, 3032, got.Top[1].AdjustedRent)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, sampleEstimate()))
	assert.Contains(t, buf.String(), "address: 932 N Kenmore St Arlington VA 22201")

	var got Summary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "isochrone", got.Policy)
	assert.Equal(t, 1500, got.MinRent)
	require.Len(t, got.Top, 2)
	assert.Equal(t, "<10", got.Top[0].CommuteBand)
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, Format("pdf"), sampleEstimate())
	assert.ErrorContains(t, err, "unknown format")
}
