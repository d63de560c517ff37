// Package isochrone classifies points into nested travel-time polygons.
package isochrone

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/commute-rent/internal/model"
)

// Contours are the minute thresholds of the four bands, innermost first.
var Contours = []int{10, 20, 30, 40}

// layerColors follows the map legend: green is close, purple is far.
var layerColors = map[int]string{
	10: "lime",
	20: "yellow",
	30: "red",
	40: "purple",
}

// band is one travel-time contour.
type band struct {
	minutes int
	polys   []*geom.Polygon
	bounds  *geom.Bounds
}

// Bands holds the four contour polygons ordered innermost first.
type Bands struct {
	bands []band
}

// NewBands builds Bands from isochrone features. Every threshold in
// Contours must be present exactly once, identified by the feature's
// "contour" property. Polygon and MultiPolygon geometries are accepted.
func NewBands(features []*geojson.Feature) (*Bands, error) {
	byMinutes := make(map[int]band, len(features))
	for i, f := range features {
		if f == nil || f.Geometry == nil {
			return nil, eris.Errorf("isochrone: feature %d has no geometry", i)
		}
		minutes, err := contourMinutes(f)
		if err != nil {
			return nil, eris.Wrapf(err, "isochrone: feature %d", i)
		}
		if _, dup := byMinutes[minutes]; dup {
			return nil, eris.Errorf("isochrone: duplicate contour %d", minutes)
		}
		polys, err := polygons(f.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "isochrone: contour %d", minutes)
		}
		byMinutes[minutes] = band{minutes: minutes, polys: polys, bounds: f.Geometry.Bounds()}
	}

	b := &Bands{bands: make([]band, 0, len(Contours))}
	for _, m := range Contours {
		bd, ok := byMinutes[m]
		if !ok {
			return nil, eris.Errorf("isochrone: missing %d minute contour", m)
		}
		b.bands = append(b.bands, bd)
	}
	sort.SliceStable(b.bands, func(i, j int) bool { return b.bands[i].minutes < b.bands[j].minutes })
	return b, nil
}

// Classify returns the innermost band whose polygon contains the point, or
// model.BandOutside when no polygon does. Points on a ring edge count as
// inside, so a listing on a contour line gets the nearer band; strict
// interior containment would push it one band out.
func (b *Bands) Classify(lat, lon float64) model.Band {
	c := geom.Coord{lon, lat}
	for i, bd := range b.bands {
		if bd.contains(c) {
			return model.Band(i)
		}
	}
	return model.BandOutside
}

func (bd band) contains(c geom.Coord) bool {
	if bd.bounds != nil && !bd.bounds.OverlapsPoint(geom.XY, c) {
		return false
	}
	for _, p := range bd.polys {
		if polygonContains(p, c) {
			return true
		}
	}
	return false
}

// polygonContains tests the exterior ring and excludes holes.
func polygonContains(p *geom.Polygon, c geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	layout := p.Layout()
	if !xy.IsPointInRing(layout, c, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(layout, c, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

func polygons(g geom.T) ([]*geom.Polygon, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return []*geom.Polygon{t}, nil
	case *geom.MultiPolygon:
		out := make([]*geom.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			out = append(out, t.Polygon(i))
		}
		return out, nil
	default:
		return nil, eris.Errorf("unsupported geometry %T", g)
	}
}

// contourMinutes reads the "contour" property. JSON numbers decode as
// float64.
func contourMinutes(f *geojson.Feature) (int, error) {
	v, ok := f.Properties["contour"]
	if !ok {
		return 0, eris.New("missing contour property")
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, eris.Errorf("contour property has type %T", v)
	}
}

// Layers renders the bands as a FeatureCollection for the map, outermost
// first so inner bands draw on top.
func (b *Bands) Layers() ([]byte, error) {
	fc := geojson.FeatureCollection{}
	for i := len(b.bands) - 1; i >= 0; i-- {
		bd := b.bands[i]
		mp := geom.NewMultiPolygon(geom.XY)
		for _, p := range bd.polys {
			if err := mp.Push(p); err != nil {
				return nil, eris.Wrapf(err, "isochrone: build layer %d", bd.minutes)
			}
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       fmt.Sprintf("contour-%d", bd.minutes),
			Geometry: mp,
			Properties: map[string]interface{}{
				"contour": bd.minutes,
				"label":   model.Band(i).Label(),
				"color":   layerColors[bd.minutes],
				"opacity": 0.15,
			},
		})
	}
	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "isochrone: marshal layers")
	}
	return data, nil
}
