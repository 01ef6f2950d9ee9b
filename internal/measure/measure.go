// Package measure turns drawn geometries into the measurement text shown
// in tooltips and offered as the default "Measure" attribute.
package measure

import (
	"math"
	"strconv"

	"github.com/woozymasta/mapnote/internal/geo"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Unit switch thresholds, in meters and square meters.
const (
	LengthThreshold = 100.0
	AreaThreshold   = 10000.0
)

// Unit of a formatted measurement.
type Unit string

// Measurement units.
const (
	Meters           Unit = "m"
	Kilometers       Unit = "km"
	SquareMeters     Unit = "m²"
	SquareKilometers Unit = "km²"
	NoUnit           Unit = ""
)

// Result is a formatted measurement and the coordinate a tooltip showing it
// should be anchored at.
type Result struct {
	Text   string
	Anchor orb.Point
	Value  float64 // rounded, in Unit
	Unit   Unit
}

// Func computes a Result. Controllers take one so tests can substitute it.
type Func func(geo.Geometry) Result

// Measure formats the measurement of g. Points carry no measurement and
// yield empty text anchored at the point itself.
func Measure(g geo.Geometry) Result {
	switch g.Kind {
	case geo.KindLineString:
		r := Length(Geodesic(g))
		if n := len(g.Line); n > 0 {
			r.Anchor = g.Line[n-1]
		}
		return r

	case geo.KindPolygon:
		r := Area(Geodesic(g))
		r.Anchor = geo.InteriorPoint(g.Polygon)
		return r

	case geo.KindCircle:
		r := CircleArea(g.Radius)
		r.Anchor = g.Center
		return r

	case geo.KindPoint:
		return Result{Anchor: g.Point}
	}

	return Result{}
}

// Geodesic returns the raw length (LineString) or area (Polygon) of g in
// meters or square meters, measured on the sphere. Other kinds return 0.
func Geodesic(g geo.Geometry) float64 {
	switch g.Kind {
	case geo.KindLineString:
		return orbgeo.Length(geo.ToLonLat(g))
	case geo.KindPolygon:
		return math.Abs(orbgeo.Area(geo.ToLonLat(g)))
	}

	return 0
}

// Length formats a length in meters.
func Length(meters float64) Result {
	if meters > LengthThreshold {
		return newResult(Round2(meters/1000), Kilometers)
	}

	return newResult(Round2(meters), Meters)
}

// Area formats an area in square meters.
func Area(sqm float64) Result {
	if sqm > AreaThreshold {
		return newResult(Round2(sqm/1e6), SquareKilometers)
	}

	return newResult(Round2(sqm), SquareMeters)
}

// CircleArea formats the area of a circle with the given radius in
// meters. It is always expressed in square kilometers.
func CircleArea(radius float64) Result {
	km := radius / 1000
	return newResult(Round2(math.Pi*km*km), SquareKilometers)
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Format prints a rounded value in its shortest form followed by the unit.
func Format(v float64, u Unit) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + string(u)
}

func newResult(v float64, u Unit) Result {
	return Result{Text: Format(v, u), Value: v, Unit: u}
}
