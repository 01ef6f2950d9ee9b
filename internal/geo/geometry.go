// Package geo holds the drawable geometry model and coordinate conversions.
//
// Geometries live in the working CRS (EPSG:3857, meters). Conversions to
// geographic longitude/latitude happen only at the edges: measurement,
// export and import.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Kind tags the variant held by a Geometry.
type Kind string

// Drawable geometry kinds.
const (
	KindPoint      Kind = "Point"
	KindLineString Kind = "LineString"
	KindPolygon    Kind = "Polygon"
	KindCircle     Kind = "Circle"
)

// Kinds lists every drawable kind in tool selector order.
var Kinds = []Kind{KindPoint, KindLineString, KindPolygon, KindCircle}

// ErrUnsupportedGeometry is returned for geometry types that cannot be drawn.
var ErrUnsupportedGeometry = errors.New("unsupported geometry")

// ParseKind validates a geometry type name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupportedGeometry, s)
}

// Geometry is a tagged union over the drawable kinds. Only the fields
// belonging to Kind are meaningful.
type Geometry struct {
	Kind    Kind
	Point   orb.Point
	Line    orb.LineString
	Polygon orb.Polygon
	Center  orb.Point
	Radius  float64 // map units
}

// NewPoint returns a Point geometry.
func NewPoint(p orb.Point) Geometry {
	return Geometry{Kind: KindPoint, Point: p}
}

// NewLineString returns a LineString geometry.
func NewLineString(ls orb.LineString) Geometry {
	return Geometry{Kind: KindLineString, Line: ls}
}

// NewPolygon returns a Polygon geometry.
func NewPolygon(p orb.Polygon) Geometry {
	return Geometry{Kind: KindPolygon, Polygon: p}
}

// NewCircle returns a Circle geometry.
func NewCircle(center orb.Point, radius float64) Geometry {
	return Geometry{Kind: KindCircle, Center: center, Radius: radius}
}

// Clone returns a deep copy so callers may keep a snapshot of a geometry
// that is still being edited.
func (g Geometry) Clone() Geometry {
	c := g
	if g.Line != nil {
		c.Line = g.Line.Clone()
	}
	if g.Polygon != nil {
		c.Polygon = g.Polygon.Clone()
	}

	return c
}

// Orb converts the geometry to its orb representation. Circles have no
// orb or GeoJSON equivalent and are approximated by a polygon.
func (g Geometry) Orb() orb.Geometry {
	switch g.Kind {
	case KindPoint:
		return g.Point
	case KindLineString:
		return g.Line
	case KindPolygon:
		return g.Polygon
	case KindCircle:
		return CirclePolygon(g.Center, g.Radius, CircleSides)
	}

	return nil
}

// FromOrb wraps an orb geometry. Multi geometries and collections are
// rejected.
func FromOrb(g orb.Geometry) (Geometry, error) {
	switch v := g.(type) {
	case orb.Point:
		return NewPoint(v), nil
	case orb.LineString:
		return NewLineString(v), nil
	case orb.Polygon:
		return NewPolygon(v), nil
	case orb.Ring:
		return NewPolygon(orb.Polygon{v}), nil
	case nil:
		return Geometry{}, fmt.Errorf("%w: empty geometry", ErrUnsupportedGeometry)
	}

	return Geometry{}, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.GeoJSONType())
}

type circleJSON struct {
	Type   Kind      `json:"type"`
	Center orb.Point `json:"center"`
	Radius float64   `json:"radius"`
}

// MarshalJSON writes GeoJSON geometry objects, plus a Circle object
// carrying center and radius.
func (g Geometry) MarshalJSON() ([]byte, error) {
	if g.Kind == KindCircle {
		return json.Marshal(circleJSON{Type: KindCircle, Center: g.Center, Radius: g.Radius})
	}

	o := g.Orb()
	if o == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedGeometry, g.Kind)
	}

	return json.Marshal(geojson.NewGeometry(o))
}

// UnmarshalJSON reads the format written by MarshalJSON.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	if head.Type == string(KindCircle) {
		var c circleJSON
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		*g = NewCircle(c.Center, c.Radius)
		return nil
	}

	gj, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return err
	}

	parsed, err := FromOrb(gj.Geometry())
	if err != nil {
		return err
	}
	*g = parsed

	return nil
}
