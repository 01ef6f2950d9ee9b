package geo

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// MaxLatitude is the Web Mercator latitude limit.
const MaxLatitude = 85.05112878

// CircleSides is the vertex count used when a circle has to be written as
// a polygon.
const CircleSides = 64

// ToLonLat reprojects a working CRS (EPSG:3857) geometry to EPSG:4326.
// Circles are polygonized first since their radius has no meaning in
// degrees.
func ToLonLat(g Geometry) orb.Geometry {
	return reproject(g.Clone().Orb(), project.Mercator.ToWGS84)
}

// FromLonLat reprojects an EPSG:4326 geometry to the working CRS.
// Latitudes are clamped to the Mercator limit first.
func FromLonLat(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}

	return reproject(orb.Clone(g), func(p orb.Point) orb.Point {
		return project.WGS84.ToMercator(clampLonLat(p))
	})
}

// reproject applies proj in place and returns g.
func reproject(g orb.Geometry, proj orb.Projection) orb.Geometry {
	if g == nil {
		return nil
	}

	return project.Geometry(g, proj)
}

func clampLonLat(p orb.Point) orb.Point {
	if p[1] > MaxLatitude {
		p[1] = MaxLatitude
	} else if p[1] < -MaxLatitude {
		p[1] = -MaxLatitude
	}

	return p
}

// CirclePolygon approximates a circle with a closed ring of n vertices.
func CirclePolygon(center orb.Point, radius float64, n int) orb.Polygon {
	if n < 3 {
		n = 3
	}

	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		ring = append(ring, orb.Point{
			center[0] + radius*math.Cos(angle),
			center[1] + radius*math.Sin(angle),
		})
	}
	ring = append(ring, ring[0])

	return orb.Polygon{ring}
}

// InteriorPoint returns a point guaranteed to lie inside the polygon when
// the polygon has any area. A horizontal line through the middle of the
// bounding box is intersected with every ring and the midpoint of the
// widest inside segment wins. Degenerate polygons fall back to the bound
// center.
func InteriorPoint(p orb.Polygon) orb.Point {
	if len(p) == 0 || len(p[0]) == 0 {
		return orb.Point{}
	}

	bound := p.Bound()
	center := bound.Center()
	y := center[1]

	var xs []float64
	for _, ring := range p {
		for i := 0; i+1 < len(ring); i++ {
			a, b := ring[i], ring[i+1]
			if (a[1] <= y && b[1] > y) || (b[1] <= y && a[1] > y) {
				xs = append(xs, a[0]+(y-a[1])/(b[1]-a[1])*(b[0]-a[0]))
			}
		}
	}
	sort.Float64s(xs)

	best := math.NaN()
	widest := math.Inf(-1)
	for i := 1; i < len(xs); i++ {
		width := xs[i] - xs[i-1]
		if width <= widest {
			continue
		}
		x := (xs[i] + xs[i-1]) / 2
		if planar.PolygonContains(p, orb.Point{x, y}) {
			best = x
			widest = width
		}
	}

	if math.IsNaN(best) {
		return center
	}

	return orb.Point{best, y}
}
