// Package export writes the feature collection as GeoJSON for download and
// posts it to the remote Shapefile conversion service.
package export

import (
	"encoding/json"
	"fmt"

	"github.com/woozymasta/mapnote/internal/feature"
	"github.com/woozymasta/mapnote/internal/geo"

	"github.com/paulmach/orb/geojson"
)

// Download defaults.
const (
	DefaultFileName = "your_layer.geojson"
	ContentType     = "text/plain"
)

// Download is a file handed to the browser.
type Download struct {
	FileName    string
	ContentType string
	Content     []byte
}

// Collection builds a GeoJSON FeatureCollection from features. With
// lonLat set coordinates are reprojected from the working CRS to
// EPSG:4326; otherwise they are written as stored.
func Collection(features []*feature.Feature, lonLat bool) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, f := range features {
		g := f.Geometry()

		var out *geojson.Feature
		if lonLat {
			out = geojson.NewFeature(geo.ToLonLat(g))
		} else {
			out = geojson.NewFeature(g.Clone().Orb())
		}

		for k, v := range f.Properties() {
			out.Properties[k] = v
		}
		fc.Append(out)
	}

	return fc
}

// GeoJSON serializes features in EPSG:4326.
func GeoJSON(features []*feature.Feature) ([]byte, error) {
	data, err := json.Marshal(Collection(features, true))
	if err != nil {
		return nil, fmt.Errorf("marshal feature collection: %w", err)
	}

	return data, nil
}

// Export prepares the GeoJSON download of features. An empty fileName
// means DefaultFileName.
func Export(features []*feature.Feature, fileName string) (Download, error) {
	if fileName == "" {
		fileName = DefaultFileName
	}

	data, err := GeoJSON(features)
	if err != nil {
		return Download{}, err
	}

	return Download{FileName: fileName, ContentType: ContentType, Content: data}, nil
}
