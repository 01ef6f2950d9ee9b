package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/woozymasta/mapnote/internal/export"
	"github.com/woozymasta/mapnote/internal/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
view:
  center: [1000, 2000]
  zoom: 9
tiles:
  source: https://tiles.example.com/{z}/{x}/{y}.png
  zoom: 3
  fetch_through: true
draw:
  type: Polygon
convert:
  endpoint: http://converter:5000/convertToShapefile
layers:
  - name: parcels
    geojson: |
      {"type":"FeatureCollection","features":[]}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, [2]float64{1000, 2000}, cfg.View.Center)
	assert.Equal(t, 9.0, cfg.View.Zoom)
	assert.Equal(t, 3, cfg.Tiles.ZoomLimit)
	assert.True(t, cfg.Tiles.FetchThrough)
	assert.Equal(t, DefaultTileCache, cfg.Tiles.Cache)
	assert.Equal(t, geo.KindPolygon, cfg.Draw.Type)
	assert.Equal(t, DefaultSnap, cfg.Draw.SnapTolerance)
	assert.Equal(t, "http://converter:5000/convertToShapefile", cfg.Convert.Endpoint)
	assert.Equal(t, export.DefaultFileName, cfg.Export.FileName)
	require.Len(t, cfg.Layers, 1)
	assert.Contains(t, cfg.Layers[0].GeoJSON, "FeatureCollection")
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, geo.KindLineString, cfg.Draw.Type)
	assert.Equal(t, DefaultTileSource, cfg.Tiles.Source)
	assert.Equal(t, export.DefaultEndpoint, cfg.Convert.Endpoint)
	assert.Equal(t, "your_layer.geojson", cfg.Export.FileName)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"draw type":    "draw:\n  type: Hexagon\n",
		"layer name":   "layers:\n  - path: a.geojson\n",
		"layer source": "layers:\n  - name: empty\n",
		"yaml":         "view: [",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadExample(t *testing.T) {
	cfg, err := Load("../../config.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, geo.KindLineString, cfg.Draw.Type)
	assert.True(t, cfg.Tiles.FetchThrough)
	require.Len(t, cfg.Layers, 1)
	assert.Contains(t, cfg.Layers[0].GeoJSON, "FeatureCollection")
}
