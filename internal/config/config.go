// Package config handles configuration loading and shared data structures.
package config

import (
	"fmt"
	"os"

	"github.com/woozymasta/mapnote/internal/export"
	"github.com/woozymasta/mapnote/internal/geo"

	"gopkg.in/yaml.v3"
)

// Defaults applied to missing configuration values.
const (
	DefaultAttribution = "© OpenStreetMap contributors"
	DefaultTileSource  = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultTileCache   = "tiles"
	DefaultZoomLimit   = 6
	DefaultTileSize    = 256
	DefaultViewZoom    = 4
	DefaultSnap        = 10
)

// Config represents the root configuration file structure.
type Config struct {
	Attribution string  `yaml:"attribution,omitempty" json:"attribution,omitempty"`
	View        View    `yaml:"view" json:"view"`
	Tiles       Tiles   `yaml:"tiles" json:"tiles"`
	Draw        Draw    `yaml:"draw" json:"draw"`
	Export      Export  `yaml:"export" json:"-"`
	Convert     Convert `yaml:"convert" json:"-"`
	Layers      []Layer `yaml:"layers,omitempty" json:"-"`
}

// View is the initial map view. Center is in EPSG:3857.
type View struct {
	Center [2]float64 `yaml:"center" json:"center"`
	Zoom   float64    `yaml:"zoom" json:"zoom"`
}

// Tiles configures the base map layer.
type Tiles struct {
	// Source is a {z}/{x}/{y} URL template or a single large image
	// (path or URL) that gets sliced into tiles.
	Source       string `yaml:"source" json:"-"`
	Cache        string `yaml:"cache,omitempty" json:"-"`
	ZoomLimit    int    `yaml:"zoom,omitempty" json:"zoom"`
	TileSize     int    `yaml:"tile_size,omitempty" json:"-"`
	FetchThrough bool   `yaml:"fetch_through,omitempty" json:"-"`
}

// Draw configures the drawing tool.
type Draw struct {
	Type          geo.Kind `yaml:"type" json:"type"`
	SnapTolerance int      `yaml:"snap_tolerance,omitempty" json:"snap_tolerance"`
}

// Export configures the GeoJSON download.
type Export struct {
	FileName string `yaml:"filename,omitempty"`
}

// Convert configures the remote Shapefile conversion.
type Convert struct {
	Endpoint string `yaml:"endpoint,omitempty"`
}

// Layer is a GeoJSON (EPSG:4326) layer appended to the feature collection
// at start-up. Exactly one of Path, URL or GeoJSON is used, in that order
// of precedence.
type Layer struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path,omitempty"`
	URL     string `yaml:"url,omitempty"`
	GeoJSON string `yaml:"geojson,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	if _, err := geo.ParseKind(string(c.Draw.Type)); err != nil {
		return fmt.Errorf("draw.type: %w", err)
	}

	for i, l := range c.Layers {
		if l.Name == "" {
			return fmt.Errorf("layers[%d]: name is required", i)
		}
		if l.Path == "" && l.URL == "" && l.GeoJSON == "" {
			return fmt.Errorf("layer %q: one of path, url or geojson is required", l.Name)
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Attribution == "" {
		c.Attribution = DefaultAttribution
	}
	if c.View.Zoom <= 0 {
		c.View.Zoom = DefaultViewZoom
	}
	if c.Tiles.Source == "" {
		c.Tiles.Source = DefaultTileSource
	}
	if c.Tiles.Cache == "" {
		c.Tiles.Cache = DefaultTileCache
	}
	if c.Tiles.ZoomLimit <= 0 {
		c.Tiles.ZoomLimit = DefaultZoomLimit
	}
	if c.Tiles.TileSize <= 0 {
		c.Tiles.TileSize = DefaultTileSize
	}
	if c.Draw.Type == "" {
		c.Draw.Type = geo.KindLineString
	}
	if c.Draw.SnapTolerance <= 0 {
		c.Draw.SnapTolerance = DefaultSnap
	}
	if c.Export.FileName == "" {
		c.Export.FileName = export.DefaultFileName
	}
	if c.Convert.Endpoint == "" {
		c.Convert.Endpoint = export.DefaultEndpoint
	}
}
