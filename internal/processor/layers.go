package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/woozymasta/mapnote/internal/config"
	"github.com/woozymasta/mapnote/internal/feature"
	"github.com/woozymasta/mapnote/internal/geo"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

// LayerCachePath is where the loader stores a downloaded URL layer.
func LayerCachePath(dir, name string) string {
	return filepath.Join(dir, name+".geojson")
}

// LoadLayer reads a configured layer and returns its features in the
// working CRS. URL layers are read from cacheDir when the loader already
// stored them there.
func LoadLayer(ctx context.Context, client *http.Client, l config.Layer, cacheDir string) ([]*feature.Feature, error) {
	data, err := readLayer(ctx, client, l, cacheDir)
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", l.Name, err)
	}

	fs, err := ImportGeoJSON(data)
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", l.Name, err)
	}

	log.Info().Str("layer", l.Name).Int("features", len(fs)).Msg("Layer loaded")

	return fs, nil
}

// CacheLayer downloads a URL layer into cacheDir. Layers without a URL and
// already cached layers (unless force) are skipped.
func CacheLayer(ctx context.Context, client *http.Client, l config.Layer, cacheDir string, force bool) error {
	if l.URL == "" {
		return nil
	}

	dest := LayerCachePath(cacheDir, l.Name)
	if _, err := os.Stat(dest); err == nil && !force {
		log.Debug().Str("layer", l.Name).Msg("Layer file exists, skipping")
		return nil
	}

	log.Info().Str("layer", l.Name).Str("source", l.URL).Msg("Processing layer from URL")

	data, err := download(ctx, client, l.URL)
	if err != nil {
		return err
	}
	if _, err := geojson.UnmarshalFeatureCollection(data); err != nil {
		return fmt.Errorf("layer %q: %w", l.Name, err)
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(dest, data, 0o644)
}

func readLayer(ctx context.Context, client *http.Client, l config.Layer, cacheDir string) ([]byte, error) {
	switch {
	case l.Path != "":
		return os.ReadFile(l.Path)

	case l.URL != "":
		if cacheDir != "" {
			if data, err := os.ReadFile(LayerCachePath(cacheDir, l.Name)); err == nil {
				return data, nil
			}
		}
		return download(ctx, client, l.URL)

	case l.GeoJSON != "":
		return []byte(l.GeoJSON), nil
	}

	return nil, fmt.Errorf("no source")
}

func download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	// Explicitly ignore close error as it's a read-only operation
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// ImportGeoJSON parses an EPSG:4326 FeatureCollection, or a single Feature,
// into working CRS features. Features with geometries that cannot be drawn
// (multi geometries, collections) are skipped.
func ImportGeoJSON(data []byte) ([]*feature.Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil || fc.Type != "FeatureCollection" {
		f, ferr := geojson.UnmarshalFeature(data)
		if ferr != nil {
			if err == nil {
				err = ferr
			}
			return nil, fmt.Errorf("parse geojson: %w", err)
		}
		fc = geojson.NewFeatureCollection().Append(f)
	}

	out := make([]*feature.Feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		g, err := geo.FromOrb(geo.FromLonLat(f.Geometry))
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("Skipping feature")
			continue
		}

		nf := feature.New(g)
		nf.ReplaceProperties(stringProperties(f.Properties))
		out = append(out, nf)
	}

	return out, nil
}

// stringProperties flattens GeoJSON property values to strings. Nested
// values are kept as their JSON text.
func stringProperties(p geojson.Properties) map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		switch v := v.(type) {
		case string:
			out[k] = v
		case float64:
			out[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(v)
		case nil:
			out[k] = ""
		default:
			data, err := json.Marshal(v)
			if err != nil {
				continue
			}
			out[k] = string(data)
		}
	}

	return out
}
