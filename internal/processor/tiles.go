// Package processor fills the base map tile cache and loads GeoJSON layers
// into the feature collection.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/woozymasta/mapnote/internal/config"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// MaxZoom bounds tile requests regardless of configuration.
const MaxZoom = 22

// ErrTileNotFound is returned when the source has no tile at a coordinate.
var ErrTileNotFound = errors.New("tile not found")

// TileCoordinate represents a specific tile.
type TileCoordinate struct {
	Z, X, Y int
}

// Valid reports whether the coordinate exists in an XYZ pyramid.
func (t TileCoordinate) Valid() bool {
	if t.Z < 0 || t.Z > MaxZoom {
		return false
	}
	n := 1 << t.Z

	return t.X >= 0 && t.X < n && t.Y >= 0 && t.Y < n
}

// TileCache stores base map tiles as webp files under Dir/z/x/y.webp.
type TileCache struct {
	Client    *http.Client
	Source    string
	Dir       string
	ZoomLimit int
	TileSize  int
}

// NewTileCache returns a cache for the configured tile source.
func NewTileCache(client *http.Client, cfg config.Tiles) *TileCache {
	return &TileCache{
		Client:    client,
		Source:    cfg.Source,
		Dir:       cfg.Cache,
		ZoomLimit: cfg.ZoomLimit,
		TileSize:  cfg.TileSize,
	}
}

// IsTemplate reports whether Source is an XYZ URL template rather than a
// single image.
func (c *TileCache) IsTemplate() bool {
	return strings.Contains(c.Source, "{z}") || strings.Contains(c.Source, "{x}")
}

// Path returns the cache file of a tile.
func (c *TileCache) Path(t TileCoordinate) string {
	return filepath.Join(c.Dir, strconv.Itoa(t.Z), strconv.Itoa(t.X), strconv.Itoa(t.Y)+".webp")
}

// Fetch downloads a single tile into the cache unless it is already there
// and returns its path. Only template sources can be fetched on demand.
func (c *TileCache) Fetch(ctx context.Context, t TileCoordinate) (string, error) {
	path := c.Path(t)
	if cached(path) {
		return path, nil
	}
	if !c.IsTemplate() {
		return "", ErrTileNotFound
	}

	ok, err := c.downloadAndConvert(ctx, t, path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrTileNotFound
	}

	return path, nil
}

// Prefetch fills the cache up to ZoomLimit. Template sources are walked
// level by level, descending only below tiles that exist; a single image
// source is resized and sliced per level.
func (c *TileCache) Prefetch(ctx context.Context, concurrency int, force, fastCheck bool) error {
	if fastCheck {
		if _, err := os.Stat(c.Dir); err == nil {
			log.Info().Str("dir", c.Dir).Msg("Tile cache exists, skipping (fast-check)")
			return nil
		}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	if c.IsTemplate() {
		return c.prefetchPyramid(ctx, concurrency, force)
	}

	log.Info().Str("source", c.Source).Msg("Starting single image processing (download & slice)")

	return c.sliceImage(ctx, concurrency, force)
}

func (c *TileCache) prefetchPyramid(ctx context.Context, concurrency int, force bool) error {
	level := []TileCoordinate{{0, 0, 0}}

	for z := 0; z <= c.ZoomLimit && len(level) > 0; z++ {
		if z > 0 && !c.probeLevel(ctx, level) {
			log.Info().Int("zoom", z).Msg("No data found at zoom level, stopping")
			break
		}

		log.Debug().Int("zoom", z).Int("count", len(level)).Msg("Processing zoom level")

		valid, err := c.processBatch(ctx, concurrency, level, force)
		if err != nil {
			return err
		}

		next := make([]TileCoordinate, 0, len(valid)*4)
		for _, t := range valid {
			nx, ny := t.X*2, t.Y*2
			next = append(next,
				TileCoordinate{Z: z + 1, X: nx, Y: ny},
				TileCoordinate{Z: z + 1, X: nx + 1, Y: ny},
				TileCoordinate{Z: z + 1, X: nx, Y: ny + 1},
				TileCoordinate{Z: z + 1, X: nx + 1, Y: ny + 1},
			)
		}
		level = next
	}

	return nil
}

// processBatch downloads tiles with bounded concurrency and returns the
// ones that exist. Individual tile failures are logged, not returned.
func (c *TileCache) processBatch(ctx context.Context, concurrency int, tiles []TileCoordinate, force bool) ([]TileCoordinate, error) {
	var (
		mu    sync.Mutex
		valid []TileCoordinate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, t := range tiles {
		g.Go(func() error {
			path := c.Path(t)
			ok := !force && cached(path)
			if !ok {
				var err error
				ok, err = c.downloadAndConvert(gctx, t, path)
				if err != nil {
					log.Trace().Err(err).Str("url", c.buildURL(t)).Msg("Failed to download tile")
				}
			}

			if ok {
				mu.Lock()
				valid = append(valid, t)
				mu.Unlock()
			}

			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return valid, nil
}

// downloadAndConvert fetches one tile and stores it as webp. It reports
// false without error when the source has no usable tile there.
func (c *TileCache) downloadAndConvert(ctx context.Context, t TileCoordinate, outPath string) (bool, error) {
	img, err := c.fetchImage(ctx, c.buildURL(t))
	if errors.Is(err, ErrTileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// servers return empty 1px tiles out of bounds
	if img.Bounds().Dx() <= 1 {
		return false, nil
	}

	if err := writeWebP(outPath, img, 80); err != nil {
		return false, err
	}

	return true, nil
}

func (c *TileCache) fetchImage(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		log.Trace().Err(err).Str("url", url).Msg("Failed to decode image")
		return nil, ErrTileNotFound
	}

	return img, nil
}

func (c *TileCache) probeLevel(ctx context.Context, tiles []TileCoordinate) bool {
	probes := []TileCoordinate{tiles[0]}
	if len(tiles) > 10 {
		probes = append(probes, tiles[len(tiles)/2])
	}
	if len(tiles) > 1 {
		probes = append(probes, tiles[len(tiles)-1])
	}

	for _, p := range probes {
		img, err := c.fetchImage(ctx, c.buildURL(p))
		if err == nil && img.Bounds().Dx() > 1 {
			return true
		}
	}

	return false
}

// sliceImage scales the source image to every zoom level and cuts it into
// tiles.
func (c *TileCache) sliceImage(ctx context.Context, concurrency int, force bool) error {
	src, err := c.loadSourceImage(ctx)
	if err != nil {
		return err
	}

	size := c.TileSize
	if size <= 0 {
		size = config.DefaultTileSize
	}

	for z := 0; z <= c.ZoomLimit; z++ {
		grid := 1 << z
		px := grid * size

		log.Debug().Int("zoom", z).Int("grid", grid).Int("px", px).Msg("Processing zoom level")

		dst := image.NewRGBA(image.Rect(0, 0, px, px))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		for x := 0; x < grid; x++ {
			for y := 0; y < grid; y++ {
				t := TileCoordinate{Z: z, X: x, Y: y}
				g.Go(func() error {
					if err := gctx.Err(); err != nil {
						return err
					}

					path := c.Path(t)
					if !force && cached(path) {
						return nil
					}

					rect := image.Rect(t.X*size, t.Y*size, (t.X+1)*size, (t.Y+1)*size)
					if err := writeWebP(path, dst.SubImage(rect), 85); err != nil {
						log.Error().Err(err).Str("path", path).Msg("Failed to write tile")
					}

					return nil
				})
			}
		}

		if err := g.Wait(); err != nil {
			return err
		}
	}

	return nil
}

func (c *TileCache) loadSourceImage(ctx context.Context) (image.Image, error) {
	if strings.HasPrefix(c.Source, "http") {
		log.Info().Str("url", c.Source).Msg("Downloading source image...")
		img, err := c.fetchImage(ctx, c.Source)
		if err != nil {
			return nil, fmt.Errorf("download source image: %w", err)
		}
		return img, nil
	}

	f, err := os.Open(c.Source)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	log.Info().Str("format", format).Msg("Image decoded successfully")

	return img, nil
}

func (c *TileCache) buildURL(t TileCoordinate) string {
	s := strings.ReplaceAll(c.Source, "{z}", strconv.Itoa(t.Z))
	s = strings.ReplaceAll(s, "{x}", strconv.Itoa(t.X))
	s = strings.ReplaceAll(s, "{y}", strconv.Itoa(t.Y))

	if strings.Contains(s, "{tms_y}") {
		s = strings.ReplaceAll(s, "{tms_y}", strconv.Itoa((1<<t.Z)-1-t.Y))
	}

	return s
}

func cached(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// writeWebP encodes img next to path and renames it into place so
// concurrent readers never see a partial file.
func writeWebP(path string, img image.Image, quality float32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := webp.Encode(tmp, img, &webp.Options{Lossless: false, Quality: quality}); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode webp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// TransparentTile encodes an empty tile served where the cache has none.
func TransparentTile(size int) ([]byte, error) {
	if size <= 0 {
		size = config.DefaultTileSize
	}

	var buf bytes.Buffer
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
