package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/woozymasta/mapnote/internal/attrs"
	"github.com/woozymasta/mapnote/internal/config"
	"github.com/woozymasta/mapnote/internal/draw"
	"github.com/woozymasta/mapnote/internal/export"
	"github.com/woozymasta/mapnote/internal/geo"
	"github.com/woozymasta/mapnote/internal/processor"
	"github.com/woozymasta/mapnote/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/webp"
)

type fixture struct {
	cfg *config.Config
	srv *httptest.Server
}

func newFixture(t *testing.T, mutate func(*config.Config), tiles func(*config.Config) *processor.TileCache) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Draw.Type = geo.KindLineString
	cfg.Tiles.Cache = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	ws, err := workspace.New(workspace.Options{
		DrawKind:       cfg.Draw.Type,
		ExportFileName: cfg.Export.FileName,
		Converter:      export.NewConverter(cfg.Convert.Endpoint),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Run(ctx) }()

	var tc *processor.TileCache
	if tiles != nil {
		tc = tiles(cfg)
	}

	sc, err := NewServerContext(cfg, ws, tc)
	require.NoError(t, err)

	srv := httptest.NewServer(sc.Routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})

	return &fixture{cfg: cfg, srv: srv}
}

func (f *fixture) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := f.srv.Client().Post(f.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)

	return resp, out
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()

	resp, err := f.srv.Client().Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	return resp, buf.Bytes()
}

func TestIndexAndFavicon(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, body := f.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "/api/state")

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", resp.Header.Get("ETag"))
	cached, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	cached.Body.Close()
	assert.Equal(t, http.StatusNotModified, cached.StatusCode)

	resp, _ = f.get(t, "/favicon.svg")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))

	resp, _ = f.get(t, "/missing.js")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfig(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.View.Center = [2]float64{100, 200} }, nil)

	resp, body := f.get(t, "/api/config")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, []any{100.0, 200.0}, got["view"].(map[string]any)["center"])
	assert.NotContains(t, got, "convert")
}

func TestTileFallback(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, body := f.get(t, "/tiles/0/0/0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/webp", resp.Header.Get("Content-Type"))
	_, err := webp.Decode(bytes.NewReader(body))
	require.NoError(t, err)

	resp, _ = f.get(t, "/tiles/1/5/0")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.get(t, "/tiles/a/0/0")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTileFromCache(t *testing.T) {
	f := newFixture(t, nil, func(c *config.Config) *processor.TileCache {
		return processor.NewTileCache(http.DefaultClient, c.Tiles)
	})

	path := filepath.Join(f.cfg.Tiles.Cache, "2", "1", "3.webp")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("cached"), 0o644))

	resp, body := f.get(t, "/tiles/2/1/3.webp")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cached", string(body))
	assert.NotEmpty(t, resp.Header.Get("ETag"))
}

func TestTileFetchThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		img.Set(1, 1, color.RGBA{R: 255, A: 255})
		_ = png.Encode(w, img)
	}))
	defer upstream.Close()

	f := newFixture(t, func(c *config.Config) {
		c.Tiles.Source = upstream.URL + "/{z}/{x}/{y}.png"
		c.Tiles.FetchThrough = true
		c.Tiles.ZoomLimit = 3
	}, func(c *config.Config) *processor.TileCache {
		return processor.NewTileCache(upstream.Client(), c.Tiles)
	})

	resp, body := f.get(t, "/tiles/1/0/1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	img, err := webp.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	assert.FileExists(t, filepath.Join(f.cfg.Tiles.Cache, "1", "0", "1.webp"))
}

func TestAnnotationWorkflow(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, _ := f.post(t, "/api/draw/change", `{"geometry":{"type":"LineString","coordinates":[[0,0],[1,0]]}}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.post(t, "/api/draw/start", `{"geometry":{"type":"LineString","coordinates":[[0,0],[1,0]]}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.post(t, "/api/draw/change", `{"geometry":{"type":"LineString","coordinates":[[0,0],[1000,0]]}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, view := f.post(t, "/api/draw/end", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	forms := view["forms"].([]any)
	require.Len(t, forms, 1)
	form := forms[0].(map[string]any)
	assert.Equal(t, "1 km", form["defaults"].(map[string]any)["Measure"])
	formID := form["id"].(string)

	resp, body := f.post(t, "/api/forms/"+formID, `{"values":{"id":"x"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["fields"], "id")
	assert.Contains(t, body["fields"], "name")

	resp, view = f.post(t, "/api/forms/"+formID,
		`{"values":{"id":"1","name":"Road","Desc":"gravel","Measure":"1 km"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, view["rows"], 1)

	resp, _ = f.post(t, "/api/forms/"+formID, `{"values":{}}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, dialog := f.post(t, "/api/rows/0/edit", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dialogID := dialog["id"].(string)
	assert.Equal(t, "Road", dialog["defaults"].(map[string]any)["name"])

	resp, view = f.post(t, "/api/dialogs/"+dialogID,
		`{"values":{"name":"Highway","Desc":"paved","Measure":"1 km"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	row := view["rows"].([]any)[0].(map[string]any)
	assert.Equal(t, "Highway", row["name"])
	feat := view["features"].([]any)[0].(map[string]any)
	assert.Equal(t, "paved", feat["properties"].(map[string]any)["Desc"])

	resp, _ = f.post(t, "/api/rows/9/edit", ``)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.post(t, "/api/rows/x/edit", ``)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body2 := f.get(t, "/api/export")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, export.ContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), export.DefaultFileName)
	assert.Contains(t, string(body2), `"Highway"`)
}

func TestDrawTypeAndAbort(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, view := f.post(t, "/api/draw/type", `{"type":"Circle"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Circle", view["kind"])

	resp, _ = f.post(t, "/api/draw/type", `{"type":"MultiPoint"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.post(t, "/api/draw/start", `{"geometry":{"type":"Circle","center":[0,0],"radius":10}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, view = f.post(t, "/api/draw/abort", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, view["features"])

	resp, _ = f.post(t, "/api/draw/start", `{"geometry":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestModifyUnknownFeature(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, _ := f.post(t, "/api/modify/start", `{"features":[{"fid":"nope"}]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestImport(t *testing.T) {
	f := newFixture(t, nil, nil)

	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[13.4,52.5]},"properties":{"id":3,"name":"Berlin"}}
	]}`
	resp, view := f.post(t, "/api/import", doc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, view["features"], 1)

	resp, _ = f.post(t, "/api/import", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConvertFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	f := newFixture(t, func(c *config.Config) { c.Convert.Endpoint = upstream.URL }, nil)

	resp, body := f.post(t, "/api/convert", ``)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body["error"], "convert")
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   string
	}{
		{"/tiles/1/0/0", http.StatusOK, "trace"},
		{"/api/draw/change", http.StatusOK, "trace"},
		{"/api/state", http.StatusOK, "debug"},
		{"/", http.StatusOK, "info"},
		{"/api/forms/x", http.StatusUnprocessableEntity, "info"},
		{"/api/convert", http.StatusBadGateway, "warn"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.want, requestLevel(r, tt.status).String())
		})
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &attrs.ValidationError{Fields: map[string]string{"id": "required"}}, http.StatusUnprocessableEntity},
		{"bad request", fmt.Errorf("%w: x", errBadRequest), http.StatusBadRequest},
		{"dialog", workspace.ErrDialogNotFound, http.StatusNotFound},
		{"sketch", draw.ErrNoSketch, http.StatusConflict},
		{"convert", export.ErrConversionFailed, http.StatusBadGateway},
		{"stopped", workspace.ErrLoopStopped, http.StatusServiceUnavailable},
		{"canceled", context.Canceled, http.StatusServiceUnavailable},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}
