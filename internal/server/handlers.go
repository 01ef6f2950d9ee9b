// Package server handles HTTP requests and middleware.
package server

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/woozymasta/mapnote/internal/processor"

	"github.com/rs/zerolog/log"
)

const etagCap = 64

// HandleFavicon serves the site favicon.
func (s *ServerContext) HandleFavicon(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(s.Favicon)
}

// HandleIndex serves the main HTML application.
func (s *ServerContext) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if match := r.Header.Get("If-None-Match"); match == s.IndexETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", s.IndexETag)
	w.Header().Set("Cache-Control", "public, no-cache")
	_, _ = w.Write(s.IndexHTML)
}

// HandleTile serves a base map tile from the cache. Missing tiles are
// fetched from the source when fetch-through is enabled, otherwise the
// transparent tile is returned.
func (s *ServerContext) HandleTile(w http.ResponseWriter, r *http.Request) {
	t, ok := parseTile(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if s.Tiles != nil {
		if s.serveFile(w, r, s.Tiles.Path(t), "image/webp") {
			return
		}

		if s.Config.Tiles.FetchThrough && t.Z <= s.Config.Tiles.ZoomLimit {
			path, err := s.Tiles.Fetch(r.Context(), t)
			switch {
			case err == nil:
				if s.serveFile(w, r, path, "image/webp") {
					return
				}
			case errors.Is(err, processor.ErrTileNotFound):
			default:
				log.Debug().Err(err).Int("z", t.Z).Int("x", t.X).Int("y", t.Y).Msg("Tile fetch failed")
			}
		}
	}

	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(s.TransparentTile)
}

func parseTile(r *http.Request) (processor.TileCoordinate, bool) {
	z, errZ := strconv.Atoi(r.PathValue("z"))
	x, errX := strconv.Atoi(r.PathValue("x"))
	y, errY := strconv.Atoi(strings.TrimSuffix(r.PathValue("y"), ".webp"))
	if errZ != nil || errX != nil || errY != nil {
		return processor.TileCoordinate{}, false
	}

	t := processor.TileCoordinate{Z: z, X: x, Y: y}
	return t, t.Valid()
}

// serveFile tries to serve a file from disk with ETag generation.
// It returns true if the file was found and served (or 304).
func (s *ServerContext) serveFile(w http.ResponseWriter, r *http.Request, path string, contentType string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}

	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, info.Size(), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, info.ModTime().UnixNano(), 16)
	buf = append(buf, '"')
	etag := string(buf)

	// check If-None-Match (client sent ETag)
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	http.ServeFile(w, r, path)
	return true
}
