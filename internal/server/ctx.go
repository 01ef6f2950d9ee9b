package server

import (
	"fmt"
	"hash/crc32"
	"net/http"

	"github.com/woozymasta/mapnote/assets"
	"github.com/woozymasta/mapnote/internal/config"
	"github.com/woozymasta/mapnote/internal/processor"
	"github.com/woozymasta/mapnote/internal/workspace"

	"github.com/rs/zerolog/log"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config          *config.Config
	Workspace       *workspace.Workspace
	Tiles           *processor.TileCache
	IndexHTML       []byte
	IndexETag       string
	Favicon         []byte
	TransparentTile []byte
}

// NewServerContext builds the client page and the fallback tile. tiles may
// be nil, in which case every tile request gets the transparent tile.
func NewServerContext(cfg *config.Config, ws *workspace.Workspace, tiles *processor.TileCache) (*ServerContext, error) {
	index, err := assets.Build()
	if err != nil {
		return nil, fmt.Errorf("build client page: %w", err)
	}
	favicon, err := assets.Favicon()
	if err != nil {
		return nil, fmt.Errorf("build favicon: %w", err)
	}
	blank, err := processor.TransparentTile(cfg.Tiles.TileSize)
	if err != nil {
		return nil, fmt.Errorf("encode transparent tile: %w", err)
	}

	log.Debug().
		Int("index_bytes", len(index)).
		Bool("fetch_through", cfg.Tiles.FetchThrough && tiles != nil).
		Msg("Server context initialized")

	return &ServerContext{
		Config:          cfg,
		Workspace:       ws,
		Tiles:           tiles,
		IndexHTML:       index,
		IndexETag:       fmt.Sprintf(`"%x"`, crc32.ChecksumIEEE(index)),
		Favicon:         favicon,
		TransparentTile: blank,
	}, nil
}

// Routes returns the service handler with request logging.
func (s *ServerContext) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.HandleIndex)
	mux.HandleFunc("GET /favicon.svg", s.HandleFavicon)
	mux.HandleFunc("GET /tiles/{z}/{x}/{y}", s.HandleTile)

	mux.HandleFunc("GET /api/config", s.HandleConfig)
	mux.HandleFunc("GET /api/state", s.HandleState)

	mux.HandleFunc("POST /api/draw/type", s.HandleDrawType)
	mux.HandleFunc("POST /api/draw/start", s.HandleDrawStart)
	mux.HandleFunc("POST /api/draw/change", s.HandleDrawChange)
	mux.HandleFunc("POST /api/draw/end", s.HandleDrawEnd)
	mux.HandleFunc("POST /api/draw/abort", s.HandleDrawAbort)

	mux.HandleFunc("POST /api/modify/start", s.HandleModifyStart)
	mux.HandleFunc("POST /api/modify/end", s.HandleModifyEnd)

	mux.HandleFunc("POST /api/forms/{id}", s.HandleSubmitForm)
	mux.HandleFunc("POST /api/rows/{index}/edit", s.HandleBeginEdit)
	mux.HandleFunc("POST /api/dialogs/{id}", s.HandleResolveEdit)

	mux.HandleFunc("GET /api/export", s.HandleExport)
	mux.HandleFunc("POST /api/convert", s.HandleConvert)
	mux.HandleFunc("POST /api/import", s.HandleImport)

	return RequestLogger(mux)
}
