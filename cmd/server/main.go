package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/woozymasta/mapnote/internal/config"
	"github.com/woozymasta/mapnote/internal/export"
	"github.com/woozymasta/mapnote/internal/logger"
	"github.com/woozymasta/mapnote/internal/processor"
	"github.com/woozymasta/mapnote/internal/server"
	"github.com/woozymasta/mapnote/internal/workspace"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config"     env:"CONFIG_FILE"    description:"Path to configuration file" default:"config.yaml"`
	Addr       string `short:"a" long:"addr"       env:"LISTEN_ADDRESS" description:"Address to listen on"       default:"0.0.0.0"`
	Port       int    `short:"p" long:"port"       env:"LISTEN_PORT"    description:"Port to listen on"          default:"8080"`
	LayersDir  string `short:"L" long:"layers-dir" env:"LAYERS_DIR"     description:"Directory of cached layers" default:"layers"`
	ZoomLimit  int    `short:"z" long:"zoom-limit" env:"ZOOM_LIMIT"     description:"Tiles zoom limit override"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg, err := config.Load(opts.ConfigFile)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", opts.ConfigFile).Msg("Configuration file not found, using defaults")
		cfg = config.Default()
	} else if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if opts.ZoomLimit > 0 {
		cfg.Tiles.ZoomLimit = opts.ZoomLimit
	}

	client := &http.Client{
		Transport: &http.Transport{
			TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
		Timeout: 15 * time.Second,
	}

	ws, err := workspace.New(workspace.Options{
		DrawKind:       cfg.Draw.Type,
		SnapTolerance:  cfg.Draw.SnapTolerance,
		ExportFileName: cfg.Export.FileName,
		Converter:      export.NewConverter(cfg.Convert.Endpoint),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create workspace")
	}

	srvCtx, err := server.NewServerContext(cfg, ws, processor.NewTileCache(client, cfg.Tiles))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srvCtx.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ws.Run(gctx)
	})

	g.Go(func() error {
		for _, l := range cfg.Layers {
			features, err := processor.LoadLayer(gctx, client, l, opts.LayersDir)
			if err != nil {
				log.Error().Err(err).Msg("Failed to load layer")
				continue
			}
			if _, err := ws.AddFeatures(gctx, features); err != nil {
				log.Warn().Err(err).Str("layer", l.Name).Msg("Layer not added")
				return nil
			}
		}
		return nil
	})

	g.Go(func() error {
		log.Info().
			Str("addr", listenAddr).
			Str("draw", string(cfg.Draw.Type)).
			Int("layers", len(cfg.Layers)).
			Int("zoom_limit", cfg.Tiles.ZoomLimit).
			Msg("Web server started")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Server failed")
	}

	log.Info().Msg("Server stopped")
}
