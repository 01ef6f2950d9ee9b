package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/woozymasta/mapnote/internal/config"
	"github.com/woozymasta/mapnote/internal/logger"
	"github.com/woozymasta/mapnote/internal/processor"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string   `short:"c" long:"config"       env:"CONFIG_FILE"  description:"Path to configuration file" default:"config.yaml"`
	Limit       []string `short:"l" long:"limit"        env:"LIMIT_NAMES"  description:"Limit layer processing to specific layer names"`
	LayersDir   string   `short:"L" long:"layers-dir"   env:"LAYERS_DIR"   description:"Directory of cached layers" default:"layers"`
	Concurrency int      `short:"p" long:"concurrency"  env:"CONCURRENCY"  description:"Concurrency" default:"50"`
	ZoomLimit   int      `short:"z" long:"zoom-limit"   env:"ZOOM_LIMIT"   description:"Tiles zoom limit override"`
	TilesOnly   bool     `short:"t" long:"tiles-only"   description:"Download tiles only"`
	LayersOnly  bool     `short:"g" long:"layers-only"  description:"Download layers only"`
	Force       bool     `short:"f" long:"force"        description:"Force overwrite of existing files"`
	FastCheck   bool     `short:"F" long:"fast-check"   description:"Skip tiles if cache exist"`
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

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	processTiles := true
	processLayers := true
	if opts.TilesOnly && !opts.LayersOnly {
		processLayers = false
	} else if opts.LayersOnly && !opts.TilesOnly {
		processTiles = false
	}

	client := &http.Client{
		Transport: &http.Transport{
			TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
		Timeout: 15 * time.Second,
	}

	if opts.Concurrency <= 0 {
		opts.Concurrency = 50
	}
	if opts.ZoomLimit > 0 {
		cfg.Tiles.ZoomLimit = opts.ZoomLimit
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Filter layers if limit is set
	layers := cfg.Layers
	if len(opts.Limit) > 0 {
		layers = make([]config.Layer, 0)
		available := make(map[string]config.Layer)
		for _, l := range cfg.Layers {
			available[l.Name] = l
		}

		seen := make(map[string]bool)

		for _, name := range opts.Limit {
			if seen[name] {
				continue
			}
			seen[name] = true

			if l, ok := available[name]; ok {
				layers = append(layers, l)
			} else {
				log.Error().
					Str("name", name).
					Msg("Layer specified in --limit not found in configuration")
			}
		}
	}

	log.Info().
		Int("layers_total", len(cfg.Layers)).
		Int("layers_queued", len(layers)).
		Int("zoom_limit", cfg.Tiles.ZoomLimit).
		Bool("fast_check", opts.FastCheck).
		Msg("Starting loader")

	if processLayers {
		for _, l := range layers {
			if err := processor.CacheLayer(ctx, client, l, opts.LayersDir, opts.Force); err != nil {
				log.Error().Err(err).Str("layer", l.Name).Msg("Failed to process layer")
			}
		}
	}

	if processTiles {
		tiles := processor.NewTileCache(client, cfg.Tiles)
		if err := tiles.Prefetch(ctx, opts.Concurrency, opts.Force, opts.FastCheck); err != nil {
			log.Fatal().Err(err).Str("source", cfg.Tiles.Source).Msg("Failed to process tiles")
		}
	}

	log.Info().Msg("Loader finished successfully")
}
