package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/woozymasta/mapnote/internal/export"
	"github.com/woozymasta/mapnote/internal/logger"
	"github.com/woozymasta/mapnote/internal/processor"

	"github.com/jessevdk/go-flags"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Input    string `short:"i" long:"in"       description:"Input file path (GeoJSON or YAML). Reads from stdin if empty"`
	Format   string `short:"f" long:"format"   description:"Input format" choice:"json" choice:"yaml" default:"json"`
	Endpoint string `short:"e" long:"endpoint" env:"CONVERT_ENDPOINT" description:"Conversion service URL"`
	LonLat   bool   `short:"l" long:"lonlat"   description:"Input is EPSG:4326 (an export file); reproject to EPSG:3857 before sending"`
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

	// Read Input
	var (
		data []byte
		err  error
	)
	if opts.Input != "" {
		data, err = os.ReadFile(opts.Input)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read input")
	}

	if opts.Format == "yaml" {
		if data, err = yamlToJSON(data); err != nil {
			log.Fatal().Err(err).Msg("Failed to parse YAML input")
		}
	}

	fc, err := collection(data, opts.LonLat)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse GeoJSON input")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := export.NewConverter(opts.Endpoint).Convert(ctx, fc)
	if err != nil {
		log.Fatal().Err(err).Msg("Error converting to Shapefile")
	}

	fmt.Println(resp.Message)
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	return json.Marshal(doc)
}

// collection returns the features in the working CRS.
func collection(data []byte, lonLat bool) (*geojson.FeatureCollection, error) {
	if !lonLat {
		return geojson.UnmarshalFeatureCollection(data)
	}

	features, err := processor.ImportGeoJSON(data)
	if err != nil {
		return nil, err
	}

	return export.Collection(features, false), nil
}
