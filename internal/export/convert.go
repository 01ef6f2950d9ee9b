package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

// DefaultEndpoint is the conversion service of a local install.
const DefaultEndpoint = "http://127.0.0.1:5000/convertToShapefile"

// ErrConversionFailed covers every unsuccessful conversion request.
var ErrConversionFailed = errors.New("failed to convert to shapefile")

// ConvertRequest is the body posted to the conversion service.
type ConvertRequest struct {
	Features *geojson.FeatureCollection `json:"features"`
}

// ConvertResponse is the success body of the conversion service.
type ConvertResponse struct {
	Message string `json:"message"`
}

// Converter posts feature collections to the conversion service. Each call
// is a single request: no retry and no client timeout.
type Converter struct {
	HTTPClient *http.Client
	Endpoint   string
}

// NewConverter returns a converter for endpoint; empty means
// DefaultEndpoint.
func NewConverter(endpoint string) *Converter {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	return &Converter{
		HTTPClient: &http.Client{},
		Endpoint:   endpoint,
	}
}

// Convert posts fc and returns the service message.
func (c *Converter) Convert(ctx context.Context, fc *geojson.FeatureCollection) (ConvertResponse, error) {
	body, err := json.Marshal(ConvertRequest{Features: fc})
	if err != nil {
		return ConvertResponse{}, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return ConvertResponse{}, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return ConvertResponse{}, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ConvertResponse{}, fmt.Errorf("%w: status %d", ErrConversionFailed, resp.StatusCode)
	}

	var out ConvertResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ConvertResponse{}, fmt.Errorf("%w: decode response: %v", ErrConversionFailed, err)
	}

	log.Info().
		Str("endpoint", c.Endpoint).
		Int("features", len(fc.Features)).
		Str("response", out.Message).
		Msg("Shapefile conversion requested")

	return out, nil
}
