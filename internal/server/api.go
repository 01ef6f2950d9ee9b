package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/woozymasta/mapnote/internal/attrs"
	"github.com/woozymasta/mapnote/internal/draw"
	"github.com/woozymasta/mapnote/internal/export"
	"github.com/woozymasta/mapnote/internal/geo"
	"github.com/woozymasta/mapnote/internal/processor"
	"github.com/woozymasta/mapnote/internal/tooltip"
	"github.com/woozymasta/mapnote/internal/workspace"

	"github.com/rs/zerolog/log"
)

// Request body limits.
const (
	maxEventBody  = 4 << 20
	maxImportBody = 64 << 20
)

var errBadRequest = errors.New("bad request")

type geometryRequest struct {
	Geometry *geo.Geometry `json:"geometry"`
}

type kindRequest struct {
	Type geo.Kind `json:"type"`
}

type modifyRequest struct {
	Features []workspace.GeometryUpdate `json:"features"`
}

type valuesRequest struct {
	Values map[string]string `json:"values"`
}

type dialogRequest struct {
	Values *attrs.EditValues `json:"values"`
	Cancel bool              `json:"cancel"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// HandleConfig serves the public part of the configuration.
func (s *ServerContext) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Config)
}

// HandleState serves the current workspace view.
func (s *ServerContext) HandleState(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.Workspace.Snapshot)
}

// HandleDrawType switches the drawing tool.
func (s *ServerContext) HandleDrawType(w http.ResponseWriter, r *http.Request) {
	var req kindRequest
	if !decode(w, r, &req) {
		return
	}

	s.respond(w, r, func(ctx context.Context) (workspace.View, error) {
		return s.Workspace.SetDrawKind(ctx, req.Type)
	})
}

// HandleDrawStart begins a sketch.
func (s *ServerContext) HandleDrawStart(w http.ResponseWriter, r *http.Request) {
	g, ok := decodeGeometry(w, r)
	if !ok {
		return
	}

	s.respond(w, r, func(ctx context.Context) (workspace.View, error) {
		return s.Workspace.DrawStart(ctx, g)
	})
}

// HandleDrawChange updates the sketch geometry.
func (s *ServerContext) HandleDrawChange(w http.ResponseWriter, r *http.Request) {
	g, ok := decodeGeometry(w, r)
	if !ok {
		return
	}

	s.respond(w, r, func(ctx context.Context) (workspace.View, error) {
		return s.Workspace.DrawChange(ctx, g)
	})
}

// HandleDrawEnd finishes the sketch. The geometry is optional.
func (s *ServerContext) HandleDrawEnd(w http.ResponseWriter, r *http.Request) {
	var req geometryRequest
	if !decode(w, r, &req) {
		return
	}

	s.respond(w, r, func(ctx context.Context) (workspace.View, error) {
		return s.Workspace.DrawEnd(ctx, req.Geometry)
	})
}

// HandleDrawAbort drops the sketch.
func (s *ServerContext) HandleDrawAbort(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.Workspace.DrawAbort)
}

// HandleModifyStart measures features the user started to modify.
func (s *ServerContext) HandleModifyStart(w http.ResponseWriter, r *http.Request) {
	var req modifyRequest
	if !decode(w, r, &req) {
		return
	}

	s.respond(w, r, func(ctx context.Context) (workspace.View, error) {
		return s.Workspace.ModifyStart(ctx, req.Features)
	})
}

// HandleModifyEnd measures modified features and freezes the tooltip.
func (s *ServerContext) HandleModifyEnd(w http.ResponseWriter, r *http.Request) {
	var req modifyRequest
	if !decode(w, r, &req) {
		return
	}

	s.respond(w, r, func(ctx context.Context) (workspace.View, error) {
		return s.Workspace.ModifyEnd(ctx, req.Features)
	})
}

// HandleSubmitForm submits an attribute form.
func (s *ServerContext) HandleSubmitForm(w http.ResponseWriter, r *http.Request) {
	var req valuesRequest
	if !decode(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	s.respond(w, r, func(ctx context.Context) (workspace.View, error) {
		return s.Workspace.SubmitForm(ctx, id, req.Values)
	})
}

// HandleBeginEdit opens an edit dialog for a table row.
func (s *ServerContext) HandleBeginEdit(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: row index %q", errBadRequest, r.PathValue("index")))
		return
	}

	d, err := s.Workspace.BeginEdit(r.Context(), index)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// HandleResolveEdit settles an edit dialog with new values or cancels it.
func (s *ServerContext) HandleResolveEdit(w http.ResponseWriter, r *http.Request) {
	var req dialogRequest
	if !decode(w, r, &req) {
		return
	}
	if !req.Cancel && req.Values == nil {
		writeError(w, fmt.Errorf("%w: values or cancel required", errBadRequest))
		return
	}

	values := req.Values
	if req.Cancel {
		values = nil
	}

	id := r.PathValue("id")
	s.respond(w, r, func(ctx context.Context) (workspace.View, error) {
		return s.Workspace.ResolveEdit(ctx, id, values)
	})
}

// HandleExport downloads the collection as GeoJSON in EPSG:4326.
func (s *ServerContext) HandleExport(w http.ResponseWriter, r *http.Request) {
	d, err := s.Workspace.Export(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.FileName))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(d.Content)
}

// HandleConvert sends the collection to the Shapefile conversion service.
func (s *ServerContext) HandleConvert(w http.ResponseWriter, r *http.Request) {
	resp, err := s.Workspace.Convert(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleImport appends the features of a GeoJSON (EPSG:4326) document.
func (s *ServerContext) HandleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBody))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	fs, err := processor.ImportGeoJSON(data)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	log.Info().Int("features", len(fs)).Msg("GeoJSON imported")

	s.respond(w, r, func(ctx context.Context) (workspace.View, error) {
		return s.Workspace.AddFeatures(ctx, fs)
	})
}

func (s *ServerContext) respond(w http.ResponseWriter, r *http.Request, fn func(context.Context) (workspace.View, error)) {
	v, err := fn(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, v)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return false
	}

	return true
}

func decodeGeometry(w http.ResponseWriter, r *http.Request) (geo.Geometry, bool) {
	var req geometryRequest
	if !decode(w, r, &req) {
		return geo.Geometry{}, false
	}
	if req.Geometry == nil {
		writeError(w, fmt.Errorf("%w: geometry required", errBadRequest))
		return geo.Geometry{}, false
	}

	return *req.Geometry, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	status := statusOf(err)

	var verr *attrs.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}

	writeJSON(w, status, resp)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, attrs.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBadRequest),
		errors.Is(err, geo.ErrUnsupportedGeometry):
		return http.StatusBadRequest
	case errors.Is(err, attrs.ErrFormNotFound),
		errors.Is(err, attrs.ErrRowNotFound),
		errors.Is(err, workspace.ErrDialogNotFound),
		errors.Is(err, workspace.ErrFeatureNotFound):
		return http.StatusNotFound
	case errors.Is(err, draw.ErrSketchActive),
		errors.Is(err, draw.ErrNoSketch),
		errors.Is(err, draw.ErrKindMismatch),
		errors.Is(err, tooltip.ErrNoLiveTooltip):
		return http.StatusConflict
	case errors.Is(err, export.ErrConversionFailed):
		return http.StatusBadGateway
	case errors.Is(err, workspace.ErrLoopStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
