// Package workspace wires the annotation workflow together: one feature
// collection, its tooltips, the draw and modify sessions, attribute forms,
// the table and export. All state changes run on a single event loop.
package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/woozymasta/mapnote/internal/attrs"
	"github.com/woozymasta/mapnote/internal/draw"
	"github.com/woozymasta/mapnote/internal/export"
	"github.com/woozymasta/mapnote/internal/feature"
	"github.com/woozymasta/mapnote/internal/geo"
	"github.com/woozymasta/mapnote/internal/modify"
	"github.com/woozymasta/mapnote/internal/tooltip"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

// Lookup errors.
var (
	ErrFeatureNotFound = errors.New("feature not found")
	ErrDialogNotFound  = errors.New("dialog not found")
)

// Options configure a Workspace.
type Options struct {
	DrawKind       geo.Kind
	SnapTolerance  int
	ExportFileName string
	Converter      *export.Converter
}

// GeometryUpdate is the geometry of a feature after an edit in the browser.
type GeometryUpdate struct {
	FID      string       `json:"fid"`
	Geometry geo.Geometry `json:"geometry"`
}

type pendingEdit struct {
	dialog  *attrs.EditDialog
	applied chan struct{}
}

// Workspace is the state of one annotation map.
type Workspace struct {
	loop *Loop

	// bg bounds dialog waiters; cancelled when Run returns
	bg     context.Context
	cancel context.CancelFunc

	features   *feature.Collection
	tooltips   *tooltip.Presenter
	draw       *draw.Controller
	modify     *modify.Controller
	table      *attrs.Table
	forms      *attrs.Forms
	dialogs    map[string]*pendingEdit
	converter  *export.Converter
	exportName string
}

// New builds a workspace. An empty DrawKind means LineString. Run must be
// called before any other method.
func New(opts Options) (*Workspace, error) {
	w := &Workspace{
		loop:       NewLoop(),
		features:   feature.NewCollection(),
		tooltips:   tooltip.NewPresenter(),
		table:      attrs.NewTable(),
		dialogs:    make(map[string]*pendingEdit),
		converter:  opts.Converter,
		exportName: opts.ExportFileName,
	}
	if w.converter == nil {
		w.converter = export.NewConverter("")
	}
	if opts.DrawKind == "" {
		opts.DrawKind = geo.KindLineString
	}
	w.bg, w.cancel = context.WithCancel(context.Background())

	w.forms = attrs.NewForms(w.table, nil)
	w.modify = modify.New(w.tooltips, nil)

	ctrl, err := draw.New(w.features, w.tooltips, draw.Options{
		Kind:          opts.DrawKind,
		SnapTolerance: opts.SnapTolerance,
		OnFinish:      w.openForm,
	})
	if err != nil {
		w.cancel()
		return nil, err
	}
	w.draw = ctrl

	return w, nil
}

// Run processes workflow events until ctx ends.
func (w *Workspace) Run(ctx context.Context) error {
	defer w.cancel()
	return w.loop.Run(ctx)
}

// Snapshot returns the current view.
func (w *Workspace) Snapshot(ctx context.Context) (View, error) {
	return w.apply(ctx, func() error { return nil })
}

// SetDrawKind switches the drawing tool.
func (w *Workspace) SetDrawKind(ctx context.Context, k geo.Kind) (View, error) {
	return w.apply(ctx, func() error { return w.draw.SetKind(k) })
}

// DrawStart begins a sketch.
func (w *Workspace) DrawStart(ctx context.Context, g geo.Geometry) (View, error) {
	return w.apply(ctx, func() error {
		_, err := w.draw.Start(g)
		return err
	})
}

// DrawChange updates the sketch geometry.
func (w *Workspace) DrawChange(ctx context.Context, g geo.Geometry) (View, error) {
	return w.apply(ctx, func() error { return w.draw.Change(g) })
}

// DrawEnd finishes the sketch; final may be nil.
func (w *Workspace) DrawEnd(ctx context.Context, final *geo.Geometry) (View, error) {
	return w.apply(ctx, func() error {
		_, err := w.draw.End(final)
		return err
	})
}

// DrawAbort drops the sketch.
func (w *Workspace) DrawAbort(ctx context.Context) (View, error) {
	return w.apply(ctx, w.draw.Abort)
}

// ModifyStart applies the given geometries and measures the touched
// features.
func (w *Workspace) ModifyStart(ctx context.Context, updates []GeometryUpdate) (View, error) {
	return w.apply(ctx, func() error {
		fs, err := w.applyGeometries(updates)
		if err != nil {
			return err
		}
		w.modify.Start(fs)
		return nil
	})
}

// ModifyEnd applies the final geometries, measures and freezes the
// tooltip.
func (w *Workspace) ModifyEnd(ctx context.Context, updates []GeometryUpdate) (View, error) {
	return w.apply(ctx, func() error {
		fs, err := w.applyGeometries(updates)
		if err != nil {
			return err
		}
		w.modify.End(fs)
		return nil
	})
}

// SubmitForm submits attribute values for an open form.
func (w *Workspace) SubmitForm(ctx context.Context, formID string, values map[string]string) (View, error) {
	return w.apply(ctx, func() error {
		row, err := w.forms.Submit(formID, values)
		if err != nil {
			return err
		}
		log.Debug().Str("id", row.ID).Str("name", row.Name).Msg("Attributes submitted")
		return nil
	})
}

// BeginEdit opens an edit dialog for a table row. The dialog result is
// applied on the loop once ResolveEdit settles it.
func (w *Workspace) BeginEdit(ctx context.Context, row int) (DialogView, error) {
	var out DialogView
	err := w.loop.Do(ctx, func() error {
		d, err := w.table.BeginEdit(row)
		if err != nil {
			return err
		}

		p := &pendingEdit{dialog: d, applied: make(chan struct{})}
		w.dialogs[d.ID] = p
		go w.awaitEdit(p)

		out = newDialogView(d)
		return nil
	})

	return out, err
}

// ResolveEdit settles a dialog with values, or cancels it when values is
// nil, and returns the view once the result has been applied.
func (w *Workspace) ResolveEdit(ctx context.Context, dialogID string, values *attrs.EditValues) (View, error) {
	var p *pendingEdit
	err := w.loop.Do(ctx, func() error {
		var ok bool
		p, ok = w.dialogs[dialogID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrDialogNotFound, dialogID)
		}
		if values == nil {
			p.dialog.Cancel()
		} else {
			p.dialog.Resolve(*values)
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}

	select {
	case <-p.applied:
	case <-ctx.Done():
		return View{}, ctx.Err()
	}

	return w.Snapshot(ctx)
}

// awaitEdit is the continuation of an edit dialog: it waits for the
// dialog to settle and applies the result on the loop.
func (w *Workspace) awaitEdit(p *pendingEdit) {
	res, err := p.dialog.Wait(w.bg)
	if err != nil {
		return
	}

	err = w.loop.Do(w.bg, func() error {
		defer close(p.applied)
		delete(w.dialogs, p.dialog.ID)

		f, err := w.table.ApplyEdit(w.features, p.dialog, res)
		if err != nil {
			return err
		}

		switch {
		case res.Canceled:
			log.Debug().Int("row", p.dialog.Row).Msg("Row edit cancelled")
		case f == nil:
			log.Warn().
				Int("row", p.dialog.Row).
				Str("id", p.dialog.RowID).
				Msg("Row edited but no feature has its id")
		default:
			log.Debug().Int("row", p.dialog.Row).Str("fid", f.FID()).Msg("Row edit applied")
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("dialog", p.dialog.ID).Msg("Failed to apply row edit")
	}
}

// AddFeatures appends imported features to the collection.
func (w *Workspace) AddFeatures(ctx context.Context, fs []*feature.Feature) (View, error) {
	return w.apply(ctx, func() error {
		w.features.Add(fs...)
		return nil
	})
}

// Export returns the GeoJSON download of the whole collection.
func (w *Workspace) Export(ctx context.Context) (export.Download, error) {
	var d export.Download
	err := w.loop.Do(ctx, func() error {
		var err error
		d, err = export.Export(w.features.Features(), w.exportName)
		return err
	})

	return d, err
}

// Convert posts the collection to the conversion service. The features
// are serialized on the loop; the request itself runs on the caller's
// goroutine so the loop keeps serving events.
func (w *Workspace) Convert(ctx context.Context) (export.ConvertResponse, error) {
	var fc *geojson.FeatureCollection
	err := w.loop.Do(ctx, func() error {
		fc = export.Collection(w.features.Features(), false)
		return nil
	})
	if err != nil {
		return export.ConvertResponse{}, err
	}

	resp, err := w.converter.Convert(ctx, fc)
	if err != nil {
		log.Error().Err(err).Msg("Error converting to Shapefile")
		return export.ConvertResponse{}, err
	}

	return resp, nil
}

func (w *Workspace) openForm(f *feature.Feature) {
	form := w.forms.Open(f)
	log.Debug().
		Str("fid", f.FID()).
		Str("type", string(f.Geometry().Kind)).
		Str("form", form.ID).
		Msg("Feature drawn, attribute form opened")
}

func (w *Workspace) applyGeometries(updates []GeometryUpdate) ([]*feature.Feature, error) {
	fs := make([]*feature.Feature, 0, len(updates))
	for _, u := range updates {
		f, ok := w.features.Get(u.FID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, u.FID)
		}
		fs = append(fs, f)
	}

	for i, u := range updates {
		if u.Geometry.Kind != "" {
			fs[i].SetGeometry(u.Geometry)
		}
	}

	return fs, nil
}

// apply runs fn on the loop and snapshots the view in the same turn.
func (w *Workspace) apply(ctx context.Context, fn func() error) (View, error) {
	var v View
	err := w.loop.Do(ctx, func() error {
		if err := fn(); err != nil {
			return err
		}
		v = w.snapshot()
		return nil
	})

	return v, err
}
