package workspace

import (
	"maps"

	"github.com/woozymasta/mapnote/internal/attrs"
	"github.com/woozymasta/mapnote/internal/draw"
	"github.com/woozymasta/mapnote/internal/geo"
	"github.com/woozymasta/mapnote/internal/tooltip"
)

// View is everything the browser renders.
type View struct {
	Kind     geo.Kind          `json:"kind"`
	State    draw.State        `json:"state"`
	Draw     draw.Interaction  `json:"draw"`
	Snap     draw.Snap         `json:"snap"`
	Features []FeatureView     `json:"features"`
	Overlays []tooltip.Overlay `json:"overlays"`
	Forms    []attrs.Form      `json:"forms"`
	Rows     []attrs.Row       `json:"rows"`
	Dialogs  []DialogView      `json:"dialogs"`
}

// FeatureView is a feature as sent to the browser.
type FeatureView struct {
	FID        string            `json:"fid"`
	Geometry   geo.Geometry      `json:"geometry"`
	Properties map[string]string `json:"properties"`
}

// DialogView is a pending row edit dialog.
type DialogView struct {
	ID       string           `json:"id"`
	Row      int              `json:"row"`
	RowID    string           `json:"row_id"`
	Defaults attrs.EditValues `json:"defaults"`
}

func newDialogView(d *attrs.EditDialog) DialogView {
	return DialogView{ID: d.ID, Row: d.Row, RowID: d.RowID, Defaults: d.Defaults}
}

// snapshot copies workflow state so it can be encoded off the loop.
func (w *Workspace) snapshot() View {
	d, s := w.draw.Interactions()

	v := View{
		Kind:     w.draw.Kind(),
		State:    w.draw.State(),
		Draw:     d,
		Snap:     s,
		Features: make([]FeatureView, 0, w.features.Len()),
		Overlays: w.tooltips.Overlays(),
		Rows:     w.table.Rows(),
		Forms:    []attrs.Form{},
		Dialogs:  []DialogView{},
	}

	for _, f := range w.features.Features() {
		v.Features = append(v.Features, FeatureView{
			FID:        f.FID(),
			Geometry:   f.Geometry().Clone(),
			Properties: f.Properties(),
		})
	}

	for _, f := range w.forms.Pending() {
		c := *f
		c.Defaults = maps.Clone(f.Defaults)
		v.Forms = append(v.Forms, c)
	}

	for _, p := range w.dialogs {
		v.Dialogs = append(v.Dialogs, newDialogView(p.dialog))
	}
	if v.Rows == nil {
		v.Rows = []attrs.Row{}
	}

	return v
}
