// Package modify re-measures features while their vertices are dragged.
package modify

import (
	"github.com/woozymasta/mapnote/internal/feature"
	"github.com/woozymasta/mapnote/internal/measure"
	"github.com/woozymasta/mapnote/internal/tooltip"
)

// Controller reacts to modify start and end events.
type Controller struct {
	tooltips *tooltip.Presenter
	measure  measure.Func
	active   bool
}

// New returns a controller writing into tooltips. A nil fn means
// measure.Measure.
func New(tooltips *tooltip.Presenter, fn measure.Func) *Controller {
	if fn == nil {
		fn = measure.Measure
	}

	return &Controller{tooltips: tooltips, measure: fn}
}

// Start shows the measurements of every feature being modified.
func (c *Controller) Start(features []*feature.Feature) {
	c.active = true
	c.show(features)
}

// End shows the final measurements and freezes the tooltip in place.
func (c *Controller) End(features []*feature.Feature) {
	c.show(features)
	c.tooltips.Freeze()
	c.active = false
}

// Active reports whether a modification is in progress.
func (c *Controller) Active() bool { return c.active }

// show writes the concatenated measurement text of features into the live
// tooltip, anchored at the last feature. Geometries are read at call time.
func (c *Controller) show(features []*feature.Feature) {
	if c.tooltips.Live() == nil {
		c.tooltips.CreateLive()
	}

	// cannot fail, a live tooltip exists
	_ = c.tooltips.Clear()
	for _, f := range features {
		r := c.measure(f.Geometry())
		_ = c.tooltips.AppendLive(r.Text, r.Anchor)
	}
}
