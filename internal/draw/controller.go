// Package draw runs drawing sessions: it measures the sketch while it is
// being drawn and hands the finished feature over for attribute entry.
package draw

import (
	"errors"
	"fmt"

	"github.com/woozymasta/mapnote/internal/feature"
	"github.com/woozymasta/mapnote/internal/geo"
	"github.com/woozymasta/mapnote/internal/measure"
	"github.com/woozymasta/mapnote/internal/tooltip"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultSnapTolerance is the snapping distance in pixels.
const DefaultSnapTolerance = 10

// Session errors.
var (
	ErrSketchActive = errors.New("a sketch is already in progress")
	ErrNoSketch     = errors.New("no sketch in progress")
	ErrKindMismatch = errors.New("geometry kind does not match the active tool")
)

// State of the current drawing session.
type State int

// Session states.
const (
	Idle State = iota
	Sketching
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sketching:
		return "sketching"
	case Finished:
		return "finished"
	}

	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Interaction is the draw tool installed in the browser. A new ID means
// the browser must drop its current tool and install this one.
type Interaction struct {
	ID   string   `json:"id"`
	Type geo.Kind `json:"type"`
}

// Snap is the snapping aid installed alongside the draw tool.
type Snap struct {
	ID        string `json:"id"`
	Tolerance int    `json:"tolerance"`
}

// Options configure a Controller.
type Options struct {
	Kind          geo.Kind
	SnapTolerance int
	// Measure defaults to measure.Measure.
	Measure measure.Func
	// OnFinish receives every completed feature after it joined the source.
	OnFinish func(*feature.Feature)
}

// Controller owns the draw interaction and all per-session state.
type Controller struct {
	source   *feature.Collection
	tooltips *tooltip.Presenter
	measure  measure.Func
	onFinish func(*feature.Feature)

	snapTolerance int
	kind          geo.Kind
	state         State
	sketch        *feature.Feature
	listener      feature.ListenerKey
	draw          *Interaction
	snap          *Snap
}

// New installs the draw interaction for opts.Kind and creates the first
// live tooltip.
func New(source *feature.Collection, tooltips *tooltip.Presenter, opts Options) (*Controller, error) {
	kind, err := geo.ParseKind(string(opts.Kind))
	if err != nil {
		return nil, err
	}

	c := &Controller{
		source:        source,
		tooltips:      tooltips,
		measure:       opts.Measure,
		onFinish:      opts.OnFinish,
		snapTolerance: opts.SnapTolerance,
	}
	if c.measure == nil {
		c.measure = measure.Measure
	}
	if c.snapTolerance <= 0 {
		c.snapTolerance = DefaultSnapTolerance
	}

	c.addInteractions(kind)

	return c, nil
}

// SetKind switches the drawing tool. The draw interaction and the snap aid
// are removed and fresh ones installed. A sketch in progress is aborted.
func (c *Controller) SetKind(k geo.Kind) error {
	kind, err := geo.ParseKind(string(k))
	if err != nil {
		return err
	}

	if c.state == Sketching {
		log.Warn().
			Str("from", string(c.kind)).
			Str("to", string(kind)).
			Msg("Tool switched mid-sketch, aborting sketch")
		c.abort()
	}

	c.draw = nil
	c.snap = nil
	c.addInteractions(kind)

	log.Debug().Str("type", string(kind)).Msg("Draw interaction installed")

	return nil
}

// Start begins a session with the initial sketch geometry.
func (c *Controller) Start(g geo.Geometry) (*feature.Feature, error) {
	if c.state == Sketching {
		return nil, ErrSketchActive
	}
	if g.Kind != c.kind {
		return nil, fmt.Errorf("%w: got %s, tool is %s", ErrKindMismatch, g.Kind, c.kind)
	}

	c.sketch = feature.New(g)
	c.tooltips.CreateLive()
	c.listener = c.sketch.OnChange(c.onGeometryChange)
	c.state = Sketching

	return c.sketch, nil
}

// Change replaces the sketch geometry; the tooltip follows.
func (c *Controller) Change(g geo.Geometry) error {
	if c.state != Sketching {
		return ErrNoSketch
	}
	if g.Kind != c.kind {
		return fmt.Errorf("%w: got %s, tool is %s", ErrKindMismatch, g.Kind, c.kind)
	}

	c.sketch.SetGeometry(g)

	return nil
}

// End finishes the session. A non-nil final geometry is applied first.
// The tooltip is frozen in place, the change listener removed and a new
// live tooltip prepared for the next session. The feature joins the
// source and is handed to OnFinish.
func (c *Controller) End(final *geo.Geometry) (*feature.Feature, error) {
	if c.state != Sketching {
		return nil, ErrNoSketch
	}
	if final != nil {
		if err := c.Change(*final); err != nil {
			return nil, err
		}
	}

	f := c.sketch

	c.tooltips.Freeze()
	c.sketch = nil
	c.tooltips.CreateLive()
	f.Unsubscribe(c.listener)
	c.listener = 0
	c.state = Finished

	c.source.Add(f)
	if c.onFinish != nil {
		c.onFinish(f)
	}

	return f, nil
}

// Abort drops the sketch without adding it to the source.
func (c *Controller) Abort() error {
	if c.state != Sketching {
		return ErrNoSketch
	}
	c.abort()

	return nil
}

// State returns the session state.
func (c *Controller) State() State { return c.state }

// Kind returns the active tool kind.
func (c *Controller) Kind() geo.Kind { return c.kind }

// Sketch returns the feature being drawn or nil.
func (c *Controller) Sketch() *feature.Feature { return c.sketch }

// Interactions returns copies of the installed draw tool and snap aid.
func (c *Controller) Interactions() (Interaction, Snap) {
	return *c.draw, *c.snap
}

func (c *Controller) addInteractions(kind geo.Kind) {
	c.kind = kind
	c.draw = &Interaction{ID: uuid.NewString(), Type: kind}
	c.snap = &Snap{ID: uuid.NewString(), Tolerance: c.snapTolerance}
	c.tooltips.CreateLive()
}

func (c *Controller) abort() {
	c.sketch.Unsubscribe(c.listener)
	c.listener = 0
	c.sketch = nil
	c.state = Idle
	c.tooltips.CreateLive()
}

func (c *Controller) onGeometryChange(g geo.Geometry) {
	r := c.measure(g)
	err := c.tooltips.UpdateLive(r.Text, r.Anchor)
	if errors.Is(err, tooltip.ErrNoLiveTooltip) {
		// the live slot was frozen under the sketch, e.g. by a modify end
		c.tooltips.CreateLive()
		err = c.tooltips.UpdateLive(r.Text, r.Anchor)
	}
	if err != nil {
		log.Warn().Err(err).Str("type", string(g.Kind)).Msg("Measurement update dropped")
	}
}
