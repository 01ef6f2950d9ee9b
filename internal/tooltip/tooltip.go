// Package tooltip keeps the measurement overlays drawn over the map.
//
// At most one overlay is live (receiving measurement updates). Freezing
// turns it into a static annotation that stays on the map.
package tooltip

import (
	"errors"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// Overlay CSS classes.
const (
	ClassMeasure = "ol-tooltip ol-tooltip-measure"
	ClassStatic  = "ol-tooltip ol-tooltip-static"
)

// Positioning of every measurement overlay relative to its anchor.
const Positioning = "bottom-center"

// Pixel offsets of live and frozen overlays.
var (
	LiveOffset   = Offset{0, -15}
	StaticOffset = Offset{0, -7}
)

// ErrNoLiveTooltip is returned when an update arrives with no live overlay.
var ErrNoLiveTooltip = errors.New("no live tooltip")

// Offset is a pixel offset.
type Offset [2]int

// Overlay is one tooltip as the browser renders it.
type Overlay struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Position    *orb.Point `json:"position,omitempty"` // nil hides the overlay
	Offset      Offset     `json:"offset"`
	Positioning string     `json:"positioning"`
	Class       string     `json:"class"`
	Static      bool       `json:"static"`
}

// Presenter owns the overlays of one map.
type Presenter struct {
	overlays []*Overlay
	live     *Overlay
}

// NewPresenter returns a presenter with no overlays.
func NewPresenter() *Presenter {
	return &Presenter{}
}

// CreateLive discards the current live overlay, if any, and attaches a new
// empty one.
func (p *Presenter) CreateLive() *Overlay {
	if p.live != nil {
		p.detach(p.live)
	}

	p.live = &Overlay{
		ID:          uuid.NewString(),
		Offset:      LiveOffset,
		Positioning: Positioning,
		Class:       ClassMeasure,
	}
	p.overlays = append(p.overlays, p.live)

	return p.live
}

// Live returns the live overlay or nil.
func (p *Presenter) Live() *Overlay { return p.live }

// UpdateLive sets the live overlay text and moves it to coord.
func (p *Presenter) UpdateLive(text string, coord orb.Point) error {
	if p.live == nil {
		return ErrNoLiveTooltip
	}
	p.live.Text = text
	p.live.Position = &coord

	return nil
}

// Clear empties the live overlay text without moving it.
func (p *Presenter) Clear() error {
	if p.live == nil {
		return ErrNoLiveTooltip
	}
	p.live.Text = ""

	return nil
}

// AppendLive appends text to the live overlay and moves it to coord.
func (p *Presenter) AppendLive(text string, coord orb.Point) error {
	if p.live == nil {
		return ErrNoLiveTooltip
	}
	p.live.Text += text
	p.live.Position = &coord

	return nil
}

// Freeze turns the live overlay into a static annotation and leaves the
// live slot empty. It returns the frozen overlay, or nil when nothing was
// live.
func (p *Presenter) Freeze() *Overlay {
	o := p.live
	if o == nil {
		return nil
	}

	o.Class = ClassStatic
	o.Offset = StaticOffset
	o.Static = true
	p.live = nil

	return o
}

// Overlays returns copies of all attached overlays in creation order.
func (p *Presenter) Overlays() []Overlay {
	out := make([]Overlay, 0, len(p.overlays))
	for _, o := range p.overlays {
		c := *o
		if o.Position != nil {
			pos := *o.Position
			c.Position = &pos
		}
		out = append(out, c)
	}

	return out
}

func (p *Presenter) detach(o *Overlay) {
	for i, cur := range p.overlays {
		if cur == o {
			p.overlays = append(p.overlays[:i], p.overlays[i+1:]...)
			return
		}
	}
}
