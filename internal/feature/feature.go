// Package feature holds annotated features and the shared collection that
// the map view, the attribute table and export all read.
//
// Nothing in this package is safe for concurrent use. The workspace event
// loop is the only caller.
package feature

import (
	"maps"

	"github.com/woozymasta/mapnote/internal/geo"

	"github.com/google/uuid"
)

// Well known property keys.
const (
	KeyID      = "id"
	KeyName    = "name"
	KeyDesc    = "Desc"
	KeyMeasure = "Measure"
)

// ListenerKey identifies a geometry change subscription.
type ListenerKey uint64

type listener struct {
	key ListenerKey
	fn  func(geo.Geometry)
}

// Feature is a geometry plus string attributes.
type Feature struct {
	fid       string
	geom      geo.Geometry
	props     map[string]string
	listeners []listener
	nextKey   ListenerKey
}

// New creates a feature with empty properties.
func New(g geo.Geometry) *Feature {
	return &Feature{
		fid:   uuid.NewString(),
		geom:  g,
		props: make(map[string]string),
	}
}

// FID is the internal identifier used to address the feature from the
// browser. It is unrelated to the user supplied "id" property.
func (f *Feature) FID() string { return f.fid }

// Geometry returns the current geometry.
func (f *Feature) Geometry() geo.Geometry { return f.geom }

// SetGeometry replaces the geometry and notifies change listeners in
// subscription order.
func (f *Feature) SetGeometry(g geo.Geometry) {
	f.geom = g

	// listeners may unsubscribe while being notified
	current := append([]listener(nil), f.listeners...)
	for _, l := range current {
		l.fn(g)
	}
}

// OnChange subscribes fn to geometry changes.
func (f *Feature) OnChange(fn func(geo.Geometry)) ListenerKey {
	f.nextKey++
	f.listeners = append(f.listeners, listener{key: f.nextKey, fn: fn})

	return f.nextKey
}

// Unsubscribe removes a subscription. It reports false when the key was
// not subscribed.
func (f *Feature) Unsubscribe(key ListenerKey) bool {
	for i, l := range f.listeners {
		if l.key == key {
			f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
			return true
		}
	}

	return false
}

// ListenerCount returns the number of active geometry subscriptions.
func (f *Feature) ListenerCount() int { return len(f.listeners) }

// Properties returns a copy of the attributes.
func (f *Feature) Properties() map[string]string {
	return maps.Clone(f.props)
}

// Get returns a single attribute.
func (f *Feature) Get(key string) (string, bool) {
	v, ok := f.props[key]
	return v, ok
}

// SetProperties merges attrs into the existing attributes.
func (f *Feature) SetProperties(attrs map[string]string) {
	maps.Copy(f.props, attrs)
}

// ReplaceProperties drops every attribute and stores attrs instead.
func (f *Feature) ReplaceProperties(attrs map[string]string) {
	f.props = maps.Clone(attrs)
	if f.props == nil {
		f.props = make(map[string]string)
	}
}
