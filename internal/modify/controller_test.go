package modify

import (
	"testing"

	"github.com/woozymasta/mapnote/internal/feature"
	"github.com/woozymasta/mapnote/internal/geo"
	"github.com/woozymasta/mapnote/internal/tooltip"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func equatorLine(length float64) *feature.Feature {
	return feature.New(geo.NewLineString(orb.LineString{{0, 0}, {length, 0}}))
}

func TestStartConcatenatesAcrossFeatures(t *testing.T) {
	tips := tooltip.NewPresenter()
	tips.CreateLive()
	c := New(tips, nil)

	a := equatorLine(50)
	b := feature.New(geo.NewCircle(orb.Point{7, 8}, 1000))

	c.Start([]*feature.Feature{a, b})
	assert.True(t, c.Active())

	live := tips.Live()
	require.NotNil(t, live)
	assert.Equal(t, "50 m3.14 km²", live.Text)
	assert.Equal(t, orb.Point{7, 8}, *live.Position)
}

func TestEndUsesCurrentGeometryAndFreezes(t *testing.T) {
	tips := tooltip.NewPresenter()
	tips.CreateLive()
	c := New(tips, nil)

	f := equatorLine(50)
	c.Start([]*feature.Feature{f})

	f.SetGeometry(geo.NewLineString(orb.LineString{{0, 0}, {250, 0}}))
	c.End([]*feature.Feature{f})

	assert.False(t, c.Active())
	assert.Nil(t, tips.Live())

	overlays := tips.Overlays()
	require.Len(t, overlays, 1)
	assert.Equal(t, "0.25 km", overlays[0].Text)
	assert.True(t, overlays[0].Static)
	assert.Equal(t, tooltip.StaticOffset, overlays[0].Offset)
}

func TestNextModificationGetsNewTooltip(t *testing.T) {
	tips := tooltip.NewPresenter()
	c := New(tips, nil)

	f := equatorLine(10)
	c.Start([]*feature.Feature{f})
	c.End([]*feature.Feature{f})
	c.Start([]*feature.Feature{f})

	overlays := tips.Overlays()
	require.Len(t, overlays, 2)
	assert.True(t, overlays[0].Static)
	assert.False(t, overlays[1].Static)
	assert.Equal(t, "10 m", overlays[1].Text)
}

func TestEmptySelectionClearsText(t *testing.T) {
	tips := tooltip.NewPresenter()
	tips.CreateLive()
	require.NoError(t, tips.UpdateLive("stale", orb.Point{}))

	New(tips, nil).Start(nil)
	assert.Empty(t, tips.Live().Text)
}
