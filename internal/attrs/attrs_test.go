package attrs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/woozymasta/mapnote/internal/feature"
	"github.com/woozymasta/mapnote/internal/geo"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLine() *feature.Feature {
	return feature.New(geo.NewLineString(orb.LineString{{0, 0}, {5, 0}}))
}

func validValues() map[string]string {
	return map[string]string{"id": "1", "name": "A", "Desc": "d", "Measure": "5 m"}
}

func TestOpenPrefillsMeasure(t *testing.T) {
	forms := NewForms(NewTable(), nil)
	f := newLine()

	form := forms.Open(f)
	assert.Equal(t, f.FID(), form.FID)
	assert.Equal(t, Fields, form.Fields)
	assert.Equal(t, "5 m", form.Defaults["Measure"])

	pt := forms.Open(feature.New(geo.NewPoint(orb.Point{1, 1})))
	assert.Nil(t, pt.Defaults)
	assert.Len(t, forms.Pending(), 2)
}

func TestValidate(t *testing.T) {
	form := NewForms(NewTable(), nil).Open(newLine())

	tests := []struct {
		name   string
		mutate func(map[string]string)
		bad    []string
	}{
		{"valid", func(map[string]string) {}, nil},
		{"decimal id", func(v map[string]string) { v["id"] = "-1.5" }, nil},
		{"empty", func(v map[string]string) { clear(v) }, []string{"id", "name", "Desc", "Measure"}},
		{"blank name", func(v map[string]string) { v["name"] = "  " }, []string{"name"}},
		{"missing desc", func(v map[string]string) { delete(v, "Desc") }, []string{"Desc"}},
		{"text id", func(v map[string]string) { v["id"] = "abc" }, []string{"id"}},
		{"nan id", func(v map[string]string) { v["id"] = "NaN" }, []string{"id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := validValues()
			tt.mutate(values)

			err := form.Validate(values)
			if tt.bad == nil {
				assert.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			for _, name := range tt.bad {
				assert.Contains(t, verr.Fields, name)
			}
			assert.Len(t, verr.Fields, len(tt.bad))
		})
	}
}

func TestSubmitAppendsRow(t *testing.T) {
	table := NewTable()
	forms := NewForms(table, nil)
	f := newLine()
	f.ReplaceProperties(map[string]string{"stale": "x"})
	form := forms.Open(f)

	values := validValues()
	values["ignored"] = "not an input"

	row, err := forms.Submit(form.ID, values)
	require.NoError(t, err)

	assert.Equal(t, Row{ID: "1", Name: "A", Desc: "d", Measure: "5 m"}, row)
	assert.Equal(t, []Row{row}, table.Rows())
	assert.Equal(t, map[string]string{"id": "1", "name": "A", "Desc": "d", "Measure": "5 m"}, f.Properties())
	assert.Empty(t, forms.Pending())

	_, err = forms.Submit(form.ID, values)
	assert.ErrorIs(t, err, ErrFormNotFound)
}

func TestSubmitRejectedBeforeHandler(t *testing.T) {
	table := NewTable()
	forms := NewForms(table, nil)
	f := newLine()
	form := forms.Open(f)

	_, err := forms.Submit(form.ID, map[string]string{"id": "1"})
	require.ErrorIs(t, err, ErrValidation)

	assert.Zero(t, table.Len())
	assert.Empty(t, f.Properties())
	assert.Len(t, forms.Pending(), 1)
}

func TestRowsKeepSubmissionOrder(t *testing.T) {
	table := NewTable()
	forms := NewForms(table, nil)

	first := forms.Open(newLine())
	second := forms.Open(newLine())

	v2 := validValues()
	v2["id"] = "2"
	_, err := forms.Submit(second.ID, v2)
	require.NoError(t, err)
	_, err = forms.Submit(first.ID, validValues())
	require.NoError(t, err)

	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[0].ID)
	assert.Equal(t, "1", rows[1].ID)
}

func submitted(t *testing.T, id string) (*Table, *feature.Collection, *feature.Feature) {
	t.Helper()

	table := NewTable()
	forms := NewForms(table, nil)
	c := feature.NewCollection()
	f := newLine()
	c.Add(f)

	values := validValues()
	values["id"] = id
	_, err := forms.Submit(forms.Open(f).ID, values)
	require.NoError(t, err)

	return table, c, f
}

func TestEditUpdatesRowAndFeature(t *testing.T) {
	table, c, f := submitted(t, "1")

	d, err := table.BeginEdit(0)
	require.NoError(t, err)
	assert.Equal(t, EditValues{Name: "A", Desc: "d", Measure: "5 m"}, d.Defaults)

	require.True(t, d.Resolve(EditValues{Name: "B", Desc: "e", Measure: "6 m"}))
	res, err := d.Wait(context.Background())
	require.NoError(t, err)

	got, err := table.ApplyEdit(c, d, res)
	require.NoError(t, err)
	assert.Same(t, f, got)

	assert.Equal(t, Row{ID: "1", Name: "B", Desc: "e", Measure: "6 m"}, table.Rows()[0])
	assert.Equal(t, map[string]string{"id": "1", "name": "B", "Desc": "e", "Measure": "6 m"}, f.Properties())
}

func TestEditWithoutMatchingFeature(t *testing.T) {
	table, c, f := submitted(t, "1")
	// the feature id drifts away from the row id
	f.SetProperties(map[string]string{"id": "7"})
	before := f.Properties()

	d, err := table.BeginEdit(0)
	require.NoError(t, err)
	d.Resolve(EditValues{Name: "B", Desc: "e", Measure: "6 m"})
	res, err := d.Wait(context.Background())
	require.NoError(t, err)

	got, err := table.ApplyEdit(c, d, res)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Equal(t, "B", table.Rows()[0].Name)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, before, f.Properties())
}

func TestEditCancelled(t *testing.T) {
	table, c, f := submitted(t, "1")
	before := f.Properties()

	d, err := table.BeginEdit(0)
	require.NoError(t, err)
	require.True(t, d.Cancel())
	assert.False(t, d.Resolve(EditValues{Name: "late"}))

	res, err := d.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Canceled)

	got, err := table.ApplyEdit(c, d, res)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, "A", table.Rows()[0].Name)
	assert.Equal(t, before, f.Properties())
}

func TestEditDuplicateIDsHitsFirst(t *testing.T) {
	table := NewTable()
	forms := NewForms(table, nil)
	c := feature.NewCollection()
	first, second := newLine(), newLine()
	c.Add(first, second)

	for _, f := range []*feature.Feature{first, second} {
		_, err := forms.Submit(forms.Open(f).ID, validValues())
		require.NoError(t, err)
	}

	d, err := table.BeginEdit(1)
	require.NoError(t, err)
	d.Resolve(EditValues{Name: "Z", Desc: "z", Measure: "z"})
	res, _ := d.Wait(context.Background())

	got, err := table.ApplyEdit(c, d, res)
	require.NoError(t, err)
	assert.Same(t, first, got)

	name, _ := second.Get("name")
	assert.Equal(t, "A", name)
	assert.Equal(t, "A", table.Rows()[0].Name)
	assert.Equal(t, "Z", table.Rows()[1].Name)
}

func TestBeginEditOutOfRange(t *testing.T) {
	_, err := NewTable().BeginEdit(0)
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestWaitHonoursContext(t *testing.T) {
	table, _, _ := submitted(t, "1")
	d, err := table.BeginEdit(0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = d.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-d.Done():
		t.Fatal("dialog settled without input")
	default:
	}
}
