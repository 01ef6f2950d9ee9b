package attrs

import (
	"errors"
	"fmt"

	"github.com/woozymasta/mapnote/internal/feature"
)

// ErrRowNotFound is returned for an out of range row index.
var ErrRowNotFound = errors.New("row not found")

// Row mirrors the display attributes of one submitted feature.
type Row struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Desc    string `json:"Desc"`
	Measure string `json:"Measure"`
}

// Table is the append-only attribute list. Row order is submission order.
type Table struct {
	rows []Row
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// Append adds a row and returns its index.
func (t *Table) Append(r Row) int {
	t.rows = append(t.rows, r)
	return len(t.rows) - 1
}

// Len returns the row count.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns a copy of all rows.
func (t *Table) Rows() []Row {
	return append([]Row(nil), t.rows...)
}

// Row returns the row at index i.
func (t *Table) Row(i int) (Row, error) {
	if i < 0 || i >= len(t.rows) {
		return Row{}, fmt.Errorf("%w: %d", ErrRowNotFound, i)
	}

	return t.rows[i], nil
}

// BeginEdit opens an edit dialog prefilled with the row's current text.
func (t *Table) BeginEdit(i int) (*EditDialog, error) {
	row, err := t.Row(i)
	if err != nil {
		return nil, err
	}

	return newEditDialog(i, row), nil
}

// ApplyEdit writes a settled dialog result. The row text is always
// updated; the first feature whose "id" equals the row id gets the same
// values. A cancelled dialog changes nothing. The updated feature is
// returned, nil when no feature matched.
func (t *Table) ApplyEdit(c *feature.Collection, d *EditDialog, res EditResult) (*feature.Feature, error) {
	if res.Canceled {
		return nil, nil
	}
	if d.Row < 0 || d.Row >= len(t.rows) {
		return nil, fmt.Errorf("%w: %d", ErrRowNotFound, d.Row)
	}

	row := &t.rows[d.Row]
	row.Name = res.Values.Name
	row.Desc = res.Values.Desc
	row.Measure = res.Values.Measure

	f := c.FindByID(d.RowID)
	if f == nil {
		return nil, nil
	}
	f.SetProperties(map[string]string{
		feature.KeyName:    res.Values.Name,
		feature.KeyDesc:    res.Values.Desc,
		feature.KeyMeasure: res.Values.Measure,
	})

	return f, nil
}
