package attrs

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// EditValues are the editable row attributes.
type EditValues struct {
	Name    string `json:"name"`
	Desc    string `json:"Desc"`
	Measure string `json:"Measure"`
}

// EditResult is the outcome of an edit dialog.
type EditResult struct {
	Values   EditValues
	Canceled bool
}

// EditDialog is a pending, non-blocking row edit. It settles exactly once,
// by Resolve or Cancel; Wait is the future of its result.
type EditDialog struct {
	ID       string     `json:"id"`
	Row      int        `json:"row"`
	RowID    string     `json:"row_id"`
	Defaults EditValues `json:"defaults"`

	once   sync.Once
	done   chan struct{}
	result EditResult
}

func newEditDialog(index int, row Row) *EditDialog {
	return &EditDialog{
		ID:    uuid.NewString(),
		Row:   index,
		RowID: row.ID,
		Defaults: EditValues{
			Name:    row.Name,
			Desc:    row.Desc,
			Measure: row.Measure,
		},
		done: make(chan struct{}),
	}
}

// Resolve settles the dialog with new values. It reports false when the
// dialog was already settled.
func (d *EditDialog) Resolve(v EditValues) bool {
	return d.settle(EditResult{Values: v})
}

// Cancel settles the dialog without values.
func (d *EditDialog) Cancel() bool {
	return d.settle(EditResult{Canceled: true})
}

// Done is closed once the dialog is settled.
func (d *EditDialog) Done() <-chan struct{} { return d.done }

// Wait blocks until the dialog settles or ctx ends.
func (d *EditDialog) Wait(ctx context.Context) (EditResult, error) {
	select {
	case <-d.done:
		return d.result, nil
	case <-ctx.Done():
		return EditResult{}, ctx.Err()
	}
}

func (d *EditDialog) settle(r EditResult) bool {
	settled := false
	d.once.Do(func() {
		d.result = r
		close(d.done)
		settled = true
	})

	return settled
}
