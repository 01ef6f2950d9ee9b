// Package attrs collects user attributes for finished features and keeps
// the attribute table in sync with them.
package attrs

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/woozymasta/mapnote/internal/feature"
	"github.com/woozymasta/mapnote/internal/measure"

	"github.com/google/uuid"
)

// Form errors.
var (
	ErrFormNotFound = errors.New("form not found")
	ErrValidation   = errors.New("form validation failed")
)

// Field is one input of the attribute form.
type Field struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Input    string `json:"input"`
	Required bool   `json:"required"`
}

// Fields of the attribute form, in display order.
var Fields = []Field{
	{Name: feature.KeyID, Label: "Id", Input: "number", Required: true},
	{Name: feature.KeyName, Label: "Name", Input: "text", Required: true},
	{Name: feature.KeyDesc, Label: "Description", Input: "text", Required: true},
	{Name: feature.KeyMeasure, Label: "Measure", Input: "text", Required: true},
}

// ValidationError lists the rejected fields and why.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}

	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, ", "))
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Form is an attribute form bound to one feature.
type Form struct {
	ID       string            `json:"id"`
	FID      string            `json:"fid"`
	Fields   []Field           `json:"fields"`
	Defaults map[string]string `json:"defaults,omitempty"`

	feature *feature.Feature
}

// Feature returns the feature the form writes to.
func (f *Form) Feature() *feature.Feature { return f.feature }

// Validate applies the input constraints of the form: required fields must
// be present and non-blank, number inputs must parse as finite numbers.
func (f *Form) Validate(values map[string]string) error {
	bad := make(map[string]string)

	for _, field := range f.Fields {
		v, ok := values[field.Name]
		if field.Required && (!ok || strings.TrimSpace(v) == "") {
			bad[field.Name] = "required"
			continue
		}
		if field.Input == "number" && v != "" {
			n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
				bad[field.Name] = "not a number"
			}
		}
	}

	if len(bad) > 0 {
		return &ValidationError{Fields: bad}
	}

	return nil
}

// collect keeps the values of the form inputs only.
func (f *Form) collect(values map[string]string) map[string]string {
	out := make(map[string]string, len(f.Fields))
	for _, field := range f.Fields {
		if v, ok := values[field.Name]; ok {
			out[field.Name] = v
		}
	}

	return out
}

// Forms tracks the open attribute forms.
type Forms struct {
	open    []*Form
	table   *Table
	measure measure.Func
}

// NewForms returns a form manager appending submitted rows to table. fn
// computes the suggested Measure value; nil means measure.Measure.
func NewForms(table *Table, fn measure.Func) *Forms {
	if fn == nil {
		fn = measure.Measure
	}

	return &Forms{table: table, measure: fn}
}

// Open presents a form for f. Forms already open stay open.
func (fs *Forms) Open(f *feature.Feature) *Form {
	form := &Form{
		ID:      uuid.NewString(),
		FID:     f.FID(),
		Fields:  Fields,
		feature: f,
	}
	if text := fs.measure(f.Geometry()).Text; text != "" {
		form.Defaults = map[string]string{feature.KeyMeasure: text}
	}
	fs.open = append(fs.open, form)

	return form
}

// Get returns an open form.
func (fs *Forms) Get(id string) (*Form, bool) {
	for _, f := range fs.open {
		if f.ID == id {
			return f, true
		}
	}

	return nil, false
}

// Pending returns the open forms in opening order.
func (fs *Forms) Pending() []*Form {
	return append([]*Form(nil), fs.open...)
}

// Submit validates values against the form, then replaces the feature
// attributes with them, closes the form and appends a table row.
func (fs *Forms) Submit(id string, values map[string]string) (Row, error) {
	form, ok := fs.Get(id)
	if !ok {
		return Row{}, fmt.Errorf("%w: %s", ErrFormNotFound, id)
	}
	if err := form.Validate(values); err != nil {
		return Row{}, err
	}

	return fs.handleSubmit(form, values), nil
}

func (fs *Forms) handleSubmit(form *Form, values map[string]string) Row {
	attrs := form.collect(values)
	form.feature.ReplaceProperties(attrs)
	fs.close(form)

	row := Row{
		ID:      attrs[feature.KeyID],
		Name:    attrs[feature.KeyName],
		Desc:    attrs[feature.KeyDesc],
		Measure: attrs[feature.KeyMeasure],
	}
	fs.table.Append(row)

	return row
}

func (fs *Forms) close(form *Form) {
	for i, f := range fs.open {
		if f == form {
			fs.open = append(fs.open[:i], fs.open[i+1:]...)
			return
		}
	}
}
