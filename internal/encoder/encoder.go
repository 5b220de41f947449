// Package encoder maps categorical labels to integer codes the way a label
// encoder does: codes follow sorted label order and unseen labels map to -1.
package encoder

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Unknown is the code of a label that was not seen during fitting.
const Unknown = -1

// Encoder is a fitted label encoder for one column. It is immutable.
type Encoder struct {
	classes []string
	index   map[string]int
}

// Fit builds an encoder from the distinct values, sorted.
func Fit(values []string) *Encoder {
	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return fromClasses(classes)
}

func fromClasses(classes []string) *Encoder {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	return &Encoder{classes: classes, index: index}
}

// Code returns the label's code, or Unknown.
func (e *Encoder) Code(label string) int {
	if e == nil {
		return Unknown
	}
	if code, ok := e.index[label]; ok {
		return code
	}
	return Unknown
}

// Known reports whether the label was seen during fitting.
func (e *Encoder) Known(label string) bool {
	if e == nil {
		return false
	}
	_, ok := e.index[label]
	return ok
}

// Classes returns a copy of the fitted labels in code order.
func (e *Encoder) Classes() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.classes))
	copy(out, e.classes)
	return out
}

func (e *Encoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.classes)
}

func (e *Encoder) UnmarshalJSON(data []byte) error {
	var classes []string
	if err := json.Unmarshal(data, &classes); err != nil {
		return err
	}
	if !sort.StringsAreSorted(classes) {
		return fmt.Errorf("encoder classes are not sorted")
	}
	*e = *fromClasses(classes)
	return nil
}

// Registry holds one encoder per categorical column.
type Registry struct {
	encoders map[string]*Encoder
}

// FitRegistry fits an encoder for every column in columns, reading labels
// with the given accessor for each of n rows.
func FitRegistry(columns []string, n int, label func(row int, column string) string) *Registry {
	r := &Registry{encoders: make(map[string]*Encoder, len(columns))}
	for _, col := range columns {
		values := make([]string, n)
		for i := 0; i < n; i++ {
			values[i] = label(i, col)
		}
		r.encoders[col] = Fit(values)
	}
	return r
}

// Has reports whether the column is categorical in this registry.
func (r *Registry) Has(column string) bool {
	if r == nil {
		return false
	}
	_, ok := r.encoders[column]
	return ok
}

// Encoder returns the column's encoder, or nil.
func (r *Registry) Encoder(column string) *Encoder {
	if r == nil {
		return nil
	}
	return r.encoders[column]
}

// Code encodes a label for a column; unseen labels and columns give Unknown.
func (r *Registry) Code(column, label string) float64 {
	return float64(r.Encoder(column).Code(label))
}

// Columns returns the encoded column names, sorted.
func (r *Registry) Columns() []string {
	if r == nil {
		return nil
	}
	cols := make([]string, 0, len(r.encoders))
	for c := range r.encoders {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.encoders)
}

func (r *Registry) UnmarshalJSON(data []byte) error {
	encoders := make(map[string]*Encoder)
	if err := json.Unmarshal(data, &encoders); err != nil {
		return err
	}
	r.encoders = encoders
	return nil
}
