package apply

import (
	"fmt"
	"reflect"

	"gonum.org/v1/gonum/mat"
)

// Shape is the output structure requested from Assemble.
type Shape int

const (
	// Flat is an ordered sequence of scalars of one type.
	Flat Shape = iota
	// RowBound is a grid with one row per item; every item must be a
	// sequence of the same length.
	RowBound
	// AsIs keeps every result, errors included, without coercion.
	AsIs
	// Simplify picks Flat if possible, else RowBound, else AsIs.
	Simplify
)

func (s Shape) String() string {
	switch s {
	case Flat:
		return "flat"
	case RowBound:
		return "rowbound"
	case AsIs:
		return "asis"
	case Simplify:
		return "simplify"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// ParseShape maps a shape name to its Shape.
func ParseShape(name string) (Shape, error) {
	for _, s := range []Shape{Flat, RowBound, AsIs, Simplify} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown shape %q", name)
}

// Output is an assembled result. Which accessor carries data depends on
// Shape: Flat for Flat, Grid for RowBound, Items and Errors for AsIs.
type Output struct {
	shape Shape
	flat  []any
	grid  [][]any
	items []any
	errs  []error
}

// Shape returns the shape the output was assembled into. For a Simplify
// request this is the shape actually chosen.
func (o *Output) Shape() Shape { return o.shape }

func (o *Output) Flat() []any   { return o.flat }
func (o *Output) Grid() [][]any { return o.grid }

// Items returns the raw per-item values of an AsIs output; failed items
// hold nil.
func (o *Output) Items() []any { return o.items }

// Errors returns the per-item errors of an AsIs output, nil where the item
// succeeded.
func (o *Output) Errors() []error { return o.errs }

// Dims returns rows and columns. Flat outputs are one column.
func (o *Output) Dims() (rows, cols int) {
	switch o.shape {
	case Flat:
		return len(o.flat), 1
	case RowBound:
		if len(o.grid) == 0 {
			return 0, 0
		}
		return len(o.grid), len(o.grid[0])
	default:
		return len(o.items), 1
	}
}

// Matrix converts a numeric Flat (N×1) or RowBound output to a dense matrix.
func (o *Output) Matrix() (*mat.Dense, error) {
	var rows [][]any
	switch o.shape {
	case Flat:
		rows = make([][]any, len(o.flat))
		for i, v := range o.flat {
			rows[i] = []any{v}
		}
	case RowBound:
		rows = o.grid
	default:
		return nil, fmt.Errorf("%w: %s output has no matrix form", ErrShapeMismatch, o.shape)
	}

	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty output has no matrix form", ErrShapeMismatch)
	}
	r, c := len(rows), len(rows[0])
	data := make([]float64, 0, r*c)
	for i, row := range rows {
		for j, v := range row {
			f, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("%w: element [%d][%d] of type %T is not numeric", ErrShapeMismatch, i, j, v)
			}
			data = append(data, f)
		}
	}
	return mat.NewDense(r, c, data), nil
}

// FlatAs returns the elements of a Flat output as V.
func FlatAs[V any](o *Output) ([]V, error) {
	if o.shape != Flat {
		return nil, fmt.Errorf("%w: output is %s, not flat", ErrShapeMismatch, o.shape)
	}
	out := make([]V, len(o.flat))
	for i, v := range o.flat {
		tv, ok := v.(V)
		if !ok {
			var zero V
			return nil, fmt.Errorf("%w: element %d is %T, not %T", ErrShapeMismatch, i, v, zero)
		}
		out[i] = tv
	}
	return out, nil
}

// Assemble reshapes results into shape. For every shape except AsIs the
// first failed item, by index, is returned as the error.
func Assemble[R any](results Collection[R], shape Shape) (*Output, error) {
	if shape == AsIs {
		return asIs(results), nil
	}

	for _, r := range results {
		if r.Error != nil {
			return nil, r.Error
		}
	}
	values := make([]any, len(results))
	for i, r := range results {
		values[i] = any(r.Value)
	}

	switch shape {
	case Flat:
		return flat(values)
	case RowBound:
		return rowBound(values)
	case Simplify:
		if out, err := flat(values); err == nil {
			return out, nil
		}
		if out, err := rowBound(values); err == nil {
			return out, nil
		}
		return asIs(results), nil
	default:
		return nil, fmt.Errorf("%w: unknown shape %d", ErrShapeMismatch, int(shape))
	}
}

func asIs[R any](results Collection[R]) *Output {
	out := &Output{
		shape: AsIs,
		items: make([]any, len(results)),
		errs:  make([]error, len(results)),
	}
	for i, r := range results {
		out.errs[i] = r.Error
		if r.Error == nil {
			out.items[i] = any(r.Value)
		}
	}
	return out
}

func flat(values []any) (*Output, error) {
	var first reflect.Type
	for i, v := range values {
		t := reflect.TypeOf(v)
		if t == nil || !isScalar(t.Kind()) {
			return nil, fmt.Errorf("%w: item %d of type %T is not a scalar", ErrShapeMismatch, i, v)
		}
		if first == nil {
			first = t
		} else if t != first {
			return nil, fmt.Errorf("%w: item %d is %s, item 0 is %s", ErrShapeMismatch, i, t, first)
		}
	}
	return &Output{shape: Flat, flat: values}, nil
}

func rowBound(values []any) (*Output, error) {
	grid := make([][]any, len(values))
	width := -1
	for i, v := range values {
		rv := reflect.ValueOf(v)
		if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return nil, fmt.Errorf("%w: item %d of type %T is not a sequence", ErrShapeMismatch, i, v)
		}
		if width < 0 {
			width = rv.Len()
		} else if rv.Len() != width {
			return nil, fmt.Errorf("%w: item %d has length %d, item 0 has %d", ErrRaggedShape, i, rv.Len(), width)
		}

		row := make([]any, rv.Len())
		for j := range row {
			row[j] = rv.Index(j).Interface()
		}
		grid[i] = row
	}
	return &Output{shape: RowBound, grid: grid}, nil
}

func isScalar(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
