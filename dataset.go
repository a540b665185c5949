/*
Copyright © 2024 the Pan3D authors.
This file is part of Pan3D.

Pan3D is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Pan3D is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Pan3D.  If not, see <http://www.gnu.org/licenses/>.
*/

package pan3d

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// DType describes the element type of a Variable using numpy-style kinds:
// 'f' float, 'i' signed integer, 'u' unsigned integer, 'b' boolean,
// 'S' bytes/characters, 'M' datetime and 'm' timedelta.
// Datetime values are held as seconds since the Unix epoch and timedelta
// values as seconds.
type DType struct {
	Kind     byte
	ItemSize int
}

// Commonly used data types.
var (
	Float32  = DType{Kind: 'f', ItemSize: 4}
	Float64  = DType{Kind: 'f', ItemSize: 8}
	Int8     = DType{Kind: 'i', ItemSize: 1}
	Int16    = DType{Kind: 'i', ItemSize: 2}
	Int32    = DType{Kind: 'i', ItemSize: 4}
	Int64    = DType{Kind: 'i', ItemSize: 8}
	Uint8    = DType{Kind: 'u', ItemSize: 1}
	Char     = DType{Kind: 'S', ItemSize: 1}
	Datetime = DType{Kind: 'M', ItemSize: 8}
)

// Numeric returns whether values of this type are plain numbers.
func (d DType) Numeric() bool {
	return d.Kind == 'f' || d.Kind == 'i' || d.Kind == 'u' || d.Kind == 'b'
}

// Integer returns whether values of this type are integers.
func (d DType) Integer() bool {
	return d.Kind == 'i' || d.Kind == 'u' || d.Kind == 'b'
}

// Time returns whether values of this type are datetimes or timedeltas.
func (d DType) Time() bool { return d.Kind == 'M' || d.Kind == 'm' }

func (d DType) String() string {
	switch d.Kind {
	case 'f':
		return fmt.Sprintf("float%d", d.ItemSize*8)
	case 'i':
		return fmt.Sprintf("int%d", d.ItemSize*8)
	case 'u':
		return fmt.Sprintf("uint%d", d.ItemSize*8)
	case 'b':
		return "bool"
	case 'S':
		return fmt.Sprintf("|S%d", d.ItemSize)
	case 'M':
		return "datetime64[ns]"
	case 'm':
		return "timedelta64[ns]"
	}
	return fmt.Sprintf("%c%d", d.Kind, d.ItemSize)
}

// Attr is a single metadata attribute.
type Attr struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Variable is a named N-dimensional array. Its values are loaded
// lazily the first time they are requested and stored in C order.
type Variable struct {
	Name  string
	Dims  []string
	Shape []int
	DType DType
	Attrs []Attr

	once   sync.Once
	load   func() ([]float64, error)
	values []float64
	err    error
}

// NewVariable returns an in-memory variable holding values.
func NewVariable(name string, dims []string, shape []int, dtype DType, attrs []Attr, values []float64) *Variable {
	return &Variable{
		Name:  name,
		Dims:  dims,
		Shape: shape,
		DType: dtype,
		Attrs: attrs,
		load:  func() ([]float64, error) { return values, nil },
	}
}

// Values returns the values of v in C order.
func (v *Variable) Values() ([]float64, error) {
	v.once.Do(func() {
		if v.load == nil {
			v.err = fmt.Errorf("pan3d: variable %s has no data", v.Name)
			return
		}
		v.values, v.err = v.load()
		if v.err == nil && len(v.values) != v.Size() {
			v.err = fmt.Errorf("pan3d: variable %s: read %d values but shape %v holds %d",
				v.Name, len(v.values), v.Shape, v.Size())
		}
	})
	return v.values, v.err
}

// Size returns the number of elements in v.
func (v *Variable) Size() int {
	n := 1
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

// NBytes returns the number of bytes v occupies in its native type.
func (v *Variable) NBytes() int64 {
	return int64(v.Size()) * int64(v.DType.ItemSize)
}

// Attr returns the value of the attribute named key.
func (v *Variable) Attr(key string) (string, bool) {
	for _, a := range v.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// DimIndex returns the position of dimension dim in v, or -1.
func (v *Variable) DimIndex(dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// Dataset is a collection of variables sharing a set of named dimensions.
type Dataset struct {
	Attrs []Attr

	// Dims holds the dimension names in file order.
	Dims  []string
	Sizes map[string]int

	vars   []*Variable
	mu     sync.Mutex
	coords map[string]*Variable
	closer io.Closer
}

// NewDataset creates a dataset from vars. One-dimensional variables
// named after their own dimension are treated as coordinates; all
// others are data variables. closer, if not nil, is closed by Close.
func NewDataset(attrs []Attr, dims []string, sizes map[string]int, vars []*Variable, closer io.Closer) *Dataset {
	d := &Dataset{
		Attrs:  attrs,
		Dims:   dims,
		Sizes:  sizes,
		coords: make(map[string]*Variable),
		closer: closer,
	}
	for _, v := range vars {
		if len(v.Dims) == 1 && v.Dims[0] == v.Name {
			d.coords[v.Name] = v
			continue
		}
		d.vars = append(d.vars, v)
	}
	return d
}

// DataVars returns the names of the data variables in file order.
func (d *Dataset) DataVars() []string {
	o := make([]string, len(d.vars))
	for i, v := range d.vars {
		o[i] = v.Name
	}
	return o
}

// Var returns the data variable with the given name.
func (d *Dataset) Var(name string) (*Variable, error) {
	for _, v := range d.vars {
		if v.Name == name {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownVariable, name)
}

// Coord returns the coordinate variable for dimension dim. Dimensions
// without a coordinate variable get an integer index coordinate.
func (d *Dataset) Coord(dim string) *Variable {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.coords[dim]; ok {
		return c
	}
	n := d.Sizes[dim]
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i)
	}
	c := NewVariable(dim, []string{dim}, []int{n}, Int64, nil, vals)
	d.coords[dim] = c
	return c
}

// CoordNames returns the names of the explicit coordinate variables, sorted.
func (d *Dataset) CoordNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var o []string
	for n := range d.coords {
		o = append(o, n)
	}
	sort.Strings(o)
	return o
}

// DefaultVar returns the name of the first data variable that
// is not a cell-bounds variable, or "" if there is none.
func (d *Dataset) DefaultVar() string {
	for _, v := range d.vars {
		if strings.Contains(v.Name, "bounds") || strings.Contains(v.Name, "bnds") {
			continue
		}
		return v.Name
	}
	return ""
}

// Close releases any resources held by the dataset.
func (d *Dataset) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}
