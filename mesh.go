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
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// ErrNoXAxis is returned when a mesh is requested before the x axis
// has been assigned.
var ErrNoXAxis = errors.New("pan3d: no dimension is assigned to the x axis")

// MeshSource turns a data array, an axis assignment, a time index and
// a slicing into a Mesh. It is safe for concurrent use.
type MeshSource struct {
	mu      sync.Mutex
	ds      *Dataset
	da      *Variable
	axes    Axes
	tIndex  int
	slicing Slicing
}

// SetDataArray sets the array that meshes are built from.
func (m *MeshSource) SetDataArray(ds *Dataset, da *Variable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ds, m.da = ds, da
}

// DataArray returns the current array.
func (m *MeshSource) DataArray() *Variable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.da
}

// SetAxes sets the axis assignment.
func (m *MeshSource) SetAxes(a Axes) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.axes = a
}

// SetTimeIndex sets the index along the time axis.
func (m *MeshSource) SetTimeIndex(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tIndex = i
}

// SetSlicing sets the slicing.
func (m *MeshSource) SetSlicing(s Slicing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slicing = s.Clone()
}

// selection holds the element indices chosen along each dimension of
// the data array, along with the chosen coordinate values.
type selection struct {
	index  [][]int
	coords [][]float64
}

// sel computes the selection. The time dimension is reduced to the
// time index, dimensions not assigned to any axis are reduced to their
// first element, and the rest are limited to their slices.
func (m *MeshSource) sel() (*selection, error) {
	if m.da == nil {
		return nil, fmt.Errorf("pan3d: no data array is selected")
	}
	if dim := m.axes.Duplicate(); dim != "" {
		return nil, fmt.Errorf("pan3d: %s is assigned to more than one axis", dim)
	}
	s := &selection{
		index:  make([][]int, len(m.da.Dims)),
		coords: make([][]float64, len(m.da.Dims)),
	}
	for d, dim := range m.da.Dims {
		c := m.ds.Coord(dim)
		cv, err := c.Values()
		if err != nil {
			return nil, err
		}
		a, assigned := m.axes.AxisOf(dim)
		switch {
		case assigned && a == AxisT:
			if m.tIndex < 0 || m.tIndex >= m.da.Shape[d] {
				return nil, fmt.Errorf("pan3d: time index %d out of range [0, %d)", m.tIndex, m.da.Shape[d])
			}
			s.index[d] = []int{m.tIndex}
		case !assigned:
			s.index[d] = []int{0}
		default:
			sl, ok := m.slicing[dim]
			if !ok {
				s.index[d] = seq(m.da.Shape[d])
				break
			}
			s.index[d] = sliceIndices(cv, sl, tolerance(c.DType))
			if len(s.index[d]) == 0 {
				return nil, fmt.Errorf("pan3d: slice [%s, %s] of %s selects no values", sl.Start, sl.Stop, dim)
			}
		}
		s.coords[d] = make([]float64, len(s.index[d]))
		for i, j := range s.index[d] {
			s.coords[d][i] = cv[j]
		}
	}
	return s, nil
}

func seq(n int) []int {
	o := make([]int, n)
	for i := range o {
		o[i] = i
	}
	return o
}

// tolerance is the distance outside a slice's bounds within which
// coordinate values are still selected, accounting for the rounding
// applied when coordinate ranges are displayed.
func tolerance(d DType) float64 {
	switch {
	case d.Time():
		return 60
	case d.Integer():
		return 0
	}
	return 0.005
}

// sliceIndices returns the indices of the values in cv that fall within
// sl, taking every sl.Step'th one.
func sliceIndices(cv []float64, sl Slice, tol float64) []int {
	lo, hi := sl.Start.Num, sl.Stop.Num
	if lo > hi {
		lo, hi = hi, lo
	}
	var in []int
	for i, v := range cv {
		if v >= lo-tol && v <= hi+tol {
			in = append(in, i)
		}
	}
	stride := sl.stride()
	o := make([]int, 0, (len(in)+stride-1)/stride)
	for i := 0; i < len(in); i += stride {
		o = append(o, in[i])
	}
	return o
}

// SlicedDataArray returns the data array limited by the slicing, with
// the time dimension and unassigned dimensions removed.
func (m *MeshSource) SlicedDataArray() (*Variable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sliced()
}

func (m *MeshSource) sliced() (*Variable, error) {
	s, err := m.sel()
	if err != nil {
		return nil, err
	}
	vals, err := m.da.Values()
	if err != nil {
		return nil, err
	}
	var dims []string
	var shape []int
	for d, dim := range m.da.Dims {
		if a, ok := m.axes.AxisOf(dim); ok && a != AxisT {
			dims = append(dims, dim)
			shape = append(shape, len(s.index[d]))
		}
	}
	strides := cStrides(m.da.Shape)
	n := 1
	for _, idx := range s.index {
		n *= len(idx)
	}
	out := make([]float64, 0, n)
	pos := make([]int, len(s.index))
	for k := 0; k < n; k++ {
		off := 0
		for d := range pos {
			off += s.index[d][pos[d]] * strides[d]
		}
		out = append(out, vals[off])
		for d := len(pos) - 1; d >= 0; d-- {
			pos[d]++
			if pos[d] < len(s.index[d]) {
				break
			}
			pos[d] = 0
		}
	}
	return NewVariable(m.da.Name, dims, shape, m.da.DType, m.da.Attrs, out), nil
}

// SlicedSize returns the number of elements and bytes in the sliced
// data array without reading its values.
func (m *MeshSource) SlicedSize() (int, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.sel()
	if err != nil {
		return 0, 0, err
	}
	n := 1
	for _, idx := range s.index {
		n *= len(idx)
	}
	return n, int64(n) * int64(m.da.DType.ItemSize), nil
}

func cStrides(shape []int) []int {
	s := make([]int, len(shape))
	st := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = st
		st *= shape[i]
	}
	return s
}

// DataRange returns the minimum and maximum finite values of the
// sliced data array.
func (m *MeshSource) DataRange() ([2]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.sliced()
	if err != nil {
		return [2]float64{}, err
	}
	vals, _ := v.Values()
	return dataRange(vals), nil
}

func dataRange(vals []float64) [2]float64 {
	finite := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return [2]float64{}
	}
	return [2]float64{floats.Min(finite), floats.Max(finite)}
}

// Mesh builds a rectilinear mesh from the sliced data array.
func (m *MeshSource) Mesh() (*Mesh, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.axes.X == "" {
		return nil, ErrNoXAxis
	}
	s, err := m.sel()
	if err != nil {
		return nil, err
	}
	vals, err := m.da.Values()
	if err != nil {
		return nil, err
	}
	mesh := &Mesh{Name: m.da.Name}
	var axisDim [3]int
	for i, a := range []Axis{AxisX, AxisY, AxisZ} {
		axisDim[i] = -1
		name := m.axes.Get(a)
		if name == "" {
			mesh.Coords[i] = []float64{0}
			continue
		}
		d := m.da.DimIndex(name)
		if d < 0 {
			return nil, fmt.Errorf("pan3d: %s is not a dimension of %s", name, m.da.Name)
		}
		axisDim[i] = d
		mesh.Coords[i] = s.coords[d]
	}

	strides := cStrides(m.da.Shape)
	base := 0
	for d, idx := range s.index {
		if d != axisDim[0] && d != axisDim[1] && d != axisDim[2] {
			base += idx[0] * strides[d]
		}
	}
	nx, ny, nz := len(mesh.Coords[0]), len(mesh.Coords[1]), len(mesh.Coords[2])
	mesh.Scalars = make([]float64, 0, nx*ny*nz)
	off := func(axis, i int) int {
		d := axisDim[axis]
		if d < 0 {
			return 0
		}
		return s.index[d][i] * strides[d]
	}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				mesh.Scalars = append(mesh.Scalars, vals[base+off(0, i)+off(1, j)+off(2, k)])
			}
		}
	}
	return mesh, nil
}

// Mesh is a rectilinear grid of points with one scalar value per point.
// Scalars are ordered with x varying fastest.
type Mesh struct {
	Name string

	// Coords holds the x, y and z coordinates of the grid lines.
	// Unassigned axes have the single coordinate 0.
	Coords [3][]float64

	Scalars []float64

	// Warp, if not nil, displaces each point along z.
	Warp []float64
}

// Dims returns the number of points along x, y and z.
func (m *Mesh) Dims() [3]int {
	return [3]int{len(m.Coords[0]), len(m.Coords[1]), len(m.Coords[2])}
}

// NDims returns the number of axes along which the mesh has more
// than one point.
func (m *Mesh) NDims() int {
	n := 0
	for _, c := range m.Coords {
		if len(c) > 1 {
			n++
		}
	}
	return n
}

// NPoints returns the number of points in the mesh.
func (m *Mesh) NPoints() int { return len(m.Scalars) }

// Point returns the location of point p.
func (m *Mesh) Point(p int) (x, y, z float64) {
	d := m.Dims()
	i := p % d[0]
	j := (p / d[0]) % d[1]
	k := p / (d[0] * d[1])
	x, y, z = m.Coords[0][i], m.Coords[1][j], m.Coords[2][k]
	if m.Warp != nil {
		z += m.Warp[p]
	}
	return
}

// WarpByScalar returns a copy of m whose points are displaced along z
// by factor times their scalar value. A factor of 0 picks one that makes
// the largest displacement a tenth of the mesh's largest extent.
func (m *Mesh) WarpByScalar(factor float64) *Mesh {
	o := *m
	r := dataRange(m.Scalars)
	if factor == 0 {
		var extent float64
		for _, c := range m.Coords {
			if len(c) > 1 {
				extent = math.Max(extent, floats.Max(c)-floats.Min(c))
			}
		}
		if mx := math.Max(math.Abs(r[0]), math.Abs(r[1])); mx > 0 && extent > 0 {
			factor = 0.1 * extent / mx
		} else {
			factor = 1
		}
	}
	o.Warp = make([]float64, len(m.Scalars))
	for p, v := range m.Scalars {
		if !math.IsNaN(v) {
			o.Warp[p] = v * factor
		}
	}
	return &o
}
