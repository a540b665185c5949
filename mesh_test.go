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
	"math"
	"reflect"
	"strings"
	"testing"
)

func testMeshSource(t *testing.T, axes Axes) *MeshSource {
	ds := testDataset(t)
	air, err := ds.Var("air")
	if err != nil {
		t.Fatal(err)
	}
	m := new(MeshSource)
	m.SetDataArray(ds, air)
	m.SetAxes(axes)
	return m
}

func TestMeshSource_Mesh(t *testing.T) {
	m := testMeshSource(t, Axes{X: "lon", Y: "lat", T: "time"})
	m.SetTimeIndex(1)
	mesh, err := m.Mesh()
	if err != nil {
		t.Fatal(err)
	}
	if want := [3]int{nLon, nLat, 1}; mesh.Dims() != want {
		t.Errorf("dims: want %v but have %v", want, mesh.Dims())
	}
	if mesh.NDims() != 2 {
		t.Errorf("want 2 dimensions but have %d", mesh.NDims())
	}
	if want := []float64{200, 210, 220, 230, 240}; !reflect.DeepEqual(mesh.Coords[0], want) {
		t.Errorf("x: want %v but have %v", want, mesh.Coords[0])
	}
	for j := 0; j < nLat; j++ {
		for i := 0; i < nLon; i++ {
			if have, want := mesh.Scalars[j*nLon+i], airValue(1, j, i); have != want {
				t.Errorf("(%d,%d): want %v but have %v", i, j, want, have)
			}
		}
	}
	x, y, z := mesh.Point(nLon + 2)
	if x != 220 || y != 45 || z != 0 {
		t.Errorf("point: have %v, %v, %v", x, y, z)
	}
}

func TestMeshSource_Mesh3D(t *testing.T) {
	// Time as a spatial axis gives a 3-D mesh.
	m := testMeshSource(t, Axes{X: "lon", Y: "lat", Z: "time"})
	mesh, err := m.Mesh()
	if err != nil {
		t.Fatal(err)
	}
	if mesh.NDims() != 3 || mesh.NPoints() != nTime*nLat*nLon {
		t.Fatalf("have %d dimensions and %d points", mesh.NDims(), mesh.NPoints())
	}
	p := 2*nLat*nLon + 3*nLon + 4
	if have, want := mesh.Scalars[p], airValue(2, 3, 4); have != want {
		t.Errorf("want %v but have %v", want, have)
	}
}

func TestMeshSource_slicing(t *testing.T) {
	m := testMeshSource(t, Axes{X: "lon", Y: "lat", T: "time"})
	m.SetSlicing(Slicing{
		"lon": {Start: Number(210), Stop: Number(240), Step: 2},
		"lat": {Start: Number(45), Stop: Number(50), Step: 1},
	})
	mesh, err := m.Mesh()
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{210, 230}; !reflect.DeepEqual(mesh.Coords[0], want) {
		t.Errorf("x: want %v but have %v", want, mesh.Coords[0])
	}
	if want := []float64{45, 50}; !reflect.DeepEqual(mesh.Coords[1], want) {
		t.Errorf("y: want %v but have %v", want, mesh.Coords[1])
	}
	want := []float64{airValue(0, 1, 1), airValue(0, 1, 3), airValue(0, 2, 1), airValue(0, 2, 3)}
	if !reflect.DeepEqual(mesh.Scalars, want) {
		t.Errorf("scalars: want %v but have %v", want, mesh.Scalars)
	}

	sliced, err := m.SlicedDataArray()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(sliced.Dims, []string{"lat", "lon"}) || !reflect.DeepEqual(sliced.Shape, []int{2, 2}) {
		t.Errorf("sliced: have %v %v", sliced.Dims, sliced.Shape)
	}
	n, nbytes, err := m.SlicedSize()
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 || nbytes != 16 {
		t.Errorf("size: have %d elements and %d bytes", n, nbytes)
	}

	r, err := m.DataRange()
	if err != nil {
		t.Fatal(err)
	}
	if want := [2]float64{airValue(0, 1, 1), airValue(0, 2, 3)}; r != want {
		t.Errorf("range: want %v but have %v", want, r)
	}

	m.SetSlicing(Slicing{"lon": {Start: Number(0), Stop: Number(10), Step: 1}})
	if _, err := m.Mesh(); err == nil {
		t.Error("expected an error for an empty slice")
	}
}

func TestMeshSource_errors(t *testing.T) {
	m := testMeshSource(t, Axes{Y: "lat"})
	if _, err := m.Mesh(); err != ErrNoXAxis {
		t.Errorf("want %v but have %v", ErrNoXAxis, err)
	}
	m.SetAxes(Axes{X: "lon", T: "time"})
	m.SetTimeIndex(nTime)
	if _, err := m.Mesh(); err == nil {
		t.Error("expected an error for an out of range time index")
	}
	if _, err := new(MeshSource).Mesh(); err == nil {
		t.Error("expected an error without a data array")
	}
	for _, axes := range []Axes{{X: "lat", Y: "lat"}, {X: "time", Y: "time"}, {X: "lon", T: "lon"}} {
		m.SetAxes(axes)
		m.SetTimeIndex(0)
		if _, err := m.Mesh(); err == nil || !strings.Contains(err.Error(), "more than one axis") {
			t.Errorf("%+v: have %v", axes, err)
		}
		if _, _, err := m.SlicedSize(); err == nil {
			t.Errorf("%+v: want a size error", axes)
		}
	}
}

func TestMesh_WarpByScalar(t *testing.T) {
	mesh := &Mesh{
		Coords:  [3][]float64{{0, 1}, {0, 10}, {0}},
		Scalars: []float64{0, 1, 2, math.NaN()},
	}
	w := mesh.WarpByScalar(2)
	if want := []float64{0, 2, 4, 0}; !reflect.DeepEqual(w.Warp, want) {
		t.Errorf("want %v but have %v", want, w.Warp)
	}
	if mesh.Warp != nil {
		t.Error("the original mesh should not be warped")
	}
	_, _, z := w.Point(2)
	if z != 4 {
		t.Errorf("z: want 4 but have %v", z)
	}
	auto := mesh.WarpByScalar(0)
	if have := auto.Warp[2]; math.Abs(have-1) > 1e-12 {
		t.Errorf("automatic warp of the largest value should be a tenth of the extent: have %v", have)
	}
}

func TestDataRange_nan(t *testing.T) {
	if have := dataRange([]float64{math.NaN(), 3, -1, math.Inf(1)}); have != [2]float64{-1, 3} {
		t.Errorf("have %v", have)
	}
	if have := dataRange([]float64{math.NaN()}); have != [2]float64{} {
		t.Errorf("have %v", have)
	}
}
