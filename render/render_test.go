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

package render

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"reflect"
	"testing"

	"github.com/spatialmodel/pan3d"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/vg"
)

func TestNewColormap(t *testing.T) {
	for _, test := range []struct {
		name string
		err  bool
	}{
		{name: ""},
		{name: "kindlmann"},
		{name: "viridis"},
		{name: "coolwarm_r"},
		{name: "extended_blackbody_r"},
		{name: "jet", err: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			cm, err := NewColormap(test.name)
			if (err != nil) != test.err {
				t.Fatalf("error: %v", err)
			}
			if err != nil {
				return
			}
			cm.SetMin(0)
			cm.SetMax(1)
			if _, err := cm.At(0.5); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestNewColormap_reverse(t *testing.T) {
	cm, _ := NewColormap("blackbody")
	r, _ := NewColormap("blackbody_r")
	for _, c := range []palette.ColorMap{cm, r} {
		c.SetMin(0)
		c.SetMax(1)
	}
	a, _ := cm.At(0.25)
	b, _ := r.At(0.75)
	if !reflect.DeepEqual(color.NRGBAModel.Convert(a), color.NRGBAModel.Convert(b)) {
		t.Errorf("want %v but have %v", a, b)
	}
}

func TestColormaps(t *testing.T) {
	names := Colormaps()
	if len(names) != len(colormaps) {
		t.Fatalf("want %d but have %d", len(colormaps), len(names))
	}
	for _, a := range aliases {
		if _, ok := colormaps[a]; !ok {
			t.Errorf("alias target %q is not a colormap", a)
		}
	}
}

func TestOpacity(t *testing.T) {
	for _, test := range []struct {
		name string
		f    float64
		want float64
	}{
		{"linear", 0.25, 0.25},
		{"linear_r", 0.25, 0.75},
		{"linear", 2, 1},
		{"geom", 0, 0},
		{"geom", 1, 1},
		{"geom", 2.0 / 3, 0.1},
		{"geom_r", 1, 0},
		{"sigmoid", 0.5, 0.5},
		{"sigmoid_r", 0.5, 0.5},
	} {
		have, err := Opacity(test.name, test.f)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(have-test.want) > 1e-9 {
			t.Errorf("%s(%v): want %v but have %v", test.name, test.f, test.want, have)
		}
	}
	if s, _ := Opacity("sigmoid", 0.9); s < 0.95 {
		t.Errorf("sigmoid should saturate, have %v", s)
	}
	if _, err := Opacity("cubic", 0.5); err == nil {
		t.Error("want an error for an unknown function")
	}
}

func TestColorAt(t *testing.T) {
	cm, _ := NewColormap("kindlmann")
	cm.SetMin(0)
	cm.SetMax(10)
	if c := colorAt(cm, "", math.NaN()); c != color.Transparent {
		t.Errorf("NaN should be transparent, have %v", c)
	}
	lo := color.NRGBAModel.Convert(colorAt(cm, "", -5)).(color.NRGBA)
	c0 := color.NRGBAModel.Convert(colorAt(cm, "", 0)).(color.NRGBA)
	if lo != c0 {
		t.Errorf("values below the range should clamp: %v != %v", lo, c0)
	}
	half := color.NRGBAModel.Convert(colorAt(cm, "linear", 5)).(color.NRGBA)
	if half.A < 126 || half.A > 129 {
		t.Errorf("want alpha near 128 but have %d", half.A)
	}
	if a := color.NRGBAModel.Convert(colorAt(cm, "linear", 0)).(color.NRGBA).A; a != 0 {
		t.Errorf("want alpha 0 but have %d", a)
	}
}

func grid(nx, ny, nz int) *pan3d.Mesh {
	m := &pan3d.Mesh{Name: "air"}
	for i, n := range []int{nx, ny, nz} {
		m.Coords[i] = make([]float64, n)
		for j := range m.Coords[i] {
			m.Coords[i][j] = float64(j) * float64(i+1)
		}
	}
	m.Scalars = make([]float64, nx*ny*nz)
	for i := range m.Scalars {
		m.Scalars[i] = 240 + float64(i)
	}
	return m
}

func TestPlotter_AddMesh(t *testing.T) {
	p := New(4*vg.Inch, 4*vg.Inch)
	if err := p.AddMesh(nil, Options{}); err == nil {
		t.Error("want an error for a nil mesh")
	}
	m := grid(3, 2, 1)
	if err := p.AddMesh(m, Options{Colormap: "nope"}); err == nil {
		t.Error("want an error for an unknown colormap")
	}
	if err := p.AddMesh(m, Options{Opacity: "nope"}); err == nil {
		t.Error("want an error for an unknown opacity")
	}
	if p.Mesh() != nil {
		t.Error("a failed AddMesh should not set the mesh")
	}

	if err := p.AddMesh(m, Options{}); err != nil {
		t.Fatal(err)
	}
	if p.cm.Min() != 240 || p.cm.Max() != 245 {
		t.Errorf("want data range [240, 245] but have [%v, %v]", p.cm.Min(), p.cm.Max())
	}
	if err := p.AddMesh(m, Options{Clim: [2]float64{300, 200}}); err != nil {
		t.Fatal(err)
	}
	if p.cm.Min() != 200 || p.cm.Max() != 300 {
		t.Errorf("want [200, 300] but have [%v, %v]", p.cm.Min(), p.cm.Max())
	}

	flat := grid(2, 1, 1)
	flat.Scalars = []float64{7, 7}
	if err := p.AddMesh(flat, Options{}); err != nil {
		t.Fatal(err)
	}
	if p.cm.Min() != 6.5 || p.cm.Max() != 7.5 {
		t.Errorf("want [6.5, 7.5] but have [%v, %v]", p.cm.Min(), p.cm.Max())
	}

	p.Clear()
	if p.Mesh() != nil || p.Options() != (Options{}) {
		t.Error("Clear should remove the mesh")
	}
}

func TestPlotter_SetScale(t *testing.T) {
	p := New(vg.Inch, vg.Inch)
	p.SetScale(2, 0, -1)
	if want := [3]float64{2, 1, 1}; p.Scale() != want {
		t.Errorf("want %v but have %v", want, p.Scale())
	}
	p.SetScale(math.NaN(), 3, 0.5)
	if want := [3]float64{1, 3, 0.5}; p.Scale() != want {
		t.Errorf("want %v but have %v", want, p.Scale())
	}
}

func TestPlotter_PNG(t *testing.T) {
	withNaN := grid(4, 3, 1)
	withNaN.Scalars[2] = math.NaN()
	line := grid(1, 5, 1)
	line.Scalars[1] = math.NaN()

	for _, test := range []struct {
		name string
		mesh *pan3d.Mesh
		iso  bool
		opts Options
	}{
		{name: "empty"},
		{name: "xy", mesh: withNaN, opts: Options{Labels: [3]string{"lon", "lat", ""}}},
		{name: "xy scaled", mesh: grid(3, 3, 1), opts: Options{Colormap: "coolwarm", Opacity: "sigmoid"}},
		{name: "line", mesh: line},
		{name: "point", mesh: grid(1, 1, 1)},
		{name: "isometric", mesh: grid(4, 3, 2), iso: true, opts: Options{Opacity: "linear_r"}},
		{name: "warped", mesh: grid(3, 3, 1).WarpByScalar(0), iso: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			p := New(3*vg.Inch, 3*vg.Inch)
			p.SetScale(1, 2, 1)
			if test.mesh != nil {
				if err := p.AddMesh(test.mesh, test.opts); err != nil {
					t.Fatal(err)
				}
			}
			if test.iso {
				p.ViewIsometric()
			} else {
				p.ViewXY()
			}
			b, err := p.PNG()
			if err != nil {
				t.Fatal(err)
			}
			img, err := png.Decode(bytes.NewReader(b))
			if err != nil {
				t.Fatal(err)
			}
			if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
				t.Errorf("empty image: %v", img.Bounds())
			}
		})
	}
}

func TestCellEdges(t *testing.T) {
	for _, test := range []struct {
		c     []float64
		scale float64
		want  []float64
	}{
		{c: []float64{5}, scale: 1, want: []float64{4.5, 5.5}},
		{c: []float64{0, 1, 3}, scale: 1, want: []float64{-0.5, 0.5, 2, 4}},
		{c: []float64{10, 0}, scale: 2, want: []float64{30, 10, -10}},
	} {
		have := cellEdges(test.c, test.scale)
		if !reflect.DeepEqual(have, test.want) {
			t.Errorf("want %v but have %v", test.want, have)
		}
	}
}

func TestIsoPlotter_project(t *testing.T) {
	m := grid(2, 2, 2)
	m.Scalars[7] = math.NaN()
	cm, _ := NewColormap("")
	p := &isoPlotter{mesh: m, cm: cm, scale: [3]float64{1, 1, 1}}
	pts := p.project()
	if len(pts) != 7 {
		t.Fatalf("want 7 points but have %d", len(pts))
	}
	for i := 1; i < len(pts); i++ {
		if pts[i].depth < pts[i-1].depth {
			t.Errorf("points are not sorted by depth at %d", i)
		}
	}
	// The origin is the farthest point and projects to (0, 0).
	if pts[0].u != 0 || pts[0].v != 0 {
		t.Errorf("want origin first but have %+v", pts[0])
	}
	xmin, xmax, ymin, ymax := p.DataRange()
	if math.Abs(xmin+cos30) > 1e-12 || math.Abs(xmax-cos30) > 1e-12 || ymin != 0 || math.Abs(ymax-1.5) > 1e-12 {
		t.Errorf("have range [%v, %v] x [%v, %v]", xmin, xmax, ymin, ymax)
	}
}
