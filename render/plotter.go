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

// Package render draws meshes of dataset values into PNG images.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/spatialmodel/pan3d"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// View is a camera position.
type View int

// The supported views.
const (
	// ViewXY looks down the z axis.
	ViewXY View = iota

	// ViewIsometric looks at the origin from (1, 1, 1).
	ViewIsometric
)

func (v View) String() string {
	if v == ViewIsometric {
		return "isometric"
	}
	return "xy"
}

// Options control how a mesh is drawn.
type Options struct {
	// Colormap names the colormap; see NewColormap.
	Colormap string

	// Opacity names an opacity transfer function; see Opacity.
	// The empty string draws the mesh opaque.
	Opacity string

	// Clim holds the values mapped to the ends of the colormap.
	// When they are equal the range of the mesh scalars is used.
	Clim [2]float64

	// Labels holds the axis labels.
	Labels [3]string
}

// legendHeight is the height of the color bar below the plot.
const legendHeight = 20 * vg.Millimeter

// Plotter draws a single mesh. It is not safe for concurrent use.
type Plotter struct {
	Width, Height vg.Length
	Background    color.Color

	mesh  *pan3d.Mesh
	opts  Options
	cm    palette.ColorMap
	view  View
	scale [3]float64
}

// New returns a Plotter that draws images of the given size.
func New(width, height vg.Length) *Plotter {
	return &Plotter{
		Width:      width,
		Height:     height,
		Background: color.Gray{Y: 211},
		scale:      [3]float64{1, 1, 1},
	}
}

// Clear removes the mesh.
func (p *Plotter) Clear() {
	p.mesh = nil
	p.cm = nil
	p.opts = Options{}
}

// Mesh returns the mesh being drawn, or nil.
func (p *Plotter) Mesh() *pan3d.Mesh { return p.mesh }

// Options returns the options the mesh was added with.
func (p *Plotter) Options() Options { return p.opts }

// AddMesh replaces the mesh to draw.
func (p *Plotter) AddMesh(m *pan3d.Mesh, o Options) error {
	if m == nil {
		return fmt.Errorf("render: nil mesh")
	}
	cm, err := NewColormap(o.Colormap)
	if err != nil {
		return err
	}
	if o.Opacity != "" {
		if _, err := Opacity(o.Opacity, 0); err != nil {
			return err
		}
	}
	lo, hi := o.Clim[0], o.Clim[1]
	if lo == hi || math.IsNaN(lo) || math.IsNaN(hi) {
		lo, hi = scalarRange(m.Scalars)
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	cm.SetMin(lo)
	cm.SetMax(hi)
	p.mesh, p.opts, p.cm = m, o, cm
	return nil
}

// ViewXY looks down the z axis.
func (p *Plotter) ViewXY() { p.view = ViewXY }

// ViewIsometric looks at the mesh from the (1, 1, 1) direction.
func (p *Plotter) ViewIsometric() { p.view = ViewIsometric }

// View returns the current view.
func (p *Plotter) View() View { return p.view }

// SetScale stretches the axes. Factors that are not positive are
// treated as 1.
func (p *Plotter) SetScale(x, y, z float64) {
	for i, f := range []float64{x, y, z} {
		if !(f > 0) {
			f = 1
		}
		p.scale[i] = f
	}
}

// Scale returns the axis scale factors.
func (p *Plotter) Scale() [3]float64 { return p.scale }

// PNG renders the mesh and returns the encoded image.
func (p *Plotter) PNG() ([]byte, error) {
	var b bytes.Buffer
	if err := p.Render(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Render writes the mesh as a PNG image to w.
func (p *Plotter) Render(w io.Writer) error {
	img := vgimg.New(p.Width, p.Height)
	dc := draw.New(img)
	r := dc.Rectangle
	dc.FillPolygon(p.Background, []vg.Point{
		r.Min, {X: r.Max.X, Y: r.Min.Y}, r.Max, {X: r.Min.X, Y: r.Max.Y},
	})

	if p.mesh != nil {
		plt, err := p.plot()
		if err != nil {
			return err
		}
		plt.Draw(draw.Crop(dc, 0, 0, legendHeight, 0))

		legend, err := p.legend()
		if err != nil {
			return err
		}
		legend.Draw(draw.Crop(dc, 0, 0, 0, legendHeight-p.Height))
	}

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("render: encoding png: %v", err)
	}
	return nil
}

func (p *Plotter) plot() (*plot.Plot, error) {
	plt, err := plot.New()
	if err != nil {
		return nil, err
	}
	plt.BackgroundColor = color.Transparent
	plt.Title.Text = p.mesh.Name
	d := p.mesh.Dims()

	switch {
	case p.view == ViewIsometric:
		plt.HideAxes()
		plt.Add(&isoPlotter{mesh: p.mesh, cm: p.cm, opacity: p.opts.Opacity, scale: p.scale})
	case d[0] > 1 && d[1] > 1:
		plt.X.Label.Text = p.opts.Labels[0]
		plt.Y.Label.Text = p.opts.Labels[1]
		plt.Add(&gridPlotter{mesh: p.mesh, cm: p.cm, opacity: p.opts.Opacity, scale: p.scale})
	default:
		// A single row or column is drawn as a line of values.
		axis := 0
		if d[0] == 1 && d[1] > 1 {
			axis = 1
		}
		plt.X.Label.Text = p.opts.Labels[axis]
		plt.Y.Label.Text = p.mesh.Name
		xy := make(plotter.XYs, 0, len(p.mesh.Scalars))
		for i, v := range p.mesh.Scalars {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			x, y, _ := p.mesh.Point(i)
			if axis == 1 {
				x = y
			}
			xy = append(xy, struct{ X, Y float64 }{X: x * p.scale[axis], Y: v})
		}
		if len(xy) == 0 {
			return plt, nil
		}
		l, err := plotter.NewLine(xy)
		if err != nil {
			return nil, err
		}
		l.Color = color.Gray{Y: 96}
		plt.Add(l, &linePoints{xy: xy, cm: p.cm, opacity: p.opts.Opacity})
	}
	return plt, nil
}

func (p *Plotter) legend() (*plot.Plot, error) {
	plt, err := plot.New()
	if err != nil {
		return nil, err
	}
	plt.BackgroundColor = color.Transparent
	plt.Add(&plotter.ColorBar{ColorMap: p.cm})
	plt.HideY()
	plt.X.Padding = 0
	return plt, nil
}

// scalarRange returns the range of the finite values in s.
func scalarRange(s []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}
