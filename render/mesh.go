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
	"math"
	"sort"

	"github.com/spatialmodel/pan3d"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// cellEdges returns the boundaries of the cells centered on c.
func cellEdges(c []float64, scale float64) []float64 {
	e := make([]float64, len(c)+1)
	if len(c) == 1 {
		e[0], e[1] = (c[0]-0.5)*scale, (c[0]+0.5)*scale
		return e
	}
	for i := 1; i < len(c); i++ {
		e[i] = (c[i-1] + c[i]) / 2 * scale
	}
	e[0] = (c[0] - (c[1]-c[0])/2) * scale
	n := len(c)
	e[n] = (c[n-1] + (c[n-1]-c[n-2])/2) * scale
	return e
}

// gridPlotter draws the first z layer of a mesh as colored cells.
type gridPlotter struct {
	mesh    *pan3d.Mesh
	cm      palette.ColorMap
	opacity string
	scale   [3]float64
}

func (g *gridPlotter) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	xe := cellEdges(g.mesh.Coords[0], g.scale[0])
	ye := cellEdges(g.mesh.Coords[1], g.scale[1])
	nx := len(g.mesh.Coords[0])
	for j := 0; j < len(ye)-1; j++ {
		for i := 0; i < len(xe)-1; i++ {
			v := g.mesh.Scalars[j*nx+i]
			if math.IsNaN(v) {
				continue
			}
			x0, x1 := trX(xe[i]), trX(xe[i+1])
			y0, y1 := trY(ye[j]), trY(ye[j+1])
			c.FillPolygon(colorAt(g.cm, g.opacity, v), []vg.Point{
				{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
			})
		}
	}
}

func (g *gridPlotter) DataRange() (xmin, xmax, ymin, ymax float64) {
	xe := cellEdges(g.mesh.Coords[0], g.scale[0])
	ye := cellEdges(g.mesh.Coords[1], g.scale[1])
	xmin, xmax = math.Min(xe[0], xe[len(xe)-1]), math.Max(xe[0], xe[len(xe)-1])
	ymin, ymax = math.Min(ye[0], ye[len(ye)-1]), math.Max(ye[0], ye[len(ye)-1])
	return
}

// isoPoint is a mesh point projected onto the isometric image plane.
type isoPoint struct {
	u, v  float64
	depth float64
	value float64
}

// isoPlotter draws every mesh point as a colored dot seen from the
// (1, 1, 1) direction. Each axis is normalized to unit length before
// scaling, so that axes with very different units remain visible.
type isoPlotter struct {
	mesh    *pan3d.Mesh
	cm      palette.ColorMap
	opacity string
	scale   [3]float64

	points []isoPoint
}

var (
	cos30 = math.Cos(math.Pi / 6)
	sin30 = math.Sin(math.Pi / 6)
)

func (p *isoPlotter) project() []isoPoint {
	if p.points != nil {
		return p.points
	}
	n := p.mesh.NPoints()
	xyz := make([][3]float64, n)
	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for i := 0; i < n; i++ {
		x, y, z := p.mesh.Point(i)
		xyz[i] = [3]float64{x, y, z}
		for k, c := range xyz[i] {
			lo[k] = math.Min(lo[k], c)
			hi[k] = math.Max(hi[k], c)
		}
	}
	pts := make([]isoPoint, 0, n)
	for i, c := range xyz {
		v := p.mesh.Scalars[i]
		if math.IsNaN(v) {
			continue
		}
		var q [3]float64
		for k := range q {
			if d := hi[k] - lo[k]; d > 0 {
				q[k] = (c[k] - lo[k]) / d * p.scale[k]
			}
		}
		pts = append(pts, isoPoint{
			u:     (q[0] - q[1]) * cos30,
			v:     (q[0]+q[1])*sin30 + q[2],
			depth: q[0] + q[1] + q[2],
			value: v,
		})
	}
	// Draw far points first.
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].depth < pts[j].depth })
	p.points = pts
	return pts
}

func (p *isoPlotter) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	pts := p.project()
	d := p.mesh.Dims()
	n := math.Max(float64(d[0]), math.Max(float64(d[1]), float64(d[2])))
	size := vg.Length(math.Min(float64(c.Max.X-c.Min.X), float64(c.Max.Y-c.Min.Y)) / (2 * n))
	if size < 1 {
		size = 1
	} else if size > 6 {
		size = 6
	}
	for _, pt := range pts {
		sty := draw.GlyphStyle{
			Color:  colorAt(p.cm, p.opacity, pt.value),
			Radius: size,
			Shape:  draw.CircleGlyph{},
		}
		c.DrawGlyph(sty, vg.Point{X: trX(pt.u), Y: trY(pt.v)})
	}
}

func (p *isoPlotter) DataRange() (xmin, xmax, ymin, ymax float64) {
	pts := p.project()
	if len(pts) == 0 {
		return 0, 1, 0, 1
	}
	xmin, ymin = math.Inf(1), math.Inf(1)
	xmax, ymax = math.Inf(-1), math.Inf(-1)
	for _, pt := range pts {
		xmin, xmax = math.Min(xmin, pt.u), math.Max(xmax, pt.u)
		ymin, ymax = math.Min(ymin, pt.v), math.Max(ymax, pt.v)
	}
	return
}

// linePoints colors the points of a one-dimensional mesh.
type linePoints struct {
	xy      plotter.XYs
	cm      palette.ColorMap
	opacity string
}

func (l *linePoints) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	for _, p := range l.xy {
		sty := draw.GlyphStyle{
			Color:  colorAt(l.cm, l.opacity, p.Y),
			Radius: vg.Points(3),
			Shape:  draw.CircleGlyph{},
		}
		c.DrawGlyph(sty, vg.Point{X: trX(p.X), Y: trY(p.Y)})
	}
}

func (l *linePoints) DataRange() (xmin, xmax, ymin, ymax float64) {
	return plotter.XYRange(l.xy)
}
