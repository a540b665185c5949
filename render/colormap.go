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
	"fmt"
	"image/color"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// DefaultColormap is used when no colormap is named.
const DefaultColormap = "kindlmann"

var colormaps = map[string]func() palette.ColorMap{
	"kindlmann":            func() palette.ColorMap { return moreland.Kindlmann() },
	"extended_kindlmann":   func() palette.ColorMap { return moreland.ExtendedKindlmann() },
	"blackbody":            func() palette.ColorMap { return moreland.BlackBody() },
	"extended_blackbody":   func() palette.ColorMap { return moreland.ExtendedBlackBody() },
	"smooth_blue_red":      func() palette.ColorMap { return moreland.SmoothBlueRed() },
	"smooth_blue_tan":      func() palette.ColorMap { return moreland.SmoothBlueTan() },
	"smooth_green_purple":  func() palette.ColorMap { return moreland.SmoothGreenPurple() },
	"smooth_green_red":     func() palette.ColorMap { return moreland.SmoothGreenRed() },
	"smooth_purple_orange": func() palette.ColorMap { return moreland.SmoothPurpleOrange() },
}

// aliases maps common colormap names onto the closest available map,
// so that configs naming them still load.
var aliases = map[string]string{
	"viridis":  "kindlmann",
	"plasma":   "extended_kindlmann",
	"inferno":  "blackbody",
	"magma":    "blackbody",
	"hot":      "extended_blackbody",
	"coolwarm": "smooth_blue_red",
	"bwr":      "smooth_blue_red",
	"PRGn":     "smooth_green_purple",
	"PuOr":     "smooth_purple_orange",
}

// Colormaps returns the names of the available colormaps, sorted.
func Colormaps() []string {
	o := make([]string, 0, len(colormaps))
	for n := range colormaps {
		o = append(o, n)
	}
	sort.Strings(o)
	return o
}

// NewColormap returns the named colormap, reversed if the name ends
// in "_r". The empty name returns DefaultColormap.
func NewColormap(name string) (palette.ColorMap, error) {
	if name == "" {
		name = DefaultColormap
	}
	base := strings.TrimSuffix(name, "_r")
	reverse := base != name
	name = base
	if a, ok := aliases[name]; ok {
		name = a
	}
	f, ok := colormaps[name]
	if !ok {
		return nil, fmt.Errorf("render: unknown colormap %q", name)
	}
	cm := f()
	if reverse {
		cm = palette.Reverse(cm)
	}
	return cm, nil
}

// Opacities lists the supported opacity transfer functions.
var Opacities = []string{"linear", "linear_r", "geom", "geom_r", "sigmoid", "sigmoid_r"}

// Opacity returns the opacity in [0, 1] that transfer function name
// assigns to a value at fraction f of the color range. Names ending in
// "_r" reverse the ramp.
func Opacity(name string, f float64) (float64, error) {
	f = math.Max(0, math.Min(1, f))
	base := strings.TrimSuffix(name, "_r")
	if base != name {
		f = 1 - f
	}
	switch base {
	case "linear":
		return f, nil
	case "geom":
		// Geometric ramp from 1e-3 up to 1.
		if f == 0 {
			return 0, nil
		}
		return math.Pow(10, 3*(f-1)), nil
	case "sigmoid":
		return 1 / (1 + math.Exp(-10*(f-0.5))), nil
	}
	return 0, fmt.Errorf("render: unknown opacity function %q", name)
}

// colorAt returns the color cm assigns to v, with its alpha scaled by
// the opacity function, if any. Values outside the colormap range are
// clamped and NaN values are transparent.
func colorAt(cm palette.ColorMap, opacity string, v float64) color.Color {
	if math.IsNaN(v) {
		return color.Transparent
	}
	v = math.Max(cm.Min(), math.Min(cm.Max(), v))
	c, err := cm.At(v)
	if err != nil {
		return color.Transparent
	}
	if opacity == "" {
		return c
	}
	f := 0.0
	if d := cm.Max() - cm.Min(); d > 0 {
		f = (v - cm.Min()) / d
	}
	a, err := Opacity(opacity, f)
	if err != nil {
		return c
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(math.Round(float64(n.A) * a))
	return n
}
