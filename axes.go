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

import "strings"

// Axis is a rendering axis.
type Axis string

// The rendering axes, in assignment order.
const (
	AxisX Axis = "x"
	AxisY Axis = "y"
	AxisZ Axis = "z"
	AxisT Axis = "t"
)

// AxisOrder lists the axes in the order they are scanned when
// assigning dimensions automatically.
var AxisOrder = []Axis{AxisX, AxisY, AxisZ, AxisT}

var axisKeywords = map[Axis][]string{
	AxisX: {"x", "i", "lon", "len"},
	AxisY: {"y", "j", "lat", "width"},
	AxisZ: {"z", "k", "depth", "height"},
	AxisT: {"t", "time"},
}

// Axes assigns dimension names to rendering axes. An empty string
// means the axis is unassigned.
type Axes struct {
	X string `json:"x,omitempty"`
	Y string `json:"y,omitempty"`
	Z string `json:"z,omitempty"`
	T string `json:"t,omitempty"`
}

// Get returns the dimension assigned to a.
func (ax Axes) Get(a Axis) string {
	switch a {
	case AxisX:
		return ax.X
	case AxisY:
		return ax.Y
	case AxisZ:
		return ax.Z
	case AxisT:
		return ax.T
	}
	return ""
}

// Duplicate returns the first dimension assigned to more than one
// axis, or "".
func (ax Axes) Duplicate() string {
	seen := make(map[string]bool, len(AxisOrder))
	for _, a := range AxisOrder {
		dim := ax.Get(a)
		if dim == "" {
			continue
		}
		if seen[dim] {
			return dim
		}
		seen[dim] = true
	}
	return ""
}

// Set assigns dim to a.
func (ax *Axes) Set(a Axis, dim string) {
	switch a {
	case AxisX:
		ax.X = dim
	case AxisY:
		ax.Y = dim
	case AxisZ:
		ax.Z = dim
	case AxisT:
		ax.T = dim
	}
}

// Empty returns whether no axis is assigned.
func (ax Axes) Empty() bool { return ax == Axes{} }

// AxisOf returns the axis dim is assigned to, if any.
func (ax Axes) AxisOf(dim string) (Axis, bool) {
	for _, a := range AxisOrder {
		if dim != "" && ax.Get(a) == dim {
			return a, true
		}
	}
	return "", false
}

// matchesAxis reports whether the lower-cased dimension name matches
// one of a's keywords. Single-letter keywords must match exactly.
func matchesAxis(a Axis, name string) bool {
	for _, kw := range axisKeywords[a] {
		if len(kw) == 1 {
			if name == kw {
				return true
			}
		} else if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// AutoSelectAxes assigns dims to axes. If any axis in current is
// already assigned, current is returned unchanged. Otherwise each
// dimension whose name matches an axis keyword list is assigned to the
// first unassigned matching axis in AxisOrder, and the remaining
// dimensions are then assigned to the remaining axes in order.
func AutoSelectAxes(current Axes, dims []string) Axes {
	if !current.Empty() {
		return current
	}
	var o Axes
	used := make(map[string]bool)
	for _, dim := range dims {
		name := strings.ToLower(dim)
		for _, a := range AxisOrder {
			if o.Get(a) != "" {
				continue
			}
			if matchesAxis(a, name) {
				o.Set(a, dim)
				used[dim] = true
				break
			}
		}
	}
	for _, dim := range dims {
		if used[dim] {
			continue
		}
		for _, a := range AxisOrder {
			if o.Get(a) == "" {
				o.Set(a, dim)
				used[dim] = true
				break
			}
		}
	}
	return o
}
