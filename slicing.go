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
	"encoding/json"
	"fmt"
)

// Slice limits which values of a coordinate are rendered. Start and
// Stop are inclusive coordinate values; Step is a stride in elements.
type Slice struct {
	Start, Stop CoordValue
	Step        float64
}

// MarshalJSON encodes s as a [start, stop, step] array.
func (s Slice) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{s.Start, s.Stop, s.Step})
}

// UnmarshalJSON decodes a [start, stop, step] array.
func (s *Slice) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("pan3d: slice must have 3 elements but has %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &s.Start); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[1], &s.Stop); err != nil {
		return err
	}
	return json.Unmarshal(raw[2], &s.Step)
}

// stride returns the element stride of s.
func (s Slice) stride() int {
	if s.Step < 1 {
		return 1
	}
	return int(s.Step)
}

// Slicing maps coordinate names to slices.
type Slicing map[string]Slice

// Equal returns whether s and o hold the same slices. A nil Slicing
// equals an empty one.
func (s Slicing) Equal(o Slicing) bool {
	if len(s) != len(o) {
		return false
	}
	for k, v := range s {
		ov, ok := o[k]
		if !ok || !sliceEqual(v, ov) {
			return false
		}
	}
	return true
}

func sliceEqual(a, b Slice) bool {
	eq := func(x, y CoordValue) bool {
		return x.Label == y.Label && (x.Num == y.Num || x.Num != x.Num && y.Num != y.Num)
	}
	return eq(a.Start, b.Start) && eq(a.Stop, b.Stop) && a.Step == b.Step
}

// Clone returns a copy of s.
func (s Slicing) Clone() Slicing {
	if s == nil {
		return nil
	}
	o := make(Slicing, len(s))
	for k, v := range s {
		o[k] = v
	}
	return o
}

// SlicingFromCoordinates collects the slices of coords.
func SlicingFromCoordinates(coords []Coordinate) Slicing {
	if len(coords) == 0 {
		return nil
	}
	o := make(Slicing, len(coords))
	for _, c := range coords {
		o[c.Name] = c.Slice()
	}
	return o
}
