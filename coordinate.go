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
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the layout used to display datetime coordinate values.
const TimeLayout = "Jan 02 2006 15:04"

// CoordValue is a coordinate value: either a number or, for datetime
// coordinates, a formatted label. Labels are encoded to JSON as strings
// and numbers as numbers.
type CoordValue struct {
	// Num is the numeric value. For labels it holds the label's time
	// in seconds since the Unix epoch.
	Num float64

	// Label is set for datetime values.
	Label string
}

// Number returns a numeric CoordValue.
func Number(f float64) CoordValue { return CoordValue{Num: f} }

// TimeValue returns a datetime CoordValue for the given time, which is
// truncated to the resolution of TimeLayout.
func TimeValue(t time.Time) CoordValue {
	l := t.UTC().Format(TimeLayout)
	tt, _ := time.Parse(TimeLayout, l)
	return CoordValue{Num: float64(tt.Unix()), Label: l}
}

// UnixTimeValue returns a datetime CoordValue for sec seconds since the epoch.
func UnixTimeValue(sec float64) CoordValue {
	s, frac := math.Modf(sec)
	return TimeValue(time.Unix(int64(s), int64(frac*1e9)))
}

// IsLabel returns whether c holds a datetime label.
func (c CoordValue) IsLabel() bool { return c.Label != "" }

func (c CoordValue) String() string {
	if c.IsLabel() {
		return c.Label
	}
	return strconv.FormatFloat(c.Num, 'g', -1, 64)
}

// MarshalJSON implements json.Marshaler.
func (c CoordValue) MarshalJSON() ([]byte, error) {
	if c.IsLabel() {
		return json.Marshal(c.Label)
	}
	if math.IsNaN(c.Num) || math.IsInf(c.Num, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(c.Num)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CoordValue) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = CoordValue{Num: math.NaN()}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			*c = Number(f)
			return nil
		}
		t, err := time.Parse(TimeLayout, s)
		if err != nil {
			return fmt.Errorf("pan3d: invalid coordinate value %q", s)
		}
		*c = CoordValue{Num: float64(t.Unix()), Label: s}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*c = Number(f)
	return nil
}

// Coordinate describes one dimension of the active data array and
// the slice of it that is rendered.
type Coordinate struct {
	Name    string        `json:"name"`
	Size    int           `json:"size"`
	Numeric bool          `json:"numeric"`
	Range   [2]CoordValue `json:"range"`
	Start   CoordValue    `json:"start"`
	Stop    CoordValue    `json:"stop"`
	Step    float64       `json:"step"`
	Attrs   []Attr        `json:"attrs"`
}

// Slice returns the slice described by c.
func (c Coordinate) Slice() Slice {
	return Slice{Start: c.Start, Stop: c.Stop, Step: c.Step}
}

// NewCoordinates describes each dimension of v. Slice bounds are taken
// from slicing where present and otherwise span the full range with a
// step of 1.
func NewCoordinates(ds *Dataset, v *Variable, slicing Slicing) ([]Coordinate, error) {
	o := make([]Coordinate, 0, len(v.Dims))
	for _, dim := range v.Dims {
		c := ds.Coord(dim)
		rng, numeric, err := coordRange(c)
		if err != nil {
			return nil, err
		}
		attrs := append([]Attr{}, c.Attrs...)
		attrs = append(attrs,
			Attr{Key: "dtype", Value: c.DType.String()},
			Attr{Key: "length", Value: strconv.Itoa(c.Size())},
			Attr{Key: "range", Value: fmt.Sprintf("[%s, %s]", rng[0], rng[1])},
		)
		coord := Coordinate{
			Name:    dim,
			Size:    c.Size(),
			Numeric: numeric,
			Range:   rng,
			Start:   rng[0],
			Stop:    rng[1],
			Step:    1,
			Attrs:   attrs,
		}
		if s, ok := slicing[dim]; ok {
			coord.Start, coord.Stop, coord.Step = s.Start, s.Stop, s.Step
		}
		o = append(o, coord)
	}
	return o, nil
}

// coordRange returns the display range of coordinate c. Datetimes are
// formatted as labels and are not numeric, floats are rounded to two
// decimal places and integers are truncated.
func coordRange(c *Variable) (rng [2]CoordValue, numeric bool, err error) {
	vals, err := c.Values()
	if err != nil {
		return rng, false, err
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		lo, hi = 0, 0
	}
	switch {
	case c.DType.Time():
		return [2]CoordValue{UnixTimeValue(lo), UnixTimeValue(hi)}, false, nil
	case c.DType.Integer():
		return [2]CoordValue{Number(math.Trunc(lo)), Number(math.Trunc(hi))}, true, nil
	default:
		return [2]CoordValue{Number(round2(lo)), Number(round2(hi))}, true, nil
	}
}

func round2(f float64) float64 {
	return math.RoundToEven(f*100) / 100
}

// ChangeSlice sets attribute attr ("start", "stop" or "step") of the
// coordinate named name to the number in value. It returns false and
// leaves coords unchanged if the edit is not valid: value must be a
// finite number, step must lie in (0, size), start and stop must lie
// within the coordinate's range with start <= stop. Start and stop of
// non-numeric coordinates cannot be edited.
func ChangeSlice(coords []Coordinate, name, attr, value string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	for i := range coords {
		c := &coords[i]
		if c.Name != name {
			continue
		}
		switch attr {
		case "step":
			if f <= 0 || f >= float64(c.Size) {
				return false
			}
			c.Step = f
			return true
		case "start", "stop":
			if !c.Numeric || f < c.Range[0].Num || f > c.Range[1].Num {
				return false
			}
			if attr == "start" {
				if f > c.Stop.Num {
					return false
				}
				c.Start = Number(f)
			} else {
				if f < c.Start.Num {
					return false
				}
				c.Stop = Number(f)
			}
			return true
		}
		return false
	}
	return false
}
