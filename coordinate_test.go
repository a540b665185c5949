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
	"reflect"
	"testing"
	"time"
)

func testDataset(t *testing.T) *Dataset {
	ds, err := OpenNetCDF(writeTestNetCDF(t, t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ds.Close() })
	return ds
}

func TestNewCoordinates(t *testing.T) {
	ds := testDataset(t)
	air, err := ds.Var("air")
	if err != nil {
		t.Fatal(err)
	}
	coords, err := NewCoordinates(ds, air, Slicing{"lon": {Start: Number(210), Stop: Number(230), Step: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if len(coords) != 3 {
		t.Fatalf("want 3 coordinates but have %d", len(coords))
	}

	tc := coords[0]
	if tc.Name != "time" || tc.Numeric || tc.Size != nTime {
		t.Errorf("time: have %+v", tc)
	}
	wantRange := [2]CoordValue{
		TimeValue(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)),
		TimeValue(time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)),
	}
	if tc.Range != wantRange {
		t.Errorf("time range: want %v but have %v", wantRange, tc.Range)
	}
	if tc.Range[0].Label != "Jan 01 2000 00:00" {
		t.Errorf("time label: have %q", tc.Range[0].Label)
	}
	if tc.Start != tc.Range[0] || tc.Stop != tc.Range[1] || tc.Step != 1 {
		t.Errorf("time slice should span the range: have %+v", tc)
	}

	lat := coords[1]
	if !lat.Numeric || lat.Range != [2]CoordValue{Number(40), Number(55)} {
		t.Errorf("lat: have %+v", lat)
	}
	wantAttrs := []Attr{
		{Key: "units", Value: "degrees_north"},
		{Key: "dtype", Value: "float32"},
		{Key: "length", Value: "4"},
		{Key: "range", Value: "[40, 55]"},
	}
	if !reflect.DeepEqual(lat.Attrs, wantAttrs) {
		t.Errorf("lat attrs: want %v but have %v", wantAttrs, lat.Attrs)
	}

	lon := coords[2]
	if lon.Start != Number(210) || lon.Stop != Number(230) || lon.Step != 2 {
		t.Errorf("lon slice should come from the slicing: have %+v", lon)
	}
}

func TestChangeSlice(t *testing.T) {
	newCoords := func() []Coordinate {
		return []Coordinate{{
			Name:    "lat",
			Size:    10,
			Numeric: true,
			Range:   [2]CoordValue{Number(-10), Number(10)},
			Start:   Number(-10),
			Stop:    Number(10),
			Step:    1,
		}, {
			Name:  "time",
			Size:  4,
			Range: [2]CoordValue{TimeValue(time.Unix(0, 0)), TimeValue(time.Unix(3600, 0))},
			Step:  1,
		}}
	}
	tests := []struct {
		name, coord, attr, value string
		ok                       bool
	}{
		{name: "step", coord: "lat", attr: "step", value: "3", ok: true},
		{name: "step zero", coord: "lat", attr: "step", value: "0"},
		{name: "step size", coord: "lat", attr: "step", value: "10"},
		{name: "start", coord: "lat", attr: "start", value: "-5", ok: true},
		{name: "start below range", coord: "lat", attr: "start", value: "-11"},
		{name: "stop above range", coord: "lat", attr: "stop", value: "10.5"},
		{name: "stop at range", coord: "lat", attr: "stop", value: "10", ok: true},
		{name: "not a number", coord: "lat", attr: "start", value: "abc"},
		{name: "nan", coord: "lat", attr: "start", value: "NaN"},
		{name: "empty", coord: "lat", attr: "stop", value: ""},
		{name: "unknown coordinate", coord: "lon", attr: "step", value: "2"},
		{name: "unknown attribute", coord: "lat", attr: "size", value: "2"},
		{name: "time step", coord: "time", attr: "step", value: "2", ok: true},
		{name: "time start", coord: "time", attr: "start", value: "0"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			coords := newCoords()
			ok := ChangeSlice(coords, test.coord, test.attr, test.value)
			if ok != test.ok {
				t.Fatalf("want %v but have %v", test.ok, ok)
			}
			if !ok && !reflect.DeepEqual(coords, newCoords()) {
				t.Errorf("rejected edit changed coordinates: %+v", coords)
			}
		})
	}
}

func TestChangeSlice_invariants(t *testing.T) {
	coords := []Coordinate{{
		Name: "x", Size: 20, Numeric: true,
		Range: [2]CoordValue{Number(0), Number(19)},
		Start: Number(0), Stop: Number(19), Step: 1,
	}}
	edits := []struct{ attr, value string }{
		{"start", "12"}, {"stop", "5"}, {"stop", "15"}, {"start", "16"},
		{"step", "19"}, {"step", "-1"}, {"step", "4"}, {"start", "-3"},
		{"stop", "30"}, {"start", "15"}, {"stop", "15"},
	}
	for _, e := range edits {
		ChangeSlice(coords, "x", e.attr, e.value)
		c := coords[0]
		if !(c.Range[0].Num <= c.Start.Num && c.Start.Num <= c.Stop.Num && c.Stop.Num <= c.Range[1].Num) {
			t.Errorf("after %s=%s: bounds invariant violated: %+v", e.attr, e.value, c)
		}
		if !(c.Step > 0 && c.Step < float64(c.Size)) {
			t.Errorf("after %s=%s: step invariant violated: %+v", e.attr, e.value, c)
		}
	}
	if coords[0].Start != Number(15) || coords[0].Stop != Number(15) || coords[0].Step != 4 {
		t.Errorf("final slice: have %+v", coords[0])
	}
}

func TestCoordValue_JSON(t *testing.T) {
	in := []CoordValue{Number(1.25), TimeValue(time.Date(2013, 5, 1, 6, 0, 0, 0, time.UTC))}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if want := `[1.25,"May 01 2013 06:00"]`; string(b) != want {
		t.Errorf("want %s but have %s", want, b)
	}
	var out []CoordValue
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("want %v but have %v", in, out)
	}
	var bad CoordValue
	if err := json.Unmarshal([]byte(`"yesterday"`), &bad); err == nil {
		t.Error("expected an error for an invalid label")
	}
}
