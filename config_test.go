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
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kr/pretty"
)

func TestConfig_roundTrip(t *testing.T) {
	b, path := newTestBuilder(t)
	r := &recorder{
		ui:     map[string]interface{}{"view_mode": "xy"},
		render: map[string]interface{}{"scalar_warp": true},
	}
	b.SetViewer(r)
	ctx := context.Background()
	if err := b.SetDatasetPath(ctx, path); err != nil {
		t.Fatal(err)
	}
	if err := b.SetTIndex(2); err != nil {
		t.Fatal(err)
	}
	slices := Slicing{"lat": {Start: Number(45), Stop: Number(55), Step: 2}}
	if err := b.SetSlicing(slices); err != nil {
		t.Fatal(err)
	}

	file := filepath.Join(t.TempDir(), "config.json")
	want, err := b.ExportConfig(file)
	if err != nil {
		t.Fatal(err)
	}
	if want.DataArray.Name != "air" || want.DataArray.TIndex != 2 || want.DataArray.T != "time" {
		t.Errorf("exported data array: have %+v", want.DataArray)
	}

	b2, _ := newTestBuilder(t)
	r2 := new(recorder)
	b2.SetViewer(r2)
	if err := b2.ImportConfig(ctx, file); err != nil {
		t.Fatal(err)
	}
	have, err := b2.ExportConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(want, have); len(diff) > 0 {
		t.Errorf("round trip: %v", diff)
	}
	if b2.TIndex() != 2 || !b2.Slicing().Equal(slices) {
		t.Errorf("imported state: t_index %d, slicing %v", b2.TIndex(), b2.Slicing())
	}
}

func TestImportConfig_invalid(t *testing.T) {
	b, path := newTestBuilder(t)
	ctx := context.Background()
	if err := b.SetDatasetPath(ctx, path); err != nil {
		t.Fatal(err)
	}
	before, err := b.ExportConfig("")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		src  interface{}
	}{
		{name: "missing data_array", src: `{"data_origin": "other.nc"}`},
		{name: "missing name", src: `{"data_origin": "other.nc", "data_array": {"x": "lon"}}`},
		{name: "bad source", src: `{"data_origin": {"source": "ftp", "id": "a"}, "data_array": {"name": "air"}}`},
		{name: "negative t_index", src: map[string]interface{}{
			"data_origin": "other.nc",
			"data_array":  map[string]interface{}{"name": "air", "t_index": -1},
		}},
		{name: "bad slice", src: `{"data_origin": "a.nc", "data_array": {"name": "air"}, "data_slices": {"lat": [0, 1]}}`},
		{name: "not json", src: []byte("{")},
		{name: "unsupported type", src: 42},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := b.ImportConfig(ctx, test.src)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("want %v but have %v", ErrInvalidConfig, err)
			}
			after, err := b.ExportConfig("")
			if err != nil {
				t.Fatal(err)
			}
			if diff := pretty.Diff(before, after); len(diff) > 0 {
				t.Errorf("state changed: %v", diff)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(`{
		"data_origin": "air.nc",
		"data_array": {"active": "air", "x": "lon", "y": null, "t_index": 1},
		"data_slices": {"time": ["Jan 01 2000 00:00", "Jan 01 2000 12:00", 1]},
		"ui": {"view_mode": "iso"}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		DataOrigin: DatasetInfo{Source: SourceDefault, ID: "air.nc"},
		DataArray:  DataArrayConfig{Name: "air", X: "lon", TIndex: 1},
		DataSlices: Slicing{"time": {
			Start: UnixTimeValue(946684800),
			Stop:  UnixTimeValue(946684800 + 12*3600),
			Step:  1,
		}},
		UI: map[string]interface{}{"view_mode": "iso"},
	}
	if diff := pretty.Diff(want, cfg); len(diff) > 0 {
		t.Errorf("config: %v", diff)
	}
}

func TestImportConfig_missingDataset(t *testing.T) {
	b, _ := newTestBuilder(t)
	b.SetViewer(new(recorder))
	err := b.ImportConfig(context.Background(), `{"data_origin": "missing.nc", "data_array": {"name": "air"}}`)
	if err == nil {
		t.Fatal("expected an error when the dataset cannot be loaded")
	}
	if errors.Is(err, ErrInvalidConfig) {
		t.Errorf("a valid config should not be reported as invalid: %v", err)
	}
}

func TestImportConfig_mismatch(t *testing.T) {
	b, path := newTestBuilder(t)
	_, other := newTestBuilder(t)
	ctx := context.Background()
	if err := b.SetDatasetPath(ctx, path); err != nil {
		t.Fatal(err)
	}
	if err := b.SetTIndex(2); err != nil {
		t.Fatal(err)
	}
	before, err := b.ExportConfig("")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		dataArray map[string]interface{}
		wantErr   error
	}{
		{name: "unknown array", dataArray: map[string]interface{}{"name": "nope"}, wantErr: ErrUnknownVariable},
		{name: "unknown dimension", dataArray: map[string]interface{}{"name": "air", "x": "level"}},
		{name: "t_index out of range", dataArray: map[string]interface{}{"name": "air", "t": "time", "t_index": nTime}},
	}
	for _, test := range tests {
		for _, origin := range []struct{ name, path string }{{"same dataset", path}, {"other dataset", other}} {
			origin := origin
			t.Run(test.name+" "+origin.name, func(t *testing.T) {
				err := b.ImportConfig(ctx, map[string]interface{}{
					"data_origin": origin.path,
					"data_array":  test.dataArray,
				})
				if err == nil {
					t.Fatal("want an error")
				}
				if test.wantErr != nil && !errors.Is(err, test.wantErr) {
					t.Errorf("want %v but have %v", test.wantErr, err)
				}
				after, err := b.ExportConfig("")
				if err != nil {
					t.Fatal(err)
				}
				if diff := pretty.Diff(before, after); len(diff) > 0 {
					t.Errorf("state changed: %v", diff)
				}
			})
		}
	}
}
