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
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
)

// Dimensions of the test dataset.
const (
	nTime = 3
	nLat  = 4
	nLon  = 5
)

// airValue is the value of the test variable "air" at the given indices.
func airValue(t, j, i int) float64 { return float64(t*20 + j*5 + i) }

// writeTestNetCDF writes a small air temperature dataset to a new file
// in dir and returns its path.
func writeTestNetCDF(t *testing.T, dir string) string {
	h := cdf.NewHeader([]string{"time", "lat", "lon", "nv"}, []int{nTime, nLat, nLon, 2})
	h.AddAttribute("", "title", "test air temperature")
	h.AddAttribute("", "source", "pan3d tests")

	h.AddVariable("time", []string{"time"}, []int32{0})
	h.AddAttribute("time", "units", "hours since 2000-01-01 00:00:00")
	h.AddAttribute("time", "standard_name", "time")

	h.AddVariable("lat", []string{"lat"}, []float32{0})
	h.AddAttribute("lat", "units", "degrees_north")

	h.AddVariable("lon", []string{"lon"}, []float32{0})
	h.AddAttribute("lon", "units", "degrees_east")

	h.AddVariable("time_bnds", []string{"time", "nv"}, []float64{0})

	h.AddVariable("air", []string{"time", "lat", "lon"}, []float32{0})
	h.AddAttribute("air", "long_name", "air temperature")
	h.AddAttribute("air", "units", "degK")
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		t.Fatal(errs[0])
	}

	path := filepath.Join(dir, "air.nc")
	ff, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		t.Fatal(err)
	}

	write := func(name string, data interface{}) {
		end := f.Header.Lengths(name)
		start := make([]int, len(end))
		if _, err := f.Writer(name, start, end).Write(data); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	write("time", []int32{0, 6, 12})
	write("lat", []float32{40, 45, 50, 55})
	write("lon", []float32{200, 210, 220, 230, 240})
	write("time_bnds", []float64{0, 6, 6, 12, 12, 18})
	air := make([]float32, 0, nTime*nLat*nLon)
	for k := 0; k < nTime; k++ {
		for j := 0; j < nLat; j++ {
			for i := 0; i < nLon; i++ {
				air = append(air, float32(airValue(k, j, i)))
			}
		}
	}
	write("air", air)
	return path
}

func TestDatasetInfo_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want DatasetInfo
	}{
		{in: `"air.nc"`, want: DatasetInfo{Source: SourceDefault, ID: "air.nc"}},
		{in: `{"source": "xarray", "id": "eraint_uvz"}`, want: DatasetInfo{Source: SourceXarray, ID: "eraint_uvz"}},
		{in: `{"id": "x.zarr"}`, want: DatasetInfo{Source: SourceDefault, ID: "x.zarr"}},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			var have DatasetInfo
			if err := json.Unmarshal([]byte(test.in), &have); err != nil {
				t.Fatal(err)
			}
			if have != test.want {
				t.Errorf("want %+v but have %+v", test.want, have)
			}
		})
	}
}

func TestSource_Valid(t *testing.T) {
	for _, s := range Sources {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Source("ftp").Valid() {
		t.Error("ftp should not be valid")
	}
}
