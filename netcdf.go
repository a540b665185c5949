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
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/cdf"
)

// OpenNetCDF opens a classic-format NetCDF file. Variable data are read
// on first use, so the file stays open until the dataset is closed.
func OpenNetCDF(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pan3d: opening netcdf file: %w", err)
	}
	ds, err := readNetCDF(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pan3d: reading netcdf file %s: %w", path, err)
	}
	return ds, nil
}

func readNetCDF(f *os.File) (*Dataset, error) {
	cf, err := cdf.Open(f)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	h := cf.Header
	nrec := int(h.NumRecs(fi.Size()))

	dims := h.Dimensions("")
	sizes := make(map[string]int)
	for i, l := range h.Lengths("") {
		if l == 0 { // record dimension
			l = nrec
		}
		sizes[dims[i]] = l
	}

	var vars []*Variable
	for _, name := range h.Variables() {
		vdims := h.Dimensions(name)
		shape := make([]int, len(vdims))
		for i, d := range vdims {
			shape[i] = sizes[d]
		}
		attrs := cdfAttrs(h, name)
		dtype, err := cdfDType(h.ZeroValue(name, 0))
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		v := &Variable{
			Name:  name,
			Dims:  vdims,
			Shape: shape,
			DType: dtype,
			Attrs: attrs,
		}
		v.load = cdfLoader(cf, v)
		if dtype.Kind != 'S' {
			decodeCF(v)
		}
		vars = append(vars, v)
	}
	return NewDataset(cdfAttrs(h, ""), dims, sizes, vars, f), nil
}

// cdfLoader returns a function that reads all of v's values from f.
func cdfLoader(f *cdf.File, v *Variable) func() ([]float64, error) {
	name := v.Name
	return func() ([]float64, error) {
		n := v.Size()
		if n == 0 {
			return []float64{}, nil
		}
		var end []int
		if len(v.Shape) > 0 {
			end = make([]int, len(v.Shape))
			for i, s := range v.Shape {
				end[i] = s - 1
			}
		}
		r := f.Reader(name, nil, end)
		buf := f.Header.ZeroValue(name, n)
		if _, err := r.Read(buf); err != nil {
			return nil, fmt.Errorf("pan3d: reading variable %s: %w", name, err)
		}
		return toFloat64(buf), nil
	}
}

func cdfDType(zero interface{}) (DType, error) {
	switch zero.(type) {
	case []uint8:
		return Uint8, nil
	case string:
		return Char, nil
	case []int16:
		return Int16, nil
	case []int32:
		return Int32, nil
	case []float32:
		return Float32, nil
	case []float64:
		return Float64, nil
	}
	return DType{}, fmt.Errorf("unsupported netcdf type %T", zero)
}

func toFloat64(buf interface{}) []float64 {
	var o []float64
	switch b := buf.(type) {
	case []uint8:
		o = make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
	case []int16:
		o = make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
	case []int32:
		o = make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
	case []float32:
		o = make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
	case []float64:
		o = b
	}
	return o
}

func cdfAttrs(h *cdf.Header, v string) []Attr {
	names := h.Attributes(v)
	o := make([]Attr, 0, len(names))
	for _, a := range names {
		o = append(o, Attr{Key: a, Value: formatAttr(h.GetAttribute(v, a))})
	}
	return o
}

// formatAttr renders an attribute value. Single-element arrays are
// shown as scalars.
func formatAttr(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []uint8:
		return formatList(len(t), func(i int) string { return strconv.Itoa(int(t[i])) })
	case []int16:
		return formatList(len(t), func(i int) string { return strconv.Itoa(int(t[i])) })
	case []int32:
		return formatList(len(t), func(i int) string { return strconv.Itoa(int(t[i])) })
	case []int64:
		return formatList(len(t), func(i int) string { return strconv.FormatInt(t[i], 10) })
	case []float32:
		return formatList(len(t), func(i int) string { return strconv.FormatFloat(float64(t[i]), 'g', -1, 32) })
	case []float64:
		return formatList(len(t), func(i int) string { return strconv.FormatFloat(t[i], 'g', -1, 64) })
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func formatList(n int, f func(int) string) string {
	if n == 1 {
		return f(0)
	}
	s := make([]string, n)
	for i := range s {
		s[i] = f(i)
	}
	return "[" + strings.Join(s, ", ") + "]"
}

// decodeCF applies the CF conventions to v: fill values become NaN,
// packed values are unpacked with scale_factor and add_offset, and
// variables with "<unit> since <date>" units become datetimes.
func decodeCF(v *Variable) {
	fill, hasFill := attrFloat(v, "_FillValue")
	missing, hasMissing := attrFloat(v, "missing_value")
	scale, hasScale := attrFloat(v, "scale_factor")
	offset, hasOffset := attrFloat(v, "add_offset")
	var (
		tUnit float64
		tRef  time.Time
		isT   bool
	)
	if u, ok := v.Attr("units"); ok {
		var err error
		tUnit, tRef, err = ParseTimeUnits(u)
		isT = err == nil
	}
	if !hasFill && !hasMissing && !hasScale && !hasOffset && !isT {
		return
	}
	if !hasScale {
		scale = 1
	}
	if hasScale || hasOffset || (hasFill || hasMissing) && v.DType.Kind != 'f' {
		v.DType = Float64
	}
	if isT {
		v.DType = Datetime
	}
	load := v.load
	v.load = func() ([]float64, error) {
		vals, err := load()
		if err != nil {
			return nil, err
		}
		o := make([]float64, len(vals))
		for i, x := range vals {
			if hasFill && x == fill || hasMissing && x == missing {
				o[i] = math.NaN()
				continue
			}
			x = x*scale + offset
			if isT {
				x = float64(tRef.Unix()) + x*tUnit
			}
			o[i] = x
		}
		return o, nil
	}
}

func attrFloat(v *Variable, key string) (float64, bool) {
	s, ok := v.Attr(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Trim(s, "[]"), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var timeUnits = map[string]float64{
	"second": 1, "seconds": 1, "sec": 1, "secs": 1, "s": 1,
	"minute": 60, "minutes": 60, "min": 60, "mins": 60,
	"hour": 3600, "hours": 3600, "hr": 3600, "hrs": 3600, "h": 3600,
	"day": 86400, "days": 86400, "d": 86400,
}

var refLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-1-2 15:4:5",
	"2006-1-2 15:4",
	"2006-1-2",
	"2006-01-02",
}

// ParseTimeUnits parses a CF time units string such as
// "days since 1950-01-01 00:00:00" into the number of seconds per unit
// and the reference time. Calendars other than the proleptic Gregorian
// calendar are not distinguished.
func ParseTimeUnits(units string) (float64, time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("pan3d: %q is not a time unit", units)
	}
	mult, ok := timeUnits[strings.ToLower(strings.TrimSpace(parts[0]))]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("pan3d: unknown time unit %q", parts[0])
	}
	ref := strings.TrimSpace(parts[1])
	ref = strings.TrimSuffix(ref, " UTC")
	if i := strings.Index(ref, "."); i > 0 && strings.Count(ref, ":") >= 2 {
		ref = ref[:i] // fractional seconds
	}
	for _, l := range refLayouts {
		if t, err := time.Parse(l, ref); err == nil {
			return mult, t.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("pan3d: invalid reference time %q", parts[1])
}
