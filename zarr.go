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
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrKeyNotFound is returned by a Store for a missing key.
var ErrKeyNotFound = errors.New("pan3d: key not found in store")

// Store is a key-value store holding a Zarr v2 hierarchy.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// ListStore is a Store whose keys can be listed. Stores without
// consolidated metadata must be listable.
type ListStore interface {
	Store
	Keys(ctx context.Context) ([]string, error)
}

// DirStore is a Zarr store in a local directory.
type DirStore string

// Get implements Store.
func (d DirStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := ioutil.ReadFile(filepath.Join(string(d), filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return b, err
}

// Keys implements ListStore.
func (d DirStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := filepath.Walk(string(d), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(string(d), path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	return keys, err
}

// HTTPStore is a Zarr store served over HTTP. Its hierarchy must have
// consolidated metadata.
type HTTPStore struct {
	URL    string
	Client *http.Client
}

// Get implements Store.
func (h *HTTPStore) Get(ctx context.Context, key string) ([]byte, error) {
	c := h.Client
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequest("GET", strings.TrimSuffix(h.URL, "/")+"/"+key, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("pan3d: fetching %s: %s", key, resp.Status)
	}
	return ioutil.ReadAll(resp.Body)
}

// BlobStore is a Zarr store under a prefix in a blob bucket.
type BlobStore struct {
	Bucket *blob.Bucket
	Prefix string
}

func (b *BlobStore) key(k string) string {
	if b.Prefix == "" {
		return k
	}
	return strings.TrimSuffix(b.Prefix, "/") + "/" + k
}

// Get implements Store.
func (b *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.Bucket.ReadAll(ctx, b.key(key))
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return data, err
}

// Keys implements ListStore.
func (b *BlobStore) Keys(ctx context.Context) ([]string, error) {
	prefix := ""
	if b.Prefix != "" {
		prefix = strings.TrimSuffix(b.Prefix, "/") + "/"
	}
	var keys []string
	iter := b.Bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, strings.TrimPrefix(obj.Key, prefix))
	}
	return keys, nil
}

// zarrArray is the content of a .zarray document.
type zarrArray struct {
	ZarrFormat         int             `json:"zarr_format"`
	Shape              []int           `json:"shape"`
	Chunks             []int           `json:"chunks"`
	DType              string          `json:"dtype"`
	Compressor         *zarrCodec      `json:"compressor"`
	FillValue          json.RawMessage `json:"fill_value"`
	Order              string          `json:"order"`
	Filters            []zarrCodec     `json:"filters"`
	DimensionSeparator string          `json:"dimension_separator"`
}

type zarrCodec struct {
	ID string `json:"id"`
}

// zarrDType is a parsed numpy type string such as "<f8" or "<M8[ns]".
type zarrDType struct {
	order binary.ByteOrder
	kind  byte
	size  int
	unit  float64 // seconds per datetime or timedelta unit
}

var datetimeUnits = map[string]float64{
	"ns": 1e-9, "us": 1e-6, "ms": 1e-3, "s": 1,
	"m": 60, "h": 3600, "D": 86400, "W": 7 * 86400,
}

func parseZarrDType(s string) (zarrDType, error) {
	if len(s) < 3 {
		return zarrDType{}, fmt.Errorf("pan3d: invalid zarr dtype %q", s)
	}
	var d zarrDType
	switch s[0] {
	case '<', '|':
		d.order = binary.LittleEndian
	case '>':
		d.order = binary.BigEndian
	default:
		return d, fmt.Errorf("pan3d: invalid zarr dtype %q", s)
	}
	d.kind = s[1]
	rest := s[2:]
	if i := strings.Index(rest, "["); i >= 0 {
		u, ok := datetimeUnits[strings.TrimSuffix(rest[i+1:], "]")]
		if !ok {
			return d, fmt.Errorf("pan3d: unsupported datetime unit in %q", s)
		}
		d.unit = u
		rest = rest[:i]
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return d, fmt.Errorf("pan3d: invalid zarr dtype %q", s)
	}
	d.size = n
	switch d.kind {
	case 'f':
		if n != 4 && n != 8 {
			return d, fmt.Errorf("pan3d: unsupported zarr dtype %q", s)
		}
	case 'i', 'u':
		if n != 1 && n != 2 && n != 4 && n != 8 {
			return d, fmt.Errorf("pan3d: unsupported zarr dtype %q", s)
		}
	case 'b':
		if n != 1 {
			return d, fmt.Errorf("pan3d: unsupported zarr dtype %q", s)
		}
	case 'M', 'm':
		if n != 8 || d.unit == 0 {
			return d, fmt.Errorf("pan3d: unsupported zarr dtype %q", s)
		}
	default:
		return d, fmt.Errorf("pan3d: unsupported zarr dtype %q", s)
	}
	return d, nil
}

func (d zarrDType) dtype() DType { return DType{Kind: d.kind, ItemSize: d.size} }

// decode converts the raw bytes of n elements into float64 values.
func (d zarrDType) decode(b []byte, n int) ([]float64, error) {
	if len(b) < n*d.size {
		return nil, fmt.Errorf("pan3d: chunk holds %d bytes, want %d", len(b), n*d.size)
	}
	o := make([]float64, n)
	for i := range o {
		e := b[i*d.size : (i+1)*d.size]
		switch d.kind {
		case 'f':
			if d.size == 4 {
				o[i] = float64(math.Float32frombits(d.order.Uint32(e)))
			} else {
				o[i] = math.Float64frombits(d.order.Uint64(e))
			}
		case 'u', 'b':
			o[i] = float64(d.asUint(e))
		case 'i':
			o[i] = float64(d.asInt(e))
		case 'M', 'm':
			v := d.asInt(e)
			if v == math.MinInt64 { // NaT
				o[i] = math.NaN()
			} else {
				o[i] = float64(v) * d.unit
			}
		}
	}
	return o, nil
}

func (d zarrDType) asUint(e []byte) uint64 {
	switch len(e) {
	case 1:
		return uint64(e[0])
	case 2:
		return uint64(d.order.Uint16(e))
	case 4:
		return uint64(d.order.Uint32(e))
	}
	return d.order.Uint64(e)
}

func (d zarrDType) asInt(e []byte) int64 {
	switch len(e) {
	case 1:
		return int64(int8(e[0]))
	case 2:
		return int64(int16(d.order.Uint16(e)))
	case 4:
		return int64(int32(d.order.Uint32(e)))
	}
	return int64(d.order.Uint64(e))
}

// fillValue decodes a zarr fill_value, which is a number, one of the
// strings "NaN", "Infinity" and "-Infinity", or null.
func fillValue(raw json.RawMessage) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "NaN":
			return math.NaN()
		case "Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil && b {
		return 1
	}
	return 0
}

func decompress(c *zarrCodec, b []byte) ([]byte, error) {
	if c == nil {
		return b, nil
	}
	switch c.ID {
	case "zlib":
		r, err := zlib.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return ioutil.ReadAll(r)
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return ioutil.ReadAll(r)
	case "zstd":
		d, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer d.Close()
		return d.DecodeAll(b, nil)
	}
	return nil, fmt.Errorf("pan3d: unsupported zarr compressor %q", c.ID)
}

// OpenZarr opens the Zarr v2 group in s. Consolidated metadata
// (.zmetadata) is used when present; otherwise s must be a ListStore.
func OpenZarr(ctx context.Context, s Store) (*Dataset, error) {
	meta, err := zarrMetadata(ctx, s)
	if err != nil {
		return nil, err
	}

	var names []string
	for k := range meta {
		if strings.HasSuffix(k, "/.zarray") {
			name := strings.TrimSuffix(k, "/.zarray")
			if !strings.Contains(name, "/") {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)

	sizes := make(map[string]int)
	var dims []string
	var vars []*Variable
	for _, name := range names {
		var za zarrArray
		if err := json.Unmarshal(meta[name+"/.zarray"], &za); err != nil {
			return nil, fmt.Errorf("pan3d: zarr array %s: %w", name, err)
		}
		attrs, vdims, err := zarrAttrs(meta[name+"/.zattrs"])
		if err != nil {
			return nil, fmt.Errorf("pan3d: zarr array %s: %w", name, err)
		}
		if vdims == nil {
			for i := range za.Shape {
				vdims = append(vdims, fmt.Sprintf("dim_%d", i))
			}
		}
		if len(vdims) != len(za.Shape) {
			return nil, fmt.Errorf("pan3d: zarr array %s has %d dimension names for %d dimensions",
				name, len(vdims), len(za.Shape))
		}
		dt, err := parseZarrDType(za.DType)
		if err != nil {
			return nil, fmt.Errorf("pan3d: zarr array %s: %w", name, err)
		}
		for i, d := range vdims {
			if _, ok := sizes[d]; !ok {
				sizes[d] = za.Shape[i]
				dims = append(dims, d)
			} else if sizes[d] != za.Shape[i] {
				return nil, fmt.Errorf("pan3d: dimension %s has conflicting sizes %d and %d",
					d, sizes[d], za.Shape[i])
			}
		}
		v := &Variable{
			Name:  name,
			Dims:  vdims,
			Shape: za.Shape,
			DType: dt.dtype(),
			Attrs: attrs,
		}
		v.load = zarrLoader(ctx, s, name, za, dt)
		decodeCF(v)
		vars = append(vars, v)
	}
	gattrs, _, err := zarrAttrs(meta[".zattrs"])
	if err != nil {
		return nil, err
	}
	return NewDataset(gattrs, dims, sizes, vars, nil), nil
}

// zarrMetadata returns the metadata documents of the hierarchy keyed
// by their store keys.
func zarrMetadata(ctx context.Context, s Store) (map[string]json.RawMessage, error) {
	b, err := s.Get(ctx, ".zmetadata")
	if err == nil {
		var consolidated struct {
			Metadata map[string]json.RawMessage `json:"metadata"`
		}
		if err := json.Unmarshal(b, &consolidated); err != nil {
			return nil, fmt.Errorf("pan3d: reading .zmetadata: %w", err)
		}
		return consolidated.Metadata, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}
	ls, ok := s.(ListStore)
	if !ok {
		return nil, fmt.Errorf("pan3d: zarr store has no consolidated metadata and cannot be listed")
	}
	keys, err := ls.Keys(ctx)
	if err != nil {
		return nil, err
	}
	meta := make(map[string]json.RawMessage)
	for _, k := range keys {
		base := k[strings.LastIndex(k, "/")+1:]
		if base != ".zarray" && base != ".zattrs" && base != ".zgroup" {
			continue
		}
		b, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		meta[k] = b
	}
	return meta, nil
}

// zarrAttrs decodes a .zattrs document, separating out the xarray
// _ARRAY_DIMENSIONS attribute.
func zarrAttrs(b json.RawMessage) ([]Attr, []string, error) {
	if len(b) == 0 {
		return nil, nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, nil, err
	}
	var dims []string
	var keys []string
	for k := range m {
		if k == "_ARRAY_DIMENSIONS" {
			if err := json.Unmarshal(m[k], &dims); err != nil {
				return nil, nil, err
			}
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]Attr, len(keys))
	for i, k := range keys {
		attrs[i] = Attr{Key: k, Value: jsonAttr(m[k])}
	}
	return attrs, dims, nil
}

func jsonAttr(raw json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []interface{}:
		if len(t) == 1 {
			return jsonAttr(mustMarshal(t[0]))
		}
		f := make([]float64, 0, len(t))
		for _, e := range t {
			if x, ok := e.(float64); ok {
				f = append(f, x)
			}
		}
		if len(f) == len(t) {
			return formatAttr(f)
		}
	}
	return string(raw)
}

func mustMarshal(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// zarrLoader returns a function that reads all chunks of an array.
func zarrLoader(ctx context.Context, s Store, name string, za zarrArray, dt zarrDType) func() ([]float64, error) {
	return func() ([]float64, error) {
		if za.Order != "" && za.Order != "C" {
			return nil, fmt.Errorf("pan3d: zarr array %s: order %q is not supported", name, za.Order)
		}
		if len(za.Filters) > 0 {
			return nil, fmt.Errorf("pan3d: zarr array %s: filters are not supported", name)
		}
		sep := za.DimensionSeparator
		if sep == "" {
			sep = "."
		}
		n := 1
		for _, l := range za.Shape {
			n *= l
		}
		out := make([]float64, n)
		if n == 0 {
			return out, nil
		}
		fill := fillValue(za.FillValue)

		nd := len(za.Shape)
		if nd == 0 {
			vals, err := readChunk(ctx, s, name+"/0", za.Compressor, dt, 1, fill)
			if err != nil {
				return nil, err
			}
			copy(out, vals)
			return out, nil
		}
		nChunks := make([]int, nd)
		chunkLen := 1
		for i := range za.Shape {
			nChunks[i] = (za.Shape[i] + za.Chunks[i] - 1) / za.Chunks[i]
			chunkLen *= za.Chunks[i]
		}
		outStrides := cStrides(za.Shape)
		chunkStrides := cStrides(za.Chunks)

		ci := make([]int, nd)
		for {
			parts := make([]string, nd)
			for i, c := range ci {
				parts[i] = strconv.Itoa(c)
			}
			vals, err := readChunk(ctx, s, name+"/"+strings.Join(parts, sep), za.Compressor, dt, chunkLen, fill)
			if err != nil {
				return nil, fmt.Errorf("pan3d: zarr array %s: %w", name, err)
			}
			// Copy the part of the chunk that lies inside the array.
			for e := 0; e < chunkLen; e++ {
				off := 0
				inside := true
				rem := e
				for d := 0; d < nd; d++ {
					idx := rem/chunkStrides[d] + ci[d]*za.Chunks[d]
					rem %= chunkStrides[d]
					if idx >= za.Shape[d] {
						inside = false
						break
					}
					off += idx * outStrides[d]
				}
				if inside {
					out[off] = vals[e]
				}
			}
			d := nd - 1
			for ; d >= 0; d-- {
				ci[d]++
				if ci[d] < nChunks[d] {
					break
				}
				ci[d] = 0
			}
			if d < 0 {
				break
			}
		}
		return out, nil
	}
}

func readChunk(ctx context.Context, s Store, key string, c *zarrCodec, dt zarrDType, n int, fill float64) ([]float64, error) {
	b, err := s.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = fill
		}
		return vals, nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := decompress(c, b)
	if err != nil {
		return nil, fmt.Errorf("decompressing chunk %s: %w", key, err)
	}
	return dt.decode(raw, n)
}
