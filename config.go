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
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Config is the saved state of a DatasetBuilder and its Viewer.
type Config struct {
	DataOrigin DatasetInfo            `json:"data_origin"`
	DataArray  DataArrayConfig        `json:"data_array"`
	DataSlices Slicing                `json:"data_slices,omitempty"`
	UI         map[string]interface{} `json:"ui,omitempty"`
	Render     map[string]interface{} `json:"render,omitempty"`
}

// DataArrayConfig holds the active array and its axis assignment.
type DataArrayConfig struct {
	Name   string `json:"name"`
	X      string `json:"x,omitempty"`
	Y      string `json:"y,omitempty"`
	Z      string `json:"z,omitempty"`
	T      string `json:"t,omitempty"`
	TIndex int    `json:"t_index,omitempty"`
}

// UnmarshalJSON accepts the legacy "active" key in place of "name".
func (d *DataArrayConfig) UnmarshalJSON(b []byte) error {
	type dac DataArrayConfig
	var v struct {
		dac
		Active string `json:"active"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*d = DataArrayConfig(v.dac)
	if d.Name == "" {
		d.Name = v.Active
	}
	return nil
}

// Axes returns the axis assignment in d.
func (d DataArrayConfig) Axes() Axes {
	return Axes{X: d.X, Y: d.Y, Z: d.Z, T: d.T}
}

const configSchemaText = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["data_origin", "data_array"],
	"properties": {
		"data_origin": {
			"oneOf": [
				{"type": "string", "minLength": 1},
				{
					"type": "object",
					"required": ["id"],
					"properties": {
						"source": {"enum": ["default", "xarray", "pangeo", "esgf"]},
						"id": {"type": "string", "minLength": 1}
					}
				}
			]
		},
		"data_array": {
			"type": "object",
			"anyOf": [{"required": ["name"]}, {"required": ["active"]}],
			"properties": {
				"name": {"type": "string"},
				"active": {"type": "string"},
				"x": {"type": ["string", "null"]},
				"y": {"type": ["string", "null"]},
				"z": {"type": ["string", "null"]},
				"t": {"type": ["string", "null"]},
				"t_index": {"type": "integer", "minimum": 0}
			}
		},
		"data_slices": {
			"type": ["object", "null"],
			"additionalProperties": {
				"type": "array",
				"minItems": 3,
				"maxItems": 3,
				"items": [
					{"type": ["number", "string"]},
					{"type": ["number", "string"]},
					{"type": "number", "exclusiveMinimum": 0}
				]
			}
		},
		"ui": {"type": ["object", "null"]},
		"render": {"type": ["object", "null"]}
	}
}`

var configSchema = jsonschema.MustCompileString("config.schema.json", configSchemaText)

// ParseConfig reads and validates a config. src may be a *Config or
// Config, a map[string]interface{}, JSON as []byte or io.Reader, or a
// string holding either the path of a JSON file or JSON text.
func ParseConfig(src interface{}) (*Config, error) {
	var b []byte
	switch s := src.(type) {
	case *Config:
		if s == nil {
			return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
		}
		return ParseConfig(*s)
	case Config, map[string]interface{}:
		var err error
		if b, err = json.Marshal(s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	case []byte:
		b = s
	case io.Reader:
		var err error
		if b, err = ioutil.ReadAll(s); err != nil {
			return nil, err
		}
	case string:
		if _, err := os.Stat(s); err == nil {
			if b, err = ioutil.ReadFile(s); err != nil {
				return nil, err
			}
		} else {
			b = []byte(s)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported source type %T", ErrInvalidConfig, src)
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := configSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg := new(Config)
	if err := json.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// ImportConfig applies a config to b: the dataset, the active array,
// the axis assignment (axes missing from the config are unassigned),
// the time index and the slicing, and then the ui and render settings
// of the attached viewer. See ParseConfig for the accepted sources.
// An invalid config returns an error wrapping ErrInvalidConfig, and a
// config whose array, axes or time index do not fit its dataset returns
// an error. Either way b is left unchanged.
func (b *DatasetBuilder) ImportConfig(ctx context.Context, src interface{}) error {
	cfg, err := ParseConfig(src)
	if err != nil {
		return err
	}
	info := cfg.DataOrigin
	if info.Source == "" {
		info.Source = SourceDefault
	}
	ds := b.ds
	var opened *Dataset
	if ds == nil || info != b.info {
		if !info.Source.Valid() {
			return fmt.Errorf("pan3d: importing config: %w: %q", ErrUnknownSource, info.Source)
		}
		if opened, err = b.Opener.Open(ctx, info); err != nil {
			b.loadFailed(err)
			return fmt.Errorf("pan3d: importing config: %w", err)
		}
		ds = opened
	}
	if err := checkConfig(ds, cfg.DataArray); err != nil {
		if opened != nil {
			opened.Close()
		}
		return err
	}
	if opened != nil {
		if err := b.setDataset(info, opened); err != nil {
			return err
		}
	}
	if err := b.SetDataArrayName(cfg.DataArray.Name); err != nil {
		return err
	}
	if err := b.SetAxes(cfg.DataArray.Axes()); err != nil {
		return err
	}
	if err := b.SetTIndex(cfg.DataArray.TIndex); err != nil {
		return err
	}
	if cfg.DataSlices != nil {
		if err := b.SetSlicing(cfg.DataSlices); err != nil {
			return err
		}
	}
	if b.viewer != nil {
		b.viewer.ImportState(cfg.UI, cfg.Render)
	}
	b.Log.WithField("dataset", cfg.DataOrigin.String()).Info("imported config")
	return nil
}

// checkConfig reports whether the data array settings of a config
// can be applied to ds.
func checkConfig(ds *Dataset, d DataArrayConfig) error {
	v, err := ds.Var(d.Name)
	if err != nil {
		return fmt.Errorf("pan3d: importing config: %w", err)
	}
	axes := d.Axes()
	for _, a := range AxisOrder {
		if dim := axes.Get(a); dim != "" && v.DimIndex(dim) < 0 {
			return fmt.Errorf("pan3d: importing config: %q is not a dimension of %s", dim, v.Name)
		}
	}
	if d.TIndex < 0 || axes.T != "" && d.TIndex >= ds.Sizes[axes.T] {
		return fmt.Errorf("pan3d: importing config: time index %d out of range for %s", d.TIndex, axes.T)
	}
	return nil
}

// ExportConfig returns the current state of b as a Config. If path is
// not empty, the config is also written there as JSON.
func (b *DatasetBuilder) ExportConfig(path string) (*Config, error) {
	cfg := &Config{
		DataOrigin: b.info,
		DataArray: DataArrayConfig{
			Name:   b.active,
			X:      b.axes.X,
			Y:      b.axes.Y,
			Z:      b.axes.Z,
			T:      b.axes.T,
			TIndex: b.tIndex,
		},
		DataSlices: b.slicing.Clone(),
	}
	if b.viewer != nil {
		cfg.UI, cfg.Render = b.viewer.ExportState()
	}
	if path == "" {
		return cfg, nil
	}
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := ioutil.WriteFile(path, out, 0644); err != nil {
		return nil, fmt.Errorf("pan3d: writing config: %w", err)
	}
	return cfg, nil
}
