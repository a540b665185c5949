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

// Package pan3d loads N-dimensional datasets, assigns their dimensions to
// rendering axes and slices them into renderable meshes.
//
// A DatasetBuilder owns the dataset identity, the active data array, the
// axis assignment and the slicing. Every change it accepts is forwarded to a
// MeshSource and, when one is attached, to a Viewer.
package pan3d

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the version of Pan3D.
const Version = "0.1.0"

// Source specifies how a dataset identifier is resolved.
type Source string

// These are the supported dataset sources.
const (
	// SourceDefault opens a local path, an http(s) URL or a blob URL.
	SourceDefault Source = "default"
	// SourceXarray opens a named xarray tutorial dataset.
	SourceXarray Source = "xarray"
	// SourcePangeo looks the identifier up in the pangeo catalog.
	SourcePangeo Source = "pangeo"
	// SourceESGF looks the identifier up with the ESGF search API.
	SourceESGF Source = "esgf"
)

// Sources lists the valid sources in the order they are presented to users.
var Sources = []Source{SourceDefault, SourceXarray, SourcePangeo, SourceESGF}

// Valid returns whether s is a known source.
func (s Source) Valid() bool {
	for _, ss := range Sources {
		if s == ss {
			return true
		}
	}
	return false
}

var (
	// ErrInvalidConfig is returned when a configuration document
	// fails validation.
	ErrInvalidConfig = errors.New("pan3d: invalid config")

	// ErrUnknownSource is returned for a DatasetInfo with an
	// unsupported source.
	ErrUnknownSource = errors.New("pan3d: unknown dataset source")

	// ErrUnknownVariable is returned when a data array name is not
	// present in the loaded dataset.
	ErrUnknownVariable = errors.New("pan3d: unknown variable")

	// ErrNotFound is returned when a catalog has no entry for an identifier.
	ErrNotFound = errors.New("pan3d: dataset not found")
)

// DatasetInfo identifies a dataset and how to load it.
type DatasetInfo struct {
	Source Source `json:"source"`
	ID     string `json:"id"`
}

// IsZero returns whether no dataset is identified.
func (d DatasetInfo) IsZero() bool { return d.ID == "" }

func (d DatasetInfo) String() string {
	if d.Source == "" || d.Source == SourceDefault {
		return d.ID
	}
	return fmt.Sprintf("%s:%s", d.Source, d.ID)
}

// UnmarshalJSON accepts either a {source, id} object or a bare string,
// which is treated as the identifier of a default-source dataset.
func (d *DatasetInfo) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*d = DatasetInfo{Source: SourceDefault, ID: s}
		return nil
	}
	type info DatasetInfo
	var i info
	if err := json.Unmarshal(b, &i); err != nil {
		return err
	}
	if i.Source == "" {
		i.Source = SourceDefault
	}
	*d = DatasetInfo(i)
	return nil
}
