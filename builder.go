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
	"fmt"

	"github.com/sirupsen/logrus"
)

// Viewer is notified of changes to a DatasetBuilder.
type Viewer interface {
	// DatasetChanged is called after a dataset is loaded or cleared.
	DatasetChanged()

	// DataArrayChanged is called after the active data array changes.
	DataArrayChanged()

	// TimeIndexChanged is called after the time axis or time index changes.
	TimeIndexChanged()

	// MeshChanged is called whenever the mesh needs to be rebuilt.
	MeshChanged()

	// DataSlicingChanged is called after the slicing changes.
	DataSlicingChanged()

	// DatasetLoadFailed is called instead of returning an error when
	// a dataset cannot be loaded.
	DatasetLoadFailed(err error)

	// ImportState applies "ui" and "render" settings from a config.
	// Keys do not carry the "ui_" and "render_" prefixes.
	ImportState(ui, render map[string]interface{})

	// ExportState returns the settings to save in a config.
	ExportState() (ui, render map[string]interface{})
}

// DatasetBuilder selects a dataset, one of its data arrays, an axis
// assignment and a slicing, and keeps a MeshSource in sync with them.
// It is not safe for concurrent use; the MeshSource it owns is.
type DatasetBuilder struct {
	Opener *Opener
	Log    logrus.FieldLogger

	viewer  Viewer
	info    DatasetInfo
	ds      *Dataset
	active  string
	axes    Axes
	tIndex  int
	tMax    int
	slicing Slicing
	mesh    MeshSource
}

// NewDatasetBuilder returns a builder that loads datasets with o.
func NewDatasetBuilder(o *Opener) *DatasetBuilder {
	if o == nil {
		o = NewOpener("", nil)
	}
	return &DatasetBuilder{
		Opener: o,
		Log:    logrus.StandardLogger(),
	}
}

// SetViewer attaches v to b. Once a viewer is attached, dataset load
// failures are reported to it rather than returned.
func (b *DatasetBuilder) SetViewer(v Viewer) { b.viewer = v }

// Viewer returns the attached viewer, if any.
func (b *DatasetBuilder) Viewer() Viewer { return b.viewer }

// DatasetInfo returns the identity of the loaded dataset.
func (b *DatasetBuilder) DatasetInfo() DatasetInfo { return b.info }

// Dataset returns the loaded dataset, or nil.
func (b *DatasetBuilder) Dataset() *Dataset { return b.ds }

// DataArrayName returns the name of the active data array.
func (b *DatasetBuilder) DataArrayName() string { return b.active }

// DataArray returns the active data array, or nil.
func (b *DatasetBuilder) DataArray() *Variable { return b.mesh.DataArray() }

// Axes returns the axis assignment.
func (b *DatasetBuilder) Axes() Axes { return b.axes }

// X returns the dimension assigned to the x axis.
func (b *DatasetBuilder) X() string { return b.axes.X }

// Y returns the dimension assigned to the y axis.
func (b *DatasetBuilder) Y() string { return b.axes.Y }

// Z returns the dimension assigned to the z axis.
func (b *DatasetBuilder) Z() string { return b.axes.Z }

// T returns the dimension assigned to the time axis.
func (b *DatasetBuilder) T() string { return b.axes.T }

// TIndex returns the index along the time axis.
func (b *DatasetBuilder) TIndex() int { return b.tIndex }

// TMax returns the largest valid time index.
func (b *DatasetBuilder) TMax() int { return b.tMax }

// Slicing returns a copy of the slicing.
func (b *DatasetBuilder) Slicing() Slicing { return b.slicing.Clone() }

// MeshSource returns the mesh source kept in sync with b.
func (b *DatasetBuilder) MeshSource() *MeshSource { return &b.mesh }

// Mesh builds the mesh for the current selection.
func (b *DatasetBuilder) Mesh() (*Mesh, error) { return b.mesh.Mesh() }

// DataRange returns the range of the current selection's values.
func (b *DatasetBuilder) DataRange() ([2]float64, error) { return b.mesh.DataRange() }

// SetDatasetPath loads the dataset at path from the default source.
func (b *DatasetBuilder) SetDatasetPath(ctx context.Context, path string) error {
	return b.SetDatasetInfo(ctx, DatasetInfo{Source: SourceDefault, ID: path})
}

// SetDatasetInfo loads the dataset identified by info, replacing the
// current one along with its active array, axes and slicing. The first
// data variable that does not hold cell bounds becomes active.
// An empty identifier clears the dataset.
func (b *DatasetBuilder) SetDatasetInfo(ctx context.Context, info DatasetInfo) error {
	if info.Source == "" {
		info.Source = SourceDefault
	}
	if info == b.info && (b.ds != nil || info.IsZero()) {
		return nil
	}
	var ds *Dataset
	if !info.IsZero() {
		if !info.Source.Valid() {
			return b.loadFailed(fmt.Errorf("%w: %q", ErrUnknownSource, info.Source))
		}
		var err error
		ds, err = b.Opener.Open(ctx, info)
		if err != nil {
			return b.loadFailed(err)
		}
	}
	return b.setDataset(info, ds)
}

// setDataset replaces the current dataset with ds, which was opened
// from info.
func (b *DatasetBuilder) setDataset(info DatasetInfo, ds *Dataset) error {
	if b.ds != nil {
		if err := b.ds.Close(); err != nil {
			b.Log.WithError(err).Warn("closing dataset")
		}
	}
	b.info = info
	b.ds = ds
	b.active = ""
	b.reset()
	b.mesh.SetDataArray(ds, nil)
	if b.viewer != nil {
		b.viewer.DatasetChanged()
	}
	if ds == nil {
		b.arrayChanged()
		return nil
	}
	b.Log.WithFields(logrus.Fields{
		"dataset":   info.String(),
		"variables": len(ds.DataVars()),
	}).Info("loaded dataset")
	if name := ds.DefaultVar(); name != "" {
		return b.SetDataArrayName(name)
	}
	b.arrayChanged()
	return nil
}

func (b *DatasetBuilder) loadFailed(err error) error {
	b.Log.WithError(err).Error("loading dataset")
	if b.viewer != nil {
		b.viewer.DatasetLoadFailed(err)
		return nil
	}
	return err
}

// reset clears the axes, time index and slicing.
func (b *DatasetBuilder) reset() {
	b.axes = Axes{}
	b.tIndex = 0
	b.tMax = 0
	b.slicing = nil
	b.mesh.SetAxes(b.axes)
	b.mesh.SetTimeIndex(0)
	b.mesh.SetSlicing(nil)
}

func (b *DatasetBuilder) arrayChanged() {
	if b.viewer != nil {
		b.viewer.DataArrayChanged()
		b.viewer.TimeIndexChanged()
		b.viewer.MeshChanged()
	}
}

// SetDataArrayName makes the named data variable active. The axes,
// time index and slicing are reset and the axes are then selected
// automatically from the variable's dimensions.
func (b *DatasetBuilder) SetDataArrayName(name string) error {
	if name == b.active {
		return nil
	}
	var v *Variable
	if name != "" {
		if b.ds == nil {
			return fmt.Errorf("pan3d: cannot select %q: no dataset is loaded", name)
		}
		var err error
		v, err = b.ds.Var(name)
		if err != nil {
			return err
		}
	}
	b.active = name
	b.reset()
	b.mesh.SetDataArray(b.ds, v)
	if v != nil {
		b.axes = AutoSelectAxes(b.axes, v.Dims)
		b.tMax = b.timeMax(b.axes.T)
		b.mesh.SetAxes(b.axes)
		b.Log.WithFields(logrus.Fields{
			"array": name,
			"x":     b.axes.X,
			"y":     b.axes.Y,
			"z":     b.axes.Z,
			"t":     b.axes.T,
		}).Info("selected data array")
	}
	b.arrayChanged()
	return nil
}

// timeMax returns the largest index along dimension t.
func (b *DatasetBuilder) timeMax(t string) int {
	if t == "" || b.ds == nil {
		return 0
	}
	if n := b.ds.Sizes[t]; n > 0 {
		return n - 1
	}
	return 0
}

func (b *DatasetBuilder) checkDim(dim string) error {
	if dim == "" {
		return nil
	}
	v := b.mesh.DataArray()
	if v == nil {
		return fmt.Errorf("pan3d: cannot assign %q: no data array is selected", dim)
	}
	if v.DimIndex(dim) < 0 {
		return fmt.Errorf("pan3d: %q is not a dimension of %s", dim, v.Name)
	}
	return nil
}

func (b *DatasetBuilder) setAxis(a Axis, dim string) error {
	if b.axes.Get(a) == dim {
		return nil
	}
	if err := b.checkDim(dim); err != nil {
		return err
	}
	b.axes.Set(a, dim)
	b.mesh.SetAxes(b.axes)
	if a == AxisT {
		b.tMax = b.timeMax(dim)
		if b.tIndex > b.tMax {
			b.tIndex = 0
			b.mesh.SetTimeIndex(0)
		}
		if b.viewer != nil {
			b.viewer.TimeIndexChanged()
		}
	}
	if b.viewer != nil {
		b.viewer.MeshChanged()
	}
	return nil
}

// SetX assigns dim to the x axis. An empty dim unassigns it.
func (b *DatasetBuilder) SetX(dim string) error { return b.setAxis(AxisX, dim) }

// SetY assigns dim to the y axis.
func (b *DatasetBuilder) SetY(dim string) error { return b.setAxis(AxisY, dim) }

// SetZ assigns dim to the z axis.
func (b *DatasetBuilder) SetZ(dim string) error { return b.setAxis(AxisZ, dim) }

// SetT assigns dim to the time axis and records its length.
func (b *DatasetBuilder) SetT(dim string) error { return b.setAxis(AxisT, dim) }

// SetAxes replaces the whole axis assignment.
func (b *DatasetBuilder) SetAxes(a Axes) error {
	if a == b.axes {
		return nil
	}
	for _, ax := range AxisOrder {
		if err := b.checkDim(a.Get(ax)); err != nil {
			return err
		}
	}
	tChanged := a.T != b.axes.T
	b.axes = a
	b.mesh.SetAxes(a)
	if tChanged {
		b.tMax = b.timeMax(a.T)
		if b.tIndex > b.tMax {
			b.tIndex = 0
			b.mesh.SetTimeIndex(0)
		}
	}
	if b.viewer != nil {
		if tChanged {
			b.viewer.TimeIndexChanged()
		}
		b.viewer.MeshChanged()
	}
	return nil
}

// SetTIndex sets the index along the time axis.
func (b *DatasetBuilder) SetTIndex(i int) error {
	if i == b.tIndex {
		return nil
	}
	if i < 0 || b.axes.T != "" && i > b.tMax {
		return fmt.Errorf("pan3d: time index %d out of range [0, %d]", i, b.tMax)
	}
	b.tIndex = i
	b.mesh.SetTimeIndex(i)
	if b.viewer != nil {
		b.viewer.TimeIndexChanged()
		b.viewer.MeshChanged()
	}
	return nil
}

// SetSlicing replaces the slicing.
func (b *DatasetBuilder) SetSlicing(s Slicing) error {
	if s.Equal(b.slicing) {
		return nil
	}
	b.slicing = s.Clone()
	b.mesh.SetSlicing(s)
	if b.viewer != nil {
		b.viewer.DataSlicingChanged()
		b.viewer.MeshChanged()
	}
	return nil
}
