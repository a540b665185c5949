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

// Package viewer serves an interactive view of a pan3d.DatasetBuilder.
// A DatasetViewer mirrors the builder into a reactive state.State that
// browser clients read and write over a websocket, and renders the
// builder's mesh into PNG frames.
package viewer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/groupcache/lru"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/pan3d"
	"github.com/spatialmodel/pan3d/internal/hash"
	"github.com/spatialmodel/pan3d/render"
	"github.com/spatialmodel/pan3d/state"
	"gonum.org/v1/plot/vg"
)

// DefaultRenderDelay is how long a render waits before building the mesh.
const DefaultRenderDelay = time.Second

// DatasetOption is an entry in the list of datasets offered to users.
type DatasetOption struct {
	Name     string       `json:"name"`
	URL      string       `json:"url"`
	Source   pan3d.Source `json:"source"`
	MoreInfo string       `json:"more_info,omitempty"`
}

// TutorialDatasets returns the tutorial datasets as options.
func TutorialDatasets() []DatasetOption {
	o := make([]DatasetOption, len(pan3d.TutorialDatasets))
	for i, n := range pan3d.TutorialDatasets {
		o[i] = DatasetOption{Name: n, URL: n, Source: pan3d.SourceXarray}
	}
	return o
}

// CatalogDatasets converts catalog entries into options that open the
// entry URLs directly.
func CatalogDatasets(entries []pan3d.CatalogEntry) []DatasetOption {
	o := make([]DatasetOption, len(entries))
	for i, e := range entries {
		o[i] = DatasetOption{Name: e.Name, URL: e.URL, Source: pan3d.SourceDefault, MoreInfo: e.MoreInfo}
	}
	return o
}

type varItem struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// An Option configures a DatasetViewer.
type Option func(*DatasetViewer)

// RenderDelay sets how long each render waits before building the mesh.
func RenderDelay(d time.Duration) Option {
	return func(v *DatasetViewer) { v.renderDelay = d }
}

// InitialState overrides initial state values.
func InitialState(s map[string]interface{}) Option {
	return func(v *DatasetViewer) {
		for k, x := range s {
			v.initial[k] = x
		}
	}
}

// AvailableDatasets adds datasets to the list offered to users.
func AvailableDatasets(d ...DatasetOption) Option {
	return func(v *DatasetViewer) {
		cur, _ := v.initial["available_datasets"].([]DatasetOption)
		v.initial["available_datasets"] = append(cur, d...)
	}
}

// Logger sets the logger.
func Logger(l logrus.FieldLogger) Option {
	return func(v *DatasetViewer) { v.Log = l }
}

// ImageSize sets the size of rendered frames.
func ImageSize(width, height vg.Length) Option {
	return func(v *DatasetViewer) { v.Plotter.Width, v.Plotter.Height = width, height }
}

// FrameCacheSize sets how many rendered frames are kept.
func FrameCacheSize(n int) Option {
	return func(v *DatasetViewer) { v.frames = lru.New(n) }
}

// Context sets the context used to load datasets.
func Context(ctx context.Context) Option {
	return func(v *DatasetViewer) { v.ctx = ctx }
}

// DatasetViewer keeps a state.State in sync with a DatasetBuilder and
// renders the builder's mesh. It implements pan3d.Viewer.
//
// Apart from ApplyAndRender and the frame accessors, its methods must
// be called on its Loop once the viewer is shared.
type DatasetViewer struct {
	Builder *pan3d.DatasetBuilder
	State   *state.State
	Plotter *render.Plotter
	Log     logrus.FieldLogger

	loop        *Loop
	ctx         context.Context
	initial     map[string]interface{}
	renderDelay time.Duration
	renders     chan renderJob
	closeOnce   sync.Once

	frameMu   sync.Mutex
	frames    *lru.Cache
	lastFrame string
}

// New attaches a new DatasetViewer to b. If b is nil, a builder with a
// default Opener is created. State changes are processed on loop.
func New(b *pan3d.DatasetBuilder, loop *Loop, opts ...Option) *DatasetViewer {
	if b == nil {
		b = pan3d.NewDatasetBuilder(nil)
	}
	v := &DatasetViewer{
		Builder:     b,
		Plotter:     render.New(8*vg.Inch, 6*vg.Inch),
		Log:         logrus.StandardLogger(),
		loop:        loop,
		ctx:         context.Background(),
		initial:     initialState(),
		renderDelay: DefaultRenderDelay,
		renders:     make(chan renderJob, 4),
		frames:      lru.New(16),
	}
	for _, o := range opts {
		o(v)
	}
	v.State = state.New(v.initial)
	v.State.Log = v.Log
	v.initial = nil
	b.SetViewer(v)

	s := v.State
	s.OnChange(v.onDataset, "dataset_path", "dataset_source")
	s.OnChange(v.onDataArray, "da_active")
	s.OnChange(v.onAxes, "da_x", "da_y", "da_z", "da_t")
	s.OnChange(v.onTimeIndex, "da_t_index")
	s.OnChange(v.onCoordinates, "da_coordinates")
	s.OnChange(v.onAction, "ui_action_name")
	s.OnChange(v.onScales, "render_x_scale", "render_y_scale", "render_z_scale")
	s.OnChange(v.onRenderOptions, "render_colormap", "render_transparency",
		"render_transparency_function", "render_scalar_warp")

	v.onScales(nil)
	s.Change(func() {
		v.DatasetChanged()
		v.DataArrayChanged()
		v.TimeIndexChanged()
		v.MeshChanged()
	})
	go v.renderWorker()
	return v
}

func initialState() map[string]interface{} {
	return map[string]interface{}{
		"dataset_path":       nil,
		"dataset_source":     string(pan3d.SourceDefault),
		"dataset_ready":      false,
		"available_datasets": TutorialDatasets(),

		"da_active":      nil,
		"da_vars":        []varItem{},
		"da_attrs":       []pan3d.Attr{},
		"da_vars_attrs":  map[string][]pan3d.Attr{},
		"no_da_vars":     false,
		"da_x":           nil,
		"da_y":           nil,
		"da_z":           nil,
		"da_t":           nil,
		"da_t_index":     0,
		"da_t_max":       0,
		"da_coordinates": []pan3d.Coordinate{},
		"da_size":        nil,

		"ui_loading":              false,
		"ui_error_message":        nil,
		"ui_unapplied_changes":    false,
		"ui_main_drawer":          false,
		"ui_axis_drawer":          false,
		"ui_expanded_coordinates": []string{},
		"ui_more_info_link":       nil,
		"ui_current_time_string":  "",
		"ui_action_name":          nil,
		"ui_action_message":       nil,
		"ui_action_config_file":   nil,
		"ui_selected_config_file": nil,
		"ui_frame":                "",

		"render_auto":                  false,
		"render_colormap":              render.DefaultColormap,
		"render_transparency":          false,
		"render_transparency_function": "linear",
		"render_scalar_warp":           false,
		"render_x_scale":               1,
		"render_y_scale":               1,
		"render_z_scale":               1,

		"colormaps":              render.Colormaps(),
		"transparency_functions": render.Opacities,
		"state_export":           nil,
	}
}

// Close stops the render worker.
func (v *DatasetViewer) Close() {
	v.closeOnce.Do(func() { close(v.renders) })
}

// Loop returns the loop the viewer runs on.
func (v *DatasetViewer) Loop() *Loop { return v.loop }

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// report shows err to the user.
func (v *DatasetViewer) report(err error) {
	v.Log.WithError(err).Warn("viewer")
	v.State.Update(map[string]interface{}{
		"ui_error_message": err.Error(),
		"ui_loading":       false,
	})
}

// Builder notifications.

// DatasetChanged implements pan3d.Viewer.
func (v *DatasetViewer) DatasetChanged() {
	b := v.Builder
	info := b.DatasetInfo()
	u := map[string]interface{}{
		"dataset_path":      nilIfEmpty(info.ID),
		"dataset_source":    string(info.Source),
		"ui_more_info_link": nil,
		"da_attrs":          []pan3d.Attr{},
		"da_vars":           []varItem{},
		"da_vars_attrs":     map[string][]pan3d.Attr{},
		"no_da_vars":        false,
		"dataset_ready":     false,
	}
	if info.Source == "" {
		u["dataset_source"] = string(pan3d.SourceDefault)
	}
	ds := b.Dataset()
	if ds == nil {
		v.State.Update(u)
		return
	}
	u["ui_loading"] = true
	u["ui_main_drawer"] = true

	var available []DatasetOption
	if err := v.State.Decode("available_datasets", &available); err == nil {
		for _, d := range available {
			if d.URL == info.ID && d.MoreInfo != "" {
				u["ui_more_info_link"] = d.MoreInfo
			}
		}
	}
	if u["ui_more_info_link"] == nil && b.Opener != nil {
		if link := b.Opener.Catalog.MoreInfo(v.ctx, info.ID); link != "" {
			u["ui_more_info_link"] = link
		}
	}

	dims := make([]string, len(ds.Dims))
	for i, d := range ds.Dims {
		dims[i] = fmt.Sprintf("%s: %d", d, ds.Sizes[d])
	}
	attrs := []pan3d.Attr{{Key: "dimensions", Value: "{" + strings.Join(dims, ", ") + "}"}}
	u["da_attrs"] = append(attrs, ds.Attrs...)

	names := ds.DataVars()
	vars := make([]varItem, len(names))
	varAttrs := make(map[string][]pan3d.Attr, len(names))
	for i, n := range names {
		vars[i] = varItem{Name: n, ID: i}
		varAttrs[n] = []pan3d.Attr{}
		if dv, err := ds.Var(n); err == nil && dv.Attrs != nil {
			varAttrs[n] = dv.Attrs
		}
	}
	u["da_vars"] = vars
	u["da_vars_attrs"] = varAttrs
	u["no_da_vars"] = len(vars) == 0
	u["dataset_ready"] = true
	v.State.Update(u)
}

// DataArrayChanged implements pan3d.Viewer.
func (v *DatasetViewer) DataArrayChanged() {
	b := v.Builder
	coords := []pan3d.Coordinate{}
	expanded := []string{}
	u := map[string]interface{}{"da_active": nilIfEmpty(b.DataArrayName())}
	ds, da := b.Dataset(), b.DataArray()
	if ds != nil && da != nil {
		c, err := pan3d.NewCoordinates(ds, da, b.Slicing())
		if err != nil {
			v.report(err)
		} else {
			coords = c
		}
		for _, c := range coords {
			expanded = append(expanded, c.Name)
		}
		if len(da.Dims) > 0 {
			u["ui_axis_drawer"] = true
		}
	}
	u["da_coordinates"] = coords
	u["ui_expanded_coordinates"] = expanded
	v.State.Update(u)
	v.Plotter.Clear()
	v.Plotter.ViewIsometric()
}

// DataSlicingChanged implements pan3d.Viewer.
func (v *DatasetViewer) DataSlicingChanged() {
	slicing := v.Builder.Slicing()
	if slicing == nil {
		return
	}
	coords := v.coordinates()
	for i, c := range coords {
		if s, ok := slicing[c.Name]; ok {
			coords[i].Start, coords[i].Stop, coords[i].Step = s.Start, s.Stop, s.Step
		}
	}
	v.State.Set("da_coordinates", coords)
}

// TimeIndexChanged implements pan3d.Viewer.
func (v *DatasetViewer) TimeIndexChanged() {
	v.mirrorAxes()
	v.State.Set("ui_current_time_string", v.currentTime())
}

func (v *DatasetViewer) currentTime() string {
	b := v.Builder
	ds := b.Dataset()
	if b.T() == "" || ds == nil {
		return ""
	}
	c := ds.Coord(b.T())
	vals, err := c.Values()
	if err != nil || b.TIndex() >= len(vals) {
		return ""
	}
	x := vals[b.TIndex()]
	if c.DType.Time() {
		return pan3d.UnixTimeValue(x).Label
	}
	return pan3d.Number(x).String()
}

func (v *DatasetViewer) mirrorAxes() {
	b := v.Builder
	v.State.Update(map[string]interface{}{
		"da_x":       nilIfEmpty(b.X()),
		"da_y":       nilIfEmpty(b.Y()),
		"da_z":       nilIfEmpty(b.Z()),
		"da_t":       nilIfEmpty(b.T()),
		"da_t_index": b.TIndex(),
		"da_t_max":   b.TMax(),
	})
}

// MeshChanged implements pan3d.Viewer.
func (v *DatasetViewer) MeshChanged() {
	v.mirrorAxes()
	da := v.Builder.DataArray()
	if da == nil {
		v.State.Update(map[string]interface{}{
			"da_size":              nil,
			"ui_unapplied_changes": false,
			"ui_loading":           false,
		})
		return
	}
	nbytes := da.NBytes()
	if _, n, err := v.Builder.MeshSource().SlicedSize(); err == nil {
		nbytes = n
	}
	v.State.Update(map[string]interface{}{
		"da_size":              pan3d.FormatBytes(nbytes),
		"ui_error_message":     nil,
		"ui_unapplied_changes": true,
		"ui_loading":           false,
	})
	if v.State.Bool("render_auto") {
		v.ApplyAndRender()
	}
}

// DatasetLoadFailed implements pan3d.Viewer.
func (v *DatasetViewer) DatasetLoadFailed(err error) { v.report(err) }

// transient reports whether a state key holds a value that is not
// saved in configs.
func transient(key string) bool {
	switch key {
	case "ui_loading", "ui_error_message", "ui_unapplied_changes",
		"ui_selected_config_file", "ui_frame", "ui_current_time_string",
		"ui_more_info_link":
		return true
	}
	return strings.HasPrefix(key, "ui_action_") || strings.HasPrefix(key, "ui_catalog_")
}

// ImportState implements pan3d.Viewer.
func (v *DatasetViewer) ImportState(ui, rnd map[string]interface{}) {
	u := make(map[string]interface{}, len(ui)+len(rnd))
	for k, x := range ui {
		if key := "ui_" + k; !transient(key) {
			u[key] = x
		}
	}
	for k, x := range rnd {
		u["render_"+k] = x
	}
	v.State.Update(u)
}

// ExportState implements pan3d.Viewer.
func (v *DatasetViewer) ExportState() (ui, rnd map[string]interface{}) {
	ui = make(map[string]interface{})
	rnd = make(map[string]interface{})
	for k, x := range v.State.Snapshot() {
		switch {
		case transient(k):
		case strings.HasPrefix(k, "ui_"):
			ui[strings.TrimPrefix(k, "ui_")] = x
		case strings.HasPrefix(k, "render_"):
			rnd[strings.TrimPrefix(k, "render_")] = x
		}
	}
	return ui, rnd
}

// State listeners.

func (v *DatasetViewer) onDataset([]string) {
	info := pan3d.DatasetInfo{
		Source: pan3d.Source(v.State.String("dataset_source")),
		ID:     v.State.String("dataset_path"),
	}
	if err := v.Builder.SetDatasetInfo(v.ctx, info); err != nil {
		v.report(err)
	}
}

func (v *DatasetViewer) onDataArray([]string) {
	if err := v.Builder.SetDataArrayName(v.State.String("da_active")); err != nil {
		v.report(err)
		v.State.Set("da_active", nilIfEmpty(v.Builder.DataArrayName()))
	}
}

func (v *DatasetViewer) onAxes([]string) {
	a := pan3d.Axes{
		X: v.State.String("da_x"),
		Y: v.State.String("da_y"),
		Z: v.State.String("da_z"),
		T: v.State.String("da_t"),
	}
	if err := v.Builder.SetAxes(a); err != nil {
		v.report(err)
		v.mirrorAxes()
	}
}

func (v *DatasetViewer) onTimeIndex([]string) {
	if err := v.Builder.SetTIndex(v.State.Int("da_t_index")); err != nil {
		v.report(err)
		v.mirrorAxes()
	}
}

func (v *DatasetViewer) onCoordinates([]string) {
	if err := v.Builder.SetSlicing(pan3d.SlicingFromCoordinates(v.coordinates())); err != nil {
		v.report(err)
	}
}

func (v *DatasetViewer) onAction([]string) {
	name := v.State.String("ui_action_name")
	v.State.Update(map[string]interface{}{
		"ui_action_message":     nil,
		"ui_action_config_file": nil,
	})
	if name != "Export" {
		return
	}
	cfg, err := v.Builder.ExportConfig("")
	if err != nil {
		v.State.Set("ui_action_message", err.Error())
		return
	}
	v.State.Change(func() {
		v.State.Set("ui_action_name", nil)
		// Clients act on every export, even an identical one.
		v.State.Set("state_export", nil)
		v.State.Set("state_export", cfg)
	})
}

func (v *DatasetViewer) onScales([]string) {
	v.Plotter.SetScale(
		v.State.Float64("render_x_scale"),
		v.State.Float64("render_y_scale"),
		v.State.Float64("render_z_scale"),
	)
	if v.Plotter.Mesh() != nil {
		v.ApplyAndRender()
	}
}

func (v *DatasetViewer) onRenderOptions([]string) {
	if v.Plotter.Mesh() != nil {
		v.ApplyAndRender()
	}
}

// coordinates returns a copy of the coordinate list in the state.
func (v *DatasetViewer) coordinates() []pan3d.Coordinate {
	if c, ok := v.State.Get("da_coordinates").([]pan3d.Coordinate); ok {
		return append([]pan3d.Coordinate(nil), c...)
	}
	var c []pan3d.Coordinate
	if err := v.State.Decode("da_coordinates", &c); err != nil {
		v.Log.WithError(err).Warn("viewer: reading coordinates")
	}
	return c
}

// UI actions.

var axisKeys = map[string]bool{"da_x": true, "da_y": true, "da_z": true, "da_t": true}

// SelectAxis moves the coordinate named coord from the axis state key
// currentAxis, which may be empty, to newAxis. A newAxis of "" or
// "undefined" only clears currentAxis.
func (v *DatasetViewer) SelectAxis(coord, currentAxis, newAxis string) error {
	if newAxis == "undefined" {
		newAxis = ""
	}
	for _, k := range []string{currentAxis, newAxis} {
		if k != "" && !axisKeys[k] {
			return fmt.Errorf("viewer: %q is not an axis", k)
		}
	}
	v.State.Change(func() {
		if currentAxis != "" && v.State.Has(currentAxis) {
			v.State.Set(currentAxis, nil)
		}
		if newAxis != "" {
			v.State.Set(newAxis, coord)
		}
	})
	return nil
}

// ChangeSlice sets the start, stop or step of a coordinate's slice
// from the text in value. It returns false if the edit was rejected.
func (v *DatasetViewer) ChangeSlice(coord, attr, value string) bool {
	coords := v.coordinates()
	if !pan3d.ChangeSlice(coords, coord, attr, value) {
		return false
	}
	v.State.Set("da_coordinates", coords)
	return true
}

// ToggleExpansion opens or closes the panel of a coordinate.
func (v *DatasetViewer) ToggleExpansion(coord string) {
	var o []string
	found := false
	for _, c := range v.State.Strings("ui_expanded_coordinates") {
		if c == coord {
			found = true
			continue
		}
		o = append(o, c)
	}
	if !found {
		o = append(o, coord)
	}
	if o == nil {
		o = []string{}
	}
	v.State.Set("ui_expanded_coordinates", o)
}

// ImportConfig imports a config as DatasetBuilder.ImportConfig does.
// Failures are shown in ui_action_message and returned.
func (v *DatasetViewer) ImportConfig(src interface{}) error {
	var err error
	v.State.Change(func() {
		v.State.Set("ui_action_message", nil)
		if err = v.Builder.ImportConfig(v.ctx, src); err != nil {
			v.State.Set("ui_action_message", err.Error())
			return
		}
		v.State.Set("ui_action_name", nil)
	})
	if err != nil {
		v.Log.WithError(err).Warn("viewer: importing config")
	}
	return err
}

// ClientConnected turns on automatic rendering and renders the current
// mesh unless a frame is already available.
func (v *DatasetViewer) ClientConnected() {
	if v.State.Bool("render_auto") {
		if _, _, ok := v.LatestFrame(); ok {
			return
		}
	}
	v.State.Set("render_auto", true)
	v.MeshChanged()
}

// Trigger runs the UI action called name.
func (v *DatasetViewer) Trigger(name string, args []interface{}) error {
	str := func(i int) string {
		if i < len(args) && args[i] != nil {
			return fmt.Sprint(args[i])
		}
		return ""
	}
	switch name {
	case "apply":
		v.ApplyAndRender()
	case "select_axis":
		return v.SelectAxis(str(0), str(1), str(2))
	case "change_slice":
		v.ChangeSlice(str(0), str(1), str(2))
	case "toggle_expansion":
		v.ToggleExpansion(str(0))
	case "import_config":
		if len(args) == 0 {
			return fmt.Errorf("viewer: import_config needs a config")
		}
		// Clients send the text of the file, never a path on the server.
		switch c := args[0].(type) {
		case string:
			return v.ImportConfig([]byte(c))
		case map[string]interface{}:
			return v.ImportConfig(c)
		default:
			return fmt.Errorf("viewer: import_config: unsupported config type %T", c)
		}
	default:
		return fmt.Errorf("viewer: unknown action %q", name)
	}
	return nil
}

// Rendering.

type frameID struct {
	Dataset pan3d.DatasetInfo
	Array   string
	Axes    pan3d.Axes
	TIndex  int
	Slicing pan3d.Slicing
	Options render.Options
	Warp    bool
	Scale   [3]float64
	View    render.View
}

type renderJob struct {
	src *pan3d.MeshSource
	id  frameID
}

// ApplyAndRender rebuilds the mesh and renders it. It may be called
// from any goroutine. Requests made while a render is in progress are
// dropped.
func (v *DatasetViewer) ApplyAndRender() {
	v.loop.Dispatch(v.plotMesh)
}

func (v *DatasetViewer) plotMesh() {
	if v.State.Bool("ui_loading") {
		return
	}
	b := v.Builder
	v.State.Update(map[string]interface{}{
		"ui_error_message":     nil,
		"ui_loading":           true,
		"ui_unapplied_changes": false,
	})
	job := renderJob{
		src: b.MeshSource(),
		id: frameID{
			Dataset: b.DatasetInfo(),
			Array:   b.DataArrayName(),
			Axes:    b.Axes(),
			TIndex:  b.TIndex(),
			Slicing: b.Slicing(),
		},
	}
	select {
	case v.renders <- job:
	default:
		v.Log.Warn("viewer: render queue is full; dropping render")
		v.State.Set("ui_loading", false)
	}
}

// renderWorker builds meshes off the loop, one at a time.
func (v *DatasetViewer) renderWorker() {
	for job := range v.renders {
		time.Sleep(v.renderDelay)
		start := time.Now()
		mesh, rng, err := buildMesh(job.src)
		if err == nil {
			v.Log.WithFields(logrus.Fields{
				"array":  mesh.Name,
				"points": humanize.Comma(int64(mesh.NPoints())),
				"time":   time.Since(start),
			}).Debug("built mesh")
		}
		job := job
		v.loop.Dispatch(func() { v.plot(job, mesh, rng, err) })
	}
}

// buildMesh builds the mesh and its data range. A panic while building
// is returned as an error.
func buildMesh(src *pan3d.MeshSource) (mesh *pan3d.Mesh, rng [2]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			mesh, err = nil, fmt.Errorf("pan3d: building mesh: %v", r)
		}
	}()
	mesh, err = src.Mesh()
	if err != nil {
		return nil, rng, err
	}
	rng, err = src.DataRange()
	return mesh, rng, err
}

func (v *DatasetViewer) plot(job renderJob, m *pan3d.Mesh, rng [2]float64, err error) {
	v.State.Change(func() {
		defer v.State.Set("ui_loading", false)
		if err != nil {
			v.report(err)
			return
		}
		p := v.Plotter
		p.Clear()
		opts := render.Options{
			Colormap: v.State.String("render_colormap"),
			Clim:     rng,
			Labels:   [3]string{job.id.Axes.X, job.id.Axes.Y, job.id.Axes.Z},
		}
		if v.State.Bool("render_transparency") {
			opts.Opacity = v.State.String("render_transparency_function")
		}
		warp := v.State.Bool("render_scalar_warp")
		if warp {
			m = m.WarpByScalar(0)
		}
		if err := p.AddMesh(m, opts); err != nil {
			v.report(err)
			return
		}
		if m.NDims() > 2 {
			p.ViewIsometric()
		} else {
			p.ViewXY()
		}
		png, err := p.PNG()
		if err != nil {
			v.report(err)
			return
		}
		job.id.Options, job.id.Warp, job.id.Scale, job.id.View = opts, warp, p.Scale(), p.View()
		key := hash.Hash(job.id)
		v.frameMu.Lock()
		v.frames.Add(key, png)
		v.lastFrame = key
		v.frameMu.Unlock()
		v.Log.WithFields(logrus.Fields{
			"array": m.Name,
			"view":  p.View().String(),
			"size":  humanize.Bytes(uint64(len(png))),
		}).Info("rendered frame")
		v.State.Set("ui_frame", key)
	})
}

// Frame returns the rendered frame with the given key.
func (v *DatasetViewer) Frame(key string) ([]byte, bool) {
	v.frameMu.Lock()
	defer v.frameMu.Unlock()
	f, ok := v.frames.Get(key)
	if !ok {
		return nil, false
	}
	return f.([]byte), true
}

// LatestFrame returns the most recently rendered frame.
func (v *DatasetViewer) LatestFrame() (key string, png []byte, ok bool) {
	v.frameMu.Lock()
	key = v.lastFrame
	v.frameMu.Unlock()
	if key == "" {
		return "", nil, false
	}
	png, ok = v.Frame(key)
	return key, png, ok
}
