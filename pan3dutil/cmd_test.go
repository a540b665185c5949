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

package pan3dutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/pan3d"
)

// resetCfg restores every option to its default. Options set with
// Cfg.Set take precedence over flags, so tests set options directly.
func resetCfg(t *testing.T) {
	for _, o := range options {
		Cfg.Set(o.name, o.defaultVal)
	}
	Cfg.Set("CacheDir", t.TempDir())
	Cfg.Set("LogLevel", "error")
}

func writeTestData(t *testing.T) string {
	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{2, 2, 3})
	h.AddVariable("time", []string{"time"}, []int32{0})
	h.AddAttribute("time", "units", "days since 2010-01-01")
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddVariable("air", []string{"time", "lat", "lon"}, []float64{0})
	h.Define()
	path := filepath.Join(t.TempDir(), "air.nc")
	ff, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		t.Fatal(err)
	}
	for name, data := range map[string]interface{}{
		"time": []int32{0, 1},
		"lat":  []float64{10, 20},
		"lon":  []float64{1, 2, 3},
		"air":  []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	} {
		end := f.Header.Lengths(name)
		start := make([]int, len(end))
		if _, err := f.Writer(name, start, end).Write(data); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}

func TestVersion(t *testing.T) {
	resetCfg(t)
	buf := new(bytes.Buffer)
	Root.SetOutput(buf)
	defer Root.SetOutput(nil)
	Root.SetArgs([]string{"version"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if want := "Pan3D v" + pan3d.Version + "\n"; buf.String() != want {
		t.Errorf("want %q but have %q", want, buf.String())
	}
}

func TestExport(t *testing.T) {
	resetCfg(t)
	path := writeTestData(t)
	out := filepath.Join(t.TempDir(), "state.json")

	buf := new(bytes.Buffer)
	Root.SetOutput(buf)
	defer Root.SetOutput(nil)
	Cfg.Set("dataset_path", path)
	Cfg.Set("output", out)
	Root.SetArgs([]string{"export"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	cfg, err := pan3d.ParseConfig(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	want := pan3d.DataArrayConfig{Name: "air", X: "lon", Y: "lat", T: "time"}
	if cfg.DataArray != want {
		t.Errorf("want %+v but have %+v", want, cfg.DataArray)
	}
	if cfg.DataOrigin.ID != path {
		t.Errorf("have origin %v", cfg.DataOrigin)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("the state should also be written to the output file: %v", err)
	}

	t.Run("import", func(t *testing.T) {
		saved := map[string]interface{}{
			"data_origin": path,
			"data_array":  map[string]interface{}{"name": "air", "x": "lat", "y": "lon", "t": "time", "t_index": 1},
		}
		b, err := json.Marshal(saved)
		if err != nil {
			t.Fatal(err)
		}
		cfgPath := filepath.Join(t.TempDir(), "saved.json")
		if err := ioutil.WriteFile(cfgPath, b, 0644); err != nil {
			t.Fatal(err)
		}
		resetCfg(t)
		Cfg.Set("config_path", cfgPath)
		buf.Reset()
		Root.SetArgs([]string{"export"})
		if err := Root.Execute(); err != nil {
			t.Fatal(err)
		}
		cfg, err := pan3d.ParseConfig(buf.Bytes())
		if err != nil {
			t.Fatal(err)
		}
		want := pan3d.DataArrayConfig{Name: "air", X: "lat", Y: "lon", T: "time", TIndex: 1}
		if cfg.DataArray != want {
			t.Errorf("want %+v but have %+v", want, cfg.DataArray)
		}
	})
}

func TestLoadBuilder(t *testing.T) {
	resetCfg(t)
	path := writeTestData(t)
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		b, err := LoadBuilder(ctx, quietLogger(), newCatalog())
		if err != nil {
			t.Fatal(err)
		}
		if b.Dataset() != nil {
			t.Error("no dataset should be loaded")
		}
	})
	t.Run("dataset", func(t *testing.T) {
		Cfg.Set("dataset_path", path)
		defer resetCfg(t)
		b, err := LoadBuilder(ctx, quietLogger(), newCatalog())
		if err != nil {
			t.Fatal(err)
		}
		if b.DataArrayName() != "air" || b.TMax() != 1 {
			t.Errorf("have array %q with %d time steps", b.DataArrayName(), b.TMax()+1)
		}
	})
	t.Run("bad source", func(t *testing.T) {
		Cfg.Set("dataset_path", path)
		Cfg.Set("source", "ftp")
		defer resetCfg(t)
		_, err := LoadBuilder(ctx, quietLogger(), newCatalog())
		if !errors.Is(err, pan3d.ErrUnknownSource) {
			t.Errorf("want ErrUnknownSource but have %v", err)
		}
	})
	t.Run("bad config", func(t *testing.T) {
		Cfg.Set("dataset_path", path)
		Cfg.Set("config_path", `{"data_array": {"name": "air"}}`)
		defer resetCfg(t)
		_, err := LoadBuilder(ctx, quietLogger(), newCatalog())
		if !errors.Is(err, pan3d.ErrInvalidConfig) {
			t.Errorf("want ErrInvalidConfig but have %v", err)
		}
	})
}

func TestSetLogger(t *testing.T) {
	resetCfg(t)
	f := filepath.Join(t.TempDir(), "pan3d.log")
	Cfg.Set("LogFile", f)
	Cfg.Set("LogLevel", "debug")
	log, err := setLogger()
	if err != nil {
		t.Fatal(err)
	}
	if log.Level != logrus.DebugLevel {
		t.Errorf("have level %v", log.Level)
	}
	log.Debug("hello from the test")
	b, err := ioutil.ReadFile(f)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "hello from the test") {
		t.Errorf("have log %q", b)
	}

	Cfg.Set("LogLevel", "loud")
	if _, err := setLogger(); err == nil {
		t.Error("want an error for an invalid level")
	}
}

func TestServerEnabled(t *testing.T) {
	resetCfg(t)
	if !serverEnabled() {
		t.Error("the server should start by default")
	}
	Cfg.Set("no-server", true)
	if serverEnabled() {
		t.Error("--no-server should disable the server")
	}
}

func TestNewServer(t *testing.T) {
	resetCfg(t)
	path := writeTestData(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/pangeo.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]pan3d.CatalogEntry{
			{Name: "ocean", URL: "gs://bucket/ocean.zarr", MoreInfo: "https://example.com/ocean"},
		})
	})
	catalogServer := httptest.NewServer(mux)
	defer catalogServer.Close()

	Cfg.Set("dataset_path", path)
	Cfg.Set("pangeo", true)
	Cfg.Set("RenderDelay", "10ms")
	Cfg.Set("PangeoCatalog", catalogServer.URL+"/pangeo.json")
	defer resetCfg(t)

	ctx := context.Background()
	catalog := newCatalog()
	catalog.Log = quietLogger()
	b, err := LoadBuilder(ctx, quietLogger(), catalog)
	if err != nil {
		t.Fatal(err)
	}
	s, release, err := newServer(ctx, b, catalog, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	var available []struct{ Name string }
	if err := s.Viewer.State.Decode("available_datasets", &available); err != nil {
		t.Fatal(err)
	}
	if last := available[len(available)-1].Name; last != "ocean" {
		t.Errorf("the pangeo datasets should be offered: %v", available)
	}

	ts := httptest.NewServer(s)
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/config")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var cfg pan3d.Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.DataArray.Name != "air" {
		t.Errorf("have %+v", cfg.DataArray)
	}

	Cfg.Set("RenderDelay", "soon")
	if _, _, err := newServer(ctx, b, catalog, quietLogger()); err == nil {
		t.Error("want an error for an invalid RenderDelay")
	}
}

func TestNewServer_configPath(t *testing.T) {
	resetCfg(t)
	path := writeTestData(t)
	saved := map[string]interface{}{
		"data_origin": path,
		"data_array":  map[string]interface{}{"name": "air", "x": "lon", "y": "lat", "t": "time", "t_index": 1},
		"ui":          map[string]interface{}{"main_drawer": false},
		"render":      map[string]interface{}{"colormap": "blackbody", "x_scale": 5},
	}
	b, err := json.Marshal(saved)
	if err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(t.TempDir(), "saved.json")
	if err := ioutil.WriteFile(cfgPath, b, 0644); err != nil {
		t.Fatal(err)
	}
	Cfg.Set("config_path", cfgPath)
	Cfg.Set("RenderDelay", "0s")
	defer resetCfg(t)

	ctx := context.Background()
	catalog := newCatalog()
	builder, err := LoadBuilder(ctx, quietLogger(), catalog)
	if err != nil {
		t.Fatal(err)
	}
	s, release, err := newServer(ctx, builder, catalog, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	var colormap string
	var xScale float64
	var drawer bool
	var tIndex int
	s.Viewer.Loop().Sync(func() {
		colormap = s.Viewer.State.String("render_colormap")
		xScale = s.Viewer.State.Float64("render_x_scale")
		drawer = s.Viewer.State.Bool("ui_main_drawer")
		tIndex = s.Viewer.State.Int("da_t_index")
	})
	if colormap != "blackbody" || xScale != 5 {
		t.Errorf("the render settings should be imported: have colormap %q, x_scale %v", colormap, xScale)
	}
	if drawer {
		t.Error("the ui settings should be imported")
	}
	if tIndex != 1 {
		t.Errorf("want time index 1 but have %d", tIndex)
	}
}
