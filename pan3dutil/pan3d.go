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

// Package pan3dutil contains the command-line interface for Pan3D.
package pan3dutil

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
	"github.com/spatialmodel/pan3d"
	"github.com/spatialmodel/pan3d/viewer"
	"github.com/spf13/cast"
)

// catalogCacheSize is the number of catalog lookups kept in memory.
const catalogCacheSize = 64

func expand(s string) string { return os.ExpandEnv(s) }

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func serverEnabled() bool {
	return Cfg.GetBool("server") && !Cfg.GetBool("no-server")
}

// setLogger returns a logger writing at the configured LogLevel to
// standard error and, if LogFile is set, to a rotating log file.
func setLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return nil, fmt.Errorf("pan3d: invalid LogLevel: %v", err)
	}
	log := logrus.New()
	log.Level = level
	if f := expand(Cfg.GetString("LogFile")); f != "" {
		log.Out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename: f,
			MaxSize:  100, // megabytes
			MaxAge:   28,  // days
		})
		log.WithField("file", f).Info("writing log messages to file")
	}
	return log, nil
}

func newCatalog() *pan3d.Catalog {
	return pan3d.NewCatalog(expand(Cfg.GetString("PangeoCatalog")), Cfg.GetString("ESGFNode"), catalogCacheSize)
}

// LoadBuilder creates a DatasetBuilder, loads the dataset given by the
// dataset_path and source options, and then imports the state saved at
// config_path, if any.
func LoadBuilder(ctx context.Context, log logrus.FieldLogger, catalog *pan3d.Catalog) (*pan3d.DatasetBuilder, error) {
	o := pan3d.NewOpener(expand(Cfg.GetString("CacheDir")), catalog)
	if u := Cfg.GetString("TutorialURL"); u != "" {
		o.TutorialURL = u
	}
	o.Log = log
	b := pan3d.NewDatasetBuilder(o)
	b.Log = log

	if p := expand(Cfg.GetString("dataset_path")); p != "" {
		info := pan3d.DatasetInfo{Source: pan3d.Source(Cfg.GetString("source")), ID: p}
		if err := b.SetDatasetInfo(ctx, info); err != nil {
			return nil, err
		}
	}
	if p := expand(Cfg.GetString("config_path")); p != "" {
		if err := b.ImportConfig(ctx, p); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// newServer attaches a viewer to b and returns its HTTP server and a
// function that releases the viewer.
func newServer(ctx context.Context, b *pan3d.DatasetBuilder, catalog *pan3d.Catalog, log logrus.FieldLogger) (*viewer.Server, func(), error) {
	delay, err := cast.ToDurationE(Cfg.Get("RenderDelay"))
	if err != nil {
		return nil, nil, fmt.Errorf("pan3d: invalid RenderDelay: %v", err)
	}
	opts := []viewer.Option{
		viewer.Logger(log),
		viewer.RenderDelay(delay),
		viewer.Context(ctx),
	}
	if Cfg.GetBool("pangeo") {
		entries, err := catalog.Pangeo(ctx)
		if err != nil {
			log.WithError(err).Warn("pangeo catalog is not available")
		} else {
			opts = append(opts, viewer.AvailableDatasets(viewer.CatalogDatasets(entries)...))
		}
	}
	loop := viewer.NewLoop()
	loop.Log = log
	v := viewer.New(b, loop, opts...)
	release := func() {
		v.Close()
		loop.Stop()
	}
	// LoadBuilder imports config_path before there is a viewer, so the
	// ui and render settings are applied here.
	if p := expand(Cfg.GetString("config_path")); p != "" {
		cfg, err := pan3d.ParseConfig(p)
		if err != nil {
			release()
			return nil, nil, err
		}
		loop.Sync(func() { v.ImportState(cfg.UI, cfg.Render) })
	}
	return viewer.NewServer(v), release, nil
}

// Serve serves a viewer of b at the configured address until ctx is done.
func Serve(ctx context.Context, b *pan3d.DatasetBuilder, catalog *pan3d.Catalog, log logrus.FieldLogger) error {
	s, release, err := newServer(ctx, b, catalog, log)
	if err != nil {
		return err
	}
	defer release()

	ln, err := net.Listen("tcp", Cfg.GetString("address"))
	if err != nil {
		return err
	}
	u := "http://" + ln.Addr().String()
	log.WithField("url", u).Info("serving Pan3D viewer")
	if Cfg.GetBool("open") {
		if err := open.Run(u); err != nil {
			log.WithError(err).Warnf("could not open a browser; please visit %s", u)
		}
	}

	srv := &http.Server{Handler: s}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdown)
	}
}
