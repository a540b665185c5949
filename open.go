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
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
)

// DefaultTutorialURL is the location of the xarray tutorial datasets.
const DefaultTutorialURL = "https://github.com/pydata/xarray-data/raw/master"

// TutorialDatasets lists the xarray tutorial datasets offered to users.
var TutorialDatasets = []string{
	"air_temperature",
	"basin_mask",
	"eraint_uvz",
	"rasm",
	"ROMS_example",
	"tiny",
}

// Opener loads datasets identified by a DatasetInfo.
type Opener struct {
	// CacheDir holds downloaded files. It defaults to a directory
	// under os.TempDir.
	CacheDir string

	// TutorialURL is the base URL of the tutorial datasets.
	TutorialURL string

	// Catalog resolves pangeo and ESGF identifiers.
	Catalog *Catalog

	Client *http.Client
	Log    logrus.FieldLogger

	downloads *requestcache.Cache
}

// NewOpener returns an Opener that stores downloads in cacheDir.
func NewOpener(cacheDir string, catalog *Catalog) *Opener {
	o := &Opener{
		CacheDir:    cacheDir,
		TutorialURL: DefaultTutorialURL,
		Catalog:     catalog,
		Client:      http.DefaultClient,
		Log:         logrus.StandardLogger(),
	}
	// Concurrent requests for the same file share one download.
	// Failures travel inside the result: a request that fails in the
	// processor would leave its duplicates waiting.
	o.downloads = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
		p, err := o.maybeDownload(ctx, request.(string))
		return downloadResult{path: p, err: err}, nil
	}, 2, requestcache.Deduplicate())
	return o
}

type downloadResult struct {
	path string
	err  error
}

func (o *Opener) log() logrus.FieldLogger {
	if o.Log == nil {
		return logrus.StandardLogger()
	}
	return o.Log
}

func (o *Opener) client() *http.Client {
	if o.Client == nil {
		return http.DefaultClient
	}
	return o.Client
}

func (o *Opener) cacheDir() string {
	if o.CacheDir == "" {
		return filepath.Join(os.TempDir(), "pan3d")
	}
	return o.CacheDir
}

func (o *Opener) download(ctx context.Context, p string) (string, error) {
	if o.downloads == nil {
		return o.maybeDownload(ctx, p)
	}
	result, err := o.downloads.NewRequest(ctx, p, p).Result()
	if err != nil {
		return "", err
	}
	r := result.(downloadResult)
	return r.path, r.err
}

// Open loads the dataset identified by info.
func (o *Opener) Open(ctx context.Context, info DatasetInfo) (*Dataset, error) {
	o.log().WithFields(logrus.Fields{
		"source": info.Source,
		"id":     info.ID,
	}).Info("opening dataset")
	switch info.Source {
	case SourceDefault, "":
		return o.OpenPath(ctx, info.ID)
	case SourceXarray:
		return o.openTutorial(ctx, info.ID)
	case SourcePangeo, SourceESGF:
		if o.Catalog == nil {
			return nil, fmt.Errorf("pan3d: no catalog is configured for %s datasets", info.Source)
		}
		u, err := o.Catalog.Lookup(ctx, info.Source, info.ID)
		if err != nil {
			return nil, err
		}
		return o.OpenPath(ctx, u)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, info.Source)
}

// OpenPath opens a dataset from a local path, an http(s) URL or a blob
// path. Paths ending in .zarr are opened as Zarr stores and other files
// are downloaded if necessary and opened according to their content.
func (o *Opener) OpenPath(ctx context.Context, p string) (*Dataset, error) {
	if isZarr(p) {
		s, err := o.zarrStore(ctx, p)
		if err != nil {
			return nil, err
		}
		return OpenZarr(ctx, s)
	}
	local, err := o.download(ctx, p)
	if err != nil {
		return nil, err
	}
	return openFile(local)
}

func isZarr(p string) bool {
	p = strings.TrimSuffix(p, "/")
	if strings.HasSuffix(p, ".zarr") {
		return true
	}
	if fi, err := os.Stat(p); err == nil && fi.IsDir() {
		for _, f := range []string{".zmetadata", ".zgroup"} {
			if _, err := os.Stat(filepath.Join(p, f)); err == nil {
				return true
			}
		}
	}
	return false
}

func (o *Opener) zarrStore(ctx context.Context, p string) (Store, error) {
	switch {
	case IsURL(p):
		return &HTTPStore{URL: p, Client: o.client()}, nil
	case IsBlob(p):
		bucketName, key, err := splitBlob(strings.TrimSuffix(p, "/"))
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(p, "file://") {
			// Open the store directory itself as the bucket.
			bucketName, key = bucketName+"/"+key, ""
		}
		b, err := OpenBucket(ctx, bucketName)
		if err != nil {
			return nil, err
		}
		return &BlobStore{Bucket: b, Prefix: key}, nil
	}
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("pan3d: opening zarr store: %w", err)
	}
	return DirStore(p), nil
}

// openFile opens a local file according to its leading bytes.
func openFile(p string) (*Dataset, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("pan3d: opening dataset: %w", err)
	}
	magic := make([]byte, 4)
	_, err = io.ReadFull(f, magic)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("pan3d: reading %s: %w", p, err)
	}
	switch {
	case string(magic[:3]) == "CDF" && (magic[3] == 1 || magic[3] == 2):
		return OpenNetCDF(p)
	case string(magic[1:4]) == "HDF":
		return nil, fmt.Errorf("pan3d: %s is a NetCDF4/HDF5 file, which is not supported; convert it to classic NetCDF or Zarr", p)
	}
	return nil, fmt.Errorf("pan3d: %s is not a NetCDF or Zarr dataset", p)
}

// openTutorial downloads (if necessary) and opens a named tutorial dataset.
func (o *Opener) openTutorial(ctx context.Context, name string) (*Dataset, error) {
	base := o.TutorialURL
	if base == "" {
		base = DefaultTutorialURL
	}
	if filepath.Ext(name) == "" {
		name += ".nc"
	}
	dst := filepath.Join(o.cacheDir(), "xarray_tutorial_data", name)
	if _, err := os.Stat(dst); err != nil {
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return nil, fmt.Errorf("pan3d: creating tutorial directory: %w", err)
		}
		u := strings.TrimSuffix(base, "/") + "/" + name
		if err := o.downloadHTTP(ctx, u, dst); err != nil {
			os.Remove(dst)
			return nil, err
		}
	}
	return openFile(dst)
}
