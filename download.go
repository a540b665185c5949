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
	"io/ioutil"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/pan3d/internal/hash"
)

// IsURL returns whether p is an http or https URL.
func IsURL(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// maybeDownload checks if the input is an existing local file. If not,
// and it is a URL or blob path, it downloads the file into the cache
// directory and returns the path to the downloaded file. Files that
// have already been downloaded are not fetched again.
func (o *Opener) maybeDownload(ctx context.Context, p string) (string, error) {
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	if !IsURL(p) && !IsBlob(p) {
		return "", fmt.Errorf("pan3d: dataset file %s does not exist", p)
	}
	dir := filepath.Join(o.cacheDir(), "downloads", hash.Hash(p))
	dst := filepath.Join(dir, path.Base(strings.SplitN(p, "?", 2)[0]))
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("pan3d: creating download directory: %w", err)
	}
	var err error
	if IsURL(p) {
		err = o.downloadHTTP(ctx, p, dst)
	} else {
		err = o.downloadBlob(ctx, p, dst)
	}
	if err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

// downloadHTTP downloads the file at url to dst.
func (o *Opener) downloadHTTP(ctx context.Context, url, dst string) error {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return fmt.Errorf("pan3d: downloading %s: %w", url, err)
	}
	resp, err := o.client().Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("pan3d: downloading %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pan3d: downloading %s: %s", url, resp.Status)
	}
	return o.writeDownload(url, dst, resp.Body)
}

// downloadBlob downloads the specified file from blob storage to dst.
func (o *Opener) downloadBlob(ctx context.Context, p, dst string) error {
	bucketName, key, err := splitBlob(p)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return err
	}
	defer bucket.Close()
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("pan3d: downloading %s: %w", p, err)
	}
	defer r.Close()
	return o.writeDownload(p, dst, r)
}

// writeDownload copies r to dst through a temporary file in the same
// directory, so dst only exists once the download is complete.
func (o *Opener) writeDownload(src, dst string, r io.Reader) error {
	w, err := ioutil.TempFile(filepath.Dir(dst), filepath.Base(dst)+".part")
	if err != nil {
		return fmt.Errorf("pan3d: creating file for download: %w", err)
	}
	n, err := io.Copy(w, r)
	if err != nil {
		w.Close()
		os.Remove(w.Name())
		return fmt.Errorf("pan3d: downloading %s: %w", src, err)
	}
	if err := w.Close(); err != nil {
		os.Remove(w.Name())
		return err
	}
	if err := os.Rename(w.Name(), dst); err != nil {
		os.Remove(w.Name())
		return fmt.Errorf("pan3d: saving download: %w", err)
	}
	o.log().WithFields(logrus.Fields{
		"source": src,
		"file":   dst,
		"size":   humanize.Bytes(uint64(n)),
	}).Info("downloaded dataset")
	return nil
}
