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
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
)

// DefaultESGFNode is the ESGF index node queried when none is configured.
const DefaultESGFNode = "https://esgf-node.llnl.gov"

// CatalogEntry is a dataset offered to users for selection.
type CatalogEntry struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MoreInfo string `json:"more_info,omitempty"`
}

// Catalog resolves dataset identifiers from the pangeo catalog and the
// ESGF search API. Successful lookups are cached.
type Catalog struct {
	// PangeoURL is the location of a JSON document listing
	// CatalogEntry values.
	PangeoURL string

	// ESGFNode is the base URL of an ESGF index node.
	ESGFNode string

	Client *http.Client
	Log    logrus.FieldLogger

	cache *requestcache.Cache
}

type catalogRequest struct {
	source Source
	id     string
}

// NewCatalog returns a catalog that caches up to cacheSize lookups.
func NewCatalog(pangeoURL, esgfNode string, cacheSize int) *Catalog {
	if esgfNode == "" {
		esgfNode = DefaultESGFNode
	}
	c := &Catalog{
		PangeoURL: pangeoURL,
		ESGFNode:  esgfNode,
		Client:    http.DefaultClient,
		Log:       logrus.StandardLogger(),
	}
	c.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(catalogRequest)
		switch r.source {
		case SourcePangeo:
			return c.fetchPangeo(ctx)
		case SourceESGF:
			return c.searchESGF(ctx, r.id)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, r.source)
	}, 2, requestcache.Memory(cacheSize))
	return c
}

// Pangeo returns the entries of the pangeo catalog.
func (c *Catalog) Pangeo(ctx context.Context) ([]CatalogEntry, error) {
	if c.PangeoURL == "" {
		return nil, fmt.Errorf("pan3d: no pangeo catalog is configured")
	}
	r := c.cache.NewRequest(ctx, catalogRequest{source: SourcePangeo}, "pangeo")
	result, err := r.Result()
	if err != nil {
		return nil, err
	}
	return result.([]CatalogEntry), nil
}

// Lookup returns the URL of the dataset identified by id in the catalog
// for source.
func (c *Catalog) Lookup(ctx context.Context, source Source, id string) (string, error) {
	switch source {
	case SourcePangeo:
		entries, err := c.Pangeo(ctx)
		if err != nil {
			return "", err
		}
		for _, e := range entries {
			if e.Name == id || e.URL == id {
				return e.URL, nil
			}
		}
		return "", fmt.Errorf("%w: %q in pangeo catalog", ErrNotFound, id)
	case SourceESGF:
		r := c.cache.NewRequest(ctx, catalogRequest{source: SourceESGF, id: id}, "esgf:"+id)
		result, err := r.Result()
		if err != nil {
			return "", err
		}
		return result.(string), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, source)
}

// MoreInfo returns the more_info link of the pangeo catalog entry whose
// URL is u, or "".
func (c *Catalog) MoreInfo(ctx context.Context, u string) string {
	if c == nil || c.PangeoURL == "" {
		return ""
	}
	entries, err := c.Pangeo(ctx)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.URL == u || e.Name == u {
			return e.MoreInfo
		}
	}
	return ""
}

func (c *Catalog) getJSON(ctx context.Context, u string, v interface{}) error {
	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return err
	}
	resp, err := c.Client.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pan3d: requesting %s: %s", u, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Catalog) fetchPangeo(ctx context.Context) ([]CatalogEntry, error) {
	var entries []CatalogEntry
	if err := c.getJSON(ctx, c.PangeoURL, &entries); err != nil {
		return nil, fmt.Errorf("pan3d: reading pangeo catalog: %w", err)
	}
	c.Log.WithFields(logrus.Fields{
		"catalog": c.PangeoURL,
		"entries": len(entries),
	}).Info("loaded pangeo catalog")
	return entries, nil
}

// esgfResponse is the part of an ESGF search result that is used.
type esgfResponse struct {
	Response struct {
		NumFound int `json:"numFound"`
		Docs     []struct {
			URL []string `json:"url"`
		} `json:"docs"`
	} `json:"response"`
}

// searchESGF finds a file of the ESGF dataset with the given id and
// returns its HTTPServer download URL.
func (c *Catalog) searchESGF(ctx context.Context, id string) (string, error) {
	q := url.Values{}
	q.Set("type", "File")
	q.Set("format", "application/solr+json")
	q.Set("limit", "1")
	q.Set("dataset_id", id)
	u := strings.TrimSuffix(c.ESGFNode, "/") + "/esg-search/search?" + q.Encode()
	var r esgfResponse
	if err := c.getJSON(ctx, u, &r); err != nil {
		return "", fmt.Errorf("pan3d: searching ESGF: %w", err)
	}
	for _, d := range r.Response.Docs {
		for _, entry := range d.URL {
			// Entries are formatted "url|mime type|service".
			parts := strings.Split(entry, "|")
			if len(parts) == 3 && parts[2] == "HTTPServer" {
				return parts[0], nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q in ESGF", ErrNotFound, id)
}
