/*
Copyright © 2019 the WRFRun authors.
This file is part of WRFRun.

WRFRun is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

WRFRun is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with WRFRun.  If not, see <http://www.gnu.org/licenses/>.
*/

package wrfrunutil

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wrfrun/wrfrun"
	"github.com/wrfrun/wrfrun/cloud"
	"github.com/wrfrun/wrfrun/internal/fileutil"
)

// batch is a resolved and downloaded set of GFS files.
type batch struct {
	config   *wrfrun.RunConfig
	cycle    wrfrun.ResolvedCycle
	items    []wrfrun.WorkItem
	manifest *Manifest
}

// Download downloads the GFS files for the run into gfs_dir and writes
// a manifest of the results next to them. The returned error is a
// *wrfrun.BatchFetchError if any file could not be downloaded.
func (cfg *Cfg) Download(ctx context.Context) (*Manifest, error) {
	b, err := cfg.download(ctx)
	if b == nil {
		return nil, err
	}
	return b.manifest, err
}

func (cfg *Cfg) download(ctx context.Context) (*batch, error) {
	rc, err := cfg.RunConfig()
	if err != nil {
		return nil, err
	}
	cycle, items, err := rc.Inventory(cfg.now())
	if err != nil {
		return nil, err
	}
	batchID := uuid.NewString()
	log := cfg.Log.WithFields(logrus.Fields{"cycle": cycle.String(), "batch": batchID})
	log.Infof("the following %d files will be downloaded with %d parallel downloads", len(items), rc.Concurrency)
	for _, item := range items {
		log.Info(item.String())
	}
	if _, err := fileutil.EnsureDir(rc.DestinationDir); err != nil {
		return nil, err
	}

	f := &wrfrun.Fetcher{
		Client:    cfg.httpClient(),
		Retries:   rc.Retries,
		Delay:     rc.RetryDelay,
		Overwrite: rc.Overwrite,
		Log:       log,
	}
	if rc.SecondaryCache != "" {
		c, err := cloud.OpenCache(ctx, rc.SecondaryCache)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		f.Cache = c
	}

	outcomes, fetchErr := wrfrun.FetchAll(ctx, items, f, rc.Concurrency)
	b := &batch{
		config:   rc,
		cycle:    cycle,
		items:    items,
		manifest: NewManifest(batchID, cycle, outcomes, cfg.now()),
	}
	path := ManifestPath(rc.DestinationDir, cycle)
	if err := b.manifest.Write(path); err != nil {
		if fetchErr == nil {
			return b, err
		}
		log.WithError(err).Warn("writing manifest")
		log.WithFields(toFields(b.manifest.Summary)).Info("download finished")
	} else {
		log.WithFields(toFields(b.manifest.Summary)).Infof("download finished; manifest written to %s", path)
	}
	if fetchErr != nil {
		log.WithError(fetchErr).Error("some files could not be downloaded")
	}
	return b, fetchErr
}

func toFields(m map[string]int) logrus.Fields {
	o := make(logrus.Fields, len(m))
	for k, v := range m {
		o[k] = v
	}
	return o
}

func (cfg *Cfg) httpClient() *http.Client {
	if cfg.client != nil {
		return cfg.client
	}
	return &http.Client{Timeout: time.Duration(cfg.GetInt("gfs_timeout")) * time.Second}
}

// Check returns a *wrfrun.MissingDataError if any GFS file needed for the
// run is missing from gfs_dir.
func (cfg *Cfg) Check() error {
	rc, err := cfg.RunConfig()
	if err != nil {
		return err
	}
	cycle, items, err := rc.Inventory(cfg.now())
	if err != nil {
		return err
	}
	if err := wrfrun.CheckInventory(items); err != nil {
		return err
	}
	cfg.Log.WithField("cycle", cycle.String()).Infof("all %d GFS files are available", len(items))
	return nil
}
