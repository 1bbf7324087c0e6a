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
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/wrfrun/wrfrun"
	"github.com/wrfrun/wrfrun/internal/fileutil"
)

// Manifest records the result of a download batch.
type Manifest struct {
	Batch       string         `toml:"batch"`
	Date        string         `toml:"date"`
	Cycle       string         `toml:"cycle"`
	StartOffset int            `toml:"start_offset"`
	Created     time.Time      `toml:"created"`
	Summary     map[string]int `toml:"summary"`
	Items       []ManifestItem `toml:"item"`
}

// ManifestItem is the outcome of downloading one file.
type ManifestItem struct {
	Locator  string `toml:"locator"`
	Path     string `toml:"path"`
	LeadTime int    `toml:"lead_time"`
	Status   string `toml:"status"`
	Attempts int    `toml:"attempts"`
	Error    string `toml:"error,omitempty"`
}

// NewManifest summarizes the outcomes of the batch called batch for cycle.
func NewManifest(batch string, cycle wrfrun.ResolvedCycle, outcomes []wrfrun.FetchOutcome, created time.Time) *Manifest {
	m := &Manifest{
		Batch:       batch,
		Date:        cycle.DateString(),
		Cycle:       cycle.HourString(),
		StartOffset: cycle.StartOffset,
		Created:     created,
		Summary:     make(map[string]int),
	}
	for status, n := range wrfrun.Summary(outcomes) {
		m.Summary[status.String()] = n
	}
	for _, o := range outcomes {
		item := ManifestItem{
			Locator:  o.Item.RemoteLocator,
			Path:     o.Item.LocalPath,
			LeadTime: o.Item.LeadTime,
			Status:   o.Status.String(),
			Attempts: o.Attempts,
		}
		if o.Err != nil {
			item.Error = o.Err.Error()
		}
		m.Items = append(m.Items, item)
	}
	return m
}

// ManifestPath returns the manifest file for cycle in dir.
func ManifestPath(dir string, cycle wrfrun.ResolvedCycle) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s.manifest.toml", cycle.DateString(), cycle.HourString()))
}

// Write writes the manifest to path.
func (m *Manifest) Write(path string) error {
	var b bytes.Buffer
	if err := toml.NewEncoder(&b).Encode(m); err != nil {
		return fmt.Errorf("wrfrun: encoding manifest: %v", err)
	}
	return fileutil.WriteAtomic(path, &b, false)
}

// ReadManifest reads a manifest written by Write.
func ReadManifest(path string) (*Manifest, error) {
	m := new(Manifest)
	if _, err := toml.DecodeFile(path, m); err != nil {
		return nil, fmt.Errorf("wrfrun: reading manifest: %v", err)
	}
	return m, nil
}
