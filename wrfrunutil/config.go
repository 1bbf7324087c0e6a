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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"github.com/wrfrun/wrfrun"
	"github.com/wrfrun/wrfrun/internal/hash"
	"github.com/wrfrun/wrfrun/stage"
)

// Run modes.
const (
	ModeAll = "all"
	ModeWPS = "wps"
	ModeWRF = "wrf"
)

// expand expands environment variables in a path.
func expand(s string) string { return os.ExpandEnv(s) }

// StartDate returns the start of the run, from start_date or from
// run_date and hour.
func (cfg *Cfg) StartDate() (time.Time, error) {
	if s := cfg.GetString("start_date"); s != "" {
		t, err := time.Parse(wrfrun.StartDateLayout, s)
		if err != nil {
			return t, &wrfrun.ConfigError{Field: "start_date",
				Reason: fmt.Sprintf("%q is not in the format %s", s, wrfrun.StartDateLayout)}
		}
		return t, nil
	}
	d := cfg.GetString("run_date")
	if d == "" {
		return time.Time{}, &wrfrun.ConfigError{Field: "start_date", Reason: "either start_date or run_date must be set"}
	}
	h, err := checkHour(cfg.GetString("hour"))
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(wrfrun.StartDateLayout, d+"_"+h+":00")
	if err != nil {
		return t, &wrfrun.ConfigError{Field: "run_date",
			Reason: fmt.Sprintf("%q is not in the format 2006-01-02", d)}
	}
	return t, nil
}

// checkHour makes sure the hour is one of the GFS cycle hours.
func checkHour(h string) (string, error) {
	switch h {
	case "00", "06", "12", "18":
		return h, nil
	case "0", "6":
		return "0" + h, nil
	}
	return h, &wrfrun.ConfigError{Field: "hour", Reason: fmt.Sprintf("must be 00, 06, 12 or 18 but is %q", h)}
}

// checkMode makes sure the run mode is valid.
func checkMode(mode string) (string, error) {
	switch mode {
	case ModeAll, ModeWPS, ModeWRF:
		return mode, nil
	case "":
		return ModeAll, nil
	}
	return mode, &wrfrun.ConfigError{Field: "mode", Reason: fmt.Sprintf("must be all, wps or wrf but is %q", mode)}
}

// GFSDir returns the GFS download directory, defaulting to ${nfs_dir}/gfs.
func (cfg *Cfg) GFSDir() string {
	if d := cfg.GetString("gfs_dir"); d != "" {
		return expand(d)
	}
	return filepath.Join(expand(cfg.GetString("nfs_dir")), "gfs")
}

// RunConfig returns the GFS data acquisition settings.
func (cfg *Cfg) RunConfig() (*wrfrun.RunConfig, error) {
	start, err := cfg.StartDate()
	if err != nil {
		return nil, err
	}
	c := &wrfrun.RunConfig{
		StartDate:         start,
		Period:            cfg.GetFloat64("period"),
		Step:              cfg.GetInt("gfs_step"),
		CycleInterval:     cfg.GetInt("gfs_cycle_interval"),
		LagHours:          cfg.GetInt("gfs_lag"),
		RemoteTemplate:    cfg.GetString("gfs_url"),
		InventoryTemplate: cfg.GetString("gfs_inv"),
		Resolution:        cfg.GetString("gfs_res"),
		Concurrency:       cfg.GetInt("gfs_threads"),
		Retries:           cfg.GetInt("gfs_retries"),
		RetryDelay:        time.Duration(cfg.GetInt("gfs_delay")) * time.Second,
		Overwrite:         cfg.GetBool("gfs_overwrite"),
		DestinationDir:    cfg.GFSDir(),
		SecondaryCache:    expand(cfg.GetString("gfs_cache")),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// RunID returns the configured run_id, or one made up of the start date
// and a hash of the options that define the run.
func (cfg *Cfg) RunID(start time.Time) (string, error) {
	if id := cfg.GetString("run_id"); id != "" {
		return id, nil
	}
	wpsDict, err := cfg.GetStringMapString("namelist_wps_dict")
	if err != nil {
		return "", err
	}
	inputDict, err := cfg.GetStringMapString("namelist_input_dict")
	if err != nil {
		return "", err
	}
	key := map[string]interface{}{
		"start_date":          start.Format(wrfrun.StartDateLayout),
		"period":              cfg.GetFloat64("period"),
		"gfs_url":             cfg.GetString("gfs_url"),
		"gfs_inv":             cfg.GetString("gfs_inv"),
		"gfs_res":             cfg.GetString("gfs_res"),
		"gfs_step":            cfg.GetInt("gfs_step"),
		"procs":               cfg.GetInt("procs"),
		"vtable":              cfg.GetString("vtable"),
		"namelist_wps":        cfg.GetString("namelist_wps"),
		"namelist_input":      cfg.GetString("namelist_input"),
		"namelist_wps_dict":   wpsDict,
		"namelist_input_dict": inputDict,
	}
	return "wrf_" + start.Format("20060102_1504") + "_" + hash.Short(key, 8), nil
}

// Model returns the settings for running WPS and WRF. gfsPrefix is the
// prefix of the downloaded GFS files.
func (cfg *Cfg) Model(gfsPrefix string) (*stage.Model, error) {
	start, err := cfg.StartDate()
	if err != nil {
		return nil, err
	}
	runID, err := cfg.RunID(start)
	if err != nil {
		return nil, err
	}
	wpsDict, err := cfg.GetStringMapString("namelist_wps_dict")
	if err != nil {
		return nil, err
	}
	inputDict, err := cfg.GetStringMapString("namelist_input_dict")
	if err != nil {
		return nil, err
	}
	procs := cfg.GetInt("procs")
	if procs < 1 {
		return nil, &wrfrun.ConfigError{Field: "procs", Reason: fmt.Sprintf("must be >= 1 but is %d", procs)}
	}
	domains := cfg.GetInt("domains")
	if domains < 1 {
		return nil, &wrfrun.ConfigError{Field: "domains", Reason: fmt.Sprintf("must be >= 1 but is %d", domains)}
	}
	period := cfg.GetFloat64("period")
	if !(period > 0) {
		return nil, &wrfrun.ConfigError{Field: "period", Reason: fmt.Sprintf("must be > 0 but is %g", period)}
	}
	m := &stage.Model{
		WRFHome:       expand(cfg.GetString("wrf_home")),
		NFSDir:        expand(cfg.GetString("nfs_dir")),
		ArchiveDir:    expand(cfg.GetString("archive_dir")),
		GeogDir:       expand(cfg.GetString("geog_dir")),
		GFSPrefix:     gfsPrefix,
		Vtable:        cfg.GetString("vtable"),
		RunID:         runID,
		Procs:         procs,
		Domains:       domains,
		StartDate:     start,
		Period:        period,
		NamelistWPS:   expand(cfg.GetString("namelist_wps")),
		NamelistInput: expand(cfg.GetString("namelist_input")),
		WPSValues:     wpsDict,
		InputValues:   inputDict,
		Runner:        cfg.runner,
		Log:           cfg.Log,
	}
	for name, dir := range map[string]string{"wrf_home": m.WRFHome, "nfs_dir": m.NFSDir, "archive_dir": m.ArchiveDir} {
		if dir == "" {
			return nil, &wrfrun.ConfigError{Field: name, Reason: "must be set"}
		}
	}
	return m, nil
}

// GetStringMapString returns a map[string]string from the configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument or environment variable.
func (cfg *Cfg) GetStringMapString(varName string) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if v == "" {
			return o, nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		if err := d.Decode(&o); err != nil {
			return nil, &wrfrun.ConfigError{Field: varName, Reason: fmt.Sprintf("invalid JSON object: %v", err)}
		}
		return o, nil
	default:
		return nil, &wrfrun.ConfigError{Field: varName, Reason: fmt.Sprintf("invalid type %T", i)}
	}
}
