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

// Package wrfrunutil contains the command line interface to WRFRun.
package wrfrunutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/wrfrun/wrfrun"
	"github.com/wrfrun/wrfrun/stage"
)

// Cfg holds configuration information.
type Cfg struct {
	*viper.Viper

	// Root is the main command.
	Root *cobra.Command

	// Log is configured from log_level and log_file before a command runs.
	Log *logrus.Logger

	versionCmd, downloadCmd, checkCmd, namelistCmd, wpsCmd, wrfCmd, runCmd *cobra.Command

	// now returns the current time. It is replaced in tests.
	now func() time.Time

	// runner runs the WPS and WRF executables. It is replaced in tests.
	runner stage.Runner

	// client is used for GFS downloads when not nil.
	client *http.Client

	// logFile is the open log_file, if any.
	logFile *os.File
}

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

// InitializeConfig creates the commands and options that make up the
// WRFRun command line interface.
func InitializeConfig() *Cfg {
	cfg := &Cfg{
		Viper: viper.New(),
		Log:   logrus.New(),
		now:   func() time.Time { return time.Now().UTC() },
	}

	cfg.Root = &cobra.Command{
		Use:   "wrfrun",
		Short: "Download GFS data and run the WRF model.",
		Long: `WRFRun downloads the Global Forecast System (GFS) data needed to
initialize a WRF model run, runs the WPS preprocessing programs on it,
and runs the WRF model.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'WRFRUN_var' where 'var' is the
name of the variable to be set. Path variables are additionally
allowed to contain environment variables within them.`,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return cfg.setConfig() },
	}

	cfg.versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  "version prints the version number of this version of WRFRun.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("WRFRun v%s\n", wrfrun.Version)
		},
		DisableAutoGenTag: true,
	}

	cfg.downloadCmd = &cobra.Command{
		Use:   "download",
		Short: "Download GFS data",
		Long: `download resolves the GFS cycle covering the run start date and
downloads every forecast file needed for the run period into gfs_dir.
Files already present are skipped unless gfs_overwrite is set. A manifest
of the batch is written next to the data.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cfg.Download(cmd.Context())
			return err
		},
		DisableAutoGenTag: true,
	}

	cfg.checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Check that GFS data is available",
		Long: `check reports an error listing every GFS file needed for the run
that is missing or empty in gfs_dir.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Check()
		},
		DisableAutoGenTag: true,
	}

	cfg.namelistCmd = &cobra.Command{
		Use:       "namelist {wps|wrf}",
		Short:     "Print a rendered namelist",
		Long:      `namelist prints the namelist.wps or namelist.input file that would be used for the run.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"wps", "wrf"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Namelist(args[0], cmd.OutOrStdout())
		},
		DisableAutoGenTag: true,
	}

	cfg.wpsCmd = &cobra.Command{
		Use:   "wps",
		Short: "Download GFS data and run WPS",
		Long:  "wps downloads and checks the GFS data and then runs the WPS programs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Run(cmd.Context(), ModeWPS)
		},
		DisableAutoGenTag: true,
	}

	cfg.wrfCmd = &cobra.Command{
		Use:   "wrf",
		Short: "Run WRF",
		Long:  "wrf runs real.exe and wrf.exe on the metgrid output of an earlier wps run with the same run_id.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Run(cmd.Context(), ModeWRF)
		},
		DisableAutoGenTag: true,
	}

	cfg.runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline",
		Long: `run runs the pipeline stages selected by the mode option: 'all'
downloads the data and runs WPS and WRF, 'wps' stops after WPS and 'wrf'
only runs WRF.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Run(cmd.Context(), cfg.GetString("mode"))
		},
		DisableAutoGenTag: true,
	}

	// Link the commands together.
	cfg.Root.AddCommand(cfg.versionCmd, cfg.downloadCmd, cfg.checkCmd,
		cfg.namelistCmd, cfg.wpsCmd, cfg.wrfCmd, cfg.runCmd)

	cfg.addOptions(cfg.options())
	return cfg
}

// options returns the configuration options available to WRFRun.
func (cfg *Cfg) options() []option {
	root := cfg.Root.PersistentFlags()
	return []option{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "log_level",
			usage: `
              log_level is the minimum level of log messages that are
              printed: debug, info, warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "log_file",
			usage: `
              log_file specifies a file that log messages are written to
              in addition to standard error.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "start_date",
			usage: `
              start_date is the start of the model run in the format
              2006-01-02_15:04, in UTC.`,
			shorthand:  "s",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "run_date",
			usage: `
              run_date is the date of the model run in the format 2006-01-02.
              Together with hour it is an alternative to start_date.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "hour",
			usage: `
              hour is the start hour of the model run on run_date: 00, 06,
              12 or 18.`,
			defaultVal: "00",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "period",
			usage: `
              period is the length of the model run in days. Fractional
              values are allowed.`,
			shorthand:  "p",
			defaultVal: 3.0,
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "gfs_step",
			usage: `
              gfs_step is the interval between GFS forecast files in hours.`,
			defaultVal: 3,
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "gfs_cycle_interval",
			usage: `
              gfs_cycle_interval is the interval between GFS cycles in hours.`,
			defaultVal: wrfrun.DefaultCycleInterval,
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "gfs_lag",
			usage: `
              gfs_lag is the number of hours after a GFS cycle's reference
              time before its data is assumed to be available.`,
			defaultVal: 4,
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "gfs_url",
			usage: `
              gfs_url is the template of the directory URL holding a GFS
              cycle. YYYY, MM, DD, CC, FFF and RRRR are replaced with the
              cycle year, month, day and hour, the lead time and the resolution.`,
			defaultVal: "https://nomads.ncep.noaa.gov/pub/data/nccf/com/gfs/prod/gfs.YYYYMMDD/CC/atmos/",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "gfs_inv",
			usage: `
              gfs_inv is the template of GFS file names, with the same
              replacements as gfs_url.`,
			defaultVal: "gfs.tCCz.pgrb2.RRRR.fFFF",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "gfs_res",
			usage: `
              gfs_res is the GFS grid resolution substituted for RRRR.`,
			defaultVal: "0p50",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "gfs_threads",
			usage: `
              gfs_threads is the number of files downloaded at the same time.`,
			shorthand:  "t",
			defaultVal: 8,
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "gfs_retries",
			usage: `
              gfs_retries is the number of times a failed download is retried.`,
			defaultVal: 5,
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "gfs_delay",
			usage: `
              gfs_delay is the wait between download attempts in seconds.`,
			defaultVal: 60,
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "gfs_timeout",
			usage: `
              gfs_timeout is the time limit for a single download attempt
              in seconds. 0 means no limit.`,
			defaultVal: 600,
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "gfs_overwrite",
			usage: `
              gfs_overwrite specifies whether files already present in
              gfs_dir are downloaded again.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "gfs_dir",
			usage: `
              gfs_dir is the directory GFS files are downloaded into. It
              defaults to ${nfs_dir}/gfs.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "gfs_cache",
			usage: `
              gfs_cache optionally specifies a directory or blob storage
              location (e.g. gs://bucket/gfs) shared between runs. Files
              found there are not downloaded again and downloaded files
              are stored there.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "gfs_clean",
			usage: `
              gfs_clean specifies whether gfs_dir is deleted once WPS has
              finished with it.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "wrf_home",
			usage: `
              wrf_home is the directory containing the WPS and WRFV3
              installations.`,
			defaultVal: "${HOME}/wrf",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "nfs_dir",
			usage: `
              nfs_dir is the shared directory that results are written to.`,
			defaultVal: "${HOME}/wrf/nfs",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "archive_dir",
			usage: `
              archive_dir is the directory or blob storage location that
              the full WRF output is archived to.`,
			defaultVal: "${HOME}/wrf/archive",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "geog_dir",
			usage: `
              geog_dir is the WPS static geography data directory.`,
			defaultVal: "${HOME}/wrf/geog",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "procs",
			usage: `
              procs is the number of MPI processes for real.exe and wrf.exe.`,
			defaultVal: 4,
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "domains",
			usage: `
              domains is the number of nested domains in namelist.wps. geogrid.exe
              is skipped when geo_em files for all of them already exist.`,
			defaultVal: 3,
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "run_id",
			usage: `
              run_id names the run's output directories. By default it is
              derived from the start date and a hash of the run options.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "vtable",
			usage: `
              vtable is the ungrib variable table linked into the WPS
              directory when no Vtable is present.`,
			defaultVal: stage.DefaultVtable,
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "namelist_wps",
			usage: `
              namelist_wps is the namelist.wps template. The built-in
              template is used if the file does not exist.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "namelist_input",
			usage: `
              namelist_input is the namelist.input template. The built-in
              template is used if the file does not exist.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "namelist_wps_dict",
			usage: `
              namelist_wps_dict holds extra or overriding namelist.wps
              template values.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "namelist_input_dict",
			usage: `
              namelist_input_dict holds extra or overriding namelist.input
              template values, e.g. {"hi1": "60"}.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{root},
		},
		{
			name: "mode",
			usage: `
              mode selects the stages of the run command: all, wps or wrf.`,
			shorthand:  "m",
			defaultVal: ModeAll,
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
	}
}

// addOptions creates a flag for each option and binds it to the
// configuration.
func (cfg *Cfg) addOptions(options []option) {
	// Set the prefix for configuration environment variables.
	cfg.SetEnvPrefix("WRFRUN")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(v)
				set.StringP(option.name, option.shorthand, strings.TrimSpace(b.String()), option.usage)
			default:
				panic("invalid argument type")
			}
			cfg.BindPFlag(option.name, set.Lookup(option.name))
			cfg.BindEnv(option.name)
		}
	}
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets up logging.
func (cfg *Cfg) setConfig() error {
	if cfgpath := cfg.GetString("config"); cfgpath != "" {
		cfg.SetConfigFile(expand(cfgpath))
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("wrfrun: problem reading configuration file: %v", err)
		}
	}
	return cfg.setLogging()
}
