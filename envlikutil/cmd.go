/*
Copyright © 2019 the envlik authors.
This file is part of envlik.

envlik is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

envlik is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with envlik.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package envlikutil holds the command-line interface and configuration
// handling of envlik.
package envlikutil

import (
	"fmt"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/envlik"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to envlik.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Mode",
			usage: `
              Mode specifies how tag records are matched to the reference
              data. It can be "sst" (surface temperature), "profile"
              (temperature at depth), or "ohc" (ocean heat content).`,
			shorthand:  "m",
			defaultVal: "sst",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "TagFile",
			usage: `
              TagFile is the path to a CSV file of tag records with the
              columns time, depth, min, and max. Records with an empty
              depth are surface records. The path can be a local file,
              an http(s) URL, or a blob storage URL.`,
			defaultVal: "${ENVLIK_DATA}/tag.csv",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Reference.FileTemplate",
			usage: `
              Reference.FileTemplate is the path to the daily NetCDF reference
              files, where the wildcard [DATE] is replaced by the date of
              each file formatted as Reference.DateFormat.`,
			defaultVal: "${ENVLIK_DATA}/reference_[DATE].nc",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Reference.DateFormat",
			usage: `
              Reference.DateFormat is the Go time layout of the date in the
              reference file names.`,
			defaultVal: "20060102",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Reference.StartDate",
			usage: `
              Reference.StartDate is the first date (YYYY-MM-DD) searched for
              reference files. The default is the first date of the run.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Reference.EndDate",
			usage: `
              Reference.EndDate is the last date (YYYY-MM-DD) searched for
              reference files. The default is the last date of the run.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Reference.ValueVar",
			usage: `
              Reference.ValueVar is the name of the reference variable, which
              is dimensioned [depth, lat, lon] or [lat, lon].`,
			defaultVal: "temp",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Reference.LonVar",
			usage: `
              Reference.LonVar is the name of the longitude coordinate variable.`,
			defaultVal: "lon",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Reference.LatVar",
			usage: `
              Reference.LatVar is the name of the latitude coordinate variable.`,
			defaultVal: "lat",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Reference.DepthVar",
			usage: `
              Reference.DepthVar is the name of the depth coordinate variable [m].`,
			defaultVal: "depth",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Reference.CacheSize",
			usage: `
              Reference.CacheSize is the number of reference fields kept in
              memory after they are read.`,
			defaultVal: 4,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Reference.Retries",
			usage: `
              Reference.Retries is the number of times a failed reference read
              is retried before the day is given up.`,
			defaultVal: 3,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "DateStart",
			usage: `
              DateStart is the first date (YYYY-MM-DD) of the output. If it is
              empty, the date of the first tag record is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "DateEnd",
			usage: `
              DateEnd is the last date (YYYY-MM-DD) of the output. If it is
              empty, the date of the last tag record is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Window",
			usage: `
              Window is the edge length in grid cells of the neighbourhood
              used to calculate spatial variability. Even values are rounded
              up. If it is 0, a window spanning about a quarter degree of
              latitude is used.`,
			shorthand:  "w",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "SensorError",
			usage: `
              SensorError is the tag temperature sensor error [%]. It widens
              the observed interval in sst mode.`,
			defaultVal: envlik.DefaultSensorError,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Isotherm",
			usage: `
              Isotherm is the baseline temperature [°C] of heat content
              calculations. If it is empty, the coldest observed temperature
              of each day is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OHCBias",
			usage: `
              OHCBias is subtracted from heat content likelihoods before they
              are normalized.`,
			defaultVal: envlik.DefaultOHCBias,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Bathymetry",
			usage: `
              Bathymetry specifies whether to exclude cells where the
              variable MaskVar is missing at every depth, which is typically
              land or seafloor.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "MaskVar",
			usage: `
              MaskVar is the reference variable used to find cells to exclude
              when Bathymetry is true. If it is empty, Reference.ValueVar
              is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "MaskFile",
			usage: `
              MaskFile is the path to a GeoJSON polygon. Grid cells whose
              centres are inside the polygon are excluded from the output.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Workers",
			usage: `
              Workers is the number of days processed concurrently. If it is
              0, the number of available processors is used.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "FetchTimeout",
			usage: `
              FetchTimeout is the longest time that reading the reference data
              for a single day is allowed to take.`,
			defaultVal: envlik.DefaultFetchTimeout.String(),
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path where the NetCDF likelihood output should
              be written.`,
			shorthand:  "o",
			defaultVal: "envlik_output.nc",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags()},
		},
		{
			name: "StatusFile",
			usage: `
              StatusFile is the path where the TOML manifest of the status
              of each day should be written. If it is empty, it is written
              next to OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. It can
              include environment variables. If LogFile is left blank,
              the logfile will be saved in the same location as the
              OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "slot",
			usage: `
              slot is the index of the day to plot.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{plotCmd.Flags()},
		},
		{
			name: "PlotFile",
			usage: `
              PlotFile is the path where the PNG image should be written. If
              it is empty, the image is written next to OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{plotCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("ENVLIK")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(plotCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("envlik: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "envlik",
	Short: "Likelihood surfaces of animal location from environmental data.",
	Long: `envlik compares the temperatures recorded by an archival tag with gridded
environmental reference data to produce, for each day, a normalized surface of
the likelihood that the animal was in each grid cell.
Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'ENVLIK_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of envlik.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("envlik v%s\n", envlik.Version)
	},
	DisableAutoGenTag: true,
}

// runCmd calculates the likelihood surfaces.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Calculate daily likelihood surfaces.",
	Long: `run matches the tag records in TagFile with the reference data in
Reference.FileTemplate and writes a NetCDF file with one normalized likelihood
surface per day to OutputFile, along with a manifest of the status of each day.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outChan := outChan(cmd)
		defer close(outChan)
		o, err := runOptions(cmd.Context(), Cfg, outChan)
		if err != nil {
			return err
		}
		return Run(cmd.Context(), cmd.ErrOrStderr(), o)
	},
	DisableAutoGenTag: true,
}

// plotCmd draws one day of an output file.
var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Plot one day of a likelihood output file.",
	Long: `plot draws the likelihood surface of day --slot of OutputFile as a
PNG heat map and saves it to PlotFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outChan := outChan(cmd)
		defer close(outChan)
		outputFile := expand(Cfg.GetString("OutputFile"))
		slot := Cfg.GetInt("slot")
		plotFile := checkSideFile(expand(Cfg.GetString("PlotFile")), outputFile, fmt.Sprintf("_%d.png", slot))
		plotFile, err := checkOutputFile(cmd.Context(), plotFile)
		if err != nil {
			return err
		}
		return Plot(cmd.Context(), maybeDownload(cmd.Context(), outputFile, outChan), slot, plotFile)
	},
	DisableAutoGenTag: true,
}
