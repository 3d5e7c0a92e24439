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

package envlikutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/envlik"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

// RunOptions holds the settings of a run, with all input files
// available locally.
type RunOptions struct {
	envlik.Config

	// TagFile is the local path of the tag record CSV file.
	TagFile string

	// Reference describes the reference data files. Start and End
	// default to the first and last output dates.
	Reference envlik.NCFAccessor

	CacheSize, Retries int

	// DateStart and DateEnd bound the output dates. If they are zero,
	// the span of the tag records is used.
	DateStart, DateEnd time.Time

	// Bathymetry specifies whether cells where MaskVar is missing at
	// every depth are excluded.
	Bathymetry bool
	MaskVar    string

	// MaskPolygon, if not empty, excludes the cells whose centres are
	// inside it.
	MaskPolygon geom.Polygon

	// OutputFile, StatusFile, and LogFile are output paths, which can
	// be blob storage URLs.
	OutputFile, StatusFile, LogFile string
}

// runOptions reads the run settings from cfg, downloading remote input
// files. c receives progress and error messages.
func runOptions(ctx context.Context, cfg *viper.Viper, c chan string) (*RunOptions, error) {
	o := new(RunOptions)
	var err error
	if o.Mode, err = envlik.ParseMode(cfg.GetString("Mode")); err != nil {
		return nil, err
	}
	o.Window = cfg.GetInt("Window")
	sensorError := cfg.GetFloat64("SensorError")
	o.SensorError = &sensorError
	o.OHCBias = cfg.GetFloat64("OHCBias")
	o.Workers = cfg.GetInt("Workers")
	if o.Isotherm, err = parseIsotherm(cfg.GetString("Isotherm")); err != nil {
		return nil, err
	}
	if o.FetchTimeout, err = cast.ToDurationE(cfg.Get("FetchTimeout")); err != nil {
		return nil, fmt.Errorf("envlik: invalid FetchTimeout: %v", err)
	}
	if o.DateStart, err = parseDate("DateStart", cfg.GetString("DateStart")); err != nil {
		return nil, err
	}
	if o.DateEnd, err = parseDate("DateEnd", cfg.GetString("DateEnd")); err != nil {
		return nil, err
	}

	if o.TagFile = expand(cfg.GetString("TagFile")); o.TagFile == "" {
		return nil, fmt.Errorf("envlik: you need to specify a TagFile")
	}
	o.TagFile = maybeDownload(ctx, o.TagFile, c)

	o.Reference = envlik.NCFAccessor{
		FileTemplate: expand(cfg.GetString("Reference.FileTemplate")),
		DateFormat:   cfg.GetString("Reference.DateFormat"),
		ValueVar:     cfg.GetString("Reference.ValueVar"),
		LonVar:       cfg.GetString("Reference.LonVar"),
		LatVar:       cfg.GetString("Reference.LatVar"),
		DepthVar:     cfg.GetString("Reference.DepthVar"),
	}
	if err = checkReferenceTemplate(o.Reference.FileTemplate); err != nil {
		return nil, err
	}
	if o.Reference.Start, err = parseDate("Reference.StartDate", cfg.GetString("Reference.StartDate")); err != nil {
		return nil, err
	}
	if o.Reference.End, err = parseDate("Reference.EndDate", cfg.GetString("Reference.EndDate")); err != nil {
		return nil, err
	}
	o.CacheSize = cfg.GetInt("Reference.CacheSize")
	o.Retries = cfg.GetInt("Reference.Retries")

	o.Bathymetry = cfg.GetBool("Bathymetry")
	o.MaskVar = cfg.GetString("MaskVar")
	if f := expand(cfg.GetString("MaskFile")); f != "" {
		if o.MaskPolygon, err = parseMask(maybeDownload(ctx, f, c)); err != nil {
			return nil, err
		}
	}

	if o.OutputFile, err = checkOutputFile(ctx, expand(cfg.GetString("OutputFile"))); err != nil {
		return nil, err
	}
	status := checkSideFile(expand(cfg.GetString("StatusFile")), o.OutputFile, "_status.toml")
	if o.StatusFile, err = checkOutputFile(ctx, status); err != nil {
		return nil, err
	}
	o.LogFile = checkSideFile(expand(cfg.GetString("LogFile")), o.OutputFile, ".log")
	return o, nil
}

// expand expands the environment variables in s.
func expand(s string) string { return os.ExpandEnv(s) }

// parseDate parses a date setting. Empty values return the zero time.
func parseDate(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := cast.ToTimeE(s)
	if err != nil {
		return t, fmt.Errorf("envlik: invalid %s '%s': %v", name, s, err)
	}
	return envlik.Day(t), nil
}

// parseIsotherm parses the Isotherm setting, where an empty value
// means that it is not set.
func parseIsotherm(s string) (*float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := cast.ToFloat64E(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("envlik: invalid Isotherm '%s': %v", s, err)
	}
	return &v, nil
}

// checkReferenceTemplate makes sure that the reference files are local
// and that the template includes the date wildcard.
func checkReferenceTemplate(f string) error {
	if f == "" {
		return fmt.Errorf("envlik: you need to specify Reference.FileTemplate")
	}
	if isBlob(f) || strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://") {
		return fmt.Errorf("envlik: Reference.FileTemplate must be a local path, but is '%s'", f)
	}
	if !strings.Contains(f, "[DATE]") {
		return fmt.Errorf("envlik: Reference.FileTemplate '%s' does not contain the [DATE] wildcard", f)
	}
	return nil
}

// checkOutputFile makes sure that the output file is specified and its
// directory or bucket exists.
func checkOutputFile(ctx context.Context, f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="output.nc")`)
	}
	if p, ok := parseBlobPath(f); ok {
		b, err := p.openBucket(ctx)
		if err != nil {
			return f, fmt.Errorf("envlik: error when checking output location: %v", err)
		}
		return f, b.Close()
	}
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("envlik: the output directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkSideFile fills in a default value for the path of a file written
// alongside the output file if one isn't specified, by replacing the
// extension of outputFile with suffix.
func checkSideFile(f, outputFile, suffix string) string {
	if f == "" {
		f = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + suffix
	}
	return f
}

// parseMask returns a mask polygon represented by the
// given GeoJSON file.
func parseMask(maskGeoJSONFile string) (geom.Polygon, error) {
	var mask geom.Polygon
	b, err := os.ReadFile(maskGeoJSONFile)
	if err != nil {
		return nil, fmt.Errorf("envlik: reading mask file: %w", err)
	}
	j, err := geojson.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("envlik: decoding mask file: %w", err)
	}
	switch msk := j.(type) {
	case geom.Polygon:
		mask = msk
	case geom.MultiPolygon:
		for _, p := range msk {
			mask = append(mask, p...)
		}
	default:
		return nil, fmt.Errorf("envlik: invalid mask geometry type %T", j)
	}
	return mask, nil
}

// outChan returns a channel printing to the error output of cmd.
func outChan(cmd *cobra.Command) chan string {
	c := make(chan string)
	go func() {
		for msg := range c {
			cmd.PrintErrln(msg)
		}
	}()
	return c
}
