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
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/envlik"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Run calculates the likelihood surfaces specified by o and saves them,
// along with the status manifest and the log. Log messages are also
// written to stderr.
func Run(ctx context.Context, stderr io.Writer, o *RunOptions) error {
	startTime := time.Now()

	var upload uploader

	logFile := &lumberjack.Logger{
		Filename:   upload.maybeUpload(o.LogFile),
		MaxSize:    64, // MB
		MaxBackups: 1,
	}
	defer logFile.Close()
	if upload.err != nil {
		return upload.err
	}
	log := logrus.New()
	log.SetOutput(io.MultiWriter(stderr, logFile))

	res, err := run(ctx, log, o)
	if err != nil {
		log.WithError(err).Error("envlik: run failed")
		return err
	}

	if err := writeOutput(upload.maybeUpload(o.OutputFile), res); err != nil {
		return err
	}
	if err := writeStatus(upload.maybeUpload(o.StatusFile), o.Mode, res.Status); err != nil {
		return err
	}
	if upload.err != nil {
		return upload.err
	}
	log.WithFields(logrus.Fields{
		"output": o.OutputFile,
		"status": o.StatusFile,
		"time":   time.Since(startTime).Round(time.Millisecond),
	}).Info("envlik: wrote outputs")

	if err := logFile.Close(); err != nil {
		return fmt.Errorf("envlik: closing log file: %v", err)
	}
	return upload.uploadOutput(ctx)
}

// run reads the inputs described by o and runs the likelihood engine.
func run(ctx context.Context, log logrus.FieldLogger, o *RunOptions) (*envlik.Result, error) {
	f, err := os.Open(o.TagFile)
	if err != nil {
		return nil, fmt.Errorf("envlik: opening tag file: %w", err)
	}
	tags, err := envlik.ReadTagCSV(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"file": o.TagFile, "samples": len(tags)}).Info("envlik: read tag records")

	dates, err := masterDates(tags, o.DateStart, o.DateEnd)
	if err != nil {
		return nil, err
	}

	ref := o.Reference
	if ref.Start.IsZero() {
		ref.Start = dates[0]
	}
	if ref.End.IsZero() {
		ref.End = dates[len(dates)-1]
	}
	acc := &envlik.CachedAccessor{
		Accessor:  &ref,
		CacheSize: o.CacheSize,
		Retries:   o.Retries,
		ID:        ref.FileTemplate + ":" + ref.ValueVar,
		Log:       log,
	}

	cfg := o.Config.Defaults()
	cfg.Log = log
	if o.Bathymetry || len(o.MaskPolygon) > 0 {
		if err := setMask(ctx, &cfg, o, acc); err != nil {
			return nil, err
		}
		log.WithField("cells", cfg.Mask.Count()).Info("envlik: masked grid cells")
	}
	return envlik.Run(ctx, &cfg, acc, tags, dates)
}

// masterDates returns the daily output dates between start and end,
// which default to the span of the tag records.
func masterDates(tags envlik.TagSeries, start, end time.Time) ([]time.Time, error) {
	first, last, ok := tags.Span()
	if start.IsZero() {
		start = first
	}
	if end.IsZero() {
		end = last
	}
	if (start.IsZero() || end.IsZero()) && !ok {
		return nil, fmt.Errorf("envlik: no tag records and no DateStart and DateEnd: %w", envlik.ErrNoDates)
	}
	dates := envlik.DailyDates(start, end)
	if len(dates) == 0 {
		return nil, fmt.Errorf("envlik: DateEnd %s is before DateStart %s: %w",
			end.Format("2006-01-02"), start.Format("2006-01-02"), envlik.ErrNoDates)
	}
	return dates, nil
}

// setMask fixes the output shape of cfg from the first available
// reference field and builds the mask requested by o on that grid.
func setMask(ctx context.Context, cfg *envlik.Config, o *RunOptions, acc envlik.Accessor) error {
	available, err := acc.Dates()
	if err != nil {
		return err
	}
	tmpl, err := envlik.PrescanShape(ctx, acc, available, cfg.FetchTimeout)
	if err != nil {
		return err
	}
	shape := tmpl.Shape()
	mask := envlik.NewMask(shape)
	if len(o.MaskPolygon) > 0 {
		if err := mask.Union(envlik.MaskFromPolygon(tmpl.Lon, tmpl.Lat, o.MaskPolygon)); err != nil {
			return err
		}
	}
	if o.Bathymetry {
		ref := o.Reference
		if o.MaskVar != "" {
			ref.ValueVar = o.MaskVar
		}
		f, err := ref.Fetch(ctx, tmpl.Date)
		if err != nil {
			return fmt.Errorf("envlik: reading bathymetry mask: %w", err)
		}
		if err := mask.Union(envlik.MaskFromField(f)); err != nil {
			return err
		}
	}
	cfg.Shape = &shape
	cfg.Mask = mask
	return nil
}

func writeOutput(path string, res *envlik.Result) error {
	w, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("envlik: creating output file: %v", err)
	}
	if err := res.Stack.WriteNCF(w, res.Dates, res.Lon, res.Lat); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func writeStatus(path string, m envlik.Mode, status []envlik.DayStatus) error {
	w, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("envlik: creating status file: %v", err)
	}
	if err := envlik.WriteStatus(w, m, status); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
