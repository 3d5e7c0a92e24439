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
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/envlik"
)

func TestParseMask(t *testing.T) {
	dir := t.TempDir()
	t.Run("polygon", func(t *testing.T) {
		f := filepath.Join(dir, "polygon.json")
		os.WriteFile(f, []byte(`{"type": "Polygon","coordinates": [ [ [1, 1], [1, 2], [2, 2], [2, 1] ] ] }`), 0644)
		mask, err := parseMask(f)
		if err != nil {
			t.Fatal(err)
		}
		want := geom.Polygon{geom.Path{geom.Point{X: 1, Y: 1}, geom.Point{X: 1, Y: 2}, geom.Point{X: 2, Y: 2}, geom.Point{X: 2, Y: 1}}}
		if !reflect.DeepEqual(mask, want) {
			t.Errorf("%v != %v", mask, want)
		}
	})
	t.Run("multipolygon", func(t *testing.T) {
		f := filepath.Join(dir, "multipolygon.json")
		os.WriteFile(f, []byte(`{"type": "MultiPolygon","coordinates": [ [ [ [1, 1], [1, 1], [1, 1], [1, 1] ] ], [ [ [3, 3], [3, 3], [3, 3], [3, 3] ] ] ] }`), 0644)
		mask, err := parseMask(f)
		if err != nil {
			t.Fatal(err)
		}
		want := geom.Polygon{
			geom.Path{geom.Point{X: 1, Y: 1}, geom.Point{X: 1, Y: 1}, geom.Point{X: 1, Y: 1}, geom.Point{X: 1, Y: 1}},
			geom.Path{geom.Point{X: 3, Y: 3}, geom.Point{X: 3, Y: 3}, geom.Point{X: 3, Y: 3}, geom.Point{X: 3, Y: 3}},
		}
		if !reflect.DeepEqual(mask, want) {
			t.Errorf("%v != %v", mask, want)
		}
	})
	t.Run("point", func(t *testing.T) {
		f := filepath.Join(dir, "point.json")
		os.WriteFile(f, []byte(`{"type": "Point","coordinates": [1, 1] }`), 0644)
		if _, err := parseMask(f); err == nil {
			t.Error("expected an error for a point geometry")
		}
	})
}

func TestParseDate(t *testing.T) {
	for _, test := range []struct {
		in   string
		want time.Time
		err  bool
	}{
		{in: "", want: time.Time{}},
		{in: "2019-09-01", want: time.Date(2019, 9, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2019-09-01T18:30:00Z", want: time.Date(2019, 9, 1, 0, 0, 0, 0, time.UTC)},
		{in: "yesterday", err: true},
	} {
		t.Run(test.in, func(t *testing.T) {
			have, err := parseDate("DateStart", test.in)
			if (err != nil) != test.err {
				t.Fatalf("error: %v", err)
			}
			if !test.err && !have.Equal(test.want) {
				t.Errorf("have %v, want %v", have, test.want)
			}
		})
	}
}

func TestParseIsotherm(t *testing.T) {
	if iso, err := parseIsotherm(" "); err != nil || iso != nil {
		t.Errorf("empty: %v, %v", iso, err)
	}
	if iso, err := parseIsotherm("16.5"); err != nil || iso == nil || *iso != 16.5 {
		t.Errorf("16.5: %v, %v", iso, err)
	}
	if _, err := parseIsotherm("warm"); err == nil {
		t.Error("expected an error")
	}
}

func TestCheckReferenceTemplate(t *testing.T) {
	for template, ok := range map[string]bool{
		"/data/hycom_[DATE].nc":         true,
		"/data/hycom.nc":                false,
		"":                              false,
		"gs://bucket/hycom_[DATE].nc":   false,
		"https://x.org/h_[DATE].nc":     false,
		"file://bucket/hycom_[DATE].nc": false,
	} {
		if err := checkReferenceTemplate(template); (err == nil) != ok {
			t.Errorf("%q: %v", template, err)
		}
	}
}

func TestCheckOutputFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	if _, err := checkOutputFile(ctx, filepath.Join(dir, "out.nc")); err != nil {
		t.Error(err)
	}
	if _, err := checkOutputFile(ctx, filepath.Join(dir, "missing", "out.nc")); err == nil {
		t.Error("expected an error for a missing directory")
	}
	if _, err := checkOutputFile(ctx, ""); err == nil {
		t.Error("expected an error for an empty path")
	}
	if _, err := checkOutputFile(ctx, "ftp://bucket/out.nc"); err == nil {
		t.Error("expected an error for an invalid provider")
	}
}

func TestCheckSideFile(t *testing.T) {
	if have := checkSideFile("", "/out/run.nc", ".log"); have != "/out/run.log" {
		t.Errorf("default: %s", have)
	}
	if have := checkSideFile("", "gs://b/run.nc", "_status.toml"); have != "gs://b/run_status.toml" {
		t.Errorf("blob: %s", have)
	}
	if have := checkSideFile("/logs/x.log", "/out/run.nc", ".log"); have != "/logs/x.log" {
		t.Errorf("set: %s", have)
	}
}

func TestRunOptions(t *testing.T) {
	dir := testInputs(t)
	os.Setenv("ENVLIK_TESTDIR", dir)
	defer os.Unsetenv("ENVLIK_TESTDIR")

	cfg := viper.New()
	cfg.Set("Mode", "ohc")
	cfg.Set("TagFile", "${ENVLIK_TESTDIR}/tag.csv")
	cfg.Set("Reference.FileTemplate", "${ENVLIK_TESTDIR}/ref_[DATE].nc")
	cfg.Set("Reference.DateFormat", "20060102")
	cfg.Set("Reference.StartDate", "2019-08-01")
	cfg.Set("Reference.ValueVar", "temp")
	cfg.Set("Reference.CacheSize", 3)
	cfg.Set("Window", 5)
	cfg.Set("SensorError", 2.)
	cfg.Set("Isotherm", "15")
	cfg.Set("OHCBias", 0.1)
	cfg.Set("Workers", 3)
	cfg.Set("FetchTimeout", "90s")
	cfg.Set("DateEnd", "2019-09-30")
	cfg.Set("Bathymetry", true)
	cfg.Set("OutputFile", "${ENVLIK_TESTDIR}/out.nc")

	o, err := runOptions(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if o.Mode != envlik.ModeOHC || o.Window != 5 || *o.SensorError != 2 || o.OHCBias != 0.1 || o.Workers != 3 {
		t.Errorf("engine settings: %+v", o.Config)
	}
	if o.Isotherm == nil || *o.Isotherm != 15 {
		t.Errorf("isotherm: %v", o.Isotherm)
	}
	if o.FetchTimeout != 90*time.Second {
		t.Errorf("timeout: %v", o.FetchTimeout)
	}
	if o.TagFile != filepath.Join(dir, "tag.csv") || o.Reference.FileTemplate != filepath.Join(dir, "ref_[DATE].nc") {
		t.Errorf("paths: %s, %s", o.TagFile, o.Reference.FileTemplate)
	}
	if !o.Reference.Start.Equal(time.Date(2019, 8, 1, 0, 0, 0, 0, time.UTC)) || !o.Reference.End.IsZero() {
		t.Errorf("reference dates: %v, %v", o.Reference.Start, o.Reference.End)
	}
	if !o.DateStart.IsZero() || !o.DateEnd.Equal(time.Date(2019, 9, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("dates: %v, %v", o.DateStart, o.DateEnd)
	}
	if o.CacheSize != 3 || !o.Bathymetry || o.MaskPolygon != nil {
		t.Errorf("%+v", o)
	}
	if o.StatusFile != filepath.Join(dir, "out_status.toml") || o.LogFile != filepath.Join(dir, "out.log") {
		t.Errorf("side files: %s, %s", o.StatusFile, o.LogFile)
	}

	cfg.Set("Mode", "depth")
	if _, err := runOptions(context.Background(), cfg, nil); err == nil {
		t.Error("expected an error for an invalid mode")
	}
}
