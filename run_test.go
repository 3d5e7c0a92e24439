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

package envlik

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/goleak"
)

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// sstField returns a 3x3 surface field where only the centre column
// matches a tag reading of about 10 °C.
func sstField(d time.Time) *GridField {
	return testField(d, nil, [][]float64{
		{5, 10, 15},
		{5, 10.1, 15},
		{5, 9.9, 15},
	})
}

func sstTags(days ...time.Time) TagSeries {
	var o TagSeries
	for _, d := range days {
		o = append(o, TagSample{Time: d.Add(6 * time.Hour), Min: 9.5, Max: 10.5})
		o = append(o, TagSample{Time: d.Add(18 * time.Hour), Min: 9.8, Max: 10.2})
	}
	return o
}

func checkNormalized(t *testing.T, st *Stack, slot int) {
	t.Helper()
	s := st.Slot(slot)
	var max float64
	for _, v := range s.Elements {
		if v < 0 || v > 1 || math.IsNaN(v) {
			t.Errorf("slot %d: value %g is not in [0, 1]", slot, v)
		}
		max = math.Max(max, v)
	}
	if different(max, 1, testTolerance) {
		t.Errorf("slot %d: max is %g, want 1", slot, max)
	}
}

func checkZero(t *testing.T, st *Stack, slot int) {
	t.Helper()
	for i, v := range st.Slot(slot).Elements {
		if v != 0 {
			t.Errorf("slot %d cell %d: have %g, want 0", slot, i, v)
		}
	}
}

func TestRunFetchFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	d1, d2 := date(2019, 7, 1), date(2019, 7, 2)
	acc := newMemAccessor()
	acc.fields[d1] = sstField(d1)
	acc.errs[d2] = fmt.Errorf("connection reset")

	r, err := Run(context.Background(), &Config{Mode: ModeSST, Workers: 2, Log: quietLog()},
		acc, sstTags(d1, d2), []time.Time{d1, d2})
	if err != nil {
		t.Fatal(err)
	}
	if r.Stack.Len() != 2 {
		t.Fatalf("have %d slots, want 2", r.Stack.Len())
	}
	checkNormalized(t, r.Stack, 0)
	checkZero(t, r.Stack, 1)
	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			v := r.Stack.At(x, y, 0)
			if x == 1 && !(v > 0) {
				t.Errorf("(%d, %d): have %g, want > 0", x, y, v)
			} else if x != 1 && v != 0 {
				t.Errorf("(%d, %d): have %g, want 0", x, y, v)
			}
		}
	}
	if len(r.Status) != 2 || r.Status[0].Status != StatusOK || r.Status[1].Status != StatusFailed {
		t.Errorf("status: %+v", r.Status)
	}
	if r.Status[1].Err == nil || r.Status[1].Samples != 2 {
		t.Errorf("day 2 status: %+v", r.Status[1])
	}
	if len(r.Lon) != 3 || len(r.Lat) != 3 {
		t.Errorf("axes: %v %v", r.Lon, r.Lat)
	}
}

func TestRunShapeFromOtherDate(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	d1, d2, d3 := date(2019, 7, 1), date(2019, 7, 2), date(2019, 7, 3)
	acc := newMemAccessor()
	acc.errs[d1] = fmt.Errorf("connection reset")
	acc.errs[d2] = fmt.Errorf("connection reset")
	acc.fields[d3] = sstField(d3)

	r, err := Run(context.Background(), &Config{Mode: ModeSST, Log: quietLog()},
		acc, sstTags(d1, d2), []time.Time{d1, d2, d3})
	if err != nil {
		t.Fatal(err)
	}
	if r.Stack.Len() != 3 {
		t.Fatalf("have %d slots, want 3", r.Stack.Len())
	}
	for slot := 0; slot < 3; slot++ {
		checkZero(t, r.Stack, slot)
	}
	if len(r.Status) != 2 || r.Status[0].Status != StatusFailed || r.Status[1].Status != StatusFailed {
		t.Errorf("status: %+v", r.Status)
	}
	if n := acc.numCalls(d3); n != 1 {
		t.Errorf("d3 was fetched %d times, want 1", n)
	}
	if len(r.Lon) != 3 || len(r.Lat) != 3 {
		t.Errorf("axes: %v %v", r.Lon, r.Lat)
	}
}

func TestScanDates(t *testing.T) {
	d1, d2, d3, d4 := date(2019, 7, 1), date(2019, 7, 2), date(2019, 7, 3), date(2019, 7, 4)
	al := &Alignment{Dates: []time.Time{d1, d2, d3, d4}, Days: []time.Time{d3}}
	have := scanDates(al, []time.Time{d1, d3, d4.Add(time.Hour)})
	want := []time.Time{d3, d1, d4}
	if len(have) != len(want) {
		t.Fatalf("have %v, want %v", have, want)
	}
	for i := range want {
		if !have[i].Equal(want[i]) {
			t.Errorf("%d: have %v, want %v", i, have[i], want[i])
		}
	}
}

func TestRunSensorError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	d := date(2019, 7, 1)
	acc := newMemAccessor()
	acc.fields[d] = testField(d, nil, [][]float64{{10, 10.55, 15}})

	// The tags observe [9.5, 10.5], which 1% sensor error widens to
	// [9.405, 10.605].
	zero := 0.
	for _, test := range []struct {
		name        string
		sensorError *float64
		match       bool
	}{
		{name: "default", match: true},
		{name: "zero", sensorError: &zero, match: false},
	} {
		t.Run(test.name, func(t *testing.T) {
			cfg := &Config{Mode: ModeSST, SensorError: test.sensorError, Log: quietLog()}
			r, err := Run(context.Background(), cfg, acc, sstTags(d), []time.Time{d})
			if err != nil {
				t.Fatal(err)
			}
			if v := r.Stack.At(1, 0, 0); (v > 0) != test.match {
				t.Errorf("10.55 °C cell: have %g", v)
			}
			if v := r.Stack.At(0, 0, 0); !(v > 0) {
				t.Errorf("10 °C cell: have %g, want > 0", v)
			}
			checkNormalized(t, r.Stack, 0)
		})
	}
}

func TestRunEmptyDays(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	dates := DailyDates(date(2019, 7, 1), date(2019, 7, 4))
	acc := newMemAccessor()
	for _, d := range dates {
		acc.fields[d] = sstField(d)
	}
	r, err := Run(context.Background(), &Config{Mode: ModeSST, Log: quietLog()},
		acc, sstTags(dates[0], dates[2]), dates)
	if err != nil {
		t.Fatal(err)
	}
	if r.Stack.Len() != 4 {
		t.Fatalf("have %d slots, want 4", r.Stack.Len())
	}
	checkNormalized(t, r.Stack, 0)
	checkZero(t, r.Stack, 1)
	checkNormalized(t, r.Stack, 2)
	checkZero(t, r.Stack, 3)
	if acc.numCalls(dates[1]) != 0 || acc.numCalls(dates[3]) != 0 {
		t.Error("reference data was fetched for days without tag samples")
	}
}

func TestRunDeterministic(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	dates := DailyDates(date(2019, 7, 1), date(2019, 7, 20))
	acc := newMemAccessor()
	for i, d := range dates {
		f := sstField(d)
		f.Data.Elements[4] += float64(i) * 0.01
		acc.fields[d] = f
	}
	tags := sstTags(dates...)
	var first *Result
	for _, workers := range []int{1, 3, 8} {
		r, err := Run(context.Background(), &Config{Mode: ModeSST, Workers: workers, Log: quietLog()},
			acc, tags, dates)
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = r
			continue
		}
		for i, v := range r.Stack.Data.Elements {
			if v != first.Stack.Data.Elements[i] {
				t.Fatalf("%d workers: element %d is %g, want %g", workers, i, v, first.Stack.Data.Elements[i])
			}
		}
	}
}

func TestRunProfile(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	d := date(2019, 8, 1)
	depths := []float64{0, 10, 20, 30}
	acc := newMemAccessor()
	acc.fields[d] = testField(d, depths,
		[][]float64{{20, 20, 25}, {20, 20, 25}, {20, 20, 25}},
		[][]float64{{19, 19, 25}, {19, 19, 25}, {19, 19, 25}},
		[][]float64{{18, 18, 25}, {18, 18, 25}, {18, 18, 25}},
		[][]float64{{17, 17, 25}, {17, 17, 25}, {17, 17, 25}},
	)
	var tags TagSeries
	for _, z := range depths {
		tags = append(tags, TagSample{Time: d.Add(time.Hour), Depth: z, HasDepth: true, Min: 19.5 - 0.1*z, Max: 20.5 - 0.1*z})
	}
	r, err := Run(context.Background(), &Config{Mode: ModeProfile, Log: quietLog()}, acc, tags, []time.Time{d})
	if err != nil {
		t.Fatal(err)
	}
	if r.Status[0].Status != StatusOK {
		t.Fatalf("status: %+v", r.Status[0])
	}
	checkNormalized(t, r.Stack, 0)
	if v := r.Stack.At(2, 1, 0); v != 0 {
		t.Errorf("warm column: have %g, want 0", v)
	}
	if v := r.Stack.At(0, 1, 0); !(v > 0) {
		t.Errorf("matching column: have %g, want > 0", v)
	}
}

func TestRunProfileFitFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	d := date(2019, 8, 1)
	acc := newMemAccessor()
	acc.fields[d] = testField(d, []float64{0, 10}, uniform(3, 3, 20), uniform(3, 3, 19))
	tags := TagSeries{{Time: d, Depth: 5, HasDepth: true, Min: 19, Max: 20}}
	r, err := Run(context.Background(), &Config{Mode: ModeOHC, Log: quietLog()}, acc, tags, []time.Time{d})
	if err != nil {
		t.Fatal(err)
	}
	if r.Status[0].Status != StatusFitFailure || !errors.Is(r.Status[0].Err, ErrFitFailure) {
		t.Errorf("status: %+v", r.Status[0])
	}
	checkZero(t, r.Stack, 0)
}

func TestRunMismatch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	d1, d2 := date(2019, 7, 1), date(2019, 7, 2)
	acc := newMemAccessor()
	acc.fields[d1] = sstField(d1)
	acc.fields[d2] = testField(d2, nil, uniform(4, 3, 10))
	r, err := Run(context.Background(), &Config{Mode: ModeSST, Log: quietLog()}, acc, sstTags(d1, d2), []time.Time{d1, d2})
	if err != nil {
		t.Fatal(err)
	}
	if r.Stack.Nx != 3 || r.Stack.Ny != 3 {
		t.Errorf("shape: %s", r.Stack.Shape)
	}
	if r.Status[1].Status != StatusMismatch {
		t.Errorf("status: %+v", r.Status[1])
	}
	checkZero(t, r.Stack, 1)

	// An explicit shape takes precedence over the reference data.
	r, err = Run(context.Background(), &Config{Mode: ModeSST, Shape: &Shape{Nx: 3, Ny: 4}, Log: quietLog()},
		acc, sstTags(d1, d2), []time.Time{d1, d2})
	if err != nil {
		t.Fatal(err)
	}
	if r.Status[0].Status != StatusMismatch || r.Status[1].Status != StatusOK {
		t.Errorf("status with explicit shape: %+v", r.Status)
	}
}

func TestRunTimeoutAndPanic(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	d1, d2, d3 := date(2019, 7, 1), date(2019, 7, 2), date(2019, 7, 3)
	acc := newMemAccessor()
	acc.fields[d1] = sstField(d1)
	acc.block[d2] = true
	acc.panics[d3] = true
	r, err := Run(context.Background(), &Config{Mode: ModeSST, FetchTimeout: 50 * time.Millisecond, Log: quietLog()},
		acc, sstTags(d1, d2, d3), []time.Time{d1, d2, d3})
	if err != nil {
		t.Fatal(err)
	}
	if r.Status[1].Status != StatusTimeout {
		t.Errorf("blocked day: %+v", r.Status[1])
	}
	if r.Status[2].Status != StatusFailed {
		t.Errorf("panicking day: %+v", r.Status[2])
	}
	checkNormalized(t, r.Stack, 0)
	checkZero(t, r.Stack, 1)
	checkZero(t, r.Stack, 2)
}

func TestRunMask(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	d := date(2019, 7, 1)
	acc := newMemAccessor()
	acc.fields[d] = sstField(d)
	m := NewMask(Shape{Nx: 3, Ny: 3})
	m.Set(1, 0, true)
	r, err := Run(context.Background(), &Config{Mode: ModeSST, Mask: m, Log: quietLog()}, acc, sstTags(d), []time.Time{d})
	if err != nil {
		t.Fatal(err)
	}
	if v := r.Stack.At(1, 0, 0); v != 0 {
		t.Errorf("masked cell: have %g, want 0", v)
	}
	checkNormalized(t, r.Stack, 0)

	_, err = Run(context.Background(), &Config{Mode: ModeSST, Mask: NewMask(Shape{Nx: 2, Ny: 2}), Log: quietLog()},
		acc, sstTags(d), []time.Time{d})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("have %v, want %v", err, ErrDimensionMismatch)
	}
}

func TestRunDropped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	d1, d2 := date(2019, 7, 1), date(2019, 7, 2)
	acc := newMemAccessor()
	acc.fields[d1] = sstField(d1)
	acc.fields[d2] = sstField(d2)
	r, err := Run(context.Background(), &Config{Mode: ModeSST, Log: quietLog()}, acc, sstTags(d1, d2), []time.Time{d1})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Status) != 2 || r.Status[1].Status != StatusDropped || r.Status[1].Slot != -1 {
		t.Errorf("status: %+v", r.Status)
	}
}

func TestRunFatal(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	d := date(2019, 7, 1)
	ctx := context.Background()
	cfg := &Config{Mode: ModeSST, Log: quietLog()}

	t.Run("no reference dates", func(t *testing.T) {
		_, err := Run(ctx, cfg, newMemAccessor(), sstTags(d), []time.Time{d})
		if !errors.Is(err, ErrDataUnavailable) {
			t.Errorf("have %v, want %v", err, ErrDataUnavailable)
		}
	})
	acc := newMemAccessor()
	acc.fields[d] = sstField(d)
	t.Run("no dates", func(t *testing.T) {
		if _, err := Run(ctx, cfg, acc, sstTags(d), nil); !errors.Is(err, ErrNoDates) {
			t.Errorf("have %v, want %v", err, ErrNoDates)
		}
	})
	t.Run("unsorted", func(t *testing.T) {
		_, err := Run(ctx, cfg, acc, sstTags(d), []time.Time{d, d.AddDate(0, 0, -1)})
		if !errors.Is(err, ErrUnsortedDates) {
			t.Errorf("have %v, want %v", err, ErrUnsortedDates)
		}
	})
	t.Run("shape unknown", func(t *testing.T) {
		bad := newMemAccessor()
		bad.errs[d] = ErrDataUnavailable
		if _, err := Run(ctx, cfg, bad, sstTags(d), []time.Time{d}); !errors.Is(err, ErrShapeUnknown) {
			t.Errorf("have %v, want %v", err, ErrShapeUnknown)
		}
	})
	t.Run("no tags", func(t *testing.T) {
		r, err := Run(ctx, cfg, acc, nil, []time.Time{d})
		if err != nil {
			t.Fatal(err)
		}
		if r.Stack.Len() != 1 || len(r.Status) != 0 {
			t.Errorf("have %d slots and %d statuses", r.Stack.Len(), len(r.Status))
		}
		checkZero(t, r.Stack, 0)
	})
	t.Run("invalid config", func(t *testing.T) {
		if _, err := Run(ctx, &Config{Mode: Mode(7)}, acc, nil, []time.Time{d}); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestConfigDefaults(t *testing.T) {
	c := (Config{}).Defaults()
	if *c.SensorError != DefaultSensorError || c.HeatCapacity != DefaultHeatCapacity ||
		c.Density != DefaultDensity || c.FitSpan != DefaultFitSpan || c.FetchTimeout != DefaultFetchTimeout {
		t.Errorf("defaults: %+v", c)
	}
	if c.Workers < 1 || c.Log == nil {
		t.Errorf("workers %d, log %v", c.Workers, c.Log)
	}
	if err := c.Validate(); err != nil {
		t.Error(err)
	}
	zero, negative := 0., -1.
	if c := (Config{SensorError: &zero}).Defaults(); *c.SensorError != 0 {
		t.Errorf("a zero sensor error was replaced by %g", *c.SensorError)
	}
	for _, bad := range []Config{
		{Window: -1},
		{SensorError: &negative},
		{OHCBias: -0.1},
		{FitSpan: 1.5},
		{Shape: &Shape{Nx: 0, Ny: 3}},
	} {
		b := bad.Defaults()
		if err := b.Validate(); err == nil {
			t.Errorf("%+v should be invalid", bad)
		}
	}
}

func TestRunNoMatch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	d := date(2019, 7, 1)
	acc := newMemAccessor()
	acc.fields[d] = testField(d, nil, uniform(3, 3, 30))
	r, err := Run(context.Background(), &Config{Mode: ModeSST, Log: quietLog()}, acc, sstTags(d), []time.Time{d})
	if err != nil {
		t.Fatal(err)
	}
	if r.Status[0].Status != StatusZero || r.Status[0].Err != nil {
		t.Errorf("status: %+v", r.Status[0])
	}
	checkZero(t, r.Stack, 0)
}
